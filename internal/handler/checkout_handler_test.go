package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront/internal/auth"
	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var shopper = auth.Identity{UserID: "user-1", Email: "buyer@example.com"}

const validAddress = `{
	"name": "Ada Lovelace",
	"phone": "555-0100",
	"address_line1": "1 Analytical Way",
	"city": "Austin",
	"state": "TX",
	"postal_code": "73301"
}`

func checkoutRequest(body string, id *auth.Identity) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if id != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *id))
	}
	return req
}

func TestCheckoutHandler_Create(t *testing.T) {
	orderID := uuid.New()
	result := &model.CheckoutResult{
		URL:         "https://pay.example/cs_1",
		OrderID:     orderID,
		OrderNumber: "ORD-20260314-0001",
		SessionID:   "cs_1",
	}

	mockService := new(MockCheckoutService)
	handler := NewCheckoutHandler(mockService, zerolog.Nop())

	var received *model.CheckoutRequest
	mockService.On("CreateCheckout", mock.Anything, shopper, mock.AnythingOfType("*model.CheckoutRequest")).
		Run(func(args mock.Arguments) { received = args.Get(2).(*model.CheckoutRequest) }).
		Return(result, nil)

	body := `{"items":[{"product_id":"phone","quantity":2,"price":0.01,"unit_price":0.01}],"shipping_address":` + validAddress + `}`
	req := checkoutRequest(body, &shopper)
	req.Header.Set("Idempotency-Key", "  key-1 ")
	w := httptest.NewRecorder()

	handler.Create(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"url": "https://pay.example/cs_1",
		"orderId": "`+orderID.String()+`",
		"orderNumber": "ORD-20260314-0001",
		"sessionId": "cs_1"
	}`, w.Body.String())

	require.NotNil(t, received)
	assert.Equal(t, []model.CheckoutLine{{ProductID: "phone", Quantity: 2}}, received.Items)
	assert.Equal(t, "Austin", received.ShippingAddress.City)
	assert.Equal(t, "key-1", received.IdempotencyKey)
}

func TestCheckoutHandler_Create_RejectsBeforeService(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		key            string
		expectedCode   string
		expectedDetail string
	}{
		{
			name:         "Malformed JSON",
			body:         `{"items":[`,
			expectedCode: model.ErrCodeInvalidJSON,
		},
		{
			name:           "Fractional quantity",
			body:           `{"items":[{"product_id":"a","quantity":1},{"product_id":"b","quantity":1.5}]}`,
			expectedCode:   model.ErrCodeInvalidInput,
			expectedDetail: "items[1].quantity must be a positive integer",
		},
		{
			name:           "Quantity as string",
			body:           `{"items":[{"product_id":"a","quantity":"2"}]}`,
			expectedCode:   model.ErrCodeInvalidInput,
			expectedDetail: "items[0].quantity must be a positive integer",
		},
		{
			name:           "Quantity missing",
			body:           `{"items":[{"product_id":"a"}]}`,
			expectedCode:   model.ErrCodeInvalidInput,
			expectedDetail: "items[0].quantity must be a positive integer",
		},
		{
			name:           "Quantity overflows",
			body:           `{"items":[{"product_id":"a","quantity":99999999999999999999}]}`,
			expectedCode:   model.ErrCodeInvalidInput,
			expectedDetail: "items[0].quantity must be a positive integer",
		},
		{
			name:           "Product id not a string",
			body:           `{"items":[{"product_id":42,"quantity":1}]}`,
			expectedCode:   model.ErrCodeInvalidInput,
			expectedDetail: "items[0].product_id must be a string",
		},
		{
			name:           "Line not an object",
			body:           `{"items":["phone"]}`,
			expectedCode:   model.ErrCodeInvalidInput,
			expectedDetail: "items[0] must be an object",
		},
		{
			name:           "Idempotency key too long",
			body:           `{"items":[{"product_id":"a","quantity":1}]}`,
			key:            strings.Repeat("k", 256),
			expectedCode:   model.ErrCodeInvalidInput,
			expectedDetail: "Idempotency-Key must be at most 255 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockCheckoutService)
			handler := NewCheckoutHandler(mockService, zerolog.Nop())

			req := checkoutRequest(tt.body, &shopper)
			if tt.key != "" {
				req.Header.Set("Idempotency-Key", tt.key)
			}
			w := httptest.NewRecorder()

			handler.Create(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.expectedCode, body.Error)
			if tt.expectedDetail != "" {
				assert.Contains(t, body.Details, tt.expectedDetail)
			}
			mockService.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCheckoutHandler_Create_ServiceErrors(t *testing.T) {
	orderID := uuid.New()

	tests := []struct {
		name           string
		identity       *auth.Identity
		err            error
		expectedStatus int
		expectOrderID  bool
	}{
		{"Unauthenticated", nil, model.ErrUnauthenticated, http.StatusUnauthorized, false},
		{"Unknown product", &shopper, model.ErrProductNotFound.WithDetails("ghost"), http.StatusBadRequest, false},
		{"Inactive product", &shopper, model.ErrProductUnavailable.WithDetails("retired"), http.StatusConflict, false},
		{"Persistence failure", &shopper, model.ErrPersistenceFailure, http.StatusInternalServerError, false},
		{"Gateway unavailable", &shopper, model.ErrGatewayUnavailable.WithOrder(orderID), http.StatusServiceUnavailable, true},
		{"Gateway rejected", &shopper, model.ErrGatewayRejected.WithOrder(orderID), http.StatusBadGateway, true},
		{"Idempotency conflict", &shopper, model.ErrIdempotencyConflict.WithOrder(orderID), http.StatusConflict, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockCheckoutService)
			handler := NewCheckoutHandler(mockService, zerolog.Nop())

			expectedIdentity := auth.Identity{}
			if tt.identity != nil {
				expectedIdentity = *tt.identity
			}
			mockService.On("CreateCheckout", mock.Anything, expectedIdentity, mock.Anything).Return(nil, tt.err)

			body := `{"items":[{"product_id":"phone","quantity":1}],"shipping_address":` + validAddress + `}`
			w := httptest.NewRecorder()

			handler.Create(w, checkoutRequest(body, tt.identity))

			assert.Equal(t, tt.expectedStatus, w.Code)
			resp := decodeError(t, w)
			if tt.expectOrderID {
				require.NotNil(t, resp.OrderID)
				assert.Equal(t, orderID, *resp.OrderID)
			} else {
				assert.Nil(t, resp.OrderID)
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestCheckoutHandler_Create_PassesRequestContext(t *testing.T) {
	type ctxKey struct{}
	mockService := new(MockCheckoutService)
	handler := NewCheckoutHandler(mockService, zerolog.Nop())

	mockService.On("CreateCheckout", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Value(ctxKey{}) == "marker"
	}), shopper, mock.Anything).Return(&model.CheckoutResult{}, nil)

	req := checkoutRequest(`{"items":[{"product_id":"a","quantity":1}]}`, &shopper)
	req = req.WithContext(context.WithValue(req.Context(), ctxKey{}, "marker"))
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestCheckoutHandler_RetryPayment(t *testing.T) {
	orderID := uuid.New()
	result := &model.CheckoutResult{
		URL:         "https://pay.example/cs_2",
		OrderID:     orderID,
		OrderNumber: "ORD-20260314-0002",
		SessionID:   "cs_2",
	}

	tests := []struct {
		name           string
		pathID         string
		mockReturn     *model.CheckoutResult
		mockError      error
		expectedStatus int
		expectService  bool
	}{
		{"Success", orderID.String(), result, nil, http.StatusOK, true},
		{"Invalid UUID", "not-a-uuid", nil, nil, http.StatusBadRequest, false},
		{"Not the owner", orderID.String(), nil, model.ErrUnauthorized, http.StatusForbidden, true},
		{"Already paid", orderID.String(), nil, model.ErrAlreadyPaid.WithOrder(orderID), http.StatusConflict, true},
		{"Not pending", orderID.String(), nil, model.ErrInvalidTransition.WithOrder(orderID), http.StatusConflict, true},
		{"Gateway still down", orderID.String(), nil, model.ErrGatewayUnavailable.WithOrder(orderID), http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockCheckoutService)
			handler := NewCheckoutHandler(mockService, zerolog.Nop())
			if tt.expectService {
				mockService.On("RetryPayment", mock.Anything, shopper, orderID).Return(tt.mockReturn, tt.mockError)
			}

			w := httptest.NewRecorder()
			handler.RetryPayment(w, orderRequest(http.MethodPost, "/api/orders/"+tt.pathID+"/payment", "", tt.pathID, shopper))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"url":"https://pay.example/cs_2"`)
			}
			if tt.expectService {
				mockService.AssertExpectations(t)
			} else {
				mockService.AssertNotCalled(t, "RetryPayment", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}
