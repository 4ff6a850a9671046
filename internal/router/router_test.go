package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/payment"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducts struct{}

func (fakeProducts) GetAll(context.Context, int, int) ([]model.Product, error) {
	return []model.Product{}, nil
}

func (fakeProducts) GetByID(_ context.Context, id string) (*model.Product, error) {
	return &model.Product{ID: id}, nil
}

type fakeCheckout struct{}

func (fakeCheckout) CreateCheckout(_ context.Context, id auth.Identity, _ *model.CheckoutRequest) (*model.CheckoutResult, error) {
	return &model.CheckoutResult{OrderNumber: "ORD-" + id.UserID}, nil
}

func (fakeCheckout) RetryPayment(_ context.Context, id auth.Identity, orderID uuid.UUID) (*model.CheckoutResult, error) {
	return &model.CheckoutResult{OrderID: orderID, OrderNumber: "ORD-" + id.UserID}, nil
}

type fakeOrders struct{}

func (fakeOrders) GetOrder(_ context.Context, actor auth.Identity, id uuid.UUID) (*model.OrderDetail, error) {
	return &model.OrderDetail{Order: model.Order{ID: id, UserID: actor.UserID}}, nil
}

func (fakeOrders) ListOrders(context.Context, auth.Identity, model.OrderFilter) ([]model.Order, error) {
	return []model.Order{}, nil
}

func (fakeOrders) ListAllOrders(context.Context, auth.Identity, model.OrderFilter) ([]model.Order, error) {
	return nil, model.ErrUnauthorized
}

func (fakeOrders) UpdateStatus(context.Context, auth.Identity, uuid.UUID, model.StatusUpdate) (*model.Order, error) {
	return nil, model.ErrUnauthorized
}

func (fakeOrders) ResendNotification(context.Context, auth.Identity, uuid.UUID, model.NotificationType) error {
	return nil
}

func (fakeOrders) ApplyPaymentResult(context.Context, *payment.PaymentResult) (*model.Order, error) {
	return &model.Order{}, nil
}

func newTestRouter(t *testing.T) (http.Handler, string) {
	t.Helper()
	logger := zerolog.Nop()
	jwt := auth.NewJWTService("router-secret", "", time.Hour)
	token, _, err := jwt.Issue("user-1", "user@example.com", "")
	if err != nil {
		t.Fatal(err)
	}

	h := Handlers{
		Health:   handler.NewHealthHandler(nil, logger),
		Product:  handler.NewProductHandler(fakeProducts{}, logger),
		Checkout: handler.NewCheckoutHandler(fakeCheckout{}, logger),
		Order:    handler.NewOrderHandler(fakeOrders{}, logger),
		Webhook:  handler.NewWebhookHandler(payment.NewWebhookVerifier("whsec"), fakeOrders{}, logger),
	}
	limiter := middleware.NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxVisitors: 10}, logger)

	return New(h, Options{
		Authenticate:   middleware.Authenticate(jwt, logger),
		RateLimit:      limiter.Middleware,
		AllowedOrigins: []string{"https://shop.example"},
	}, logger), token
}

func TestRouter_Routes(t *testing.T) {
	router, token := newTestRouter(t)
	orderID := uuid.New().String()

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		withToken      bool
		expectedStatus int
	}{
		{"Health is public", http.MethodGet, "/health", "", false, http.StatusOK},
		{"Products are public", http.MethodGet, "/api/products", "", false, http.StatusOK},
		{"Product by id", http.MethodGet, "/api/products/P001", "", false, http.StatusOK},
		{"Checkout needs a token", http.MethodPost, "/checkout", `{"items":[]}`, false, http.StatusUnauthorized},
		{"Checkout with token", http.MethodPost, "/checkout", `{"items":[{"product_id":"a","quantity":1}]}`, true, http.StatusOK},
		{"Checkout wrong method", http.MethodGet, "/checkout", "", true, http.StatusMethodNotAllowed},
		{"Orders need a token", http.MethodGet, "/api/orders", "", false, http.StatusUnauthorized},
		{"Own orders", http.MethodGet, "/api/orders", "", true, http.StatusOK},
		{"Order detail", http.MethodGet, "/api/orders/" + orderID, "", true, http.StatusOK},
		{"Payment retry needs a token", http.MethodPost, "/api/orders/" + orderID + "/payment", "", false, http.StatusUnauthorized},
		{"Payment retry wrong method", http.MethodGet, "/api/orders/" + orderID + "/payment", "", true, http.StatusMethodNotAllowed},
		{"Resend notification", http.MethodPost, "/api/orders/" + orderID + "/notifications", `{"type":"confirmation"}`, true, http.StatusAccepted},
		{"Admin list is forbidden for shoppers", http.MethodGet, "/api/admin/orders", "", true, http.StatusForbidden},
		{"Status update is forbidden for shoppers", http.MethodPatch, "/api/admin/orders/" + orderID + "/status", `{"status":"shipped"}`, true, http.StatusForbidden},
		{"Webhook skips bearer auth", http.MethodPost, "/webhooks/payment", `{}`, false, http.StatusBadRequest},
		{"Unknown path", http.MethodGet, "/api/carts", "", false, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.withToken {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestRouter_CheckoutIsRateLimited(t *testing.T) {
	router, token := newTestRouter(t)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"items":[{"product_id":"a","quantity":1}]}`))
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestRouter_PaymentRetrySharesCheckoutLimit(t *testing.T) {
	router, token := newTestRouter(t)

	send := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	orderID := uuid.New()
	w := send("/api/orders/"+orderID.String()+"/payment", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), orderID.String())

	w = send("/checkout", `{"items":[{"product_id":"a","quantity":1}]}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
