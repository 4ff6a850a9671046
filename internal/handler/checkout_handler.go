package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"storefront/internal/model"
	"storefront/internal/service"

	"github.com/rs/zerolog"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	maxIdempotencyKeyLen = 255
)

// CheckoutHandler handles checkout HTTP requests.
type CheckoutHandler struct {
	service service.CheckoutService
	logger  zerolog.Logger
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(service service.CheckoutService, logger zerolog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
		logger:  logger.With().Str("handler", "checkout").Logger(),
	}
}

type checkoutBody struct {
	Items           []json.RawMessage     `json:"items"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                `json:"payment_method"`
}

// checkoutLineBody keeps raw values so each line can be reported on its own.
// Fields other than product_id and quantity, prices included, are ignored.
type checkoutLineBody struct {
	ProductID any `json:"product_id"`
	Quantity  any `json:"quantity"`
}

// Create handles POST /checkout requests.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body checkoutBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err, h.logger)
		return
	}

	req, err := parseCheckoutRequest(body)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		writeError(w, model.ErrInvalidInput.WithDetails(
			fmt.Sprintf("%s must be at most %d characters", idempotencyKeyHeader, maxIdempotencyKeyLen)), h.logger)
		return
	}
	req.IdempotencyKey = key

	result, err := h.service.CreateCheckout(r.Context(), identity(r), req)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// RetryPayment handles POST /api/orders/{id}/payment requests.
func (h *CheckoutHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathOrderID(r)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	result, err := h.service.RetryPayment(r.Context(), identity(r), orderID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// parseCheckoutRequest converts the wire body, rejecting quantities that are
// not JSON integers and naming the offending line.
func parseCheckoutRequest(body checkoutBody) (*model.CheckoutRequest, error) {
	req := &model.CheckoutRequest{
		Items:           make([]model.CheckoutLine, 0, len(body.Items)),
		ShippingAddress: body.ShippingAddress,
		PaymentMethod:   body.PaymentMethod,
	}

	var details []string
	for i, raw := range body.Items {
		var line checkoutLineBody
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&line); err != nil {
			details = append(details, fmt.Sprintf("items[%d] must be an object", i))
			continue
		}

		var out model.CheckoutLine
		switch id := line.ProductID.(type) {
		case string:
			out.ProductID = id
		case nil:
		default:
			details = append(details, fmt.Sprintf("items[%d].product_id must be a string", i))
		}

		qty, ok := line.Quantity.(json.Number)
		if !ok {
			details = append(details, fmt.Sprintf("items[%d].quantity must be a positive integer", i))
		} else if n, err := qty.Int64(); err != nil || n > math.MaxInt32 {
			details = append(details, fmt.Sprintf("items[%d].quantity must be a positive integer", i))
		} else {
			out.Quantity = int(n)
		}

		req.Items = append(req.Items, out)
	}

	if len(details) > 0 {
		return nil, model.ErrInvalidInput.WithDetails(details...)
	}
	return req, nil
}
