package payment

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/model"
	"storefront/internal/pricing"

	"github.com/rs/zerolog"
)

const (
	deliveryMinDays = 3
	deliveryMaxDays = 7
)

type stripeGateway struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewStripeGateway creates a gateway for the Stripe Checkout Sessions API.
func NewStripeGateway(cfg config.PaymentConfig, logger zerolog.Logger) Gateway {
	logger = logger.With().Str("component", "stripe-gateway").Logger()
	if cfg.SecretKey == "" {
		logger.Warn().Msg("payment secret key is empty")
	}

	return &stripeGateway{
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type stripeSession struct {
	ID            string  `json:"id"`
	URL           string  `json:"url"`
	PaymentIntent *string `json:"payment_intent"`
}

type stripeCustomerList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

type stripeErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateSession creates a hosted checkout session for a persisted order.
func (g *stripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	order := req.Order
	log := g.logger.With().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Logger()

	form := g.sessionForm(req)

	if customerID := g.findCustomer(ctx, order.ContactEmail); customerID != "" {
		form.Set("customer", customerID)
	} else {
		form.Set("customer_email", order.ContactEmail)
	}

	var session stripeSession
	err := g.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, sessionIdempotencyKey(order.ID.String(), form, req.Attempt), &session)
	if err != nil {
		log.Error().Err(err).Msg("failed to create checkout session")
		return nil, err
	}

	if session.ID == "" || session.URL == "" {
		log.Error().Msg("checkout session response missing id or url")
		return nil, fmt.Errorf("%w: incomplete session response", ErrUnavailable)
	}

	log.Info().Str("session_id", session.ID).Msg("checkout session created")

	return &Session{
		ID:              session.ID,
		URL:             session.URL,
		PaymentIntentID: session.PaymentIntent,
	}, nil
}

// sessionForm encodes the order as Checkout Session parameters. Every amount is
// taken from the persisted order; tax is its own line so the charge matches the total.
func (g *stripeGateway) sessionForm(req SessionRequest) url.Values {
	order := req.Order
	currency := order.Currency

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", order.ID.String())
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("metadata[order_id]", order.ID.String())
	form.Set("metadata[order_number]", order.OrderNumber)
	form.Set("payment_intent_data[metadata][order_id]", order.ID.String())

	items := slices.Clone(req.Items)
	slices.SortStableFunc(items, func(a, b model.OrderItem) int { return cmp.Compare(a.LineNo, b.LineNo) })

	i := 0
	for _, item := range items {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", currency)
		form.Set(prefix+"[price_data][product_data][name]", item.ProductName)
		if item.ProductImage != nil {
			form.Set(prefix+"[price_data][product_data][images][0]", *item.ProductImage)
		}
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(pricing.ToCents(item.UnitPrice), 10))
		form.Set(prefix+"[quantity]", strconv.Itoa(item.Quantity))
		i++
	}

	if order.TaxAmount.IsPositive() {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", currency)
		form.Set(prefix+"[price_data][product_data][name]", "Sales tax")
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(pricing.ToCents(order.TaxAmount), 10))
		form.Set(prefix+"[quantity]", "1")
	}

	shippingName := "Standard Shipping"
	if order.ShippingCost.IsZero() {
		shippingName = "Free Shipping"
	}
	rate := "shipping_options[0][shipping_rate_data]"
	form.Set(rate+"[type]", "fixed_amount")
	form.Set(rate+"[display_name]", shippingName)
	form.Set(rate+"[fixed_amount][amount]", strconv.FormatInt(pricing.ToCents(order.ShippingCost), 10))
	form.Set(rate+"[fixed_amount][currency]", currency)
	form.Set(rate+"[delivery_estimate][minimum][unit]", "business_day")
	form.Set(rate+"[delivery_estimate][minimum][value]", strconv.Itoa(deliveryMinDays))
	form.Set(rate+"[delivery_estimate][maximum][unit]", "business_day")
	form.Set(rate+"[delivery_estimate][maximum][value]", strconv.Itoa(deliveryMaxDays))

	return form
}

// sessionIdempotencyKey derives the provider key from the order, the encoded
// parameters and the attempt. Identical requests share a key; requests whose
// parameters differ in any way get a different one.
func sessionIdempotencyKey(orderID string, form url.Values, attempt string) string {
	h := sha256.New()
	h.Write([]byte(form.Encode()))
	if attempt != "" {
		h.Write([]byte{0})
		h.Write([]byte(attempt))
	}
	return "checkout-" + orderID + "-" + hex.EncodeToString(h.Sum(nil))[:16]
}

// findCustomer returns an existing customer id for the email. Lookup failures
// are logged and the session falls back to customer_email.
func (g *stripeGateway) findCustomer(ctx context.Context, email string) string {
	if email == "" {
		return ""
	}

	q := url.Values{}
	q.Set("email", email)
	q.Set("limit", "1")

	var list stripeCustomerList
	if err := g.do(ctx, http.MethodGet, "/v1/customers?"+q.Encode(), nil, "", &list); err != nil {
		g.logger.Warn().Err(err).Msg("customer lookup failed, continuing without customer")
		return ""
	}
	if len(list.Data) == 0 {
		return ""
	}
	return list.Data[0].ID
}

func (g *stripeGateway) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build payment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", ErrUnavailable, err)
	}

	g.logger.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("payment provider call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb stripeErrorBody
		_ = json.Unmarshal(respBody, &eb)
		return &APIError{
			StatusCode: resp.StatusCode,
			Type:       eb.Error.Type,
			Code:       eb.Error.Code,
			Message:    eb.Error.Message,
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", ErrUnavailable, err)
	}
	return nil
}
