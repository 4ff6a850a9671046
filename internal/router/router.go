package router

import (
	"net/http"

	"storefront/internal/handler"
	"storefront/internal/middleware"

	"github.com/rs/zerolog"
)

// Handlers groups the HTTP handlers served by the API.
type Handlers struct {
	Health   *handler.HealthHandler
	Product  *handler.ProductHandler
	Checkout *handler.CheckoutHandler
	Order    *handler.OrderHandler
	Webhook  *handler.WebhookHandler
}

// Options configures the cross-cutting middleware.
type Options struct {
	Authenticate   func(http.Handler) http.Handler
	RateLimit      func(http.Handler) http.Handler
	AllowedOrigins []string
}

// New creates a new HTTP router with all routes and middleware configured.
func New(h Handlers, opts Options, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	authed := func(fn http.HandlerFunc) http.Handler {
		return opts.Authenticate(fn)
	}

	// Public endpoints
	mux.HandleFunc("GET /health", h.Health.Check)
	mux.HandleFunc("GET /api/products", h.Product.GetAll)
	mux.HandleFunc("GET /api/products/{id}", h.Product.GetByID)

	// Signed by the payment provider instead of a bearer token
	mux.HandleFunc("POST /webhooks/payment", h.Webhook.Payment)

	// Both routes that open payment sessions share the per-user rate limit
	mux.Handle("POST /checkout", opts.Authenticate(opts.RateLimit(http.HandlerFunc(h.Checkout.Create))))
	mux.Handle("POST /api/orders/{id}/payment", opts.Authenticate(opts.RateLimit(http.HandlerFunc(h.Checkout.RetryPayment))))

	mux.Handle("GET /api/orders", authed(h.Order.List))
	mux.Handle("GET /api/orders/{id}", authed(h.Order.GetByID))
	mux.Handle("POST /api/orders/{id}/notifications", authed(h.Order.ResendNotification))

	mux.Handle("GET /api/admin/orders", authed(h.Order.ListAll))
	mux.Handle("PATCH /api/admin/orders/{id}/status", authed(h.Order.UpdateStatus))

	// Apply middleware in order: RequestID -> Recovery -> Logging -> CORS
	var handler http.Handler = mux
	handler = middleware.CORS(opts.AllowedOrigins)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recovery(logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
