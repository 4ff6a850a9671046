package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethodStripe is the only payment method the storefront accepts.
const PaymentMethodStripe = "stripe"

// Order represents a customer order. Monetary fields are snapshots taken at
// checkout and never change afterwards.
type Order struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	OrderNumber        string          `json:"orderNumber" db:"order_number"`
	UserID             string          `json:"userId" db:"user_id"`
	ContactEmail       string          `json:"contactEmail" db:"contact_email"`
	Subtotal           decimal.Decimal `json:"subtotal" db:"subtotal_cents"`
	ShippingCost       decimal.Decimal `json:"shippingCost" db:"shipping_cents"`
	TaxAmount          decimal.Decimal `json:"taxAmount" db:"tax_cents"`
	TotalAmount        decimal.Decimal `json:"totalAmount" db:"total_cents"`
	Currency           string          `json:"currency" db:"currency"`
	Status             OrderStatus     `json:"status" db:"status"`
	PaymentMethod      string          `json:"paymentMethod" db:"payment_method"`
	PaymentStatus      PaymentStatus   `json:"paymentStatus" db:"payment_status"`
	PaymentSessionID   *string         `json:"paymentSessionId,omitempty" db:"payment_session_id"`
	PaymentIntentID    *string         `json:"paymentIntentId,omitempty" db:"payment_intent_id"`
	TrackingNumber     *string         `json:"trackingNumber,omitempty" db:"tracking_number"`
	ShippingAddress    ShippingAddress `json:"shippingAddress" db:"shipping_address"`
	IdempotencyKey     *string         `json:"-" db:"idempotency_key"`
	RequestFingerprint *string         `json:"-" db:"request_fingerprint"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time       `json:"updatedAt" db:"updated_at"`
	ShippedAt          *time.Time      `json:"shippedAt,omitempty" db:"shipped_at"`
	DeliveredAt        *time.Time      `json:"deliveredAt,omitempty" db:"delivered_at"`
}

// OrderItem represents a line item in an order, snapshotted at checkout.
type OrderItem struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	OrderID      uuid.UUID       `json:"orderId" db:"order_id"`
	LineNo       int             `json:"lineNo" db:"line_no"`
	ProductID    string          `json:"productId" db:"product_id"`
	ProductName  string          `json:"productName" db:"product_name"`
	ProductImage *string         `json:"productImage,omitempty" db:"product_image"`
	Quantity     int             `json:"quantity" db:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice" db:"unit_price_cents"`
	TotalPrice   decimal.Decimal `json:"totalPrice" db:"total_price_cents"`
}

// ShippingAddress is the delivery address captured with the order.
type ShippingAddress struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country,omitempty"`
}

// MissingFields lists the JSON names of required fields that are blank.
func (a ShippingAddress) MissingFields() []string {
	required := []struct {
		name  string
		value string
	}{
		{"name", a.Name},
		{"phone", a.Phone},
		{"address_line1", a.AddressLine1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
	}

	var missing []string
	for _, f := range required {
		if isBlank(f.value) {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// OrderDetail is an order together with its line items.
type OrderDetail struct {
	Order
	Items []OrderItem `json:"items"`
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	UserID string
	Status OrderStatus
	Search string // order number prefix
	Limit  int
	Offset int
}

// StatusUpdate is an admin request to move an order forward.
type StatusUpdate struct {
	Status         OrderStatus `json:"status"`
	TrackingNumber *string     `json:"trackingNumber,omitempty"`
}

// StatusChange is what the repository applies when a transition is accepted.
// ExpectedStatus guards against a concurrent update.
type StatusChange struct {
	OrderID        uuid.UUID
	ExpectedStatus OrderStatus
	Status         OrderStatus
	TrackingNumber *string
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	UpdatedAt      time.Time
}

// PaymentUpdate records the gateway's outcome for an order.
type PaymentUpdate struct {
	OrderID          uuid.UUID
	ExpectedStatus   PaymentStatus
	Status           PaymentStatus
	PaymentSessionID *string
	PaymentIntentID  *string
	UpdatedAt        time.Time
}
