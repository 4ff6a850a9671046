// Package pricing computes authoritative order totals from catalog prices.
package pricing

import (
	"storefront/internal/config"

	"github.com/shopspring/decimal"
)

// Line is one priced cart line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Total returns unit price times quantity, unrounded.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals is the money breakdown of an order. Every component is rounded to
// cents and Total is the exact sum of the other three.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Calculator applies the shop pricing policy.
type Calculator struct {
	cfg config.PricingConfig
}

// NewCalculator creates a calculator for the given policy.
func NewCalculator(cfg config.PricingConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// Currency returns the ISO currency code the policy is expressed in.
func (c *Calculator) Currency() string {
	return c.cfg.Currency
}

// Compute prices the lines. Shipping is free only when the subtotal is strictly
// greater than the threshold.
func (c *Calculator) Compute(lines []Line) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}
	subtotal = Round(subtotal)

	shipping := Round(c.cfg.FlatShippingRate)
	if subtotal.GreaterThan(c.cfg.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	tax := Round(subtotal.Mul(c.cfg.TaxRate))

	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
	}
}

// Round rounds half away from zero to two decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ToCents converts an amount to integer minor units.
func ToCents(d decimal.Decimal) int64 {
	return Round(d).Shift(2).IntPart()
}

// FromCents converts integer minor units back to an amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
