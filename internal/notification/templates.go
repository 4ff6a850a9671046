package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"storefront/internal/model"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var emailTemplate = template.Must(template.New("email").Funcs(template.FuncMap{
	"money": formatMoney,
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 22px;">{{.Heading}}</h1>
	<p>{{.Intro}}</p>
	<p>Order number: <strong style="font-family: monospace;">{{.Order.OrderNumber}}</strong></p>
	{{if .Order.TrackingNumber}}<p>Tracking number: <strong>{{.Order.TrackingNumber}}</strong></p>{{end}}
	<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
		<thead>
			<tr>
				<th style="text-align: left; padding: 8px;">Item</th>
				<th style="text-align: center; padding: 8px;">Qty</th>
				<th style="text-align: right; padding: 8px;">Price</th>
				<th style="text-align: right; padding: 8px;">Total</th>
			</tr>
		</thead>
		<tbody>
		{{range .Items}}
			<tr>
				<td style="padding: 8px; border-bottom: 1px solid #eee;">{{.ProductName}}</td>
				<td style="padding: 8px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
				<td style="padding: 8px; border-bottom: 1px solid #eee; text-align: right;">{{money $.Currency .UnitPrice}}</td>
				<td style="padding: 8px; border-bottom: 1px solid #eee; text-align: right;">{{money $.Currency .TotalPrice}}</td>
			</tr>
		{{end}}
		</tbody>
	</table>
	<table style="width: 100%;">
		<tr><td>Subtotal</td><td style="text-align: right;">{{money .Currency .Order.Subtotal}}</td></tr>
		<tr><td>Shipping</td><td style="text-align: right;">{{money .Currency .Order.ShippingCost}}</td></tr>
		<tr><td>Tax</td><td style="text-align: right;">{{money .Currency .Order.TaxAmount}}</td></tr>
		<tr><td><strong>Total</strong></td><td style="text-align: right;"><strong>{{money .Currency .Order.TotalAmount}}</strong></td></tr>
	</table>
	<p>Shipping to {{.Order.ShippingAddress.Name}}, {{.Order.ShippingAddress.City}}, {{.Order.ShippingAddress.State}} {{.Order.ShippingAddress.PostalCode}}</p>
</body>
</html>`))

type emailData struct {
	Heading  string
	Intro    string
	Currency string
	Order    *model.Order
	Items    []model.OrderItem
}

// renderEmail returns the subject and HTML body for a notification.
func renderEmail(t model.NotificationType, order *model.Order, items []model.OrderItem) (string, string, error) {
	data := emailData{
		Currency: strings.ToUpper(order.Currency),
		Order:    order,
		Items:    items,
	}

	var subject string
	switch t {
	case model.NotificationConfirmation:
		subject = fmt.Sprintf("Order confirmation %s", order.OrderNumber)
		data.Heading = "Thank you for your order"
		data.Intro = "We have received your payment and are preparing your order."
	case model.NotificationShipped:
		subject = fmt.Sprintf("Your order %s has shipped", order.OrderNumber)
		data.Heading = "Your order is on its way"
		data.Intro = "Your order has left our warehouse."
	default:
		return "", "", fmt.Errorf("unsupported notification type %q", t)
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render %s email: %w", t, err)
	}
	return subject, buf.String(), nil
}

// formatMoney renders 2589.84 as "USD 2,589.84".
func formatMoney(currency string, amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return currency + " " + humanize.FormatFloat("#,###.##", f)
}
