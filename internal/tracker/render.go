package tracker

import (
	"fmt"
	"strconv"
	"strings"

	"reorder-service/internal/model"
)

// Callback payload format: "<action>:<orderID>".
func callbackData(action model.CallbackAction, orderID string) string {
	return string(action) + ":" + orderID
}

// ParseCallbackData splits a callback payload back into action and order
// identifier. Payloads that do not match the format map to a noop action.
func ParseCallbackData(data string) (model.CallbackAction, string) {
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return model.ActionNoop, ""
	}
	switch model.CallbackAction(parts[0]) {
	case model.ActionOrdered:
		return model.ActionOrdered, parts[1]
	case model.ActionDelivered:
		return model.ActionDelivered, parts[1]
	case model.ActionCancel:
		return model.ActionCancel, parts[1]
	}
	return model.ActionNoop, ""
}

func createdButtons(orderID string) [][]Button {
	return [][]Button{
		{{Label: "🛒 I ordered this", Data: callbackData(model.ActionOrdered, orderID)}},
		{{Label: "❌ Cancel", Data: callbackData(model.ActionCancel, orderID)}},
	}
}

func orderedButtons(orderID string) [][]Button {
	return [][]Button{
		{{Label: "📦 Delivered", Data: callbackData(model.ActionDelivered, orderID)}},
		{{Label: "❌ Cancel", Data: callbackData(model.ActionCancel, orderID)}},
	}
}

func renderCreated(e model.LifecycleEntry) string {
	var b strings.Builder
	b.WriteString("🛒 <b>Amazon reorder needed</b>\n\n")
	fmt.Fprintf(&b, "<b>%s</b>\n", e.ProductName)
	fmt.Fprintf(&b, "Quantity: %dx\n", e.Quantity)
	fmt.Fprintf(&b, "ASIN: <code>%s</code>\n\n", e.OrderID)
	fmt.Fprintf(&b, "📊 Stock: %s/%s %s", trimFloat(e.CurrentStock), trimFloat(e.MinStock), e.Unit)
	if e.CartURL != "" {
		fmt.Fprintf(&b, "\n\n👉 <a href=\"%s\">Add to cart</a>", e.CartURL)
	}
	return b.String()
}

func renderOrdered(e model.LifecycleEntry) string {
	var b strings.Builder
	b.WriteString("📦 <b>Order placed, waiting for delivery</b>\n\n")
	fmt.Fprintf(&b, "<b>%s</b>\n", e.ProductName)
	fmt.Fprintf(&b, "Quantity: %dx\n", e.Quantity)
	fmt.Fprintf(&b, "ASIN: <code>%s</code>\n\n", e.OrderID)
	fmt.Fprintf(&b, "📊 Stock: %s/%s %s", trimFloat(e.CurrentStock), trimFloat(e.MinStock), e.Unit)
	if e.OrderedAt != nil {
		fmt.Fprintf(&b, "\nOrdered: %s", e.OrderedAt.Local().Format("02.01.2006 15:04"))
	}
	return b.String()
}

func renderDelivered(e model.LifecycleEntry) string {
	return fmt.Sprintf("✅ <b>%s</b> delivered and booked into stock.", e.ProductName)
}

// trimFloat renders stock amounts without trailing zeros (5 not 5.000).
func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
