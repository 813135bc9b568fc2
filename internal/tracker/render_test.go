package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"reorder-service/internal/model"
)

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		data        string
		wantAction  model.CallbackAction
		wantOrderID string
	}{
		{"ordered:B08N5WRWNW", model.ActionOrdered, "B08N5WRWNW"},
		{"delivered:B08N5WRWNW", model.ActionDelivered, "B08N5WRWNW"},
		{"cancel:B08N5WRWNW", model.ActionCancel, "B08N5WRWNW"},
		{"ordered:", model.ActionOrdered, ""},
		{"garbage", model.ActionNoop, ""},
		{"unknown:B08N5WRWNW", model.ActionNoop, ""},
		{"", model.ActionNoop, ""},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			action, orderID := ParseCallbackData(tt.data)
			assert.Equal(t, tt.wantAction, action)
			assert.Equal(t, tt.wantOrderID, orderID)
		})
	}
}

func TestCallbackDataRoundTrip(t *testing.T) {
	data := callbackData(model.ActionDelivered, "B000123456")
	action, orderID := ParseCallbackData(data)

	assert.Equal(t, model.ActionDelivered, action)
	assert.Equal(t, "B000123456", orderID)
}

func TestRenderCreated_IncludesCartLink(t *testing.T) {
	e := model.LifecycleEntry{
		OrderID:      "B08N5WRWNW",
		ProductName:  "Coffee Beans",
		Quantity:     2,
		Unit:         "Pack",
		CartURL:      "https://www.amazon.de/gp/aws/cart/add.html?ASIN.1=B08N5WRWNW&Quantity.1=2",
		CurrentStock: 5,
		MinStock:     10,
	}

	text := renderCreated(e)
	assert.Contains(t, text, "Coffee Beans")
	assert.Contains(t, text, "B08N5WRWNW")
	assert.Contains(t, text, "5/10 Pack")
	assert.Contains(t, text, e.CartURL)

	e.CartURL = ""
	assert.NotContains(t, renderCreated(e), "Add to cart")
}

func TestTrimFloat(t *testing.T) {
	assert.Equal(t, "5", trimFloat(5))
	assert.Equal(t, "2.5", trimFloat(2.5))
	assert.Equal(t, "0.25", trimFloat(0.25))
}
