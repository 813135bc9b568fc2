package model

import "time"

// OrderStatus is the resolution state of one order attempt in the ledger.
type OrderStatus string

const (
	StatusPending OrderStatus = "pending" // dry run or cart link sent, nothing executed
	StatusPlaced  OrderStatus = "placed"
	StatusFailed  OrderStatus = "failed"
	StatusSkipped OrderStatus = "skipped"
)

// LedgerEntry is the append-only record of one order attempt.
type LedgerEntry struct {
	OrderID     string      `json:"order_id"`
	ProductName string      `json:"product_name"`
	Quantity    int         `json:"quantity"`
	Status      OrderStatus `json:"status"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
}

// LifecycleState is the state of one outstanding order notification.
type LifecycleState string

const (
	LifecycleCreated   LifecycleState = "created"
	LifecycleOrdered   LifecycleState = "ordered"
	LifecycleDelivered LifecycleState = "delivered"
)

// LifecycleEntry tracks one outstanding user-facing order notification for an
// order identifier. At most one live entry exists per identifier; a delivered
// entry is removed, freeing the identifier for a new one.
type LifecycleEntry struct {
	OrderID      string         `json:"order_id"`
	MessageID    int64          `json:"message_id"` // transport handle needed to edit/delete the notification
	ProductName  string         `json:"product_name"`
	Quantity     int            `json:"quantity"`
	Unit         string         `json:"unit"`
	CartURL      string         `json:"cart_url"`
	CurrentStock float64        `json:"current_stock"`
	MinStock     float64        `json:"min_stock"`
	State        LifecycleState `json:"state"`
	CreatedAt    time.Time      `json:"created_at"`
	OrderedAt    *time.Time     `json:"ordered_at,omitempty"`
	DeliveredAt  *time.Time     `json:"delivered_at,omitempty"`
}

// CallbackAction is the action tag carried by an inbound button press.
type CallbackAction string

const (
	ActionOrdered   CallbackAction = "ordered"
	ActionDelivered CallbackAction = "delivered"
	ActionCancel    CallbackAction = "cancel"
	ActionNoop      CallbackAction = "noop"
)

// CallbackEvent is one inbound button-press event from the notification
// transport. Every event must be acknowledged, including unknown ones.
type CallbackEvent struct {
	EventID string
	Action  CallbackAction
	OrderID string
}
