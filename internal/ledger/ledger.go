package ledger

import (
	"context"
	"fmt"
	"time"

	"reorder-service/internal/model"

	"go.uber.org/zap"
)

// maxEntries caps how many ledger entries are kept for reporting.
// Pending-delivery markers are never capped.
const maxEntries = 100

// Store is the persistence surface the ledger writes through. Failures are
// logged and the ledger continues in memory; it must never crash the
// orchestrator.
type Store interface {
	AppendLedgerEntry(ctx context.Context, e model.LedgerEntry) error
	SavePendingMarker(ctx context.Context, orderID string, stockAtOrder float64) error
	DeletePendingMarker(ctx context.Context, orderID string) error
	RecentLedgerEntries(ctx context.Context, limit int) ([]model.LedgerEntry, error)
	PendingMarkers(ctx context.Context) (map[string]float64, error)
	CountPlacedSince(ctx context.Context, since time.Time) (int, error)
}

// OrderLedger is the durable record of past order attempts and of
// pending-delivery markers. It supplies the dedup and rate-limit decision.
//
// The ledger is not safe for concurrent use on its own; the engine serializes
// all access behind a single mutex.
type OrderLedger struct {
	store   Store
	logger  *zap.Logger
	entries []model.LedgerEntry
	markers map[string]float64

	// The daily counter is tracked independently of the capped entries
	// slice: a burst of skipped recordings (each denial appends one) must
	// never evict the same-day placed entries it is counting.
	placedDay   time.Time
	placedToday int

	degraded bool
}

// NewOrderLedger loads persisted state and returns the ledger. A load failure
// falls back to an empty ledger: startup is never blocked, at the documented
// risk of a duplicate order after a crash with a corrupted state file.
func NewOrderLedger(store Store, logger *zap.Logger) *OrderLedger {
	l := &OrderLedger{
		store:     store,
		logger:    logger,
		markers:   make(map[string]float64),
		placedDay: startOfDay(time.Now()),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := store.RecentLedgerEntries(ctx, maxEntries)
	if err != nil {
		logger.Warn("Failed to load ledger entries, starting empty", zap.Error(err))
		l.degraded = true
		return l
	}
	markers, err := store.PendingMarkers(ctx)
	if err != nil {
		logger.Warn("Failed to load pending-delivery markers, starting empty", zap.Error(err))
		l.degraded = true
		return l
	}

	l.entries = entries
	l.markers = markers

	// The day's placed count comes from the store, not from the loaded
	// entries: those are capped and may no longer contain every placed
	// order of the current day.
	placed, err := store.CountPlacedSince(ctx, l.placedDay)
	if err != nil {
		logger.Warn("Failed to count today's placed orders, falling back to loaded entries", zap.Error(err))
		l.degraded = true
		placed = countPlacedOn(entries, l.placedDay)
	}
	l.placedToday = placed

	logger.Info("Ledger loaded",
		zap.Int("entries", len(entries)),
		zap.Int("pending_deliveries", len(markers)),
		zap.Int("placed_today", placed),
	)
	return l
}

// CanOrder decides whether a new order for the identifier is allowed.
// Decision order, first match wins:
//  1. daily limit reached
//  2. a pending-delivery marker exists and stock has not risen above the
//     level recorded at order time (the anti-duplicate guarantee: a stock
//     increase is the only signal that a shipment arrived)
//  3. allowed
func (l *OrderLedger) CanOrder(orderID string, currentStock float64, ordersPlacedToday, dailyLimit int) (bool, string) {
	if ordersPlacedToday >= dailyLimit {
		return false, fmt.Sprintf("daily limit reached (%d/%d)", ordersPlacedToday, dailyLimit)
	}

	if stockAtOrder, ok := l.markers[orderID]; ok && currentStock <= stockAtOrder {
		return false, fmt.Sprintf("delivery pending (ordered at stock %v, currently %v)", stockAtOrder, currentStock)
	}

	return true, "ok"
}

// RecordResolution appends a ledger entry for one order attempt. A placed
// order also sets the pending-delivery marker at the stock level observed
// when the order was made.
func (l *OrderLedger) RecordResolution(ctx context.Context, orderID, productName string, quantity int, status model.OrderStatus, stockAtOrder float64, errText string) model.LedgerEntry {
	now := time.Now()
	entry := model.LedgerEntry{
		OrderID:     orderID,
		ProductName: productName,
		Quantity:    quantity,
		Status:      status,
		Error:       errText,
		CreatedAt:   now,
	}
	if status != model.StatusPending {
		resolved := now
		entry.ResolvedAt = &resolved
	}

	l.entries = append(l.entries, entry)
	if len(l.entries) > maxEntries {
		l.entries = l.entries[len(l.entries)-maxEntries:]
	}

	if err := l.store.AppendLedgerEntry(ctx, entry); err != nil {
		l.logger.Error("Failed to persist ledger entry, continuing in memory",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		l.degraded = true
	}

	if status == model.StatusPlaced {
		l.rollDay(now)
		l.placedToday++
		l.MarkPendingDelivery(ctx, orderID, stockAtOrder)
	}

	return entry
}

// MarkPendingDelivery sets or overwrites the marker for an identifier.
func (l *OrderLedger) MarkPendingDelivery(ctx context.Context, orderID string, stockAtOrder float64) {
	l.markers[orderID] = stockAtOrder
	if err := l.store.SavePendingMarker(ctx, orderID, stockAtOrder); err != nil {
		l.logger.Error("Failed to persist pending-delivery marker, continuing in memory",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		l.degraded = true
	}
	l.logger.Info("Marked delivery as pending",
		zap.String("order_id", orderID),
		zap.Float64("stock_at_order", stockAtOrder),
	)
}

// ObserveStock feeds one current stock observation into the ledger. When the
// stock for a marked identifier has risen above the level recorded at order
// time, the shipment was received and booked, and the marker is cleared.
// Called once per evaluation cycle for every tracked identifier so stale
// markers self-heal even without a button press. Returns true when a marker
// was cleared.
func (l *OrderLedger) ObserveStock(ctx context.Context, orderID string, currentStock float64) bool {
	stockAtOrder, ok := l.markers[orderID]
	if !ok || currentStock <= stockAtOrder {
		return false
	}

	l.logger.Info("Stock increased, delivery booked in",
		zap.String("order_id", orderID),
		zap.Float64("stock_at_order", stockAtOrder),
		zap.Float64("current_stock", currentStock),
	)
	l.ClearPendingDelivery(ctx, orderID)
	return true
}

// ClearPendingDelivery removes the marker for an identifier, e.g. on
// cancellation.
func (l *OrderLedger) ClearPendingDelivery(ctx context.Context, orderID string) {
	if _, ok := l.markers[orderID]; !ok {
		return
	}
	delete(l.markers, orderID)
	if err := l.store.DeletePendingMarker(ctx, orderID); err != nil {
		l.logger.Error("Failed to delete pending-delivery marker, continuing in memory",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		l.degraded = true
	}
}

// OrdersToday returns the number of orders placed on the current calendar
// day in local time. Skipped and failed attempts do not count against the
// daily limit.
func (l *OrderLedger) OrdersToday() int {
	l.rollDay(time.Now())
	return l.placedToday
}

// rollDay resets the daily counter when the calendar day has changed.
func (l *OrderLedger) rollDay(now time.Time) {
	day := startOfDay(now)
	if !day.Equal(l.placedDay) {
		l.placedDay = day
		l.placedToday = 0
	}
}

// RecentEntries returns a copy of the retained ledger entries, oldest first.
func (l *OrderLedger) RecentEntries() []model.LedgerEntry {
	out := make([]model.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// PendingDeliveries returns a copy of the marker map.
func (l *OrderLedger) PendingDeliveries() map[string]float64 {
	out := make(map[string]float64, len(l.markers))
	for k, v := range l.markers {
		out[k] = v
	}
	return out
}

// Degraded reports whether a persistence failure left the ledger running in
// memory only.
func (l *OrderLedger) Degraded() bool {
	return l.degraded
}

func startOfDay(t time.Time) time.Time {
	local := t.Local()
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

func countPlacedOn(entries []model.LedgerEntry, day time.Time) int {
	count := 0
	for _, e := range entries {
		if e.Status == model.StatusPlaced && !e.CreatedAt.Before(day) {
			count++
		}
	}
	return count
}
