package tracker

import (
	"context"
	"time"

	"reorder-service/internal/model"

	"go.uber.org/zap"
)

// Button is one inline action on a notification. Data is the opaque callback
// payload the transport echoes back on a press.
type Button struct {
	Label string
	Data  string
}

// Notifier is the notification transport the tracker drives. Send returns the
// message handle needed to edit or delete the notification later.
type Notifier interface {
	Send(ctx context.Context, text string, buttons [][]Button) (int64, error)
	Edit(ctx context.Context, messageID int64, text string, buttons [][]Button) error
	Delete(ctx context.Context, messageID int64) error
}

// Store is the persistence surface for lifecycle entries.
type Store interface {
	SaveLifecycleEntry(ctx context.Context, e model.LifecycleEntry) error
	DeleteLifecycleEntry(ctx context.Context, orderID string) error
	LifecycleEntries(ctx context.Context) ([]model.LifecycleEntry, error)
}

// Hook is invoked after an external callback transitions an entry. Failures
// are logged, never propagated to the callback caller.
type Hook func(orderID string) error

// LifecycleTracker owns the per-identifier state machine of outstanding order
// notifications:
//
//	Created --(ordered callback)--> Ordered --(delivered callback)--> removed
//	Created/Ordered --(cancel callback)--> removed
//	Created/Ordered --(stock refresh)--> same state, fields updated in place
//
// At most one live entry exists per order identifier. The tracker is not safe
// for concurrent use on its own; the engine serializes all access.
type LifecycleTracker struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
	entries  map[string]*model.LifecycleEntry

	onOrdered   Hook
	onDelivered Hook

	degraded bool
}

// NewLifecycleTracker loads persisted entries and returns the tracker. A load
// failure falls back to an empty tracker, mirroring the ledger.
func NewLifecycleTracker(store Store, notifier Notifier, logger *zap.Logger) *LifecycleTracker {
	t := &LifecycleTracker{
		store:    store,
		notifier: notifier,
		logger:   logger,
		entries:  make(map[string]*model.LifecycleEntry),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := store.LifecycleEntries(ctx)
	if err != nil {
		logger.Warn("Failed to load lifecycle entries, starting empty", zap.Error(err))
		t.degraded = true
		return t
	}
	for i := range entries {
		e := entries[i]
		t.entries[e.OrderID] = &e
	}
	logger.Info("Lifecycle tracker loaded", zap.Int("entries", len(entries)))
	return t
}

// SetHooks wires the optional ordered/delivered hooks.
func (t *LifecycleTracker) SetHooks(onOrdered, onDelivered Hook) {
	t.onOrdered = onOrdered
	t.onDelivered = onDelivered
}

// Upsert creates or refreshes the notification for one reorder candidate.
//
// No live entry: send a new notification and track its handle. A Created
// entry: update display fields in place and edit the existing message, never
// send a duplicate. An Ordered entry: stock-only refresh, keeping the
// acknowledged framing so the message never reverts to needs-action wording.
func (t *LifecycleTracker) Upsert(ctx context.Context, candidate model.LifecycleEntry) error {
	existing, ok := t.entries[candidate.OrderID]
	if !ok {
		entry := candidate
		entry.State = model.LifecycleCreated
		entry.CreatedAt = time.Now()
		entry.OrderedAt = nil
		entry.DeliveredAt = nil

		messageID, err := t.notifier.Send(ctx, renderCreated(entry), createdButtons(entry.OrderID))
		if err != nil {
			return err
		}
		entry.MessageID = messageID
		t.entries[entry.OrderID] = &entry
		t.persist(ctx, entry)

		t.logger.Info("Reorder notification sent",
			zap.String("order_id", entry.OrderID),
			zap.String("product", entry.ProductName),
			zap.Int64("message_id", messageID),
		)
		return nil
	}

	existing.ProductName = candidate.ProductName
	existing.Quantity = candidate.Quantity
	existing.Unit = candidate.Unit
	existing.CartURL = candidate.CartURL
	existing.CurrentStock = candidate.CurrentStock
	existing.MinStock = candidate.MinStock

	switch existing.State {
	case model.LifecycleOrdered:
		// Acknowledged order: stock-only refresh path
		if err := t.notifier.Edit(ctx, existing.MessageID, renderOrdered(*existing), orderedButtons(existing.OrderID)); err != nil {
			return err
		}
	default:
		if err := t.notifier.Edit(ctx, existing.MessageID, renderCreated(*existing), createdButtons(existing.OrderID)); err != nil {
			return err
		}
	}

	t.persist(ctx, *existing)
	return nil
}

// RefreshStocks updates the stock figure of live entries in place after a
// stock snapshot. No state changes; the message keeps its current framing.
func (t *LifecycleTracker) RefreshStocks(ctx context.Context, stocks map[string]float64) {
	for orderID, entry := range t.entries {
		stock, ok := stocks[orderID]
		if !ok || stock == entry.CurrentStock {
			continue
		}
		entry.CurrentStock = stock

		var err error
		switch entry.State {
		case model.LifecycleOrdered:
			err = t.notifier.Edit(ctx, entry.MessageID, renderOrdered(*entry), orderedButtons(orderID))
		default:
			err = t.notifier.Edit(ctx, entry.MessageID, renderCreated(*entry), createdButtons(orderID))
		}
		if err != nil {
			t.logger.Warn("Failed to refresh notification stock figure",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
			continue
		}
		t.persist(ctx, *entry)
	}
}

// OnOrderedCallback handles the "ordered" button press: Created -> Ordered.
// Duplicate or unknown identifiers are acknowledged as no-ops.
func (t *LifecycleTracker) OnOrderedCallback(ctx context.Context, orderID string) string {
	entry, ok := t.entries[orderID]
	if !ok || entry.State != model.LifecycleCreated {
		return ""
	}

	now := time.Now()
	entry.State = model.LifecycleOrdered
	entry.OrderedAt = &now

	if err := t.notifier.Edit(ctx, entry.MessageID, renderOrdered(*entry), orderedButtons(orderID)); err != nil {
		t.logger.Warn("Failed to re-render ordered notification",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
	t.persist(ctx, *entry)
	t.runHook(t.onOrdered, "ordered", orderID)

	t.logger.Info("Order acknowledged", zap.String("order_id", orderID))
	return "Marked as ordered"
}

// OnDeliveredCallback handles the "delivered" button press: the entry is
// confirmed, the original notification deleted and the identifier freed.
func (t *LifecycleTracker) OnDeliveredCallback(ctx context.Context, orderID string) string {
	entry, ok := t.entries[orderID]
	if !ok {
		return ""
	}

	if _, err := t.notifier.Send(ctx, renderDelivered(*entry), nil); err != nil {
		t.logger.Warn("Failed to send delivery confirmation",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
	if err := t.notifier.Delete(ctx, entry.MessageID); err != nil {
		t.logger.Warn("Failed to delete original notification",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}

	t.remove(ctx, orderID)
	t.runHook(t.onDelivered, "delivered", orderID)

	t.logger.Info("Delivery confirmed", zap.String("order_id", orderID))
	return "Delivery confirmed"
}

// OnCancelCallback handles the "cancel" button press: the notification is
// deleted and the entry removed. No hook is invoked.
func (t *LifecycleTracker) OnCancelCallback(ctx context.Context, orderID string) string {
	entry, ok := t.entries[orderID]
	if !ok {
		return ""
	}

	if err := t.notifier.Delete(ctx, entry.MessageID); err != nil {
		t.logger.Warn("Failed to delete cancelled notification",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
	t.remove(ctx, orderID)

	t.logger.Info("Reorder cancelled", zap.String("order_id", orderID))
	return "Reorder cancelled"
}

// LiveEntries returns a copy of all live entries for status reporting.
func (t *LifecycleTracker) LiveEntries() []model.LifecycleEntry {
	out := make([]model.LifecycleEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	return out
}

// Has reports whether a live entry exists for the identifier.
func (t *LifecycleTracker) Has(orderID string) bool {
	_, ok := t.entries[orderID]
	return ok
}

// Degraded reports whether a persistence failure left the tracker running in
// memory only.
func (t *LifecycleTracker) Degraded() bool {
	return t.degraded
}

func (t *LifecycleTracker) persist(ctx context.Context, e model.LifecycleEntry) {
	if err := t.store.SaveLifecycleEntry(ctx, e); err != nil {
		t.logger.Error("Failed to persist lifecycle entry, continuing in memory",
			zap.String("order_id", e.OrderID),
			zap.Error(err),
		)
		t.degraded = true
	}
}

func (t *LifecycleTracker) remove(ctx context.Context, orderID string) {
	delete(t.entries, orderID)
	if err := t.store.DeleteLifecycleEntry(ctx, orderID); err != nil {
		t.logger.Error("Failed to delete persisted lifecycle entry, continuing in memory",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		t.degraded = true
	}
}

func (t *LifecycleTracker) runHook(hook Hook, name, orderID string) {
	if hook == nil {
		return
	}
	if err := hook(orderID); err != nil {
		t.logger.Warn("Lifecycle hook failed",
			zap.String("hook", name),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}
