package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reorder-service/internal/model"
)

// fakeStore is an in-memory Store with injectable failures.
type fakeStore struct {
	entries []model.LedgerEntry
	markers map[string]float64

	loadErr  error
	writeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{markers: make(map[string]float64)}
}

func (f *fakeStore) AppendLedgerEntry(ctx context.Context, e model.LedgerEntry) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeStore) SavePendingMarker(ctx context.Context, orderID string, stockAtOrder float64) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.markers[orderID] = stockAtOrder
	return nil
}

func (f *fakeStore) DeletePendingMarker(ctx context.Context, orderID string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	delete(f.markers, orderID)
	return nil
}

func (f *fakeStore) RecentLedgerEntries(ctx context.Context, limit int) ([]model.LedgerEntry, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if len(f.entries) > limit {
		return f.entries[len(f.entries)-limit:], nil
	}
	return f.entries, nil
}

func (f *fakeStore) CountPlacedSince(ctx context.Context, since time.Time) (int, error) {
	if f.loadErr != nil {
		return 0, f.loadErr
	}
	count := 0
	for _, e := range f.entries {
		if e.Status == model.StatusPlaced && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) PendingMarkers(ctx context.Context) (map[string]float64, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make(map[string]float64, len(f.markers))
	for k, v := range f.markers {
		out[k] = v
	}
	return out, nil
}

func TestCanOrder_PendingMarkerBlocksUntilStockRises(t *testing.T) {
	l := NewOrderLedger(newFakeStore(), zap.NewNop())
	ctx := context.Background()

	l.RecordResolution(ctx, "B123", "Coffee", 1, model.StatusPlaced, 5, "")

	// Same stock level as at order time: blocked.
	allowed, reason := l.CanOrder("B123", 5, l.OrdersToday(), 10)
	assert.False(t, allowed)
	assert.Contains(t, reason, "delivery pending")

	// Stock dropped further: still blocked, the shipment has not arrived.
	allowed, _ = l.CanOrder("B123", 3, 0, 10)
	assert.False(t, allowed)

	// Stock rose above the recorded level: delivery booked in, allowed again.
	cleared := l.ObserveStock(ctx, "B123", 8)
	assert.True(t, cleared)
	allowed, reason = l.CanOrder("B123", 8, 0, 10)
	assert.True(t, allowed)
	assert.Equal(t, "ok", reason)
}

func TestCanOrder_DailyLimit(t *testing.T) {
	l := NewOrderLedger(newFakeStore(), zap.NewNop())
	ctx := context.Background()

	l.RecordResolution(ctx, "B001", "Tea", 1, model.StatusPlaced, 2, "")
	l.RecordResolution(ctx, "B002", "Milk", 1, model.StatusPlaced, 1, "")

	assert.Equal(t, 2, l.OrdersToday())

	allowed, reason := l.CanOrder("B003", 0, l.OrdersToday(), 2)
	assert.False(t, allowed)
	assert.Contains(t, reason, "daily limit reached")
}

func TestDailyLimit_SurvivesSkipEviction(t *testing.T) {
	l := NewOrderLedger(newFakeStore(), zap.NewNop())
	ctx := context.Background()

	l.RecordResolution(ctx, "B001", "Tea", 1, model.StatusPlaced, 2, "")
	require.Equal(t, 1, l.OrdersToday())

	// Every denied candidate records a skip. Enough of them push the placed
	// entry out of the capped reporting slice; the counter must not follow.
	for i := 0; i < maxEntries+50; i++ {
		l.RecordResolution(ctx, "B002", "Milk", 1, model.StatusSkipped, 1, "daily limit reached (1/1)")
	}

	assert.Equal(t, 1, l.OrdersToday())
	allowed, reason := l.CanOrder("B003", 0, l.OrdersToday(), 1)
	assert.False(t, allowed)
	assert.Contains(t, reason, "daily limit reached")
}

func TestDailyLimit_SurvivesRestart(t *testing.T) {
	st := newFakeStore()
	first := NewOrderLedger(st, zap.NewNop())
	ctx := context.Background()

	first.RecordResolution(ctx, "B001", "Tea", 1, model.StatusPlaced, 2, "")
	for i := 0; i < maxEntries+50; i++ {
		first.RecordResolution(ctx, "B002", "Milk", 1, model.StatusSkipped, 1, "daily limit reached (1/1)")
	}

	// A restart reloads only the capped tail of the ledger; the same-day
	// placed count comes from the store query instead.
	second := NewOrderLedger(st, zap.NewNop())

	assert.Equal(t, 1, second.OrdersToday())
	allowed, _ := second.CanOrder("B003", 0, second.OrdersToday(), 1)
	assert.False(t, allowed)
}

func TestOrdersToday_CountsOnlyPlaced(t *testing.T) {
	l := NewOrderLedger(newFakeStore(), zap.NewNop())
	ctx := context.Background()

	l.RecordResolution(ctx, "B001", "Tea", 1, model.StatusPlaced, 2, "")
	l.RecordResolution(ctx, "B002", "Milk", 1, model.StatusSkipped, 1, "delivery pending")
	l.RecordResolution(ctx, "B003", "Sugar", 1, model.StatusFailed, 1, "boom")
	l.RecordResolution(ctx, "B004", "Salt", 1, model.StatusPending, 1, "dry run")

	assert.Equal(t, 1, l.OrdersToday())
}

func TestObserveStock_NoMarkerIsNoop(t *testing.T) {
	l := NewOrderLedger(newFakeStore(), zap.NewNop())

	assert.False(t, l.ObserveStock(context.Background(), "B999", 100))
}

func TestRecordResolution_SetsResolvedAtExceptPending(t *testing.T) {
	l := NewOrderLedger(newFakeStore(), zap.NewNop())
	ctx := context.Background()

	placed := l.RecordResolution(ctx, "B001", "Tea", 1, model.StatusPlaced, 2, "")
	require.NotNil(t, placed.ResolvedAt)
	assert.WithinDuration(t, time.Now(), *placed.ResolvedAt, time.Second)

	pending := l.RecordResolution(ctx, "B002", "Milk", 1, model.StatusPending, 1, "dry run")
	assert.Nil(t, pending.ResolvedAt)
}

func TestRecordResolution_CapsEntries(t *testing.T) {
	l := NewOrderLedger(newFakeStore(), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < maxEntries+20; i++ {
		l.RecordResolution(ctx, "B001", "Tea", 1, model.StatusSkipped, 2, "limit")
	}

	assert.Len(t, l.RecentEntries(), maxEntries)
}

func TestClearPendingDelivery(t *testing.T) {
	st := newFakeStore()
	l := NewOrderLedger(st, zap.NewNop())
	ctx := context.Background()

	l.MarkPendingDelivery(ctx, "B123", 5)
	require.Contains(t, l.PendingDeliveries(), "B123")

	l.ClearPendingDelivery(ctx, "B123")
	assert.NotContains(t, l.PendingDeliveries(), "B123")
	assert.NotContains(t, st.markers, "B123")
}

func TestNewOrderLedger_LoadsPersistedState(t *testing.T) {
	st := newFakeStore()
	st.entries = []model.LedgerEntry{
		{OrderID: "B001", ProductName: "Tea", Status: model.StatusPlaced, CreatedAt: time.Now()},
	}
	st.markers["B001"] = 4

	l := NewOrderLedger(st, zap.NewNop())

	assert.Len(t, l.RecentEntries(), 1)
	assert.Equal(t, map[string]float64{"B001": 4}, l.PendingDeliveries())
	assert.False(t, l.Degraded())
}

func TestNewOrderLedger_LoadFailureStartsEmptyDegraded(t *testing.T) {
	st := newFakeStore()
	st.loadErr = errors.New("disk gone")

	l := NewOrderLedger(st, zap.NewNop())

	assert.Empty(t, l.RecentEntries())
	assert.Empty(t, l.PendingDeliveries())
	assert.True(t, l.Degraded())
}

func TestWriteFailureDegradesButKeepsMemoryState(t *testing.T) {
	st := newFakeStore()
	l := NewOrderLedger(st, zap.NewNop())
	st.writeErr = errors.New("disk full")

	l.RecordResolution(context.Background(), "B001", "Tea", 1, model.StatusPlaced, 2, "")

	assert.True(t, l.Degraded())
	assert.Len(t, l.RecentEntries(), 1)
	assert.Contains(t, l.PendingDeliveries(), "B001")
}
