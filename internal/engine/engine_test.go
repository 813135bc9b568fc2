package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reorder-service/internal/config"
	"reorder-service/internal/ledger"
	"reorder-service/internal/model"
	"reorder-service/internal/tracker"
	apperrors "reorder-service/pkg/errors"
)

type fakeCatalog struct {
	items []model.StockItem
	err   error
}

func (f *fakeCatalog) Snapshot(ctx context.Context) ([]model.StockItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type fakeFulfillment struct {
	shoppingList  []string
	voiceOrders   []string
	notifications []string
	err           error
}

func (f *fakeFulfillment) AddToShoppingList(ctx context.Context, item string) error {
	if f.err != nil {
		return f.err
	}
	f.shoppingList = append(f.shoppingList, item)
	return nil
}

func (f *fakeFulfillment) OrderByASIN(ctx context.Context, asin string, quantity int) error {
	if f.err != nil {
		return f.err
	}
	f.voiceOrders = append(f.voiceOrders, asin)
	return nil
}

func (f *fakeFulfillment) SendNotification(ctx context.Context, title, message string) error {
	f.notifications = append(f.notifications, title)
	return nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) PublishReorderEvent(ctx context.Context, eventType, orderID string, payload map[string]interface{}) error {
	f.events = append(f.events, eventType+":"+orderID)
	return nil
}

// memStore satisfies both ledger.Store and tracker.Store in memory.
type memStore struct {
	entries   []model.LedgerEntry
	markers   map[string]float64
	lifecycle map[string]model.LifecycleEntry
}

func newMemStore() *memStore {
	return &memStore{
		markers:   make(map[string]float64),
		lifecycle: make(map[string]model.LifecycleEntry),
	}
}

func (m *memStore) AppendLedgerEntry(ctx context.Context, e model.LedgerEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) SavePendingMarker(ctx context.Context, orderID string, stockAtOrder float64) error {
	m.markers[orderID] = stockAtOrder
	return nil
}

func (m *memStore) DeletePendingMarker(ctx context.Context, orderID string) error {
	delete(m.markers, orderID)
	return nil
}

func (m *memStore) RecentLedgerEntries(ctx context.Context, limit int) ([]model.LedgerEntry, error) {
	return m.entries, nil
}

func (m *memStore) CountPlacedSince(ctx context.Context, since time.Time) (int, error) {
	count := 0
	for _, e := range m.entries {
		if e.Status == model.StatusPlaced && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) PendingMarkers(ctx context.Context) (map[string]float64, error) {
	out := make(map[string]float64, len(m.markers))
	for k, v := range m.markers {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) SaveLifecycleEntry(ctx context.Context, e model.LifecycleEntry) error {
	m.lifecycle[e.OrderID] = e
	return nil
}

func (m *memStore) DeleteLifecycleEntry(ctx context.Context, orderID string) error {
	delete(m.lifecycle, orderID)
	return nil
}

func (m *memStore) LifecycleEntries(ctx context.Context) ([]model.LifecycleEntry, error) {
	out := make([]model.LifecycleEntry, 0, len(m.lifecycle))
	for _, e := range m.lifecycle {
		out = append(out, e)
	}
	return out, nil
}

type nopNotifier struct {
	nextID int64
	sends  int
}

func (n *nopNotifier) Send(ctx context.Context, text string, buttons [][]tracker.Button) (int64, error) {
	n.nextID++
	n.sends++
	return n.nextID, nil
}

func (n *nopNotifier) Edit(ctx context.Context, messageID int64, text string, buttons [][]tracker.Button) error {
	return nil
}

func (n *nopNotifier) Delete(ctx context.Context, messageID int64) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		OrderMode:       config.ModeCartLink,
		DryRun:          false,
		NotifyOnOrder:   true,
		MaxOrdersPerDay: 10,
		AmazonDomain:    "www.amazon.de",
	}
}

type testRig struct {
	engine    *Engine
	catalog   *fakeCatalog
	fulfill   *fakeFulfillment
	publisher *fakePublisher
	notifier  *nopNotifier
	store     *memStore
	ledger    *ledger.OrderLedger
	tracker   *tracker.LifecycleTracker
	cfg       *config.Config
}

func newTestRig(cfg *config.Config, items []model.StockItem) *testRig {
	log := zap.NewNop()
	st := newMemStore()
	catalog := &fakeCatalog{items: items}
	fulfill := &fakeFulfillment{}
	publisher := &fakePublisher{}
	notifier := &nopNotifier{}

	l := ledger.NewOrderLedger(st, log)
	tr := tracker.NewLifecycleTracker(st, notifier, log)

	return &testRig{
		engine:    New(cfg, catalog, fulfill, l, tr, publisher, log),
		catalog:   catalog,
		fulfill:   fulfill,
		publisher: publisher,
		notifier:  notifier,
		store:     st,
		ledger:    l,
		tracker:   tr,
		cfg:       cfg,
	}
}

func TestRunCycle_PlacesOrdersForEligibleItems(t *testing.T) {
	items := []model.StockItem{
		{ID: 1, Name: "Coffee", Amount: 5, MinAmount: 10, UnitsPerPackage: 20, OrderID: "B001", Unit: "g"},
		{ID: 2, Name: "Tea", Amount: 12, MinAmount: 10, UnitsPerPackage: 1, OrderID: "B002", Unit: "Bags"},
		{ID: 3, Name: "No ASIN", Amount: 0, MinAmount: 5, UnitsPerPackage: 1, OrderID: ""},
	}
	rig := newTestRig(testConfig(), items)

	summary, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Placed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)

	// Placed order sets the dedup marker at the observed stock level.
	assert.Equal(t, map[string]float64{"B001": 5}, rig.ledger.PendingDeliveries())
	// Lifecycle notification tracked.
	assert.True(t, rig.tracker.Has("B001"))
	assert.Equal(t, 1, rig.notifier.sends)
	// Audit event published.
	assert.Contains(t, rig.publisher.events, "ReorderPlaced:B001")
}

func TestRunCycle_SecondCycleDeduplicates(t *testing.T) {
	items := []model.StockItem{
		{ID: 1, Name: "Coffee", Amount: 5, MinAmount: 10, UnitsPerPackage: 20, OrderID: "B001"},
	}
	rig := newTestRig(testConfig(), items)
	ctx := context.Background()

	first, err := rig.engine.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Placed)

	// Stock unchanged: the pending marker blocks a duplicate.
	second, err := rig.engine.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Placed)
	assert.Equal(t, 1, second.Skipped)

	// Stock rose above the level at order time: marker self-heals. Stock is
	// still below minimum, so a fresh order goes out.
	rig.catalog.items[0].Amount = 7
	third, err := rig.engine.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Placed)
}

func TestRunCycle_DryRunRecordsWithoutMarker(t *testing.T) {
	cfg := testConfig()
	cfg.DryRun = true
	items := []model.StockItem{
		{ID: 1, Name: "Coffee", Amount: 5, MinAmount: 10, UnitsPerPackage: 20, OrderID: "B001"},
	}
	rig := newTestRig(cfg, items)

	summary, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.DryRun)
	assert.Equal(t, 0, summary.Placed)
	assert.Empty(t, rig.ledger.PendingDeliveries(), "dry run must not set a dedup marker")
	assert.False(t, rig.tracker.Has("B001"))
	require.Len(t, rig.fulfill.notifications, 1)
	assert.Contains(t, rig.fulfill.notifications[0], "dry run")

	entries := rig.ledger.RecentEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.StatusPending, entries[0].Status)
}

func TestRunCycle_FulfillmentFailure(t *testing.T) {
	cfg := testConfig()
	cfg.OrderMode = config.ModeShoppingList
	items := []model.StockItem{
		{ID: 1, Name: "Coffee", Amount: 5, MinAmount: 10, UnitsPerPackage: 20, OrderID: "B001"},
	}
	rig := newTestRig(cfg, items)
	rig.fulfill.err = errors.New("hass unreachable")

	summary, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err, "a single item failure must not abort the cycle")

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Placed)
	assert.Empty(t, rig.ledger.PendingDeliveries(), "failed order must not set a dedup marker")
	require.Len(t, rig.fulfill.notifications, 1)
	assert.Contains(t, rig.fulfill.notifications[0], "failed")

	entries := rig.ledger.RecentEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.StatusFailed, entries[0].Status)
	assert.Contains(t, entries[0].Error, "hass unreachable")
}

func TestRunCycle_ShoppingListMode(t *testing.T) {
	cfg := testConfig()
	cfg.OrderMode = config.ModeShoppingList
	items := []model.StockItem{
		{ID: 1, Name: "Coffee", Amount: 1, MinAmount: 10, UnitsPerPackage: 4, OrderID: "B001"},
	}
	rig := newTestRig(cfg, items)

	_, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"3x Coffee"}, rig.fulfill.shoppingList)
}

func TestRunCycle_VoiceOrderMode(t *testing.T) {
	cfg := testConfig()
	cfg.OrderMode = config.ModeVoiceOrder
	items := []model.StockItem{
		{ID: 1, Name: "Coffee", Amount: 5, MinAmount: 10, UnitsPerPackage: 20, OrderID: "B001"},
	}
	rig := newTestRig(cfg, items)

	_, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"B001"}, rig.fulfill.voiceOrders)
}

func TestRunCycle_InvalidItemIsIsolated(t *testing.T) {
	items := []model.StockItem{
		{ID: 1, Name: "Broken", Amount: -1, MinAmount: 10, OrderID: "B001"},
		{ID: 2, Name: "Coffee", Amount: 5, MinAmount: 10, UnitsPerPackage: 20, OrderID: "B002"},
	}
	rig := newTestRig(testConfig(), items)

	summary, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Invalid)
	assert.Equal(t, 1, summary.Placed)
}

func TestRunCycle_DailyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOrdersPerDay = 1
	items := []model.StockItem{
		{ID: 1, Name: "Coffee", Amount: 5, MinAmount: 10, UnitsPerPackage: 20, OrderID: "B001"},
		{ID: 2, Name: "Tea", Amount: 2, MinAmount: 10, UnitsPerPackage: 20, OrderID: "B002"},
	}
	rig := newTestRig(cfg, items)

	summary, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Placed)
	assert.Equal(t, 1, summary.Skipped)
}

func TestRunCycle_DailyLimitHoldsUnderRepeatedDenials(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOrdersPerDay = 1
	items := []model.StockItem{
		{ID: 1, Name: "Coffee", Amount: 5, MinAmount: 10, UnitsPerPackage: 20, OrderID: "B001"},
		{ID: 2, Name: "Tea", Amount: 2, MinAmount: 10, UnitsPerPackage: 20, OrderID: "B002"},
	}
	rig := newTestRig(cfg, items)
	ctx := context.Background()

	first, err := rig.engine.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.Placed)

	// Each denied cycle appends skip entries. Even after enough of them to
	// evict the day's placed entry from the reporting window, the limit
	// must keep holding.
	for i := 0; i < 80; i++ {
		summary, err := rig.engine.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Placed)
		assert.Equal(t, 2, summary.Skipped)
	}

	assert.Equal(t, 1, rig.engine.Status().OrdersToday)
}

func TestRunCycle_SnapshotFailure(t *testing.T) {
	rig := newTestRig(testConfig(), nil)
	rig.catalog.err = errors.New("grocy unreachable")

	_, err := rig.engine.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeTransportError))
}

func TestHandleCallback_OrderedAndDelivered(t *testing.T) {
	items := []model.StockItem{
		{ID: 1, Name: "Coffee", Amount: 5, MinAmount: 10, UnitsPerPackage: 20, OrderID: "B001"},
	}
	rig := newTestRig(testConfig(), items)
	ctx := context.Background()

	_, err := rig.engine.RunCycle(ctx)
	require.NoError(t, err)

	ack := rig.engine.HandleCallback(ctx, model.CallbackEvent{Action: model.ActionOrdered, OrderID: "B001"})
	assert.Equal(t, "Marked as ordered", ack)
	assert.Contains(t, rig.publisher.events, "ReorderAcknowledged:B001")

	ack = rig.engine.HandleCallback(ctx, model.CallbackEvent{Action: model.ActionDelivered, OrderID: "B001"})
	assert.Equal(t, "Delivery confirmed", ack)
	assert.Contains(t, rig.publisher.events, "ReorderDelivered:B001")
	assert.False(t, rig.tracker.Has("B001"))
}

func TestHandleCallback_CancelClearsMarker(t *testing.T) {
	items := []model.StockItem{
		{ID: 1, Name: "Coffee", Amount: 5, MinAmount: 10, UnitsPerPackage: 20, OrderID: "B001"},
	}
	rig := newTestRig(testConfig(), items)
	ctx := context.Background()

	_, err := rig.engine.RunCycle(ctx)
	require.NoError(t, err)
	require.Contains(t, rig.ledger.PendingDeliveries(), "B001")

	ack := rig.engine.HandleCallback(ctx, model.CallbackEvent{Action: model.ActionCancel, OrderID: "B001"})
	assert.Equal(t, "Reorder cancelled", ack)
	assert.NotContains(t, rig.ledger.PendingDeliveries(), "B001")
	assert.False(t, rig.tracker.Has("B001"))
}

func TestHandleCallback_UnknownAction(t *testing.T) {
	rig := newTestRig(testConfig(), nil)

	ack := rig.engine.HandleCallback(context.Background(), model.CallbackEvent{Action: model.ActionNoop, OrderID: "B001"})
	assert.Equal(t, "", ack)
}

func TestStatus(t *testing.T) {
	items := []model.StockItem{
		{ID: 1, Name: "Coffee", Amount: 5, MinAmount: 10, UnitsPerPackage: 20, OrderID: "B001"},
	}
	rig := newTestRig(testConfig(), items)

	_, err := rig.engine.RunCycle(context.Background())
	require.NoError(t, err)

	report := rig.engine.Status()
	assert.Equal(t, config.ModeCartLink, report.Mode)
	assert.Equal(t, 1, report.OrdersToday)
	assert.Equal(t, 10, report.MaxOrdersPerDay)
	assert.Contains(t, report.PendingDeliveries, "B001")
	assert.Len(t, report.LiveNotifications, 1)
	assert.Len(t, report.RecentOrders, 1)
	assert.False(t, report.Degraded)
}
