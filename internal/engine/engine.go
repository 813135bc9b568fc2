package engine

import (
	"context"
	"fmt"
	"sync"

	"reorder-service/internal/config"
	"reorder-service/internal/ledger"
	"reorder-service/internal/model"
	"reorder-service/internal/tracker"
	apperrors "reorder-service/pkg/errors"

	"go.uber.org/zap"
)

// Catalog is the inventory/stock source boundary.
type Catalog interface {
	Snapshot(ctx context.Context) ([]model.StockItem, error)
}

// Fulfillment is the order-execution boundary (shopping list insertion, voice
// command or plain notification, depending on the configured mode).
type Fulfillment interface {
	AddToShoppingList(ctx context.Context, item string) error
	OrderByASIN(ctx context.Context, asin string, quantity int) error
	SendNotification(ctx context.Context, title, message string) error
}

// Publisher emits audit events for placed/acknowledged/delivered orders.
// Optional; a nil publisher disables auditing.
type Publisher interface {
	PublishReorderEvent(ctx context.Context, eventType, orderID string, payload map[string]interface{}) error
}

// Summary aggregates the outcome of one evaluation cycle.
type Summary struct {
	Candidates int `json:"candidates"`
	Placed     int `json:"placed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	DryRun     int `json:"dry_run"`
	Invalid    int `json:"invalid"`
}

// StatusReport is the snapshot returned by Status for the API surface.
type StatusReport struct {
	Mode              string                 `json:"mode"`
	DryRun            bool                   `json:"dry_run"`
	OrdersToday       int                    `json:"orders_today"`
	MaxOrdersPerDay   int                    `json:"max_orders_per_day"`
	PendingDeliveries map[string]float64     `json:"pending_deliveries"`
	LiveNotifications []model.LifecycleEntry `json:"live_notifications"`
	RecentOrders      []model.LedgerEntry    `json:"recent_orders"`
	Degraded          bool                   `json:"degraded"`
}

// Engine composes calculator, ledger and tracker into the reorder
// orchestrator. A single mutex guards ledger and tracker: the periodic
// evaluation cycle and the callback listener both enter through Engine
// methods, so the check-then-act sequence in CanOrder/RecordResolution never
// interleaves with a callback transition for the same identifier.
type Engine struct {
	mu sync.Mutex

	cfg       *config.Config
	logger    *zap.Logger
	catalog   Catalog
	fulfill   Fulfillment
	ledger    *ledger.OrderLedger
	tracker   *tracker.LifecycleTracker
	publisher Publisher
}

// New wires the engine and registers the tracker hooks.
func New(cfg *config.Config, catalog Catalog, fulfill Fulfillment, l *ledger.OrderLedger, t *tracker.LifecycleTracker, publisher Publisher, logger *zap.Logger) *Engine {
	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		catalog:   catalog,
		fulfill:   fulfill,
		ledger:    l,
		tracker:   t,
		publisher: publisher,
	}

	t.SetHooks(
		func(orderID string) error {
			return e.publish(context.Background(), "ReorderAcknowledged", orderID, nil)
		},
		func(orderID string) error {
			return e.publish(context.Background(), "ReorderDelivered", orderID, nil)
		},
	)

	return e
}

// RunCycle executes one evaluation: fetch the stock snapshot, self-heal
// pending-delivery markers, refresh tracked notifications, then decide and
// act per candidate. A single item's failure never aborts the batch; the
// shutdown flag (context) is checked between items.
func (e *Engine) RunCycle(ctx context.Context) (Summary, error) {
	items, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return Summary{}, apperrors.NewTransportError("stock snapshot", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Observe current stock for every tracked identifier first, so stale
	// markers self-heal independent of whether an order is considered.
	stocks := make(map[string]float64)
	for _, item := range items {
		if item.OrderID == "" {
			continue
		}
		stocks[item.OrderID] = item.Amount
		e.ledger.ObserveStock(ctx, item.OrderID, item.Amount)
	}
	e.tracker.RefreshStocks(ctx, stocks)

	var summary Summary
	for _, item := range items {
		if ctx.Err() != nil {
			e.logger.Info("Shutdown requested, stopping evaluation cycle early")
			break
		}

		need, err := model.ComputeReorderNeed(item)
		if err != nil {
			summary.Invalid++
			e.logger.Warn("Rejecting invalid stock item",
				zap.Int("product_id", item.ID),
				zap.String("name", item.Name),
				zap.Error(err),
			)
			continue
		}
		if !item.Eligible(need) {
			continue
		}

		summary.Candidates++
		e.processItem(ctx, item, need, &summary)
	}

	e.logger.Info("Evaluation cycle finished",
		zap.Int("candidates", summary.Candidates),
		zap.Int("placed", summary.Placed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("dry_run", summary.DryRun),
		zap.Int("invalid", summary.Invalid),
	)
	return summary, nil
}

// processItem decides and acts for a single candidate. Must run with e.mu held.
func (e *Engine) processItem(ctx context.Context, item model.StockItem, need model.ReorderNeed, summary *Summary) {
	allowed, reason := e.ledger.CanOrder(item.OrderID, item.Amount, e.ledger.OrdersToday(), e.cfg.MaxOrdersPerDay)
	if !allowed {
		e.logger.Info("Order not allowed",
			zap.String("order_id", item.OrderID),
			zap.String("name", item.Name),
			zap.String("reason", reason),
		)
		e.ledger.RecordResolution(ctx, item.OrderID, item.Name, need.Packages, model.StatusSkipped, item.Amount, reason)
		summary.Skipped++
		return
	}

	if e.cfg.DryRun {
		e.logger.Info("[DRY RUN] Would order",
			zap.String("order_id", item.OrderID),
			zap.String("description", item.OrderDescription(need.Packages)),
		)
		e.ledger.RecordResolution(ctx, item.OrderID, item.Name, need.Packages, model.StatusPending, item.Amount, "dry run, no order executed")
		e.notifyPlain(ctx, "🧪 Reorder (dry run)",
			fmt.Sprintf("Would order: %s\nASIN: %s\nStock: %v/%v %s",
				item.OrderDescription(need.Packages), item.OrderID, item.Amount, item.MinAmount, item.Unit))
		summary.DryRun++
		return
	}

	if err := e.executeFulfillment(ctx, item, need.Packages); err != nil {
		e.logger.Error("Fulfillment failed",
			zap.String("order_id", item.OrderID),
			zap.String("name", item.Name),
			zap.Error(err),
		)
		e.ledger.RecordResolution(ctx, item.OrderID, item.Name, need.Packages, model.StatusFailed, item.Amount, err.Error())
		e.notifyPlain(ctx, "❌ Reorder failed",
			fmt.Sprintf("Could not order %s.\nError: %v", item.Name, err))
		summary.Failed++
		return
	}

	e.ledger.RecordResolution(ctx, item.OrderID, item.Name, need.Packages, model.StatusPlaced, item.Amount, "")
	summary.Placed++

	if e.cfg.NotifyOnOrder {
		entry := model.LifecycleEntry{
			OrderID:      item.OrderID,
			ProductName:  item.Name,
			Quantity:     need.Packages,
			Unit:         item.Unit,
			CartURL:      cartAddURL(e.cfg.AmazonDomain, item.OrderID, need.Packages),
			CurrentStock: item.Amount,
			MinStock:     item.MinAmount,
		}
		if err := e.tracker.Upsert(ctx, entry); err != nil {
			e.logger.Error("Failed to send reorder notification",
				zap.String("order_id", item.OrderID),
				zap.Error(err),
			)
		}
	}

	if err := e.publish(ctx, "ReorderPlaced", item.OrderID, map[string]interface{}{
		"productName": item.Name,
		"quantity":    need.Packages,
		"stock":       item.Amount,
		"minStock":    item.MinAmount,
	}); err != nil {
		e.logger.Warn("Failed to publish reorder event", zap.Error(err))
	}
}

// executeFulfillment performs the mode-dependent external action. For
// cart_link and notify_only the tracked notification itself is the action.
func (e *Engine) executeFulfillment(ctx context.Context, item model.StockItem, packages int) error {
	switch e.cfg.OrderMode {
	case config.ModeShoppingList:
		return e.fulfill.AddToShoppingList(ctx, item.OrderDescription(packages))
	case config.ModeVoiceOrder:
		return e.fulfill.OrderByASIN(ctx, item.OrderID, packages)
	case config.ModeCartLink, config.ModeNotifyOnly:
		return nil
	default:
		return fmt.Errorf("unknown order mode %q", e.cfg.OrderMode)
	}
}

// HandleCallback applies one inbound button-press event and returns the
// acknowledgment text. Unknown actions and identifiers without a live entry
// are acknowledged as no-ops, never surfaced as errors to the listener.
func (e *Engine) HandleCallback(ctx context.Context, ev model.CallbackEvent) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Action {
	case model.ActionOrdered:
		return e.tracker.OnOrderedCallback(ctx, ev.OrderID)
	case model.ActionDelivered:
		return e.tracker.OnDeliveredCallback(ctx, ev.OrderID)
	case model.ActionCancel:
		ack := e.tracker.OnCancelCallback(ctx, ev.OrderID)
		// Cancellation clears the dedup marker explicitly
		e.ledger.ClearPendingDelivery(ctx, ev.OrderID)
		return ack
	default:
		return ""
	}
}

// Status returns a consistent snapshot of ledger and tracker state.
func (e *Engine) Status() StatusReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	return StatusReport{
		Mode:              e.cfg.OrderMode,
		DryRun:            e.cfg.DryRun,
		OrdersToday:       e.ledger.OrdersToday(),
		MaxOrdersPerDay:   e.cfg.MaxOrdersPerDay,
		PendingDeliveries: e.ledger.PendingDeliveries(),
		LiveNotifications: e.tracker.LiveEntries(),
		RecentOrders:      e.ledger.RecentEntries(),
		Degraded:          e.ledger.Degraded() || e.tracker.Degraded(),
	}
}

func (e *Engine) notifyPlain(ctx context.Context, title, message string) {
	if !e.cfg.NotifyOnOrder {
		return
	}
	if err := e.fulfill.SendNotification(ctx, title, message); err != nil {
		e.logger.Warn("Failed to send notification", zap.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, eventType, orderID string, payload map[string]interface{}) error {
	if e.publisher == nil {
		return nil
	}
	return e.publisher.PublishReorderEvent(ctx, eventType, orderID, payload)
}

// cartAddURL builds the Amazon add-to-cart link for an ASIN.
func cartAddURL(domain, asin string, quantity int) string {
	return fmt.Sprintf("https://%s/gp/aws/cart/add.html?ASIN.1=%s&Quantity.1=%d", domain, asin, quantity)
}
