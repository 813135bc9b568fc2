package main

import (
	"reorder-service/internal/config"
	"reorder-service/internal/engine"
	"reorder-service/internal/events"
	"reorder-service/internal/grocy"
	"reorder-service/internal/handlers"
	"reorder-service/internal/homeassistant"
	"reorder-service/internal/ledger"
	"reorder-service/internal/store"
	"reorder-service/internal/telegram"
	"reorder-service/internal/tracker"
	"reorder-service/pkg/logger"

	"go.uber.org/zap"
)

// runtime holds the wired service components shared by the subcommands.
type runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *store.SingleWriterStore
	grocy     *grocy.Client
	hass      *homeassistant.Client
	telegram  *telegram.Client
	ledger    *ledger.OrderLedger
	tracker   *tracker.LifecycleTracker
	publisher *events.Publisher
	engine    *engine.Engine
}

// buildRuntime loads configuration and wires the full component graph.
func buildRuntime() (*runtime, error) {
	cfg := config.Load()
	log := logger.New(cfg.Environment)

	st, err := store.NewSingleWriterStore(cfg.SQLitePath, log)
	if err != nil {
		return nil, err
	}

	grocyClient := grocy.NewClient(cfg, log)
	hassClient := homeassistant.NewClient(cfg, log)
	tgClient := telegram.NewClient(cfg, log)

	orderLedger := ledger.NewOrderLedger(st, log)
	lifecycleTracker := tracker.NewLifecycleTracker(st, tgClient, log)

	publisher, err := events.NewPublisher(cfg, log)
	if err != nil {
		log.Warn("Kafka producer unavailable, auditing disabled", zap.Error(err))
		publisher = nil
	}
	var enginePublisher engine.Publisher
	if publisher != nil {
		enginePublisher = publisher
	}

	eng := engine.New(cfg, grocyClient, hassClient, orderLedger, lifecycleTracker, enginePublisher, log)

	return &runtime{
		cfg:       cfg,
		logger:    log,
		store:     st,
		grocy:     grocyClient,
		hass:      hassClient,
		telegram:  tgClient,
		ledger:    orderLedger,
		tracker:   lifecycleTracker,
		publisher: publisher,
		engine:    eng,
	}, nil
}

// close releases the store and producer. Logged, never fatal.
func (r *runtime) close() {
	if err := r.publisher.Close(); err != nil {
		r.logger.Warn("Failed to close Kafka producer", zap.Error(err))
	}
	if err := r.store.Close(); err != nil {
		r.logger.Warn("Failed to close store", zap.Error(err))
	}
	_ = r.logger.Sync()
}

// probes returns the connectivity checks for the configured collaborators.
func (r *runtime) probes() map[string]handlers.Prober {
	p := map[string]handlers.Prober{
		"grocy":         r.grocy,
		"homeassistant": r.hass,
	}
	if r.telegram.Enabled() {
		p["telegram"] = r.telegram
	}
	return p
}
