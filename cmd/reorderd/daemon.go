package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reorder-service/internal/auth"
	"reorder-service/internal/cache"
	"reorder-service/internal/handlers"
	"reorder-service/internal/telegram"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the periodic reorder service with HTTP API and Telegram listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		log := rt.logger
		log.Info("🚀 Starting reorder service",
			zap.String("mode", rt.cfg.OrderMode),
			zap.Bool("dry_run", rt.cfg.DryRun),
			zap.Int("check_interval_minutes", rt.cfg.CheckIntervalMinutes),
			zap.Int("max_orders_per_day", rt.cfg.MaxOrdersPerDay),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Startup connectivity report. Failures are logged, not fatal: the
		// periodic cycle retries on its own schedule.
		probeCtx, probeCancel := context.WithTimeout(ctx, 30*time.Second)
		for name, probe := range rt.probes() {
			if err := probe.TestConnection(probeCtx); err != nil {
				log.Warn("Connectivity check failed", zap.String("collaborator", name), zap.Error(err))
				continue
			}
			log.Info("✅ Connected", zap.String("collaborator", name))
		}
		probeCancel()

		statusCache := cache.New(rt.cfg, log)

		var jwtManager *auth.JWTManager
		if rt.cfg.JWTSecret != "" {
			jwtManager = auth.NewJWTManager(rt.cfg.JWTSecret, log)
		}

		statusHandler := handlers.NewStatusHandler(rt.engine, statusCache, rt.cfg, rt.probes(), log)
		router := handlers.SetupRouter(rt.cfg, statusHandler, jwtManager, log)

		server := &http.Server{
			Addr:        ":" + rt.cfg.Port,
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// The trigger endpoint runs a full evaluation cycle
			// synchronously; the write timeout must outlast its bound.
			WriteTimeout: 6 * time.Minute,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Info("🔧 HTTP API listening", zap.String("port", rt.cfg.Port))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error", zap.Error(err))
				cancel()
			}
		}()

		if rt.telegram.Enabled() {
			listener := telegram.NewListener(rt.telegram, rt.engine, rt.cfg.TelegramPollTimeout, log)
			go func() {
				log.Info("📨 Telegram callback listener started")
				if err := listener.Run(ctx); err != nil {
					log.Error("Telegram listener stopped", zap.Error(err))
				}
			}()
		}

		// Evaluation loop: one cycle immediately, then on the interval.
		go func() {
			runCycle(ctx, rt)

			ticker := time.NewTicker(time.Duration(rt.cfg.CheckIntervalMinutes) * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					runCycle(ctx, rt)
				}
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			log.Info("Shutdown signal received", zap.String("signal", sig.String()))
		case <-ctx.Done():
		}

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server forced to shutdown", zap.Error(err))
		}

		log.Info("Reorder service stopped")
		return nil
	},
}

func runCycle(ctx context.Context, rt *runtime) {
	cycleCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if _, err := rt.engine.RunCycle(cycleCtx); err != nil {
		rt.logger.Error("Evaluation cycle failed", zap.Error(err))
	}
}
