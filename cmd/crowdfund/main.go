// Package main запускает HTTP-сервер сервиса краудфандинга.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/crowdfund-system/internal/config"
	"github.com/mmeshcher/crowdfund-system/internal/event"
	"github.com/mmeshcher/crowdfund-system/internal/handler"
	"github.com/mmeshcher/crowdfund-system/internal/journal"
	"github.com/mmeshcher/crowdfund-system/internal/ledger"
	"github.com/mmeshcher/crowdfund-system/internal/middleware"
	"github.com/mmeshcher/crowdfund-system/internal/model"
	"github.com/mmeshcher/crowdfund-system/internal/payout"
	"github.com/mmeshcher/crowdfund-system/internal/registry"
	"github.com/mmeshcher/crowdfund-system/internal/validation"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	if !validation.IsValidPrincipal(cfg.ControllerPrincipal) {
		sugar.Fatalw("invalid controller principal", "principal", cfg.ControllerPrincipal)
	}

	metricsRegistry := prometheus.NewRegistry()

	bus := event.NewBus(logger, metricsRegistry)

	gate, err := registry.NewGate(model.Principal(cfg.ControllerPrincipal), bus)
	if err != nil {
		sugar.Fatalw("registry initialization error", "error", err.Error())
	}

	var notificationJournal *journal.PostgresJournal
	if cfg.DatabaseURI != "" {
		notificationJournal, err = journal.NewPostgresJournal(cfg.DatabaseURI, logger)
		if err != nil {
			sugar.Fatalw("notification journal initialization error", "error", err.Error())
		}
		defer notificationJournal.Close()

		for _, t := range event.Types() {
			bus.SubscribeFunc(t, notificationJournal.HandleEvent)
		}
	}

	var payer ledger.Payer
	if cfg.PayoutSystemAddress != "" {
		payer = payout.NewClient(cfg.PayoutSystemAddress)
	}

	campaignLedger, err := ledger.New(gate, payer, bus)
	if err != nil {
		sugar.Fatalw("ledger initialization error", "error", err.Error())
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	httpMetrics := middleware.NewHTTPMetrics(metricsRegistry)

	var journalView handler.Journal
	if notificationJournal != nil {
		journalView = notificationJournal
	}

	h := handler.NewHandler(campaignLedger, gate, journalView, logger, authMiddleware, httpMetrics)

	r := h.SetupRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting crowdfund server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		// Остановка шины после сервера, чтобы обработчики успели
		// опубликовать уведомления по принятым запросам.
		bus.Stop()

		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
