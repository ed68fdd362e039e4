package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/storefront-ai/internal/api/router"
	appbootstrap "github.com/wolfman30/storefront-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/storefront-ai/internal/config"
	"github.com/wolfman30/storefront-ai/internal/http/handlers"
	"github.com/wolfman30/storefront-ai/internal/messaging"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "api"})
	logger.Info("starting storefront-ai API server", "env", cfg.Env, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	rt, err := appbootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Jobs on an in-memory queue are only visible to this process, so the API
	// consumes them itself and owns the maintenance schedule too.
	if rt.InProcessQueue() {
		workerCtx, cancelWorkers := context.WithCancel(ctx)
		worker := rt.NewWorker()
		worker.Start(workerCtx)
		defer func() {
			cancelWorkers()
			worker.Wait()
		}()

		maintenance, err := rt.Maintenance()
		if err != nil {
			return err
		}
		if err := maintenance.Start(ctx); err != nil {
			return err
		}
		defer maintenance.Stop()
		logger.Info("inline conversation workers started", "workers", cfg.WorkerCount)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(rt, cfg, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newRouter(rt *appbootstrap.Runtime, cfg *appconfig.Config, logger *logging.Logger) http.Handler {
	var reader handlers.KnowledgeReader
	if rt.Documents != nil {
		reader = rt.Documents
	}
	var runs handlers.RunLookup
	if rt.RunAudit != nil {
		runs = rt.RunAudit
	}

	return router.New(&router.Config{
		Logger:               logger,
		Webhook:              messaging.NewHandler(cfg.GatewayWebhookSecret, rt.Sessions, rt.Publisher, rt.Dedupe, rt.MessagingMetrics, logger.Component("webhook")),
		AdminAgents:          handlers.NewAdminAgentsHandler(rt.Agents, logger.Component("admin")),
		AdminSessions:        handlers.NewAdminSessionsHandler(rt.Sessions, logger.Component("admin")),
		AdminKnowledge:       handlers.NewAdminKnowledgeHandler(rt.Knowledge, reader, logger.Component("admin")),
		AdminConversations:   handlers.NewAdminConversationsHandler(rt.Contacts, runs, logger.Component("admin")),
		AdminAuthSecret:      cfg.AdminJWTSecret,
		MetricsHandler:       promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}),
		Readiness:            readinessChecks(rt),
		WebhookRatePerSecond: cfg.WebhookRatePerSecond,
		WebhookBurst:         cfg.WebhookBurst,
	})
}

func readinessChecks(rt *appbootstrap.Runtime) map[string]router.Check {
	checks := make(map[string]router.Check)
	if rt.Pool != nil {
		checks["postgres"] = rt.Pool.Ping
	}
	if rt.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() }
	}
	return checks
}
