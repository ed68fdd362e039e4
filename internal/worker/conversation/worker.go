package conversationworker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appbootstrap "github.com/wolfman30/storefront-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/storefront-ai/internal/config"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// ErrQueueRequired is returned when the worker would have nothing to consume.
var ErrQueueRequired = errors.New("conversation worker needs CONVERSATION_QUEUE_URL and USE_MEMORY_QUEUE=false; run inline workers via the API process instead")

// Run starts the async conversation worker and blocks until ctx is canceled.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return errors.New("conversation worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.UseMemoryQueue || cfg.ConversationQueueURL == "" {
		return ErrQueueRequired
	}

	rt, err := appbootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("conversation worker: %w", err)
	}
	defer rt.Close()

	maintenance, err := rt.Maintenance()
	if err != nil {
		return fmt.Errorf("conversation worker: %w", err)
	}
	if err := maintenance.Start(ctx); err != nil {
		return fmt.Errorf("conversation worker: %w", err)
	}
	defer maintenance.Stop()

	if cfg.WorkerMetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.WorkerMetricsAddr, rt.Registry, logger)
		defer stopMetrics()
	}

	worker := rt.NewWorker()
	worker.Start(ctx)
	logger.Info("conversation worker running", "workers", cfg.WorkerCount, "queue", cfg.ConversationQueueURL)

	<-ctx.Done()
	worker.Wait()
	logger.Info("conversation worker stopped")
	return nil
}

// metricsHandler exposes the worker registry and a liveness probe.
func metricsHandler(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *logging.Logger) (stop func()) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metricsHandler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics listener failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("worker metrics listening", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
