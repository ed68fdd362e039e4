package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/storefront-ai/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/storefront-ai/internal/http/middleware"
	"github.com/wolfman30/storefront-ai/internal/messaging"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

const readinessTimeout = 2 * time.Second

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger             *logging.Logger
	Webhook            *messaging.Handler
	AdminAgents        *handlers.AdminAgentsHandler
	AdminSessions      *handlers.AdminSessionsHandler
	AdminKnowledge     *handlers.AdminKnowledgeHandler
	AdminConversations *handlers.AdminConversationsHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	// Readiness checks run on /ready, keyed by dependency name.
	Readiness map[string]Check
	// WebhookRatePerSecond limits webhook calls per client address. Zero disables it.
	WebhookRatePerSecond float64
	WebhookBurst         int
}

// New creates the chi router with every configured route.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/ready", readyHandler(cfg.Readiness))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		webhook := http.Handler(http.HandlerFunc(cfg.Webhook.GatewayWebhook))
		if cfg.WebhookRatePerSecond > 0 {
			limiter := httpmiddleware.NewRateLimiter(cfg.WebhookRatePerSecond, cfg.WebhookBurst)
			webhook = httpmiddleware.RateLimit(limiter, httpmiddleware.ClientIP)(webhook)
		}
		r.Method(http.MethodPost, "/webhooks/gateway", webhook)
	}

	if cfg.AdminAuthSecret == "" {
		return r
	}
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		if cfg.AdminSessions != nil {
			admin.Route("/sessions", cfg.AdminSessions.Routes)
		}
		if cfg.AdminConversations != nil {
			admin.Get("/runs/{runID}", cfg.AdminConversations.GetRun)
		}
		admin.Route("/orgs/{orgID}", func(org chi.Router) {
			if cfg.AdminAgents != nil {
				org.Route("/agents", cfg.AdminAgents.Routes)
			}
			if cfg.AdminKnowledge != nil {
				org.Get("/knowledge", cfg.AdminKnowledge.GetKnowledge)
				org.Post("/knowledge", cfg.AdminKnowledge.AppendKnowledge)
			}
			if cfg.AdminConversations != nil {
				org.Get("/contacts/{contactID}/turns", cfg.AdminConversations.GetTranscript)
			}
		})
	})
	return r
}

func readyHandler(checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		status := http.StatusOK
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeStatus(w, status, map[string]any{"status": overall, "checks": results})
	}
}

func writeStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
