package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/storefront-ai/internal/agents"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// AgentSettingsStore is satisfied by agents.Store and agents.MemoryStore.
type AgentSettingsStore interface {
	Get(ctx context.Context, orgID, agentID string) (*agents.Settings, error)
	Set(ctx context.Context, cfg *agents.Settings) error
	SetPaused(ctx context.Context, orgID, agentID string, paused bool) (*agents.Settings, error)
}

// AdminAgentsHandler lets operators inspect, configure and pause agents.
type AdminAgentsHandler struct {
	store  AgentSettingsStore
	logger *logging.Logger
}

func NewAdminAgentsHandler(store AgentSettingsStore, logger *logging.Logger) *AdminAgentsHandler {
	if store == nil {
		panic("handlers: agent settings store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminAgentsHandler{store: store, logger: logger}
}

// Routes mounts under /admin/orgs/{orgID}/agents.
func (h *AdminAgentsHandler) Routes(r chi.Router) {
	r.Get("/{agentID}", h.GetSettings)
	r.Put("/{agentID}", h.PutSettings)
	r.Post("/{agentID}/pause", h.Pause)
	r.Post("/{agentID}/resume", h.Resume)
}

// GetSettings returns the agent's settings, or defaults when none are saved.
// GET /admin/orgs/{orgID}/agents/{agentID}
func (h *AdminAgentsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	orgID, agentID, ok := agentParams(w, r)
	if !ok {
		return
	}
	cfg, err := h.store.Get(r.Context(), orgID, agentID)
	if err != nil {
		h.logger.Error("failed to load agent settings", "org_id", orgID, "agent_id", agentID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type agentSettingsRequest struct {
	Name         *string  `json:"name"`
	Persona      *string  `json:"persona"`
	AssistantID  *string  `json:"assistant_id"`
	Model        *string  `json:"model"`
	Timezone     *string  `json:"timezone"`
	NotifyEmails []string `json:"notify_emails"`
}

// PutSettings merges the supplied fields into the stored settings. The
// paused flag is only changed through pause/resume.
// PUT /admin/orgs/{orgID}/agents/{agentID}
func (h *AdminAgentsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	orgID, agentID, ok := agentParams(w, r)
	if !ok {
		return
	}
	var req agentSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg, err := h.store.Get(r.Context(), orgID, agentID)
	if err != nil {
		h.logger.Error("failed to load agent settings", "org_id", orgID, "agent_id", agentID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if req.Name != nil {
		cfg.Name = strings.TrimSpace(*req.Name)
	}
	if req.Persona != nil {
		cfg.Persona = strings.TrimSpace(*req.Persona)
	}
	if req.AssistantID != nil {
		cfg.AssistantID = strings.TrimSpace(*req.AssistantID)
	}
	if req.Model != nil {
		cfg.Model = strings.TrimSpace(*req.Model)
	}
	if req.Timezone != nil {
		tz := strings.TrimSpace(*req.Timezone)
		if tz != "" && (&agents.Settings{Timezone: tz}).Location().String() != tz {
			jsonError(w, "unknown timezone", http.StatusBadRequest)
			return
		}
		cfg.Timezone = tz
	}
	if req.NotifyEmails != nil {
		cfg.NotifyEmails = cleanEmails(req.NotifyEmails)
	}
	if err := h.store.Set(r.Context(), cfg); err != nil {
		h.logger.Error("failed to save agent settings", "org_id", orgID, "agent_id", agentID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("agent settings updated", "org_id", orgID, "agent_id", agentID)
	writeJSON(w, http.StatusOK, cfg)
}

// Pause stops the agent from replying. Inbound turns are still recorded.
// POST /admin/orgs/{orgID}/agents/{agentID}/pause
func (h *AdminAgentsHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// Resume re-enables replies.
// POST /admin/orgs/{orgID}/agents/{agentID}/resume
func (h *AdminAgentsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *AdminAgentsHandler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	orgID, agentID, ok := agentParams(w, r)
	if !ok {
		return
	}
	cfg, err := h.store.SetPaused(r.Context(), orgID, agentID, paused)
	if err != nil {
		h.logger.Error("failed to toggle agent", "org_id", orgID, "agent_id", agentID, "paused", paused, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("agent pause toggled", "org_id", orgID, "agent_id", agentID, "paused", paused)
	writeJSON(w, http.StatusOK, cfg)
}

func agentParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	orgID, ok := orgParam(w, r)
	if !ok {
		return "", "", false
	}
	agentID := strings.TrimSpace(chi.URLParam(r, "agentID"))
	if agentID == "" {
		jsonError(w, "missing agentID", http.StatusBadRequest)
		return "", "", false
	}
	return orgID, agentID, true
}

func cleanEmails(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || !strings.Contains(e, "@") || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
