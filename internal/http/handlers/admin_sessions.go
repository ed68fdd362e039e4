package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/storefront-ai/internal/messaging"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// SessionAdmin is the subset of messaging.SessionRegistry the admin API drives.
type SessionAdmin interface {
	Create(ctx context.Context, s messaging.Session) (messaging.Session, error)
	Reconnect(ctx context.Context, sessionID string) (messaging.Session, error)
	Dispose(ctx context.Context, sessionID string) error
	Resolve(ctx context.Context, sessionID string) (messaging.Session, error)
	List() []messaging.Session
}

// AdminSessionsHandler manages gateway sessions and their tenant bindings.
type AdminSessionsHandler struct {
	sessions SessionAdmin
	logger   *logging.Logger
}

func NewAdminSessionsHandler(sessions SessionAdmin, logger *logging.Logger) *AdminSessionsHandler {
	if sessions == nil {
		panic("handlers: session registry cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminSessionsHandler{sessions: sessions, logger: logger}
}

// Routes mounts under /admin/sessions.
func (h *AdminSessionsHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/{sessionID}/reconnect", h.Reconnect)
	r.Delete("/{sessionID}", h.Dispose)
}

// List returns the sessions visible to the caller.
// GET /admin/sessions
func (h *AdminSessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	out := make([]messaging.Session, 0)
	for _, s := range h.sessions.List() {
		if allowsOrg(r, s.OrgID) {
			out = append(out, s)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

type createSessionRequest struct {
	SessionID string `json:"session_id"`
	OrgID     string `json:"org_id"`
	AgentID   string `json:"agent_id"`
}

// Create binds a new session to an agent and starts it on the gateway.
// POST /admin/sessions
func (h *AdminSessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.OrgID = strings.TrimSpace(req.OrgID)
	if req.SessionID == "" || req.OrgID == "" {
		jsonError(w, "session_id and org_id are required", http.StatusBadRequest)
		return
	}
	if !allowsOrg(r, req.OrgID) {
		jsonError(w, "forbidden", http.StatusForbidden)
		return
	}
	if existing, err := h.sessions.Resolve(r.Context(), req.SessionID); err == nil {
		if existing.OrgID != req.OrgID {
			jsonError(w, "session bound to another organization", http.StatusConflict)
			return
		}
	}
	s, err := h.sessions.Create(r.Context(), messaging.Session{
		ID:      req.SessionID,
		OrgID:   req.OrgID,
		AgentID: strings.TrimSpace(req.AgentID),
	})
	if err != nil {
		h.logger.Error("failed to create session", "session_id", req.SessionID, "org_id", req.OrgID, "error", err)
		jsonError(w, "failed to start session", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// Reconnect restores a dropped gateway session.
// POST /admin/sessions/{sessionID}/reconnect
func (h *AdminSessionsHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.authorizedSession(w, r)
	if !ok {
		return
	}
	s, err := h.sessions.Reconnect(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to reconnect session", "session_id", sessionID, "error", err)
		jsonError(w, "failed to reconnect session", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Dispose closes the session and removes its binding.
// DELETE /admin/sessions/{sessionID}
func (h *AdminSessionsHandler) Dispose(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.authorizedSession(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Dispose(r.Context(), sessionID); err != nil {
		h.logger.Error("failed to dispose session", "session_id", sessionID, "error", err)
		jsonError(w, "failed to dispose session", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminSessionsHandler) authorizedSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	s, err := h.sessions.Resolve(r.Context(), sessionID)
	if errors.Is(err, messaging.ErrSessionNotFound) || (err == nil && !allowsOrg(r, s.OrgID)) {
		jsonError(w, "session not found", http.StatusNotFound)
		return "", false
	}
	if err != nil {
		h.logger.Error("failed to resolve session", "session_id", sessionID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return "", false
	}
	return sessionID, true
}
