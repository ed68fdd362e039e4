package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/storefront-ai/internal/contacts"
	"github.com/wolfman30/storefront-ai/internal/conversation"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

const (
	defaultTranscriptLimit = 50
	maxTranscriptLimit     = 500
)

// RunLookup fetches run audit records (conversation.RunAuditStore).
type RunLookup interface {
	Get(ctx context.Context, runID string) (*conversation.RunRecord, error)
}

// AdminConversationsHandler exposes transcripts and run audits to operators.
type AdminConversationsHandler struct {
	contacts contacts.Repository
	runs     RunLookup
	logger   *logging.Logger
}

// NewAdminConversationsHandler builds the handler. runs may be nil when run
// auditing is disabled.
func NewAdminConversationsHandler(repo contacts.Repository, runs RunLookup, logger *logging.Logger) *AdminConversationsHandler {
	if repo == nil {
		panic("handlers: contacts repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{contacts: repo, runs: runs, logger: logger}
}

type transcriptResponse struct {
	Contact *contacts.Contact `json:"contact"`
	Turns   []contacts.Turn   `json:"turns"`
}

// GetTranscript returns the most recent turns for a contact.
// GET /admin/orgs/{orgID}/contacts/{contactID}/turns?limit=50
func (h *AdminConversationsHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgParam(w, r)
	if !ok {
		return
	}
	contactID := strings.TrimSpace(chi.URLParam(r, "contactID"))
	contact, err := h.contacts.Get(r.Context(), contactID)
	if errors.Is(err, contacts.ErrNotFound) || (err == nil && contact.OrgID != orgID) {
		jsonError(w, "contact not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load contact", "contact_id", contactID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	limit := defaultTranscriptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxTranscriptLimit)
	}
	turns, err := h.contacts.RecentTurns(r.Context(), contactID, limit)
	if err != nil {
		h.logger.Error("failed to load turns", "contact_id", contactID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []contacts.Turn{}
	}
	writeJSON(w, http.StatusOK, transcriptResponse{Contact: contact, Turns: turns})
}

// GetRun returns the audit record for one run.
// GET /admin/runs/{runID}
func (h *AdminConversationsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		jsonError(w, "run audit not configured", http.StatusServiceUnavailable)
		return
	}
	runID := strings.TrimSpace(chi.URLParam(r, "runID"))
	rec, err := h.runs.Get(r.Context(), runID)
	if errors.Is(err, conversation.ErrRunNotFound) || (err == nil && !allowsOrg(r, rec.OrgID)) {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load run", "run_id", runID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
