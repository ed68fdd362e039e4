package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/wolfman30/storefront-ai/pkg/logging"
)

const maxKnowledgeDocs = 200

// KnowledgeWriter indexes tenant documents (knowledge.KnowledgeIndex).
type KnowledgeWriter interface {
	AddDocuments(ctx context.Context, orgID string, docs []string) error
}

// KnowledgeReader lists stored tenant documents (knowledge.RedisDocumentRepository).
type KnowledgeReader interface {
	GetDocuments(ctx context.Context, orgID string) ([]string, error)
}

// AdminKnowledgeHandler uploads and lists tenant knowledge documents.
type AdminKnowledgeHandler struct {
	writer KnowledgeWriter
	reader KnowledgeReader
	logger *logging.Logger
}

// NewAdminKnowledgeHandler builds the handler. reader may be nil when documents
// are only held in memory.
func NewAdminKnowledgeHandler(writer KnowledgeWriter, reader KnowledgeReader, logger *logging.Logger) *AdminKnowledgeHandler {
	if writer == nil {
		panic("handlers: knowledge writer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminKnowledgeHandler{writer: writer, reader: reader, logger: logger}
}

// GetKnowledge returns the org's stored documents.
// GET /admin/orgs/{orgID}/knowledge
func (h *AdminKnowledgeHandler) GetKnowledge(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgParam(w, r)
	if !ok {
		return
	}
	if h.reader == nil {
		jsonError(w, "knowledge listing not configured", http.StatusServiceUnavailable)
		return
	}
	docs, err := h.reader.GetDocuments(r.Context(), orgID)
	if err != nil {
		h.logger.Error("failed to fetch knowledge", "org_id", orgID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"org_id": orgID, "documents": docs})
}

// AppendKnowledge indexes new documents for the org.
// POST /admin/orgs/{orgID}/knowledge
func (h *AdminKnowledgeHandler) AppendKnowledge(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgParam(w, r)
	if !ok {
		return
	}
	var payload struct {
		Documents []string `json:"documents"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	docs := make([]string, 0, len(payload.Documents))
	for _, d := range payload.Documents {
		if d = strings.TrimSpace(d); d != "" {
			docs = append(docs, d)
		}
	}
	switch {
	case len(docs) == 0:
		jsonError(w, "documents required", http.StatusBadRequest)
		return
	case len(docs) > maxKnowledgeDocs:
		jsonError(w, "too many documents", http.StatusRequestEntityTooLarge)
		return
	}
	if err := h.writer.AddDocuments(r.Context(), orgID, docs); err != nil {
		h.logger.Error("failed to store knowledge", "org_id", orgID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("knowledge documents added", "org_id", orgID, "documents", len(docs))
	writeJSON(w, http.StatusCreated, map[string]any{"org_id": orgID, "documents": len(docs), "status": "stored"})
}
