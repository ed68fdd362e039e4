package knowledge

import (
	"context"
	"fmt"
	"strings"
)

const defaultHistoryCap = 200

// HistoryIndex stores compact (input, reply) exchanges per contact for
// semantic recall of earlier conversations.
type HistoryIndex struct {
	index *VectorIndex
}

func NewHistoryIndex(embedder Embedder) *HistoryIndex {
	return &HistoryIndex{index: NewVectorIndex(embedder).WithNamespaceCap(defaultHistoryCap)}
}

func historyNamespace(contactID string) string {
	return "history:" + contactID
}

// Record indexes one exchange for the contact.
func (h *HistoryIndex) Record(ctx context.Context, orgID, contactID, input, reply string) error {
	if contactID == "" {
		return fmt.Errorf("knowledge: record history: contact id required")
	}
	text := fmt.Sprintf("user: %s\nassistant: %s", strings.TrimSpace(input), strings.TrimSpace(reply))
	if err := h.index.Add(ctx, historyNamespace(contactID), []string{text}); err != nil {
		return fmt.Errorf("knowledge: record history for org %s: %w", orgID, err)
	}
	return nil
}

// Search returns the contact's past exchanges most similar to query.
func (h *HistoryIndex) Search(ctx context.Context, contactID, query string, limit int) ([]Snippet, error) {
	snippets, err := h.index.Search(ctx, query, limit, historyNamespace(contactID))
	if err != nil {
		return nil, fmt.Errorf("knowledge: search history: %w", err)
	}
	return snippets, nil
}
