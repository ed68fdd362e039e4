package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/storefront-ai/pkg/logging"
)

const globalNamespace = "kb:"

func orgNamespace(orgID string) string {
	if orgID == "" {
		return globalNamespace
	}
	return "kb:" + orgID
}

// DocumentRepository persists raw tenant documents. Empty orgID means global.
type DocumentRepository interface {
	AppendDocuments(ctx context.Context, orgID string, docs []string) error
	LoadAll(ctx context.Context) (map[string][]string, error)
}

// KnowledgeIndex answers tenant knowledge queries from org and global documents.
type KnowledgeIndex struct {
	index  *VectorIndex
	repo   DocumentRepository
	logger *logging.Logger
}

// NewKnowledgeIndex builds an index. repo may be nil for a purely in-memory index.
func NewKnowledgeIndex(index *VectorIndex, repo DocumentRepository, logger *logging.Logger) *KnowledgeIndex {
	if index == nil {
		panic("knowledge: vector index cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &KnowledgeIndex{index: index, repo: repo, logger: logger}
}

// AddDocuments persists (when a repository is configured) and indexes docs.
func (k *KnowledgeIndex) AddDocuments(ctx context.Context, orgID string, docs []string) error {
	docs = compact(docs)
	if len(docs) == 0 {
		return nil
	}
	if k.repo != nil {
		if err := k.repo.AppendDocuments(ctx, orgID, docs); err != nil {
			return fmt.Errorf("knowledge: persist documents: %w", err)
		}
	}
	if err := k.index.Add(ctx, orgNamespace(orgID), docs); err != nil {
		return fmt.Errorf("knowledge: index documents: %w", err)
	}
	return nil
}

// Search returns the best matching snippets for the org, including global docs.
func (k *KnowledgeIndex) Search(ctx context.Context, query, orgID string, limit int) ([]Snippet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	namespaces := []string{globalNamespace}
	if orgID != "" {
		namespaces = append(namespaces, orgNamespace(orgID))
	}
	snippets, err := k.index.Search(ctx, query, limit, namespaces...)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	return snippets, nil
}

// Hydrate loads every persisted document into the index. Called once at boot.
func (k *KnowledgeIndex) Hydrate(ctx context.Context) (int, error) {
	if k.repo == nil {
		return 0, nil
	}
	byOrg, err := k.repo.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("knowledge: hydrate: %w", err)
	}
	total := 0
	for orgID, docs := range byOrg {
		if err := k.index.Add(ctx, orgNamespace(orgID), compact(docs)); err != nil {
			k.logger.Warn("knowledge hydration failed", "org_id", orgID, "error", err)
			continue
		}
		total += len(docs)
	}
	k.logger.Info("knowledge index hydrated", "orgs", len(byOrg), "documents", total)
	return total, nil
}

func compact(docs []string) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}
