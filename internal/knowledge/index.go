package knowledge

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
)

// Snippet is a retrieved piece of text with its similarity to the query.
type Snippet struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type entry struct {
	content   string
	embedding []float32
}

// VectorIndex keeps embeddings in memory, grouped by namespace.
type VectorIndex struct {
	embedder Embedder
	maxPerNS int

	mu      sync.RWMutex
	entries map[string][]entry
}

func NewVectorIndex(embedder Embedder) *VectorIndex {
	if embedder == nil {
		panic("knowledge: embedder cannot be nil")
	}
	return &VectorIndex{embedder: embedder, entries: make(map[string][]entry)}
}

// WithNamespaceCap bounds each namespace; the oldest entries are dropped first.
func (v *VectorIndex) WithNamespaceCap(n int) *VectorIndex {
	if n > 0 {
		v.maxPerNS = n
	}
	return v
}

// Add embeds and stores texts under namespace.
func (v *VectorIndex) Add(ctx context.Context, namespace string, texts []string) error {
	if len(texts) == 0 {
		return nil
	}
	vectors, err := v.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(texts) {
		return errors.New("knowledge: embedding count mismatch")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	list := v.entries[namespace]
	for i, text := range texts {
		list = append(list, entry{content: text, embedding: vectors[i]})
	}
	if v.maxPerNS > 0 && len(list) > v.maxPerNS {
		list = append([]entry(nil), list[len(list)-v.maxPerNS:]...)
	}
	v.entries[namespace] = list
	return nil
}

// Len reports how many entries a namespace holds.
func (v *VectorIndex) Len(namespace string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries[namespace])
}

// Search ranks entries across the given namespaces by cosine similarity.
func (v *VectorIndex) Search(ctx context.Context, query string, limit int, namespaces ...string) ([]Snippet, error) {
	if limit <= 0 {
		limit = 3
	}
	v.mu.RLock()
	var candidates []entry
	for _, ns := range namespaces {
		candidates = append(candidates, v.entries[ns]...)
	}
	v.mu.RUnlock()
	if len(candidates) == 0 {
		return nil, nil
	}

	vectors, err := v.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	q := vectors[0]

	results := make([]Snippet, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, Snippet{Content: c.content, Score: cosineSimilarity(q, c.embedding)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
