package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/storefront-ai/internal/agents"
	"github.com/wolfman30/storefront-ai/internal/catalog"
	"github.com/wolfman30/storefront-ai/internal/knowledge"
	"github.com/wolfman30/storefront-ai/internal/orders"
)

const testOrg = "org-1"

// scriptedLLM answers every completion with respond, recording requests.
type scriptedLLM struct {
	mu       sync.Mutex
	respond  func(req LLMRequest) (string, error)
	requests []LLMRequest
}

func replyWith(text string) *scriptedLLM {
	return &scriptedLLM{respond: func(LLMRequest) (string, error) { return text, nil }}
}

func failingLLM() *scriptedLLM {
	return &scriptedLLM{respond: func(LLMRequest) (string, error) { return "", errors.New("provider down") }}
}

func (s *scriptedLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	text, err := s.respond(req)
	if err != nil {
		return LLMResponse{}, err
	}
	return LLMResponse{Text: text}, nil
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedLLM) lastSystem() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return ""
	}
	return strings.Join(s.requests[len(s.requests)-1].System, "\n")
}

// isClassification tells classifier prompts apart from handler prompts.
func isClassification(req LLMRequest) bool {
	return len(req.System) > 0 && strings.HasPrefix(req.System[0], "You route messages")
}

type stubKnowledge struct {
	snippets []knowledge.Snippet
	err      error
	queries  []string
}

func (s *stubKnowledge) Search(_ context.Context, query, _ string, _ int) ([]knowledge.Snippet, error) {
	s.queries = append(s.queries, query)
	return s.snippets, s.err
}

func newTestCatalog() *catalog.MemoryStore {
	return catalog.NewMemoryStore(
		catalog.Product{ID: "p-widget", OrgID: testOrg, Name: "Widget", Description: "Blue steel widget", PriceCents: 1250, Currency: "USD", Stock: 10, Active: true},
		catalog.Product{ID: "p-gadget", OrgID: testOrg, Name: "Gadget", PriceCents: 4000, Currency: "USD", Stock: 1, Active: true},
	)
}

// newTestDeps returns deps over in-memory catalog and ledger.
func newTestDeps(llm LLMClient) (*Deps, *catalog.MemoryStore) {
	store := newTestCatalog()
	deps := &Deps{
		LLM:     llm,
		Catalog: store,
		Orders:  orders.NewMemoryLedger(store),
		State:   NewStateStore(),
		Now:     func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) },
	}
	return deps, store
}

func testTurn(input string) TurnInput {
	return TurnInput{
		Input:     input,
		OrgID:     testOrg,
		ContactID: "contact-1",
		Agent:     agents.DefaultSettings(testOrg, "default"),
	}
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
