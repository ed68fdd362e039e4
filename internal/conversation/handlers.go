package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/storefront-ai/internal/agents"
	"github.com/wolfman30/storefront-ai/internal/catalog"
	"github.com/wolfman30/storefront-ai/internal/contacts"
	"github.com/wolfman30/storefront-ai/internal/knowledge"
	"github.com/wolfman30/storefront-ai/internal/notify"
	"github.com/wolfman30/storefront-ai/internal/observability/metrics"
	"github.com/wolfman30/storefront-ai/internal/orders"
	"github.com/wolfman30/storefront-ai/internal/payments"
	"github.com/wolfman30/storefront-ai/internal/scheduling"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// Customer-facing replies that never depend on model output.
const (
	NoInformationReply = "I'm sorry, I don't have that information. Is there anything else I can help you with?"
	FallbackReply      = "Sorry, I'm having trouble responding right now. Please send your message again in a moment."
)

const knowledgeSearchLimit = 3

// KnowledgeSearcher is the tenant knowledge lookup.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query, orgID string, limit int) ([]knowledge.Snippet, error)
}

// FollowUpCreator books follow-ups.
type FollowUpCreator interface {
	Create(ctx context.Context, f scheduling.FollowUp) (*scheduling.FollowUp, error)
}

// OrderNotifier tells store operators about confirmed orders.
type OrderNotifier interface {
	NotifyOrderPlaced(ctx context.Context, notice notify.OrderNotice) error
}

// Deps carries the collaborators shared by the handlers and the run loop's tools.
// Catalog, Orders and LLM are required; the rest degrade when nil.
type Deps struct {
	LLM       LLMClient
	Model     string
	Catalog   catalog.Catalog
	Orders    orders.Ledger
	Knowledge KnowledgeSearcher
	Payments  payments.Directory
	FollowUps FollowUpCreator
	State     *StateStore
	Notifier  OrderNotifier
	Metrics   *metrics.ConversationMetrics
	Events    *EventLogger
	Logger    *logging.Logger
	Now       func() time.Time
}

func (d *Deps) normalize() {
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.State == nil {
		d.State = NewStateStore()
	}
}

// TurnInput is one customer message plus everything resolved about it.
type TurnInput struct {
	Input     string
	OrgID     string
	ContactID string
	Contact   *contacts.Contact
	Agent     *agents.Settings
	Context   Context
	Extracted ExtractedSlots
}

func (in TurnInput) persona() string {
	if in.Agent == nil {
		return ""
	}
	return strings.TrimSpace(in.Agent.Persona)
}

func (in TurnInput) location() *time.Location {
	return in.Agent.Location()
}

// Handler produces the reply for one classified intent.
type Handler interface {
	Handle(ctx context.Context, in TurnInput) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, in TurnInput) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, in TurnInput) (string, error) {
	return f(ctx, in)
}

// systemPrompt joins persona, task instructions and conversation context.
func systemPrompt(in TurnInput, instructions ...string) []string {
	var out []string
	if p := in.persona(); p != "" {
		out = append(out, p)
	}
	for _, ins := range instructions {
		if strings.TrimSpace(ins) != "" {
			out = append(out, ins)
		}
	}
	if block := historyBlock(in.Context); block != "" {
		out = append(out, block)
	}
	return out
}

func (d *Deps) complete(ctx context.Context, system []string, input string, maxTokens int32) (string, error) {
	resp, err := d.LLM.Complete(ctx, promptRequest(d.Model, system, input, maxTokens, 0.3))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// joinNatural renders ["a","b","c"] as "a, b and c".
func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
