package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/storefront-ai/internal/contacts"
	"github.com/wolfman30/storefront-ai/internal/knowledge"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// ErrPersistence marks failures reading or writing conversation turns. These
// are the only errors a turn is allowed to surface.
var ErrPersistence = errors.New("conversation: persistence failure")

var conversationTracer = otel.Tracer("storefront.internal.conversation")

const (
	defaultHistoryWindow   = 12
	relevantHistoryMatches = 3
)

// Context is the bounded bundle handed to classifiers and handlers.
type Context struct {
	RecentHistory   []string
	RelevantHistory string
	// Knowledge is filled lazily by the handlers that need it.
	Knowledge    []knowledge.Snippet
	PendingOrder OrderSlots
	// PendingSchedule lists what an open follow-up booking still needs.
	PendingSchedule []string
}

// TurnReader loads a contact's recent turns, oldest first.
type TurnReader interface {
	RecentTurns(ctx context.Context, contactID string, limit int) ([]contacts.Turn, error)
}

// HistorySearcher retrieves semantically similar past exchanges for a contact.
type HistorySearcher interface {
	Search(ctx context.Context, contactID, query string, limit int) ([]knowledge.Snippet, error)
}

// PastReferenceDetector decides whether an input leans on earlier conversations.
type PastReferenceDetector interface {
	RefersToPast(input string) bool
}

// KeywordPastDetector matches English and Portuguese phrasings such as
// "like last time" or "o de sempre".
type KeywordPastDetector struct {
	patterns []*regexp.Regexp
}

var defaultPastPatterns = []string{
	`(?i)\b(said|told|mentioned|asked|ordered)\s+(you\s+)?(before|earlier|previously)\b`,
	`(?i)\blast\s+(week|month|time|order|year)\b`,
	`(?i)\b(the\s+)?usual\b`,
	`(?i)\bsame\s+as\s+(before|last)\b`,
	`(?i)\bremember\b`,
	`(?i)\bcomo\s+(antes|da\s+outra\s+vez)\b`,
	`(?i)\b(semana|m[eê]s)\s+passad[oa]\b`,
	`(?i)\bde\s+sempre\b`,
	`(?i)\bda\s+[uú]ltima\s+vez\b`,
	`(?i)\b(eu\s+)?(disse|falei|pedi)\s+antes\b`,
	`(?i)\blembra\b`,
}

// NewKeywordPastDetector compiles extra patterns on top of the defaults.
func NewKeywordPastDetector(extra ...string) (*KeywordPastDetector, error) {
	d := &KeywordPastDetector{}
	for _, p := range append(append([]string(nil), defaultPastPatterns...), extra...) {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("conversation: past detector pattern %q: %w", p, err)
		}
		d.patterns = append(d.patterns, re)
	}
	return d, nil
}

func (d *KeywordPastDetector) RefersToPast(input string) bool {
	for _, re := range d.patterns {
		if re.MatchString(input) {
			return true
		}
	}
	return false
}

// ContextAssembler builds the per-turn Context.
type ContextAssembler struct {
	turns    TurnReader
	history  HistorySearcher
	detector PastReferenceDetector
	window   int
	logger   *logging.Logger
}

// NewContextAssembler wires an assembler. history may be nil, in which case
// relevant history is never fetched.
func NewContextAssembler(turns TurnReader, history HistorySearcher, logger *logging.Logger) *ContextAssembler {
	if turns == nil {
		panic("conversation: turn reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	detector, _ := NewKeywordPastDetector()
	return &ContextAssembler{
		turns:    turns,
		history:  history,
		detector: detector,
		window:   defaultHistoryWindow,
		logger:   logger,
	}
}

func (a *ContextAssembler) WithDetector(d PastReferenceDetector) *ContextAssembler {
	if d != nil {
		a.detector = d
	}
	return a
}

func (a *ContextAssembler) WithHistoryWindow(n int) *ContextAssembler {
	if n > 0 {
		a.window = n
	}
	return a
}

// Build assembles context for input. Only a failure to read turns is returned.
func (a *ContextAssembler) Build(ctx context.Context, input, contactID, orgID string, slots OrderSlots) (Context, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.context.build")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", orgID))

	turns, err := a.turns.RecentTurns(ctx, contactID, a.window)
	if err != nil {
		span.RecordError(err)
		return Context{}, fmt.Errorf("%w: recent turns: %w", ErrPersistence, err)
	}
	out := Context{
		RecentHistory: make([]string, 0, len(turns)),
		PendingOrder:  slots,
	}
	for _, t := range turns {
		out.RecentHistory = append(out.RecentHistory, t.Render())
	}

	if a.history == nil || !a.detector.RefersToPast(input) {
		return out, nil
	}
	span.SetAttributes(attribute.Bool("relevant_history", true))
	snippets, err := a.history.Search(ctx, contactID, input, relevantHistoryMatches)
	if err != nil {
		a.logger.Warn("relevant history search failed", "error", err, "contact_id", contactID, "org_id", orgID)
		return out, nil
	}
	parts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		if text := strings.TrimSpace(s.Content); text != "" {
			parts = append(parts, text)
		}
	}
	out.RelevantHistory = strings.Join(parts, "\n---\n")
	return out, nil
}
