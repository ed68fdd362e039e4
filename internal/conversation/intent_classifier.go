package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// Intent is the classified purpose of a customer message.
type Intent string

const (
	IntentOrder         Intent = "ORDER"
	IntentBrowseCatalog Intent = "BROWSE_CATALOG"
	IntentSchedule      Intent = "SCHEDULE"
	IntentQuestion      Intent = "QUESTION"
	IntentChat          Intent = "CHAT"
)

func (i Intent) valid() bool {
	switch i {
	case IntentOrder, IntentBrowseCatalog, IntentSchedule, IntentQuestion, IntentChat:
		return true
	}
	return false
}

// ExtractedSlots holds order values the classifier pulled from a message.
// Nil means "not mentioned".
type ExtractedSlots struct {
	Product  *string `json:"product"`
	Quantity *int    `json:"quantity"`
	Address  *string `json:"address"`
}

type Classification struct {
	Intent    Intent
	Reasoning string
	Extracted ExtractedSlots
}

// ParseFailureReason is the reasoning attached to fallback classifications.
const ParseFailureReason = "parse failure"

func fallbackClassification() Classification {
	return Classification{Intent: IntentChat, Reasoning: ParseFailureReason}
}

const classifierInstructions = `You route messages for an online store's chat assistant.
Classify the customer's latest message into exactly one intent:
- ORDER: wants to buy, or is supplying product, quantity or delivery address for an order
- BROWSE_CATALOG: wants to see products, prices or what is available
- SCHEDULE: wants a call, visit, reminder or follow-up at a date/time
- QUESTION: asks about the store (hours, policies, delivery, payment, etc.)
- CHAT: greetings, thanks, small talk or anything else
Extract order details only when stated. Use null for anything not mentioned.
Reply with JSON only:
{"intent":"ORDER|BROWSE_CATALOG|SCHEDULE|QUESTION|CHAT","reasoning":"short reason","extracted":{"product":string|null,"quantity":number|null,"address":string|null}}`

// IntentClassifier maps a message plus context onto one Intent.
type IntentClassifier struct {
	llm    LLMClient
	model  string
	logger *logging.Logger
}

func NewIntentClassifier(llm LLMClient, logger *logging.Logger) *IntentClassifier {
	if llm == nil {
		panic("conversation: classifier llm cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &IntentClassifier{llm: llm, logger: logger}
}

func (c *IntentClassifier) WithModel(model string) *IntentClassifier {
	c.model = strings.TrimSpace(model)
	return c
}

// Classify never fails: any LLM or parse problem yields a CHAT classification.
func (c *IntentClassifier) Classify(ctx context.Context, input string, convCtx Context, persona string) Classification {
	ctx, span := conversationTracer.Start(ctx, "conversation.classify")
	defer span.End()

	system := []string{classifierInstructions}
	if p := strings.TrimSpace(persona); p != "" {
		system = append(system, "Assistant persona (for context only): "+p)
	}
	if block := historyBlock(convCtx); block != "" {
		system = append(system, block)
	}
	if !convCtx.PendingOrder.Empty() {
		system = append(system, "Order in progress ("+describeSlots(convCtx.PendingOrder)+"); short answers such as a number or an address usually continue it (ORDER).")
	}
	if len(convCtx.PendingSchedule) > 0 {
		system = append(system, "Follow-up booking in progress, still missing "+joinNatural(convCtx.PendingSchedule)+"; short answers such as a date, a time or a topic usually continue it (SCHEDULE).")
	}

	resp, err := c.llm.Complete(ctx, promptRequest(c.model, system, input, 256, 0))
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("intent classification failed", "error", err)
		return fallbackClassification()
	}
	out, ok := parseClassification(resp.Text)
	if !ok {
		c.logger.Warn("intent classification unparseable", "response", truncate(resp.Text, 200))
		return fallbackClassification()
	}
	return out
}

type rawClassification struct {
	Intent    *string `json:"intent"`
	Reasoning string  `json:"reasoning"`
	Extracted *struct {
		Product  *string `json:"product"`
		Quantity flexInt `json:"quantity"`
		Address  *string `json:"address"`
	} `json:"extracted"`
}

func parseClassification(text string) (Classification, bool) {
	obj, ok := extractJSONObject(text)
	if !ok {
		return Classification{}, false
	}
	var raw rawClassification
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return Classification{}, false
	}
	if raw.Intent == nil {
		return Classification{}, false
	}
	intent := Intent(strings.ToUpper(strings.TrimSpace(*raw.Intent)))
	if !intent.valid() {
		return Classification{}, false
	}
	out := Classification{Intent: intent, Reasoning: raw.Reasoning}
	if raw.Extracted != nil {
		out.Extracted.Product = nonBlank(raw.Extracted.Product)
		out.Extracted.Address = nonBlank(raw.Extracted.Address)
		out.Extracted.Quantity = raw.Extracted.Quantity.value
	}
	return out, true
}

func nonBlank(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}

// flexInt accepts a JSON number or a numeric string. Anything else decodes to nil.
type flexInt struct {
	value *int
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		if v, ok := parseQuantity(n.String()); ok {
			f.value = &v
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if v, ok := parseQuantity(s); ok {
			f.value = &v
		}
	}
	return nil
}

func parseQuantity(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		return int(f), true
	}
	return 0, false
}

// extractJSONObject returns the first balanced {...} object in text that is
// valid JSON, ignoring braces inside JSON strings.
func extractJSONObject(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end := balancedEnd(text, start)
		if end < 0 {
			return "", false
		}
		if candidate := text[start : end+1]; json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// balancedEnd returns the index of the brace closing the one at start, or -1.
func balancedEnd(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func historyBlock(c Context) string {
	var b strings.Builder
	if len(c.RecentHistory) > 0 {
		b.WriteString("Conversation so far:\n")
		b.WriteString(strings.Join(c.RecentHistory, "\n"))
	}
	if c.RelevantHistory != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Earlier exchanges that may be relevant:\n")
		b.WriteString(c.RelevantHistory)
	}
	return b.String()
}

func describeSlots(s OrderSlots) string {
	parts := []string{}
	if s.ProductName != "" {
		parts = append(parts, "product="+s.ProductName)
	} else if s.RawProduct != "" {
		parts = append(parts, "product="+s.RawProduct)
	}
	if s.Quantity > 0 {
		parts = append(parts, fmt.Sprintf("quantity=%d", s.Quantity))
	}
	if s.Address != "" {
		parts = append(parts, "address="+s.Address)
	}
	return strings.Join(parts, ", ")
}
