package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/storefront-ai/internal/knowledge"
)

const groundedAnswerInstructions = `Answer the customer's question using ONLY the store facts below and the conversation so far.
If they do not contain the answer, say you don't have that information. Never invent prices, hours, policies or stock.
Reply in the customer's language, in at most three short sentences.`

// QuestionHandler answers store questions from the tenant's knowledge base.
type QuestionHandler struct {
	deps *Deps
}

func NewQuestionHandler(deps *Deps) *QuestionHandler {
	if deps == nil || deps.LLM == nil {
		panic("conversation: question handler requires an llm")
	}
	deps.normalize()
	return &QuestionHandler{deps: deps}
}

func (h *QuestionHandler) Handle(ctx context.Context, in TurnInput) (string, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.question.handle")
	defer span.End()

	snippets := in.Context.Knowledge
	if len(snippets) == 0 {
		snippets = h.deps.searchKnowledge(ctx, in.Input, in.OrgID)
	}
	if len(snippets) == 0 {
		return NoInformationReply, nil
	}

	reply, err := h.deps.complete(ctx, systemPrompt(in, groundedAnswerInstructions, factsBlock(snippets)), in.Input, 300)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: question: %w", err)
	}
	if reply == "" {
		return NoInformationReply, nil
	}
	return reply, nil
}

// searchKnowledge returns nil when the index is missing or fails.
func (d *Deps) searchKnowledge(ctx context.Context, query, orgID string) []knowledge.Snippet {
	if d.Knowledge == nil {
		return nil
	}
	snippets, err := d.Knowledge.Search(ctx, query, orgID, knowledgeSearchLimit)
	if err != nil {
		d.Logger.Warn("knowledge search failed", "error", err, "org_id", orgID)
		return nil
	}
	return snippets
}

func factsBlock(snippets []knowledge.Snippet) string {
	var b strings.Builder
	b.WriteString("Store facts:")
	for _, s := range snippets {
		b.WriteString("\n- ")
		b.WriteString(strings.TrimSpace(s.Content))
	}
	return b.String()
}
