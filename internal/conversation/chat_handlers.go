package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/storefront-ai/internal/catalog"
)

const (
	chatInstructions = `Reply to the customer naturally and briefly, in their language.
Stay consistent with what was already said in the conversation. Do not invent prices, stock or store policies.`
	catalogInstructions = `Present the products below to the customer in a short, friendly message in their language.
Only mention products, prices and stock from this list.`
	catalogListLimit  = 20
	emptyCatalogReply = "We don't have any products listed right now. Please check back soon!"
)

// ChatHandler answers small talk from persona and recent history.
type ChatHandler struct {
	deps *Deps
}

func NewChatHandler(deps *Deps) *ChatHandler {
	if deps == nil || deps.LLM == nil {
		panic("conversation: chat handler requires an llm")
	}
	deps.normalize()
	return &ChatHandler{deps: deps}
}

func (h *ChatHandler) Handle(ctx context.Context, in TurnInput) (string, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.chat.handle")
	defer span.End()
	reply, err := h.deps.complete(ctx, systemPrompt(in, chatInstructions), in.Input, 300)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: chat: %w", err)
	}
	if reply == "" {
		return "", fmt.Errorf("conversation: chat: empty completion")
	}
	return reply, nil
}

// CatalogHandler lists products matching what the customer is browsing for.
type CatalogHandler struct {
	deps *Deps
}

func NewCatalogHandler(deps *Deps) *CatalogHandler {
	if deps == nil || deps.LLM == nil || deps.Catalog == nil {
		panic("conversation: catalog handler requires an llm and a catalog")
	}
	deps.normalize()
	return &CatalogHandler{deps: deps}
}

func (h *CatalogHandler) Handle(ctx context.Context, in TurnInput) (string, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.catalog.handle")
	defer span.End()

	query := ""
	if in.Extracted.Product != nil {
		query = *in.Extracted.Product
	}
	products, err := h.deps.Catalog.Search(ctx, in.OrgID, query, "")
	if err == nil && len(products) == 0 && query != "" {
		products, err = h.deps.Catalog.Search(ctx, in.OrgID, "", "")
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: catalog: %w", err)
	}
	if len(products) == 0 {
		return emptyCatalogReply, nil
	}
	list := formatProductList(products)
	reply, err := h.deps.complete(ctx, systemPrompt(in, catalogInstructions, "Products:\n"+list), in.Input, 400)
	if err != nil || reply == "" {
		if err != nil {
			h.deps.Logger.Warn("catalog reply generation failed", "error", err, "org_id", in.OrgID)
		}
		return "Here's what we have:\n" + list, nil
	}
	return reply, nil
}

// formatProductList renders one "- name: price (stock hint)" line per product.
func formatProductList(products []catalog.Product) string {
	if len(products) > catalogListLimit {
		products = products[:catalogListLimit]
	}
	lines := make([]string, 0, len(products))
	for _, p := range products {
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)", p.Name, p.Price(), stockHint(p.Stock)))
	}
	return strings.Join(lines, "\n")
}

func stockHint(stock int) string {
	switch {
	case stock <= 0:
		return "out of stock"
	case stock <= 5:
		return fmt.Sprintf("only %d left", stock)
	default:
		return "in stock"
	}
}
