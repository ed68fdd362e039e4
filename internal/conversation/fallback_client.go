package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// FallbackLLMClient retries a failed completion on a secondary provider.
// Chains of more than two providers nest one FallbackLLMClient per link.
type FallbackLLMClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

// NewFallbackLLMClient wraps primary. A nil fallback disables the retry.
func NewFallbackLLMClient(primary, fallback LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("conversation: primary llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{primary: primary, fallback: fallback, logger: logger}
}

// Complete does not fall back once ctx is done; the caller has given up and
// a second provider call would only add latency.
func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, primaryErr := c.primary.Complete(ctx, req)
	if primaryErr == nil {
		return resp, nil
	}
	if c.fallback == nil || ctx.Err() != nil {
		return LLMResponse{}, primaryErr
	}

	c.logger.Warn("llm provider failed, trying fallback",
		"provider", providerName(c.primary), "fallback", providerName(c.fallback), "error", primaryErr)
	resp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		return LLMResponse{}, fmt.Errorf("conversation: all llm providers failed: %w", errors.Join(primaryErr, fallbackErr))
	}
	return resp, nil
}

func providerName(c LLMClient) string {
	switch c.(type) {
	case *OpenAILLMClient:
		return "openai"
	case *BedrockLLMClient:
		return "bedrock"
	case *GeminiLLMClient:
		return "gemini"
	case *FallbackLLMClient:
		return "chain"
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", c), "*")
	}
}
