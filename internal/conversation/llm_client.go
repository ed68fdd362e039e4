package conversation

import (
	"context"
	"errors"
	"strings"
)

// Chat roles shared by every provider adapter; adapters map them onto
// their own vocabulary (Gemini's "model", Bedrock's system blocks).
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

var errEmptyPrompt = errors.New("conversation: completion request has no messages")

// ChatMessage is a provider-neutral chat message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMRequest is a single completion call. An empty Model lets each provider
// use its configured default; a negative Temperature does the same for sampling.
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// promptRequest builds the one-shot request the handlers and the classifier
// send: instructions as system text and the customer's message as the only turn.
func promptRequest(model string, system []string, input string, maxTokens int32, temperature float32) LLMRequest {
	return LLMRequest{
		Model:       model,
		System:      system,
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: input}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient performs plain (tool-less) completions.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
