package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	openai "github.com/sashabaranov/go-openai"

	appconfig "github.com/wolfman30/storefront-ai/internal/config"
	"github.com/wolfman30/storefront-ai/internal/conversation"
	"github.com/wolfman30/storefront-ai/internal/knowledge"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// ErrNoLLM is returned when no completion provider is configured.
var ErrNoLLM = errors.New("bootstrap: no LLM provider configured (set OPENAI_API_KEY, BEDROCK_MODEL_ID or GEMINI_API_KEY)")

// awsLoader loads the shared AWS config on first use.
type awsLoader func(ctx context.Context) (aws.Config, error)

// BuildLLMClient chains every configured provider in the order OpenAI,
// Bedrock, Gemini; each later provider is the fallback of the one before.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, loadAWS awsLoader, logger *logging.Logger) (conversation.LLMClient, error) {
	var providers []conversation.LLMClient
	var names []string

	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, conversation.NewOpenAILLMClient(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAIModel))
		names = append(names, "openai")
	}
	if cfg.BedrockModelID != "" {
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: bedrock: %w", err)
		}
		providers = append(providers, conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID))
		names = append(names, "bedrock")
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		providers = append(providers, gemini)
		names = append(names, "gemini")
	}
	if len(providers) == 0 {
		return nil, ErrNoLLM
	}
	logger.Info("llm providers configured", "chain", names)
	return chainLLM(providers, logger), nil
}

func chainLLM(providers []conversation.LLMClient, logger *logging.Logger) conversation.LLMClient {
	if len(providers) == 1 {
		return providers[0]
	}
	return conversation.NewFallbackLLMClient(providers[0], chainLLM(providers[1:], logger), logger)
}

// BuildEmbedder prefers OpenAI embeddings, then Bedrock Titan, and falls back
// to the offline hash embedder.
func BuildEmbedder(ctx context.Context, cfg *appconfig.Config, loadAWS awsLoader, logger *logging.Logger) (knowledge.Embedder, error) {
	switch {
	case cfg.OpenAIAPIKey != "":
		logger.Info("knowledge embeddings via openai", "model", cfg.OpenAIEmbeddingModel)
		return knowledge.NewOpenAIEmbedder(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAIEmbeddingModel), nil
	case cfg.BedrockEmbeddingModelID != "":
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: bedrock embeddings: %w", err)
		}
		logger.Info("knowledge embeddings via bedrock", "model", cfg.BedrockEmbeddingModelID)
		return knowledge.NewBedrockEmbedder(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockEmbeddingModelID), nil
	default:
		logger.Warn("no embedding provider configured, using hash embedder")
		return knowledge.HashEmbedder{}, nil
	}
}

// BuildCompletionService returns the assistants-backed run service, or nil
// when OpenAI is not configured.
func BuildCompletionService(cfg *appconfig.Config) conversation.CompletionService {
	if cfg.OpenAIAPIKey == "" {
		return nil
	}
	return conversation.NewOpenAIAssistant(openai.NewClient(cfg.OpenAIAPIKey)).WithPollInterval(cfg.RunPollInterval)
}
