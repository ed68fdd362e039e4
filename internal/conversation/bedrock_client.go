package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

var errBedrockNoText = errors.New("conversation: bedrock returned no text")

// BedrockLLMClient completes through the Bedrock Converse API.
type BedrockLLMClient struct {
	api          bedrockConverseAPI
	defaultModel string
}

func NewBedrockLLMClient(api bedrockConverseAPI, defaultModel string) *BedrockLLMClient {
	if api == nil {
		panic("conversation: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api, defaultModel: defaultModel}
}

func (c *BedrockLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	model := firstNonEmpty(req.Model, c.defaultModel)
	if model == "" {
		return LLMResponse{}, errors.New("conversation: bedrock model id is required")
	}
	system, turns, err := converseTurns(req)
	if err != nil {
		return LLMResponse{}, err
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(model),
		System:          system,
		Messages:        turns,
		InferenceConfig: converseInference(req),
	})
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: bedrock converse %s: %w", model, err)
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return LLMResponse{}, errBedrockNoText
	}
	text := strings.TrimSpace(joinTextBlocks(msg.Value.Content))
	if text == "" {
		return LLMResponse{}, errBedrockNoText
	}

	resp := LLMResponse{Text: text, StopReason: string(out.StopReason)}
	if u := out.Usage; u != nil {
		resp.Usage = TokenUsage{
			InputTokens:  aws.ToInt32(u.InputTokens),
			OutputTokens: aws.ToInt32(u.OutputTokens),
			TotalTokens:  aws.ToInt32(u.TotalTokens),
		}
	}
	return resp, nil
}

// converseTurns maps chat messages onto Converse input. System messages join
// the system blocks. Converse rejects consecutive turns from one role and a
// leading assistant turn, so adjacent same-role messages are merged and any
// assistant prefix is dropped.
func converseTurns(req LLMRequest) ([]brtypes.SystemContentBlock, []brtypes.Message, error) {
	var system []brtypes.SystemContentBlock
	addSystem := func(text string) {
		if text = strings.TrimSpace(text); text != "" {
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: text})
		}
	}
	for _, s := range req.System {
		addSystem(s)
	}

	var turns []brtypes.Message
	for _, m := range req.Messages {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		var role brtypes.ConversationRole
		switch m.Role {
		case ChatRoleSystem:
			addSystem(text)
			continue
		case ChatRoleUser:
			role = brtypes.ConversationRoleUser
		case ChatRoleAssistant:
			if len(turns) == 0 {
				continue
			}
			role = brtypes.ConversationRoleAssistant
		default:
			return nil, nil, fmt.Errorf("conversation: bedrock: unsupported role %q", m.Role)
		}
		block := &brtypes.ContentBlockMemberText{Value: text}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content = append(turns[n-1].Content, block)
			continue
		}
		turns = append(turns, brtypes.Message{Role: role, Content: []brtypes.ContentBlock{block}})
	}
	if len(turns) == 0 {
		return nil, nil, errEmptyPrompt
	}
	return system, turns, nil
}

func converseInference(req LLMRequest) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	set := false
	if req.MaxTokens > 0 {
		cfg.MaxTokens, set = aws.Int32(req.MaxTokens), true
	}
	if req.Temperature >= 0 {
		cfg.Temperature, set = aws.Float32(req.Temperature), true
	}
	if req.TopP > 0 {
		cfg.TopP, set = aws.Float32(req.TopP), true
	}
	if !set {
		return nil
	}
	return &cfg
}

func joinTextBlocks(blocks []brtypes.ContentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		if t, ok := block.(*brtypes.ContentBlockMemberText); ok {
			b.WriteString(t.Value)
		}
	}
	return b.String()
}
