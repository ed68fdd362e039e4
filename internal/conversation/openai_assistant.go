package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type openAIAssistantAPI interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, request openai.SubmitToolOutputsRequest) (openai.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
}

const defaultRunPollInterval = 500 * time.Millisecond

// OpenAIAssistant drives OpenAI Assistants threads and runs. Runs are polled
// until they need tool outputs or finish; the caller bounds the wait with ctx.
type OpenAIAssistant struct {
	api          openAIAssistantAPI
	pollInterval time.Duration
}

var _ CompletionService = (*OpenAIAssistant)(nil)

func NewOpenAIAssistant(api openAIAssistantAPI) *OpenAIAssistant {
	if api == nil {
		panic("conversation: openai assistant client cannot be nil")
	}
	return &OpenAIAssistant{api: api, pollInterval: defaultRunPollInterval}
}

func (a *OpenAIAssistant) WithPollInterval(d time.Duration) *OpenAIAssistant {
	if d > 0 {
		a.pollInterval = d
	}
	return a
}

func (a *OpenAIAssistant) CreateThread(ctx context.Context) (string, error) {
	thread, err := a.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("conversation: openai: create thread: %w", err)
	}
	return thread.ID, nil
}

func (a *OpenAIAssistant) AppendMessage(ctx context.Context, threadID, content string) error {
	_, err := a.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("conversation: openai: append message: %w", err)
	}
	return nil
}

func (a *OpenAIAssistant) StartRun(ctx context.Context, req RunRequest) (Run, error) {
	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, def := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	run, err := a.api.CreateRun(ctx, req.ThreadID, openai.RunRequest{
		AssistantID:            req.AssistantID,
		Model:                  req.Model,
		AdditionalInstructions: req.Instructions,
		Tools:                  tools,
	})
	if err != nil {
		return Run{}, fmt.Errorf("conversation: openai: create run: %w", err)
	}
	return a.settle(ctx, req.ThreadID, run)
}

func (a *OpenAIAssistant) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (Run, error) {
	req := openai.SubmitToolOutputsRequest{ToolOutputs: make([]openai.ToolOutput, 0, len(outputs))}
	for _, o := range outputs {
		req.ToolOutputs = append(req.ToolOutputs, openai.ToolOutput{ToolCallID: o.CallID, Output: o.Output})
	}
	run, err := a.api.SubmitToolOutputs(ctx, threadID, runID, req)
	if err != nil {
		return Run{}, fmt.Errorf("conversation: openai: submit tool outputs: %w", err)
	}
	return a.settle(ctx, threadID, run)
}

func (a *OpenAIAssistant) FinalMessage(ctx context.Context, threadID, runID string) (string, error) {
	limit := 10
	order := "desc"
	list, err := a.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return "", fmt.Errorf("conversation: openai: list messages: %w", err)
	}
	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		var parts []string
		for _, c := range msg.Content {
			if c.Text != nil && strings.TrimSpace(c.Text.Value) != "" {
				parts = append(parts, strings.TrimSpace(c.Text.Value))
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}
	return "", errors.New("conversation: openai: run produced no assistant message")
}

func (a *OpenAIAssistant) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := a.api.CancelRun(ctx, threadID, runID); err != nil {
		return fmt.Errorf("conversation: openai: cancel run: %w", err)
	}
	return nil
}

// settle polls until the run needs action or is terminal.
func (a *OpenAIAssistant) settle(ctx context.Context, threadID string, run openai.Run) (Run, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for {
		if out, done := convertRun(run); done {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return Run{}, fmt.Errorf("conversation: openai: waiting for run %s: %w", run.ID, ctx.Err())
		case <-ticker.C:
		}
		next, err := a.api.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			return Run{}, fmt.Errorf("conversation: openai: retrieve run: %w", err)
		}
		run = next
	}
}

func convertRun(run openai.Run) (Run, bool) {
	out := Run{ID: run.ID}
	if run.LastError != nil {
		out.LastError = run.LastError.Message
	}
	switch run.Status {
	case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
		return out, false
	case openai.RunStatusRequiresAction:
		out.Status = RunRequiresAction
		if run.RequiredAction != nil && run.RequiredAction.SubmitToolOutputs != nil {
			for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
				out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
			}
		}
	case openai.RunStatusCompleted:
		out.Status = RunCompleted
	case openai.RunStatusExpired:
		out.Status = RunExpired
	case openai.RunStatusCancelled:
		out.Status = RunCancelled
	default:
		out.Status = RunFailed
	}
	return out, true
}
