package conversation

import "context"

// RunStatus is the externally observed state of a run.
type RunStatus string

const (
	RunRequiresAction RunStatus = "requires_action"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunExpired        RunStatus = "expired"
	RunCancelled      RunStatus = "cancelled"
)

// Terminal reports whether no further submissions are possible.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunExpired, RunCancelled:
		return true
	}
	return false
}

// Run is a settled snapshot: either waiting on tool outputs or terminal.
type Run struct {
	ID        string
	Status    RunStatus
	ToolCalls []ToolCall
	LastError string
}

// RunRequest starts a run on a thread.
type RunRequest struct {
	ThreadID     string
	AssistantID  string
	Model        string
	Instructions string
	Tools        []ToolDefinition
}

// CompletionService is an external tool-calling assistant. StartRun and
// SubmitToolOutputs return only once the run needs action or has finished.
type CompletionService interface {
	CreateThread(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, threadID, content string) error
	StartRun(ctx context.Context, req RunRequest) (Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (Run, error)
	FinalMessage(ctx context.Context, threadID, runID string) (string, error)
	CancelRun(ctx context.Context, threadID, runID string) error
}
