package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/storefront-ai/internal/observability/metrics"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// ErrCycleCapExceeded marks a run still requiring action after the cycle cap.
var ErrCycleCapExceeded = errors.New("conversation: run exceeded cycle cap")

const (
	defaultMaxCycles  = 10
	defaultRunTimeout = 90 * time.Second
	cancelTimeout     = 5 * time.Second
)

const runInstructions = `Always answer the customer by calling send_response exactly once with your complete reply.
Use catalog_search and check_availability before quoting products or stock. Only call create_order after the customer confirmed product, quantity and delivery address.
Never reveal internal ids, tool names or error details.`

// ThreadStore persists a contact's completion-service thread handle.
type ThreadStore interface {
	// SetThreadHandle stores handle unless one exists and returns the stored value.
	SetThreadHandle(ctx context.Context, contactID, handle string) (string, error)
}

// HistoryRecorder keeps (input, reply) pairs for relevant-history retrieval.
type HistoryRecorder interface {
	Record(ctx context.Context, orgID, contactID, input, reply string) error
}

// RunLoop drives one completion-service run per turn, executing tool calls
// until the run finishes or the cycle cap is hit.
type RunLoop struct {
	service   CompletionService
	tools     *ToolDispatcher
	threads   ThreadStore
	history   HistoryRecorder
	audit     RunAuditor
	metrics   *metrics.ConversationMetrics
	events    *EventLogger
	logger    *logging.Logger
	maxCycles int
	timeout   time.Duration
	now       func() time.Time
}

func NewRunLoop(service CompletionService, tools *ToolDispatcher, threads ThreadStore, logger *logging.Logger) *RunLoop {
	if service == nil {
		panic("conversation: run loop requires a completion service")
	}
	if tools == nil {
		panic("conversation: run loop requires a tool dispatcher")
	}
	if threads == nil {
		panic("conversation: run loop requires a thread store")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RunLoop{
		service:   service,
		tools:     tools,
		threads:   threads,
		logger:    logger,
		maxCycles: defaultMaxCycles,
		timeout:   defaultRunTimeout,
		now:       time.Now,
	}
}

func (l *RunLoop) WithMaxCycles(n int) *RunLoop {
	if n > 0 {
		l.maxCycles = n
	}
	return l
}

func (l *RunLoop) WithTimeout(d time.Duration) *RunLoop {
	if d > 0 {
		l.timeout = d
	}
	return l
}

func (l *RunLoop) WithHistory(h HistoryRecorder) *RunLoop {
	l.history = h
	return l
}

func (l *RunLoop) WithAudit(a RunAuditor) *RunLoop {
	l.audit = a
	return l
}

func (l *RunLoop) WithMetrics(m *metrics.ConversationMetrics) *RunLoop {
	l.metrics = m
	return l
}

func (l *RunLoop) WithEvents(e *EventLogger) *RunLoop {
	l.events = e
	return l
}

type runTrace struct {
	threadID string
	runID    string
	status   string
	cycles   int
	tools    []string
	err      error
	started  time.Time
}

// Run returns the reply for in. Run-level failures produce FallbackReply with
// a nil error; only persistence failures are returned.
func (l *RunLoop) Run(ctx context.Context, in TurnInput) (string, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.run_loop")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", in.OrgID))

	trace := &runTrace{started: l.now()}
	threadID, err := l.threadFor(ctx, in)
	if err != nil {
		if errors.Is(err, ErrPersistence) {
			span.RecordError(err)
			return "", err
		}
		trace.err = err
		return l.fail(ctx, in, trace), nil
	}
	trace.threadID = threadID

	runCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	reply, err := l.drive(runCtx, in, trace)
	if err != nil {
		span.RecordError(err)
		trace.err = err
		return l.fail(ctx, in, trace), nil
	}

	trace.status = string(RunCompleted)
	l.finish(ctx, in, trace, false)
	if l.history != nil {
		if err := l.history.Record(ctx, in.OrgID, in.ContactID, in.Input, reply); err != nil {
			l.logger.Warn("run history record failed", "error", err, "contact_id", in.ContactID)
		}
	}
	return reply, nil
}

func (l *RunLoop) threadFor(ctx context.Context, in TurnInput) (string, error) {
	if in.Contact != nil && in.Contact.ThreadHandle != "" {
		return in.Contact.ThreadHandle, nil
	}
	created, err := l.service.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	stored, err := l.threads.SetThreadHandle(ctx, in.ContactID, created)
	if err != nil {
		return "", fmt.Errorf("%w: thread handle: %w", ErrPersistence, err)
	}
	if in.Contact != nil {
		in.Contact.ThreadHandle = stored
	}
	return stored, nil
}

// drive is the bounded run state machine: start, then at most maxCycles
// tool-output submissions.
func (l *RunLoop) drive(ctx context.Context, in TurnInput, trace *runTrace) (string, error) {
	if err := l.service.AppendMessage(ctx, trace.threadID, in.Input); err != nil {
		return "", err
	}
	assistantID, model := "", ""
	if in.Agent != nil {
		assistantID, model = in.Agent.AssistantID, in.Agent.Model
	}
	run, err := l.service.StartRun(ctx, RunRequest{
		ThreadID:     trace.threadID,
		AssistantID:  assistantID,
		Model:        model,
		Instructions: runInstructions,
		Tools:        l.tools.Definitions(),
	})
	if err != nil {
		return "", err
	}
	trace.runID = run.ID
	l.events.RunStarted(ctx, in.ContactID, in.OrgID, trace.threadID, run.ID)

	env := &ToolEnv{Turn: in}
	for run.Status == RunRequiresAction {
		if trace.cycles >= l.maxCycles {
			l.cancel(ctx, trace)
			trace.status = "cycle_cap"
			return "", ErrCycleCapExceeded
		}
		for _, c := range run.ToolCalls {
			trace.tools = append(trace.tools, c.Name)
		}
		outputs := l.tools.Dispatch(ctx, env, run.ToolCalls)
		trace.cycles++
		run, err = l.service.SubmitToolOutputs(ctx, trace.threadID, trace.runID, outputs)
		if err != nil {
			return "", err
		}
	}

	trace.status = string(run.Status)
	if run.Status != RunCompleted {
		if run.LastError != "" {
			return "", fmt.Errorf("conversation: run %s: %s", run.Status, run.LastError)
		}
		return "", fmt.Errorf("conversation: run %s", run.Status)
	}
	if env.Response != "" {
		return env.Response, nil
	}
	msg, err := l.service.FinalMessage(ctx, trace.threadID, trace.runID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(msg) == "" {
		return "", errors.New("conversation: run completed without a reply")
	}
	return strings.TrimSpace(msg), nil
}

func (l *RunLoop) cancel(ctx context.Context, trace *runTrace) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := l.service.CancelRun(cctx, trace.threadID, trace.runID); err != nil {
		l.logger.Warn("run cancel failed", "error", err, "run_id", trace.runID)
	}
}

func (l *RunLoop) fail(ctx context.Context, in TurnInput, trace *runTrace) string {
	if trace.status == "" || trace.status == string(RunRequiresAction) || trace.status == string(RunCompleted) {
		trace.status = "error"
	}
	l.logger.Warn("run failed, sending fallback", "error", trace.err, "status", trace.status, "cycles", trace.cycles,
		"contact_id", in.ContactID, "org_id", in.OrgID, "run_id", trace.runID)
	l.finish(ctx, in, trace, true)
	return FallbackReply
}

func (l *RunLoop) finish(ctx context.Context, in TurnInput, trace *runTrace, fallback bool) {
	l.metrics.ObserveRun(trace.status, trace.cycles)
	l.events.RunFinished(ctx, in.ContactID, in.OrgID, trace.status, trace.cycles)
	if l.audit == nil || trace.runID == "" {
		return
	}
	rec := RunRecord{
		RunID:      trace.runID,
		ThreadID:   trace.threadID,
		OrgID:      in.OrgID,
		ContactID:  in.ContactID,
		Status:     trace.status,
		Cycles:     trace.cycles,
		Tools:      trace.tools,
		Fallback:   fallback,
		StartedAt:  trace.started.UTC().Format(time.RFC3339Nano),
		FinishedAt: l.now().UTC().Format(time.RFC3339Nano),
	}
	if in.Agent != nil {
		rec.AgentID = in.Agent.AgentID
	}
	if trace.err != nil {
		rec.Error = truncate(trace.err.Error(), 500)
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := l.audit.Record(actx, rec); err != nil {
		l.logger.Warn("run audit failed", "error", err, "run_id", trace.runID)
	}
}
