package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/storefront-ai/internal/contacts"
)

// fakeCompletion scripts the runs a completion service returns.
type fakeCompletion struct {
	mu        sync.Mutex
	start     Run
	startErr  error
	next      func(submits int) Run
	final     string
	threadErr error
	threads   int
	messages  []string
	submits   [][]ToolOutput
	cancelled int
	lastReq   RunRequest
}

func (f *fakeCompletion) CreateThread(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.threadErr != nil {
		return "", f.threadErr
	}
	f.threads++
	return "thread_new", nil
}

func (f *fakeCompletion) AppendMessage(_ context.Context, _ string, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, content)
	return nil
}

func (f *fakeCompletion) StartRun(_ context.Context, req RunRequest) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	return f.start, f.startErr
}

func (f *fakeCompletion) SubmitToolOutputs(_ context.Context, _, _ string, outputs []ToolOutput) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, outputs)
	return f.next(len(f.submits)), nil
}

func (f *fakeCompletion) FinalMessage(context.Context, string, string) (string, error) {
	return f.final, nil
}

func (f *fakeCompletion) CancelRun(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	return nil
}

type recordingAudit struct {
	records []RunRecord
}

func (r *recordingAudit) Record(_ context.Context, rec RunRecord) error {
	r.records = append(r.records, rec)
	return nil
}

type recordingHistory struct {
	pairs [][2]string
}

func (r *recordingHistory) Record(_ context.Context, _, _, input, reply string) error {
	r.pairs = append(r.pairs, [2]string{input, reply})
	return nil
}

func requiresAction(calls ...ToolCall) Run {
	return Run{ID: "run_1", Status: RunRequiresAction, ToolCalls: calls}
}

func newTestRunLoop(t *testing.T, svc CompletionService) (*RunLoop, *contacts.MemoryRepository, *contacts.Contact) {
	t.Helper()
	deps, _ := newTestDeps(replyWith("unused"))
	repo := contacts.NewMemoryRepository()
	contact, err := repo.Resolve(context.Background(), testOrg, "5511999990000", "Ana")
	require.NoError(t, err)
	return NewRunLoop(svc, NewToolDispatcher(deps), repo, nil), repo, contact
}

func runTurn(contact *contacts.Contact, input string) TurnInput {
	in := testTurn(input)
	in.ContactID = contact.ID
	in.Contact = contact
	in.Agent.AssistantID = "asst_123"
	return in
}

func TestRunLoopSendResponseIsAuthoritative(t *testing.T) {
	svc := &fakeCompletion{
		start: requiresAction(
			ToolCall{ID: "c1", Name: ToolCatalogSearch, Arguments: `{"query":"widget"}`},
			ToolCall{ID: "c2", Name: ToolSendResponse, Arguments: `{"message":"We have Widgets for $12.50."}`},
		),
		next:  func(int) Run { return Run{ID: "run_1", Status: RunCompleted} },
		final: "a different final message",
	}
	loop, repo, contact := newTestRunLoop(t, svc)
	history := &recordingHistory{}
	audit := &recordingAudit{}
	loop.WithHistory(history).WithAudit(audit)

	reply, err := loop.Run(context.Background(), runTurn(contact, "do you have widgets?"))
	require.NoError(t, err)
	assert.Equal(t, "We have Widgets for $12.50.", reply)
	assert.Equal(t, "asst_123", svc.lastReq.AssistantID)
	assert.Len(t, svc.lastReq.Tools, 8)
	require.Len(t, svc.submits, 1)
	assert.Len(t, svc.submits[0], 2)

	stored, err := repo.Get(context.Background(), contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "thread_new", stored.ThreadHandle)
	assert.Equal(t, [][2]string{{"do you have widgets?", "We have Widgets for $12.50."}}, history.pairs)

	require.Len(t, audit.records, 1)
	assert.Equal(t, "completed", audit.records[0].Status)
	assert.Equal(t, 1, audit.records[0].Cycles)
	assert.False(t, audit.records[0].Fallback)
}

func TestRunLoopReusesThreadHandle(t *testing.T) {
	svc := &fakeCompletion{start: Run{ID: "run_1", Status: RunCompleted}, final: "Hi!"}
	loop, _, contact := newTestRunLoop(t, svc)
	contact.ThreadHandle = "thread_existing"

	reply, err := loop.Run(context.Background(), runTurn(contact, "hello"))
	require.NoError(t, err)
	assert.Equal(t, "Hi!", reply)
	assert.Zero(t, svc.threads)
	assert.Equal(t, "thread_existing", svc.lastReq.ThreadID)
}

func TestRunLoopCycleCap(t *testing.T) {
	call := ToolCall{ID: "c", Name: ToolCatalogSearch, Arguments: `{"query":""}`}
	svc := &fakeCompletion{
		start: requiresAction(call),
		next:  func(int) Run { return requiresAction(call) },
	}
	loop, _, contact := newTestRunLoop(t, svc)
	audit := &recordingAudit{}
	loop.WithMaxCycles(3).WithAudit(audit)

	reply, err := loop.Run(context.Background(), runTurn(contact, "loop forever"))
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)
	assert.Len(t, svc.submits, 3, "never more than the cap")
	assert.Equal(t, 1, svc.cancelled)
	require.Len(t, audit.records, 1)
	assert.Equal(t, "cycle_cap", audit.records[0].Status)
	assert.True(t, audit.records[0].Fallback)
	assert.Contains(t, audit.records[0].Error, "cycle cap")
}

func TestRunLoopFailedRunFallsBack(t *testing.T) {
	svc := &fakeCompletion{
		start: requiresAction(ToolCall{ID: "c", Name: ToolGetBankAccounts}),
		next:  func(int) Run { return Run{ID: "run_1", Status: RunFailed, LastError: "rate limited"} },
	}
	loop, _, contact := newTestRunLoop(t, svc)
	history := &recordingHistory{}
	loop.WithHistory(history)

	reply, err := loop.Run(context.Background(), runTurn(contact, "pix?"))
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)
	assert.Empty(t, history.pairs, "fallbacks are not recorded as history")
}

func TestRunLoopServiceErrorsFallBack(t *testing.T) {
	svc := &fakeCompletion{threadErr: errors.New("503")}
	loop, _, contact := newTestRunLoop(t, svc)
	reply, err := loop.Run(context.Background(), runTurn(contact, "hi"))
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)

	svc = &fakeCompletion{startErr: errors.New("invalid assistant")}
	loop, _, contact = newTestRunLoop(t, svc)
	reply, err = loop.Run(context.Background(), runTurn(contact, "hi"))
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)
}

type failingThreads struct{}

func (failingThreads) SetThreadHandle(context.Context, string, string) (string, error) {
	return "", errors.New("db down")
}

func TestRunLoopThreadPersistenceFailure(t *testing.T) {
	deps, _ := newTestDeps(replyWith("unused"))
	loop := NewRunLoop(&fakeCompletion{}, NewToolDispatcher(deps), failingThreads{}, nil)
	_, err := loop.Run(context.Background(), testTurn("hi"))
	assert.ErrorIs(t, err, ErrPersistence)
}
