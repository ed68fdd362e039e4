package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/storefront-ai/internal/agents"
	"github.com/wolfman30/storefront-ai/internal/contacts"
	"github.com/wolfman30/storefront-ai/internal/events"
	"github.com/wolfman30/storefront-ai/internal/messaging"
	"github.com/wolfman30/storefront-ai/internal/observability/metrics"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// Engines a turn can be answered by.
const (
	EngineRunLoop = "run_loop"
	EngineRouter  = "router"
)

// OrchestratorDeps wires the Orchestrator. Router or RunLoop must be set;
// the run loop is only used for agents bound to an external assistant.
type OrchestratorDeps struct {
	Sessions  messaging.SessionResolver
	Contacts  contacts.Repository
	Agents    agents.Provider
	State     *StateStore
	Assembler *ContextAssembler
	Router    *IntentRouter
	RunLoop   *RunLoop
	Sender    messaging.Sender
	History   HistoryRecorder
	Metrics   *metrics.ConversationMetrics
	Events    *EventLogger
	Logger    *logging.Logger
}

// Orchestrator turns inbound messages into replies.
type Orchestrator struct {
	deps OrchestratorDeps
	now  func() time.Time
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	switch {
	case deps.Contacts == nil:
		panic("conversation: orchestrator requires contacts")
	case deps.Agents == nil:
		panic("conversation: orchestrator requires agent settings")
	case deps.Sender == nil:
		panic("conversation: orchestrator requires a sender")
	case deps.Router == nil && deps.RunLoop == nil:
		panic("conversation: orchestrator requires a router or a run loop")
	case deps.Router != nil && deps.Assembler == nil:
		panic("conversation: router engine requires a context assembler")
	}
	if deps.State == nil {
		deps.State = NewStateStore()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Orchestrator{deps: deps, now: time.Now}
}

// HandleInbound processes one customer message end to end. Only persistence
// failures (wrapping ErrPersistence) and lock cancellation are returned;
// redelivered messages are skipped.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg events.MessageReceivedV1) error {
	ctx, span := conversationTracer.Start(ctx, "conversation.handle_inbound")
	defer span.End()
	start := o.now()
	log := o.deps.Logger

	if msg.OrgID == "" || msg.AgentID == "" {
		if o.deps.Sessions == nil {
			log.Warn("inbound message without tenant and no session resolver", "session_id", msg.SessionID)
			return nil
		}
		session, err := o.deps.Sessions.Resolve(ctx, msg.SessionID)
		if err != nil {
			log.Warn("inbound message for unknown session dropped", "error", err, "session_id", msg.SessionID)
			return nil
		}
		if msg.OrgID == "" {
			msg.OrgID = session.OrgID
		}
		if msg.AgentID == "" {
			msg.AgentID = session.AgentID
		}
	}
	if messaging.IsGroupAddress(msg.From) {
		return nil
	}
	from := messaging.NormalizeAddress(msg.From)
	if from == "" || strings.TrimSpace(msg.Body) == "" {
		return nil
	}
	span.SetAttributes(attribute.String("org_id", msg.OrgID))

	contact, err := o.deps.Contacts.Resolve(ctx, msg.OrgID, from, msg.DisplayName)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: resolve contact: %w", ErrPersistence, err)
	}
	o.deps.Events.MessageReceived(ctx, msg, contact.ID)

	// Both turns are stamped from this clock. Provider timestamps have
	// second precision and another clock, so they never order history.
	userAt := o.now().UTC()
	err = o.deps.Contacts.AppendTurn(ctx, contacts.Turn{
		ContactID:  contact.ID,
		OrgID:      msg.OrgID,
		Role:       contacts.RoleUser,
		Content:    msg.Body,
		ExternalID: msg.MessageID,
		CreatedAt:  userAt,
	})
	if errors.Is(err, contacts.ErrDuplicateTurn) {
		log.Info("redelivered message skipped", "message_id", msg.MessageID, "contact_id", contact.ID)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: append inbound turn: %w", ErrPersistence, err)
	}

	settings, err := o.deps.Agents.Get(ctx, msg.OrgID, msg.AgentID)
	if err != nil || settings == nil {
		log.Warn("agent settings unavailable, using defaults", "error", err, "org_id", msg.OrgID, "agent_id", msg.AgentID)
		settings = agents.DefaultSettings(msg.OrgID, msg.AgentID)
	}
	if settings.Paused {
		log.Info("agent paused, no reply", "org_id", msg.OrgID, "agent_id", msg.AgentID, "contact_id", contact.ID)
		return nil
	}

	release, err := o.deps.State.Acquire(ctx, contact.ID)
	if err != nil {
		return fmt.Errorf("conversation: acquire contact slot: %w", err)
	}
	defer release()

	in := TurnInput{
		Input:     msg.Body,
		OrgID:     msg.OrgID,
		ContactID: contact.ID,
		Contact:   contact,
		Agent:     settings,
	}
	reply, engine, err := o.respond(ctx, in)
	if err != nil {
		span.RecordError(err)
		return err
	}

	guard := ScrubReply(reply)
	if len(guard.Reasons) > 0 {
		log.Warn("reply scrubbed", "reasons", guard.Reasons, "blocked", guard.Blocked, "contact_id", contact.ID)
	}
	reply = guard.Reply

	if err := o.deps.Sender.SendText(ctx, msg.SessionID, from, reply); err != nil {
		log.Error("reply delivery failed", "error", err, "session_id", msg.SessionID, "contact_id", contact.ID)
	}

	replyAt := o.now().UTC()
	if !replyAt.After(userAt) {
		replyAt = userAt.Add(time.Microsecond)
	}
	if err := o.deps.Contacts.AppendTurn(ctx, contacts.Turn{
		ContactID: contact.ID,
		OrgID:     msg.OrgID,
		Role:      contacts.RoleAssistant,
		Content:   reply,
		CreatedAt: replyAt,
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: append reply turn: %w", ErrPersistence, err)
	}

	o.deps.Events.ReplySent(ctx, contact.ID, events.MessageSentV1{
		SessionID: msg.SessionID,
		OrgID:     msg.OrgID,
		To:        from,
		Body:      reply,
		SentAt:    replyAt,
	}, engine)
	o.deps.Metrics.ObserveTurn(engine, o.now().Sub(start).Seconds())
	return nil
}

// respond picks the engine: agents bound to an assistant use the run loop
// when one is configured, everything else goes through the intent router.
func (o *Orchestrator) respond(ctx context.Context, in TurnInput) (string, string, error) {
	if o.deps.RunLoop != nil && (in.Agent.UsesAssistant() || o.deps.Router == nil) {
		reply, err := o.deps.RunLoop.Run(ctx, in)
		return reply, EngineRunLoop, err
	}

	slots := o.deps.State.Get(in.ContactID)
	convCtx, err := o.deps.Assembler.Build(ctx, in.Input, in.ContactID, in.OrgID, slots)
	if err != nil {
		return "", EngineRouter, err
	}
	convCtx.PendingSchedule = o.deps.State.PendingSchedule(in.ContactID)
	in.Context = convCtx
	reply, _, err := o.deps.Router.Respond(ctx, in)
	if err != nil {
		if errors.Is(err, ErrPersistence) {
			return "", EngineRouter, err
		}
		o.deps.Logger.Error("intent handler failed, sending fallback", "error", err, "contact_id", in.ContactID, "org_id", in.OrgID)
		return FallbackReply, EngineRouter, nil
	}
	if o.deps.History != nil {
		if err := o.deps.History.Record(ctx, in.OrgID, in.ContactID, in.Input, reply); err != nil {
			o.deps.Logger.Warn("history record failed", "error", err, "contact_id", in.ContactID)
		}
	}
	return reply, EngineRouter, nil
}
