package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wolfman30/storefront-ai/internal/events"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// ConversationEvent is one structured decision point in a contact's conversation.
type ConversationEvent struct {
	Time      string         `json:"time"`
	Event     string         `json:"event"`
	ContactID string         `json:"contact_id"`
	OrgID     string         `json:"org_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventLogger emits conversation events as single JSON log lines:
//
//	grep '"event":"order_submitted"' /var/log/app.log
//	grep '"contact_id":"c_abc"' /var/log/app.log
type EventLogger struct {
	logger *logging.Logger
	now    func() time.Time
}

func NewEventLogger(logger *logging.Logger) *EventLogger {
	return &EventLogger{logger: logger, now: time.Now}
}

// Log emits a structured conversation event. A nil receiver is a no-op.
func (e *EventLogger) Log(_ context.Context, event, contactID, orgID string, data map[string]any) {
	if e == nil || e.logger == nil {
		return
	}
	evt := ConversationEvent{
		Time:      e.now().UTC().Format(time.RFC3339Nano),
		Event:     event,
		ContactID: contactID,
		OrgID:     orgID,
		Data:      data,
	}
	b, _ := json.Marshal(evt)
	e.logger.Info(string(b))
}

func (e *EventLogger) MessageReceived(ctx context.Context, msg events.MessageReceivedV1, contactID string) {
	e.Log(ctx, "message_received", contactID, msg.OrgID, map[string]any{
		"message_id": msg.MessageID,
		"session_id": msg.SessionID,
		"message":    truncate(msg.Body, 200),
	})
}

func (e *EventLogger) IntentClassified(ctx context.Context, contactID, orgID string, c Classification) {
	e.Log(ctx, "intent_classified", contactID, orgID, map[string]any{
		"intent":    string(c.Intent),
		"reasoning": truncate(c.Reasoning, 200),
	})
}

func (e *EventLogger) RunStarted(ctx context.Context, contactID, orgID, threadID, runID string) {
	e.Log(ctx, "run_started", contactID, orgID, map[string]any{
		"thread_id": threadID,
		"run_id":    runID,
	})
}

func (e *EventLogger) ToolDispatched(ctx context.Context, contactID, orgID, tool, outcome string, durationMs int64) {
	e.Log(ctx, "tool_dispatched", contactID, orgID, map[string]any{
		"tool":        tool,
		"outcome":     outcome,
		"duration_ms": durationMs,
	})
}

func (e *EventLogger) RunFinished(ctx context.Context, contactID, orgID, status string, cycles int) {
	e.Log(ctx, "run_finished", contactID, orgID, map[string]any{
		"status": status,
		"cycles": cycles,
	})
}

func (e *EventLogger) OrderSubmitted(ctx context.Context, evt events.OrderPlacedV1) {
	e.Log(ctx, "order_submitted", evt.ContactID, evt.OrgID, map[string]any{
		"order_id":    evt.OrderID,
		"reference":   evt.Reference,
		"total_cents": evt.TotalCents,
		"currency":    evt.Currency,
	})
}

func (e *EventLogger) OrderRejected(ctx context.Context, contactID, orgID, reason string) {
	e.Log(ctx, "order_rejected", contactID, orgID, map[string]any{
		"reason": reason,
	})
}

func (e *EventLogger) FollowUpScheduled(ctx context.Context, evt events.FollowUpScheduledV1) {
	e.Log(ctx, "follow_up_scheduled", evt.ContactID, evt.OrgID, map[string]any{
		"follow_up_id": evt.FollowUpID,
		"subject":      evt.Subject,
		"when":         evt.When.UTC().Format(time.RFC3339),
	})
}

func (e *EventLogger) ReplySent(ctx context.Context, contactID string, evt events.MessageSentV1, engine string) {
	e.Log(ctx, "reply_sent", contactID, evt.OrgID, map[string]any{
		"session_id": evt.SessionID,
		"engine":     engine,
		"chars":      len(evt.Body),
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
