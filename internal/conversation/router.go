package conversation

import (
	"context"
	"fmt"
)

// IntentRouter classifies a turn and dispatches it to the matching handler.
type IntentRouter struct {
	classifier *IntentClassifier
	handlers   map[Intent]Handler
	events     *EventLogger
	state      *StateStore
}

// NewIntentRouter builds a router with the standard handlers for deps.
// Schedule requests fall back to chat when deps has no follow-up store.
func NewIntentRouter(classifier *IntentClassifier, deps *Deps) *IntentRouter {
	if classifier == nil {
		panic("conversation: router requires a classifier")
	}
	if deps == nil {
		panic("conversation: router requires deps")
	}
	deps.normalize()
	chat := NewChatHandler(deps)
	r := &IntentRouter{
		classifier: classifier,
		handlers: map[Intent]Handler{
			IntentOrder:         NewOrderHandler(deps),
			IntentBrowseCatalog: NewCatalogHandler(deps),
			IntentQuestion:      NewQuestionHandler(deps),
			IntentChat:          chat,
			IntentSchedule:      chat,
		},
		events: deps.Events,
		state:  deps.State,
	}
	if deps.FollowUps != nil {
		r.handlers[IntentSchedule] = NewScheduleHandler(deps)
	}
	return r
}

// WithHandler replaces the handler for one intent.
func (r *IntentRouter) WithHandler(intent Intent, h Handler) *IntentRouter {
	if h != nil {
		r.handlers[intent] = h
	}
	return r
}

// Respond classifies in and returns the handler's reply. Handler errors are
// returned wrapped; the caller decides on the customer-facing fallback.
func (r *IntentRouter) Respond(ctx context.Context, in TurnInput) (string, Classification, error) {
	c := r.classifier.Classify(ctx, in.Input, in.Context, in.persona())
	r.events.IntentClassified(ctx, in.ContactID, in.OrgID, c)
	in.Extracted = c.Extracted
	if c.Intent != IntentSchedule {
		r.state.ClearSchedule(in.ContactID)
	}

	h, ok := r.handlers[c.Intent]
	if !ok {
		h = r.handlers[IntentChat]
	}
	reply, err := h.Handle(ctx, in)
	if err != nil {
		return "", c, fmt.Errorf("conversation: %s handler: %w", c.Intent, err)
	}
	return reply, c, nil
}
