package events

import "time"

// MessageReceivedV1 is an inbound chat message accepted by the webhook.
type MessageReceivedV1 struct {
	MessageID   string    `json:"message_id"`
	SessionID   string    `json:"session_id"`
	OrgID       string    `json:"org_id"`
	AgentID     string    `json:"agent_id"`
	From        string    `json:"from"`
	DisplayName string    `json:"display_name,omitempty"`
	Body        string    `json:"body"`
	Provider    string    `json:"provider"`
	ReceivedAt  time.Time `json:"received_at"`
	// SentAt is the provider's own timestamp, kept for auditing only.
	SentAt time.Time `json:"sent_at,omitempty"`
}

func (MessageReceivedV1) EventType() string {
	return "messaging.message.received.v1"
}

// MessageSentV1 records an outbound reply.
type MessageSentV1 struct {
	SessionID string    `json:"session_id"`
	OrgID     string    `json:"org_id"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

func (MessageSentV1) EventType() string {
	return "messaging.message.sent.v1"
}

// OrderPlacedV1 records a confirmed order.
type OrderPlacedV1 struct {
	OrderID    string    `json:"order_id"`
	Reference  string    `json:"reference"`
	OrgID      string    `json:"org_id"`
	ContactID  string    `json:"contact_id"`
	TotalCents int64     `json:"total_cents"`
	Currency   string    `json:"currency"`
	PlacedAt   time.Time `json:"placed_at"`
}

func (OrderPlacedV1) EventType() string {
	return "commerce.order.placed.v1"
}

// FollowUpScheduledV1 records a booked follow-up.
type FollowUpScheduledV1 struct {
	FollowUpID string    `json:"follow_up_id"`
	OrgID      string    `json:"org_id"`
	ContactID  string    `json:"contact_id"`
	Subject    string    `json:"subject"`
	When       time.Time `json:"when"`
}

func (FollowUpScheduledV1) EventType() string {
	return "scheduling.follow_up.scheduled.v1"
}
