package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/storefront-ai/internal/events"
	"github.com/wolfman30/storefront-ai/internal/messaging/gatewayclient"
	"github.com/wolfman30/storefront-ai/internal/observability/metrics"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

const (
	providerGateway = "gateway"
	maxWebhookBody  = 1 << 20

	headerTimestamp = "X-Gateway-Timestamp"
	headerSignature = "X-Gateway-Signature"
)

var webhookTracer = otel.Tracer("storefront.internal.messaging.webhook")

// InboundPublisher hands an accepted message to the conversation workers.
type InboundPublisher interface {
	PublishInbound(ctx context.Context, msg events.MessageReceivedV1) error
}

type webhookPayload struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
	Message   struct {
		ID        string `json:"id"`
		From      string `json:"from"`
		PushName  string `json:"push_name"`
		Text      string `json:"text"`
		FromMe    bool   `json:"from_me"`
		Timestamp int64  `json:"timestamp"`
	} `json:"message"`
}

// Handler accepts gateway webhooks.
type Handler struct {
	webhookSecret string
	sessions      SessionResolver
	publisher     InboundPublisher
	dedupe        events.Deduplicator
	metrics       *metrics.MessagingMetrics
	logger        *logging.Logger
	now           func() time.Time
}

func NewHandler(webhookSecret string, sessions SessionResolver, publisher InboundPublisher, dedupe events.Deduplicator, m *metrics.MessagingMetrics, logger *logging.Logger) *Handler {
	if sessions == nil {
		panic("messaging: session resolver cannot be nil")
	}
	if publisher == nil {
		panic("messaging: publisher cannot be nil")
	}
	if dedupe == nil {
		dedupe = events.NewMemoryProcessedStore()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		webhookSecret: webhookSecret,
		sessions:      sessions,
		publisher:     publisher,
		dedupe:        dedupe,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// GatewayWebhook handles POST /webhooks/gateway.
func (h *Handler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := webhookTracer.Start(r.Context(), "messaging.gateway.webhook")
	defer span.End()

	status := "accepted"
	defer func() {
		h.metrics.ObserveInbound(status)
		h.metrics.ObserveWebhookLatency(status, time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		status = "bad_request"
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	if h.webhookSecret != "" {
		err := gatewayclient.VerifySignature(h.webhookSecret, r.Header.Get(headerTimestamp), r.Header.Get(headerSignature), body, gatewayclient.DefaultMaxSkew, h.now())
		if err != nil {
			status = "unauthorized"
			h.logger.Warn("invalid gateway signature", "error", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			span.RecordError(err)
			return
		}
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		status = "bad_request"
		h.logger.Error("failed to parse gateway webhook", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	span.SetAttributes(
		attribute.String("storefront.gateway.event", payload.Event),
		attribute.String("storefront.gateway.session_id", payload.SessionID),
		attribute.String("storefront.gateway.message_id", payload.Message.ID),
	)

	if reason := ignoreReason(payload); reason != "" {
		status = "ignored"
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": reason})
		return
	}
	if payload.Message.ID == "" || payload.SessionID == "" || payload.Message.From == "" {
		status = "bad_request"
		err := errors.New("missing required gateway fields")
		h.logger.Error("invalid gateway payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	session, err := h.sessions.Resolve(ctx, payload.SessionID)
	if err != nil {
		status = "unknown_session"
		h.logger.Warn("webhook for unknown session", "session_id", payload.SessionID)
		http.Error(w, "Unknown session", http.StatusNotFound)
		span.RecordError(err)
		return
	}
	span.SetAttributes(attribute.String("storefront.org_id", session.OrgID))

	seen, err := h.dedupe.AlreadyProcessed(ctx, providerGateway, payload.Message.ID)
	if err != nil {
		h.logger.Warn("processed-event lookup failed", "error", err, "message_id", payload.Message.ID)
	} else if seen {
		status = "duplicate"
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	var sentAt time.Time
	if payload.Message.Timestamp > 0 {
		sentAt = time.Unix(payload.Message.Timestamp, 0).UTC()
	}
	msg := events.MessageReceivedV1{
		MessageID:   payload.Message.ID,
		SessionID:   session.ID,
		OrgID:       session.OrgID,
		AgentID:     session.AgentID,
		From:        NormalizeAddress(payload.Message.From),
		DisplayName: strings.TrimSpace(payload.Message.PushName),
		Body:        strings.TrimSpace(payload.Message.Text),
		Provider:    providerGateway,
		ReceivedAt:  h.now().UTC(),
		SentAt:      sentAt,
	}

	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := h.publisher.PublishInbound(publishCtx, msg); err != nil {
		status = "error"
		h.logger.Error("failed to enqueue inbound message", "error", err, "org_id", session.OrgID, "message_id", msg.MessageID)
		http.Error(w, "Failed to schedule reply", http.StatusInternalServerError)
		span.RecordError(err)
		return
	}
	if _, err := h.dedupe.MarkProcessed(ctx, providerGateway, msg.MessageID); err != nil {
		h.logger.Warn("failed to mark message processed", "error", err, "message_id", msg.MessageID)
	}

	h.logger.Info("gateway webhook accepted", "org_id", session.OrgID, "session_id", session.ID, "message_id", msg.MessageID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func ignoreReason(p webhookPayload) string {
	switch {
	case p.Event != "" && p.Event != "message.received":
		return "event"
	case p.Message.FromMe:
		return "from_me"
	case IsGroupAddress(p.Message.From):
		return "group"
	case strings.TrimSpace(p.Message.Text) == "":
		return "empty"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
