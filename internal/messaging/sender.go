package messaging

import (
	"context"
	"fmt"

	"github.com/wolfman30/storefront-ai/internal/messaging/gatewayclient"
	"github.com/wolfman30/storefront-ai/internal/observability/metrics"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// Sender delivers outbound text to a customer on a session.
type Sender interface {
	SendText(ctx context.Context, sessionID, to, text string) error
}

type gatewayTextAPI interface {
	SendText(ctx context.Context, req gatewayclient.SendTextRequest) (*gatewayclient.SendTextResponse, error)
}

// GatewaySender sends through the chat gateway. Retries for transient
// failures happen inside the gateway client.
type GatewaySender struct {
	client  gatewayTextAPI
	metrics *metrics.MessagingMetrics
	logger  *logging.Logger
}

var _ Sender = (*GatewaySender)(nil)

func NewGatewaySender(client gatewayTextAPI, m *metrics.MessagingMetrics, logger *logging.Logger) *GatewaySender {
	if client == nil {
		panic("messaging: gateway client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GatewaySender{client: client, metrics: m, logger: logger}
}

func (s *GatewaySender) SendText(ctx context.Context, sessionID, to, text string) error {
	if IsGroupAddress(to) {
		s.metrics.ObserveOutbound("rejected")
		return fmt.Errorf("messaging: refusing to send to group address")
	}
	resp, err := s.client.SendText(ctx, gatewayclient.SendTextRequest{SessionID: sessionID, To: to, Text: text})
	if err != nil {
		s.metrics.ObserveOutbound("error")
		s.logger.Error("gateway send failed", "error", err, "session_id", sessionID)
		return fmt.Errorf("messaging: send text: %w", err)
	}
	s.metrics.ObserveOutbound("sent")
	s.logger.Debug("gateway message sent", "session_id", sessionID, "message_id", resp.MessageID)
	return nil
}

// LogSender writes replies to the log instead of a transport. Used when the
// gateway is not configured.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendText(_ context.Context, sessionID, to, text string) error {
	s.logger.Info("log sender: would send message", "session_id", sessionID, "to", to, "length", len(text))
	return nil
}
