package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/storefront-ai/internal/config"
	"github.com/wolfman30/storefront-ai/internal/messaging"
	"github.com/wolfman30/storefront-ai/internal/messaging/gatewayclient"
	"github.com/wolfman30/storefront-ai/internal/notify"
	"github.com/wolfman30/storefront-ai/internal/observability/metrics"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// BuildTransport returns the outbound sender and the session registry. Without
// GATEWAY_BASE_URL replies are only logged and sessions are tracked locally.
func BuildTransport(cfg *appconfig.Config, m *metrics.MessagingMetrics, logger *logging.Logger) (messaging.Sender, *messaging.SessionRegistry, error) {
	var (
		sender   messaging.Sender
		registry *messaging.SessionRegistry
	)
	if cfg.GatewayBaseURL == "" {
		logger.Warn("chat gateway not configured; replies will only be logged")
		sender = messaging.NewLogSender(logger)
		registry = messaging.NewSessionRegistry(nil, logger)
	} else {
		client, err := gatewayclient.New(gatewayclient.Config{
			BaseURL:    cfg.GatewayBaseURL,
			APIKey:     cfg.GatewayAPIKey,
			MaxRetries: 2,
			Logger:     logger.Component("gateway"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gateway client: %w", err)
		}
		sender = messaging.NewGatewaySender(client, m, logger)
		registry = messaging.NewSessionRegistry(client, logger)
		logger.Info("chat gateway configured", "base_url", cfg.GatewayBaseURL)
	}
	if err := registry.LoadJSON(cfg.GatewaySessionMap); err != nil {
		return nil, nil, fmt.Errorf("bootstrap: %w", err)
	}
	return sender, registry, nil
}

// BuildOrderNotifier picks SendGrid, then SES, then a logging stub.
func BuildOrderNotifier(ctx context.Context, cfg *appconfig.Config, loadAWS awsLoader, logger *logging.Logger) (*notify.OrderNotifier, error) {
	var email notify.EmailSender
	switch {
	case cfg.SendGridAPIKey != "" && cfg.SendGridFromEmail != "":
		email = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		logger.Info("sendgrid email sender initialized for order notifications")
	case cfg.SESFromEmail != "":
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: ses: %w", err)
		}
		email = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		logger.Info("ses email sender initialized for order notifications")
	default:
		email = notify.NewStubEmailSender(logger)
		logger.Warn("order email notifications disabled (SENDGRID_API_KEY or SES_FROM_EMAIL not set)")
	}
	return notify.NewOrderNotifier(email, logger), nil
}
