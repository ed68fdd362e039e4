package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/storefront-ai/internal/events"
	"github.com/wolfman30/storefront-ai/internal/messaging"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// Publisher enqueues inbound messages for the conversation workers.
type Publisher struct {
	queue  JobQueue
	logger *logging.Logger
	now    func() time.Time
}

var _ messaging.InboundPublisher = (*Publisher)(nil)

func NewPublisher(queue JobQueue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger, now: time.Now}
}

// PublishInbound enqueues msg. Messages without a tenant are refused since
// no worker could route them.
func (p *Publisher) PublishInbound(ctx context.Context, msg events.MessageReceivedV1) error {
	if strings.TrimSpace(msg.OrgID) == "" || strings.TrimSpace(msg.SessionID) == "" {
		return fmt.Errorf("conversation: inbound message %q has no session or org", msg.MessageID)
	}
	j := newInboundJob(msg, p.now())
	body, err := j.encode()
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, sendRequest{ID: j.ID, GroupKey: j.groupKey(), Body: body}); err != nil {
		return fmt.Errorf("conversation: enqueue job %s: %w", j.ID, err)
	}
	p.logger.Debug("inbound message enqueued", "job_id", j.ID, "org_id", msg.OrgID, "session_id", msg.SessionID)
	return nil
}
