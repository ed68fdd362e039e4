package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/storefront-ai/internal/events"
)

// JobQueue carries inbound-message jobs from the webhook to the workers.
// Implemented by MemoryQueue and SQSQueue.
type JobQueue interface {
	Send(ctx context.Context, req sendRequest) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// sendRequest is one job on its way to a queue. GroupKey orders jobs of the
// same conversation on FIFO queues; ID deduplicates resends.
type sendRequest struct {
	ID       string
	GroupKey string
	Body     string
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

const (
	jobKindInbound   = "inbound_message"
	jobSchemaVersion = 1
)

var errUnsupportedJob = errors.New("conversation: unsupported job")

// job is the queue envelope around one inbound message.
type job struct {
	ID         string                   `json:"id"`
	Kind       string                   `json:"kind"`
	Version    int                      `json:"v"`
	EnqueuedAt time.Time                `json:"enqueued_at"`
	Message    events.MessageReceivedV1 `json:"message"`
}

// newInboundJob uses the gateway message id as job id so redeliveries are traceable.
func newInboundJob(msg events.MessageReceivedV1, now time.Time) job {
	id := msg.MessageID
	if id == "" {
		id = uuid.NewString()
	}
	return job{ID: id, Kind: jobKindInbound, Version: jobSchemaVersion, EnqueuedAt: now.UTC(), Message: msg}
}

// groupKey keeps one customer's messages in order on FIFO queues.
func (j job) groupKey() string {
	return j.Message.OrgID + "/" + j.Message.SessionID + "/" + j.Message.From
}

func (j job) encode() (string, error) {
	body, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("conversation: encode job: %w", err)
	}
	return string(body), nil
}

// decodeJob rejects unknown kinds and envelopes written by a newer schema
// with errUnsupportedJob.
func decodeJob(body string) (job, error) {
	var j job
	if err := json.Unmarshal([]byte(body), &j); err != nil {
		return job{}, fmt.Errorf("conversation: decode job: %w", err)
	}
	if j.Kind != jobKindInbound || j.Version > jobSchemaVersion {
		return j, fmt.Errorf("%w: kind=%q v=%d", errUnsupportedJob, j.Kind, j.Version)
	}
	return j, nil
}
