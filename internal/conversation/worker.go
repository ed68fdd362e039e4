package conversation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wolfman30/storefront-ai/internal/events"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// InboundProcessor handles one queued inbound message.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, msg events.MessageReceivedV1) error
}

// JobObserver receives one outcome per queued job. Lag is negative when the
// enqueue time is unknown.
type JobObserver interface {
	ObserveJob(outcome string, lagSeconds float64)
}

// Job outcomes reported to the JobObserver.
const (
	JobDone     = "done"
	JobFailed   = "failed"
	JobRetry    = "retry"
	JobDropped  = "dropped"
	JobPanicked = "panicked"
)

// Worker consumes inbound message jobs from the queue. Each consumer
// goroutine long-polls, hands the decoded message to the processor and
// acknowledges it unless the failure is worth a redelivery.
type Worker struct {
	processor InboundProcessor
	queue     JobQueue
	logger    *logging.Logger
	opts      workerOptions
	wg        sync.WaitGroup
}

type workerOptions struct {
	consumers   int
	waitSeconds int
	batchSize   int
	jobTimeout  time.Duration
	observer    JobObserver
	maxBackoff  time.Duration
}

const (
	defaultConsumers   = 2
	defaultWaitSeconds = 2
	defaultBatchSize   = 5
	defaultJobTimeout  = 2 * time.Minute
	defaultMaxBackoff  = 5 * time.Second
	maxWaitSeconds     = 20
	maxBatchSize       = 10
	ackTimeout         = 5 * time.Second
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerOptions)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(o *workerOptions) {
		if count > 0 {
			o.consumers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait, capped at the SQS maximum.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(o *workerOptions) {
		if seconds >= 0 {
			o.waitSeconds = min(seconds, maxWaitSeconds)
		}
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(o *workerOptions) {
		if size > 0 {
			o.batchSize = min(size, maxBatchSize)
		}
	}
}

// WithJobTimeout bounds the processing of a single message.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.jobTimeout = d
		}
	}
}

// WithJobObserver reports job outcomes, typically to prometheus.
func WithJobObserver(observer JobObserver) WorkerOption {
	return func(o *workerOptions) {
		o.observer = observer
	}
}

func NewWorker(processor InboundProcessor, queue JobQueue, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := workerOptions{
		consumers:   defaultConsumers,
		waitSeconds: defaultWaitSeconds,
		batchSize:   defaultBatchSize,
		jobTimeout:  defaultJobTimeout,
		maxBackoff:  defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Worker{processor: processor, queue: queue, logger: logger, opts: o}
}

// Start launches the consumer goroutines; they stop when ctx is canceled.
// A partitioned queue gets exactly one consumer per partition, whatever the
// configured count, so a contact's messages are never processed in parallel.
func (w *Worker) Start(ctx context.Context) {
	consumers := w.opts.consumers
	receivers := make([]receiveFunc, 0, consumers)
	if pq, ok := w.queue.(partitionedQueue); ok {
		consumers = pq.Partitions()
		for p := 0; p < consumers; p++ {
			receivers = append(receivers, func(ctx context.Context, maxMessages, waitSeconds int) ([]queueMessage, error) {
				return pq.ReceivePartition(ctx, p, maxMessages, waitSeconds)
			})
		}
	} else {
		for range consumers {
			receivers = append(receivers, w.queue.Receive)
		}
	}
	for i, receive := range receivers {
		w.wg.Add(1)
		go w.consume(ctx, i+1, receive)
	}
	w.logger.Info("conversation worker started", "consumers", consumers, "batch_size", w.opts.batchSize)
}

type receiveFunc func(ctx context.Context, maxMessages, waitSeconds int) ([]queueMessage, error)

// Wait blocks until every consumer has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) consume(ctx context.Context, consumer int, receive receiveFunc) {
	defer w.wg.Done()

	backoff := time.Second
	for ctx.Err() == nil {
		batch, err := receive(ctx, w.opts.batchSize, w.opts.waitSeconds)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err, "consumer", consumer, "retry_in", backoff.String())
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, w.opts.maxBackoff)
			continue
		}
		backoff = time.Second

		for _, msg := range batch {
			outcome, lag := w.process(ctx, msg)
			if w.opts.observer != nil {
				w.opts.observer.ObserveJob(outcome, lag)
			}
			if outcome != JobRetry {
				w.ack(ctx, msg.ReceiptHandle)
			}
		}
	}
}

// process runs one job and classifies the result. Jobs that failed on
// persistence are retried through queue redelivery; everything else is
// acknowledged so a poison message cannot wedge a conversation.
func (w *Worker) process(ctx context.Context, msg queueMessage) (outcome string, lag float64) {
	lag = -1
	j, err := decodeJob(msg.Body)
	if err != nil {
		level := w.logger.Error
		if errors.Is(err, errUnsupportedJob) {
			level = w.logger.Warn
		}
		level("conversation job dropped", "error", err, "queue_message_id", msg.ID)
		return JobDropped, lag
	}
	if !j.EnqueuedAt.IsZero() {
		lag = time.Since(j.EnqueuedAt).Seconds()
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.opts.jobTimeout)
	defer cancel()
	if err := w.invoke(jobCtx, j); err != nil {
		var panicked *jobPanic
		switch {
		case errors.As(err, &panicked):
			w.logger.Error("conversation job panicked", "job_id", j.ID, "org_id", j.Message.OrgID, "panic", panicked.value, "stack", panicked.stack)
			return JobPanicked, lag
		case errors.Is(err, ErrPersistence):
			w.logger.Error("conversation job failed, leaving for redelivery", "error", err, "job_id", j.ID, "org_id", j.Message.OrgID)
			return JobRetry, lag
		default:
			w.logger.Error("conversation job failed", "error", err, "job_id", j.ID, "org_id", j.Message.OrgID)
			return JobFailed, lag
		}
	}
	w.logger.Debug("conversation job done", "job_id", j.ID, "queue_lag_ms", int64(lag*1000))
	return JobDone, lag
}

type jobPanic struct {
	value string
	stack string
}

func (p *jobPanic) Error() string { return "conversation: job panicked: " + p.value }

// invoke converts a processor panic into an error so one bad conversation
// does not take the consumer down.
func (w *Worker) invoke(ctx context.Context, j job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &jobPanic{value: fmt.Sprint(rec), stack: string(debug.Stack())}
		}
	}()
	return w.processor.HandleInbound(ctx, j.Message)
}

func (w *Worker) ack(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := w.queue.Delete(ackCtx, receiptHandle); err != nil {
		w.logger.Error("failed to acknowledge conversation job", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
