package conversation

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
)

const defaultMemoryQueueBuffer = 128

// partitionedQueue is a JobQueue split into ordered partitions, each of which
// must be read by exactly one consumer. Messages sharing a group key always
// land in the same partition, which gives the same per-group FIFO that SQS
// FIFO message groups give.
type partitionedQueue interface {
	JobQueue
	Partitions() int
	ReceivePartition(ctx context.Context, partition, maxMessages, waitSeconds int) ([]queueMessage, error)
}

// MemoryQueue is a JobQueue over buffered channels for single-process
// deployments, one channel per partition. Delete is a no-op, so messages are
// never redelivered.
type MemoryQueue struct {
	shards []chan queueMessage
	ready  chan struct{}
}

var _ partitionedQueue = (*MemoryQueue)(nil)

// NewMemoryQueue returns a single-partition queue.
func NewMemoryQueue(buffer int) *MemoryQueue {
	return NewPartitionedMemoryQueue(buffer, 1)
}

// NewPartitionedMemoryQueue returns a queue with the given number of
// partitions, each buffering up to buffer messages. A Worker reading it runs
// one consumer per partition.
func NewPartitionedMemoryQueue(buffer, partitions int) *MemoryQueue {
	if buffer <= 0 {
		buffer = defaultMemoryQueueBuffer
	}
	partitions = max(partitions, 1)
	q := &MemoryQueue{shards: make([]chan queueMessage, partitions), ready: make(chan struct{}, 1)}
	for i := range q.shards {
		q.shards[i] = make(chan queueMessage, buffer)
	}
	return q
}

func (q *MemoryQueue) Partitions() int {
	return len(q.shards)
}

// partitionFor hashes the group key, falling back to the message id so
// ungrouped messages still spread.
func (q *MemoryQueue) partitionFor(req sendRequest, id string) int {
	if len(q.shards) == 1 {
		return 0
	}
	key := req.GroupKey
	if key == "" {
		key = id
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(q.shards)))
}

// Send blocks while the target partition is full.
func (q *MemoryQueue) Send(ctx context.Context, req sendRequest) error {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	msg := queueMessage{ID: id, Body: req.Body, ReceiptHandle: uuid.NewString()}
	select {
	case q.shards[q.partitionFor(req, id)] <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// ReceivePartition waits up to waitSeconds for a first message on one
// partition, then drains whatever is already buffered there up to
// maxMessages. waitSeconds <= 0 waits on ctx only.
func (q *MemoryQueue) ReceivePartition(ctx context.Context, partition, maxMessages, waitSeconds int) ([]queueMessage, error) {
	ch := q.shards[partition%len(q.shards)]
	timeout, stop := receiveTimeout(waitSeconds)
	defer stop()

	var first queueMessage
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case first = <-ch:
	}
	return drain(ch, []queueMessage{first}, max(maxMessages, 1)), nil
}

// Receive reads across every partition. Per-group order holds only while a
// single goroutine calls it; concurrent consumers use ReceivePartition.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if len(q.shards) == 1 {
		return q.ReceivePartition(ctx, 0, maxMessages, waitSeconds)
	}
	maxMessages = max(maxMessages, 1)
	timeout, stop := receiveTimeout(waitSeconds)
	defer stop()

	for {
		var out []queueMessage
		for _, ch := range q.shards {
			if out = drain(ch, out, maxMessages); len(out) == maxMessages {
				break
			}
		}
		if len(out) > 0 {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, nil
		case <-q.ready:
		}
	}
}

func (q *MemoryQueue) Delete(context.Context, string) error {
	return nil
}

// Len reports buffered messages across partitions.
func (q *MemoryQueue) Len() int {
	n := 0
	for _, ch := range q.shards {
		n += len(ch)
	}
	return n
}

func drain(ch chan queueMessage, out []queueMessage, maxMessages int) []queueMessage {
	for len(out) < maxMessages {
		select {
		case msg := <-ch:
			out = append(out, msg)
		default:
			return out
		}
	}
	return out
}

func receiveTimeout(waitSeconds int) (<-chan time.Time, func()) {
	if waitSeconds <= 0 {
		return nil, func() {}
	}
	timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
	return timer.C, func() { timer.Stop() }
}
