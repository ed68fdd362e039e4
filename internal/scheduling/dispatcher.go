package scheduling

import (
	"context"
	"time"

	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// Deliverer sends a due follow-up to the customer.
type Deliverer interface {
	DeliverFollowUp(ctx context.Context, f FollowUp) error
}

// Dispatcher delivers due follow-ups. It is driven by a periodic job.
type Dispatcher struct {
	store     Store
	deliverer Deliverer
	logger    *logging.Logger
	batch     int
	now       func() time.Time
}

func NewDispatcher(store Store, deliverer Deliverer, logger *logging.Logger) *Dispatcher {
	if store == nil {
		panic("scheduling: store cannot be nil")
	}
	if deliverer == nil {
		panic("scheduling: deliverer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{store: store, deliverer: deliverer, logger: logger, batch: 25, now: time.Now}
}

// ProcessDue delivers up to one batch of due follow-ups and returns how many were sent.
func (d *Dispatcher) ProcessDue(ctx context.Context) int {
	due, err := d.store.ListDue(ctx, d.now(), d.batch)
	if err != nil {
		d.logger.Error("follow-up fetch failed", "error", err)
		return 0
	}
	sent := 0
	for _, f := range due {
		mark := d.store.MarkSent
		if err := d.deliverer.DeliverFollowUp(ctx, f); err != nil {
			d.logger.Warn("follow-up delivery failed", "error", err, "follow_up_id", f.ID, "org_id", f.OrgID)
			mark = d.store.MarkFailed
		} else {
			sent++
		}
		if err := mark(ctx, f.ID); err != nil {
			d.logger.Error("follow-up status update failed", "error", err, "follow_up_id", f.ID)
		}
	}
	return sent
}
