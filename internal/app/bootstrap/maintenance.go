package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/storefront-ai/internal/events"
	"github.com/wolfman30/storefront-ai/internal/worker/periodic"
)

const (
	jobStateSweep       = "state-sweep"
	jobFollowUpDispatch = "follow-up-dispatch"
	jobDedupePrune      = "dedupe-prune"
	jobTranscriptExport = "transcript-archive"
)

// Maintenance registers the background jobs. State sweep and follow-up
// dispatch always run; dedupe pruning and the nightly transcript archive run
// only when their backends are available.
func (rt *Runtime) Maintenance() (*periodic.Runner, error) {
	runner := periodic.NewRunner(rt.Logger.Component("maintenance")).WithJobTimeout(rt.Config.RunTimeout * 2)

	if err := runner.Add(jobStateSweep, rt.Config.StateSweepSchedule, func(context.Context) {
		evicted := rt.State.Sweep(rt.Config.StateIdleTTL)
		rt.ConversationMetrics.AddEvicted(evicted)
		if evicted > 0 {
			rt.Logger.Info("conversation state swept", "evicted", evicted)
		}
	}); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	if err := runner.Add(jobFollowUpDispatch, rt.Config.FollowUpDispatchSched, func(ctx context.Context) {
		rt.FollowUps.ProcessDue(ctx)
	}); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	if pruner, ok := rt.Dedupe.(events.Pruner); ok && rt.Config.DedupeRetention > 0 {
		if err := runner.Add(jobDedupePrune, rt.Config.DedupePruneSchedule, func(ctx context.Context) {
			removed, err := pruner.Prune(ctx, time.Now().Add(-rt.Config.DedupeRetention))
			if err != nil {
				rt.Logger.Warn("dedupe prune failed", "error", err)
				return
			}
			if removed > 0 {
				rt.Logger.Info("dedupe records pruned", "removed", removed)
			}
		}); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	if rt.Transcripts != nil {
		if err := runner.Add(jobTranscriptExport, rt.Config.TranscriptSchedule, func(ctx context.Context) {
			if _, err := rt.Transcripts.ArchivePreviousDay(ctx); err != nil {
				rt.Logger.Warn("transcript archive failed", "error", err)
			}
		}); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}
	return runner, nil
}
