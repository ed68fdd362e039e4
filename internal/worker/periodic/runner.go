// Package periodic runs background maintenance jobs on cron schedules.
package periodic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// JobFunc is a unit of periodic work.
type JobFunc func(ctx context.Context)

type job struct {
	name     string
	schedule string
	fn       JobFunc
}

// Runner schedules jobs with robfig/cron. A job that is still running when
// its next tick fires is skipped for that tick.
type Runner struct {
	logger  *logging.Logger
	timeout time.Duration

	mu      sync.Mutex
	jobs    []job
	running map[string]bool
	cron    *cron.Cron
	ctx     context.Context
}

func NewRunner(logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		logger:  logger,
		timeout: 2 * time.Minute,
		running: make(map[string]bool),
	}
}

// WithJobTimeout bounds each job execution.
func (r *Runner) WithJobTimeout(d time.Duration) *Runner {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Add registers a job. Schedules accept 5-field cron and descriptors like "@every 1m".
func (r *Runner) Add(name, schedule string, fn JobFunc) error {
	if fn == nil {
		return fmt.Errorf("periodic: job %s has no function", name)
	}
	if _, err := parser().Parse(schedule); err != nil {
		return fmt.Errorf("periodic: job %s: invalid schedule %q: %w", name, schedule, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job{name: name, schedule: schedule, fn: fn})
	return nil
}

// Start begins executing registered jobs until ctx is canceled or Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return fmt.Errorf("periodic: runner already started")
	}
	r.ctx = ctx
	r.cron = cron.New(cron.WithParser(parser()))
	for _, j := range r.jobs {
		j := j
		if _, err := r.cron.AddFunc(j.schedule, func() { r.execute(j) }); err != nil {
			return fmt.Errorf("periodic: schedule %s: %w", j.name, err)
		}
	}
	r.cron.Start()
	r.logger.Info("periodic runner started", "jobs", len(r.jobs))

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts scheduling and waits briefly for in-flight jobs.
func (r *Runner) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	done := c.Stop()
	select {
	case <-done.Done():
	case <-time.After(10 * time.Second):
		r.logger.Warn("periodic runner stop timed out")
	}
	r.logger.Info("periodic runner stopped")
}

// RunNow executes a registered job synchronously, honoring the overlap guard.
func (r *Runner) RunNow(name string) bool {
	r.mu.Lock()
	var target *job
	for i := range r.jobs {
		if r.jobs[i].name == name {
			target = &r.jobs[i]
			break
		}
	}
	r.mu.Unlock()
	if target == nil {
		return false
	}
	return r.execute(*target)
}

func (r *Runner) execute(j job) (ran bool) {
	r.mu.Lock()
	if r.running[j.name] {
		r.mu.Unlock()
		r.logger.Warn("skipping job (already running)", "job", j.name)
		return false
	}
	r.running[j.name] = true
	parent := r.ctx
	r.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}

	defer func() {
		r.mu.Lock()
		delete(r.running, j.name)
		r.mu.Unlock()
		if rec := recover(); rec != nil {
			r.logger.Error("periodic job panicked", "job", j.name, "panic", fmt.Sprint(rec))
		}
	}()

	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()
	start := time.Now()
	ran = true
	j.fn(ctx)
	r.logger.Debug("periodic job finished", "job", j.name, "duration", time.Since(start))
	return ran
}

func parser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}
