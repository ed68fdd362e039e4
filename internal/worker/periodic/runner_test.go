package periodic

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerRejectsInvalidSchedule(t *testing.T) {
	r := NewRunner(nil)
	err := r.Add("bad", "every minute please", func(context.Context) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestRunnerRunNowExecutesJob(t *testing.T) {
	r := NewRunner(nil)
	var calls int32
	require.NoError(t, r.Add("sweep", "@every 1m", func(context.Context) { atomic.AddInt32(&calls, 1) }))

	assert.True(t, r.RunNow("sweep"))
	assert.False(t, r.RunNow("missing"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRunnerSkipsOverlappingRuns(t *testing.T) {
	r := NewRunner(nil)
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, r.Add("slow", "@every 1m", func(context.Context) {
		close(started)
		<-release
	}))

	done := make(chan bool)
	go func() { done <- r.RunNow("slow") }()
	<-started

	assert.False(t, r.RunNow("slow"), "second run while first is active should be skipped")
	close(release)
	assert.True(t, <-done)
}

func TestRunnerRecoversFromPanics(t *testing.T) {
	r := NewRunner(nil)
	require.NoError(t, r.Add("boom", "@every 1m", func(context.Context) { panic("boom") }))
	assert.NotPanics(t, func() { r.RunNow("boom") })
	assert.True(t, r.RunNow("boom"), "guard released after panic; panicking jobs still count as run")
}

func TestRunnerStartStop(t *testing.T) {
	r := NewRunner(nil)
	require.NoError(t, r.Add("noop", "@every 1h", func(context.Context) {}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, r.Start(ctx))
	assert.Error(t, r.Start(ctx))

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}
