package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestStateStoreGetCreatesEmptyEntry(t *testing.T) {
	store := NewStateStore()
	slots := store.Get("c-1")
	assert.True(t, slots.Empty())
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, []string{SlotProduct, SlotQuantity, SlotAddress}, slots.Missing())
}

func TestOrderSlotsCompleteNeedsResolvedProduct(t *testing.T) {
	slots := OrderSlots{RawProduct: "widget", Quantity: 2, Address: "Main St"}
	assert.False(t, slots.Complete())
	assert.Equal(t, []string{SlotProduct}, slots.Missing())

	slots.ProductID = "p-1"
	assert.True(t, slots.Complete())

	slots.Quantity = 0
	assert.Equal(t, []string{SlotQuantity}, slots.Missing())
}

func TestStateStoreSweepEvictsOnlyIdleEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewStateStore().WithClock(clock.Now)

	store.Put("stale", OrderSlots{RawProduct: "widget"})
	clock.Advance(2 * time.Minute)
	store.Put("fresh", OrderSlots{RawProduct: "gadget"})
	clock.Advance(59 * time.Minute)

	// stale is 61 minutes idle, fresh is 59.
	evicted := store.Sweep(60 * time.Minute)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, "gadget", store.Get("fresh").RawProduct)
	assert.True(t, store.Get("stale").Empty())
}

func TestStateStoreClear(t *testing.T) {
	store := NewStateStore()
	store.Put("c-1", OrderSlots{ProductID: "p-1", Quantity: 1})
	store.Clear("c-1")
	assert.True(t, store.Get("c-1").Empty())
}

func TestStateStorePendingSchedule(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewStateStore().WithClock(clock.Now)

	assert.Nil(t, store.PendingSchedule("c-1"))
	missing := []string{"the time"}
	store.MarkSchedulePending("c-1", missing)
	missing[0] = "mutated"
	assert.Equal(t, []string{"the time"}, store.PendingSchedule("c-1"))
	assert.Equal(t, 0, store.Len(), "a pending booking is not an order entry")

	store.ClearSchedule("c-1")
	assert.Nil(t, store.PendingSchedule("c-1"))

	store.MarkSchedulePending("c-2", []string{"the date"})
	clock.Advance(61 * time.Minute)
	store.Sweep(60 * time.Minute)
	assert.Nil(t, store.PendingSchedule("c-2"))
}

func TestStateStoreAcquireIsFIFOPerContact(t *testing.T) {
	store := NewStateStore()
	ctx := context.Background()

	release, err := store.Acquire(ctx, "c-1")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	const waiters = 5
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rel, err := store.Acquire(ctx, "c-1")
			if err != nil {
				t.Errorf("acquire %d: %v", n, err)
				return
			}
			// read-modify-write under the contact slot
			slots := store.Get("c-1")
			slots.Quantity++
			store.Put("c-1", slots)
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			rel()
		}(i)
		require.Eventually(t, func() bool { return store.waiting("c-1") == i+1 }, time.Second, time.Millisecond)
	}

	release()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, waiters, store.Get("c-1").Quantity)
	assert.Equal(t, 0, store.waiting("c-1"))
}

func TestStateStoreAcquireDoesNotBlockOtherContacts(t *testing.T) {
	store := NewStateStore()
	ctx := context.Background()
	releaseA, err := store.Acquire(ctx, "a")
	require.NoError(t, err)
	defer releaseA()

	done := make(chan struct{})
	go func() {
		rel, err := store.Acquire(ctx, "b")
		if err == nil {
			rel()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("contact b blocked behind contact a")
	}
}

func TestStateStoreAcquireHonoursContext(t *testing.T) {
	store := NewStateStore()
	release, err := store.Acquire(context.Background(), "c-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = store.Acquire(ctx, "c-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, store.waiting("c-1"))

	release()
	release()
	rel, err := store.Acquire(context.Background(), "c-1")
	require.NoError(t, err)
	rel()
}
