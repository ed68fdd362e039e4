package conversation

import (
	"context"
	"strings"
	"sync"
	"time"
)

// OrderSlots is the in-progress order a contact is assembling.
type OrderSlots struct {
	ProductID   string    `json:"product_id,omitempty"`
	ProductName string    `json:"product_name,omitempty"`
	UnitCents   int64     `json:"unit_cents,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	RawProduct  string    `json:"raw_product,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	Address     string    `json:"address,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Slot names used in clarifying questions.
const (
	SlotProduct  = "product"
	SlotQuantity = "quantity"
	SlotAddress  = "address"
)

// Complete reports whether the order may be submitted. The product must be
// resolved to a catalog item, not just named.
func (s OrderSlots) Complete() bool {
	return len(s.Missing()) == 0
}

// Missing lists unfilled slots in a stable order.
func (s OrderSlots) Missing() []string {
	var missing []string
	if s.ProductID == "" {
		missing = append(missing, SlotProduct)
	}
	if s.Quantity <= 0 {
		missing = append(missing, SlotQuantity)
	}
	if strings.TrimSpace(s.Address) == "" {
		missing = append(missing, SlotAddress)
	}
	return missing
}

// Empty reports whether nothing has been collected yet.
func (s OrderSlots) Empty() bool {
	return s.ProductID == "" && s.RawProduct == "" && s.Quantity <= 0 && strings.TrimSpace(s.Address) == ""
}

// pendingSchedule records the pieces a follow-up booking is still missing.
type pendingSchedule struct {
	missing []string
	at      time.Time
}

type keyLock struct {
	waiters []chan struct{}
}

// StateStore holds per-contact order slots and pending follow-up bookings in
// memory and serializes work per contact. Nothing survives a restart.
type StateStore struct {
	mu        sync.Mutex
	entries   map[string]*OrderSlots
	schedules map[string]pendingSchedule

	lockMu sync.Mutex
	locks  map[string]*keyLock

	now func() time.Time
}

func NewStateStore() *StateStore {
	return &StateStore{
		entries:   make(map[string]*OrderSlots),
		schedules: make(map[string]pendingSchedule),
		locks:     make(map[string]*keyLock),
		now:       time.Now,
	}
}

// WithClock overrides the time source.
func (s *StateStore) WithClock(now func() time.Time) *StateStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Get returns a copy of the contact's slots, creating an empty entry if absent.
func (s *StateStore) Get(contactID string) OrderSlots {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[contactID]
	if !ok {
		entry = &OrderSlots{LastUpdated: s.now()}
		s.entries[contactID] = entry
	}
	return *entry
}

// Put replaces the contact's slots and refreshes LastUpdated.
func (s *StateStore) Put(contactID string, slots OrderSlots) OrderSlots {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots.LastUpdated = s.now()
	s.entries[contactID] = &slots
	return slots
}

func (s *StateStore) Clear(contactID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, contactID)
}

// MarkSchedulePending remembers that the contact was asked for the missing
// pieces of a follow-up booking.
func (s *StateStore) MarkSchedulePending(contactID string, missing []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[contactID] = pendingSchedule{missing: append([]string(nil), missing...), at: s.now()}
}

// PendingSchedule returns what an open follow-up booking still needs, or nil.
func (s *StateStore) PendingSchedule(contactID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.schedules[contactID]; ok {
		return append([]string(nil), p.missing...)
	}
	return nil
}

func (s *StateStore) ClearSchedule(contactID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, contactID)
}

// Len returns the number of tracked contacts.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts entries idle for longer than maxIdle and returns how many were removed.
func (s *StateStore) Sweep(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, entry := range s.entries {
		if entry.LastUpdated.Before(cutoff) {
			delete(s.entries, id)
			evicted++
		}
	}
	for id, p := range s.schedules {
		if p.at.Before(cutoff) {
			delete(s.schedules, id)
		}
	}
	return evicted
}

// Acquire blocks until the caller owns contactID's slot. Waiters are served in
// arrival order; different contacts never contend. The returned release is
// safe to call more than once.
func (s *StateStore) Acquire(ctx context.Context, contactID string) (func(), error) {
	s.lockMu.Lock()
	l, held := s.locks[contactID]
	if !held {
		s.locks[contactID] = &keyLock{}
		s.lockMu.Unlock()
		return s.releaser(contactID), nil
	}
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	s.lockMu.Unlock()

	select {
	case <-ch:
		return s.releaser(contactID), nil
	case <-ctx.Done():
		s.lockMu.Lock()
		for i, w := range l.waiters {
			if w == ch {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				s.lockMu.Unlock()
				return nil, ctx.Err()
			}
		}
		s.lockMu.Unlock()
		// Ownership was handed over concurrently; pass it on.
		s.release(contactID)
		return nil, ctx.Err()
	}
}

func (s *StateStore) releaser(contactID string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { s.release(contactID) })
	}
}

func (s *StateStore) release(contactID string) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[contactID]
	if !ok {
		return
	}
	if len(l.waiters) == 0 {
		delete(s.locks, contactID)
		return
	}
	next := l.waiters[0]
	l.waiters = l.waiters[1:]
	close(next)
}

func (s *StateStore) waiting(contactID string) int {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if l, ok := s.locks[contactID]; ok {
		return len(l.waiters)
	}
	return 0
}
