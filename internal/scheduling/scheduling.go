// Package scheduling records customer follow-ups and delivers them when due.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidFollowUp = errors.New("scheduling: invalid follow-up")

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// FollowUp is a calendar entry to contact a customer later.
type FollowUp struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	ContactID string    `json:"contact_id"`
	Subject   string    `json:"subject"`
	Summary   string    `json:"summary,omitempty"`
	When      time.Time `json:"when"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (f FollowUp) validate() error {
	switch {
	case strings.TrimSpace(f.OrgID) == "", strings.TrimSpace(f.ContactID) == "":
		return fmt.Errorf("%w: org and contact are required", ErrInvalidFollowUp)
	case strings.TrimSpace(f.Subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidFollowUp)
	case f.When.IsZero():
		return fmt.Errorf("%w: time is required", ErrInvalidFollowUp)
	}
	return nil
}

// Store persists follow-ups.
type Store interface {
	Create(ctx context.Context, f FollowUp) (*FollowUp, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]FollowUp, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// MemoryStore keeps follow-ups in process.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*FollowUp
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*FollowUp)}
}

func (s *MemoryStore) Create(_ context.Context, f FollowUp) (*FollowUp, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.Status = StatusPending
	f.CreatedAt = time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := f
	s.items[f.ID] = &cp
	return &f, nil
}

func (s *MemoryStore) ListDue(_ context.Context, now time.Time, limit int) ([]FollowUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []FollowUp
	for _, f := range s.items {
		if f.Status == StatusPending && !f.When.After(now) {
			due = append(due, *f)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].When.Before(due[j].When) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStore) MarkSent(ctx context.Context, id string) error {
	return s.setStatus(id, StatusSent)
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id string) error {
	return s.setStatus(id, StatusFailed)
}

func (s *MemoryStore) setStatus(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.items[id]
	if !ok {
		return fmt.Errorf("scheduling: follow-up %s not found", id)
	}
	f.Status = status
	return nil
}
