package contacts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository for development and tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	contacts  map[string]*Contact
	byAddress map[string]string
	turns     map[string][]Turn
	external  map[string]struct{}
	now       func() time.Time
}

var (
	_ Repository   = (*MemoryRepository)(nil)
	_ TurnExporter = (*MemoryRepository)(nil)
)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		contacts:  make(map[string]*Contact),
		byAddress: make(map[string]string),
		turns:     make(map[string][]Turn),
		external:  make(map[string]struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func addressKey(orgID, address string) string {
	return orgID + "|" + strings.TrimSpace(address)
}

func (r *MemoryRepository) Resolve(_ context.Context, orgID, address, displayName string) (*Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := addressKey(orgID, address)
	if id, ok := r.byAddress[key]; ok {
		c := r.contacts[id]
		if c.DisplayName == "" && displayName != "" {
			c.DisplayName = displayName
		}
		out := *c
		return &out, nil
	}
	c := &Contact{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		Address:     strings.TrimSpace(address),
		DisplayName: displayName,
		CreatedAt:   r.now(),
	}
	r.contacts[c.ID] = c
	r.byAddress[key] = c.ID
	out := *c
	return &out, nil
}

func (r *MemoryRepository) Get(_ context.Context, contactID string) (*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contacts[contactID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r *MemoryRepository) SetThreadHandle(_ context.Context, contactID, handle string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[contactID]
	if !ok {
		return "", ErrNotFound
	}
	if c.ThreadHandle == "" {
		c.ThreadHandle = handle
	}
	return c.ThreadHandle, nil
}

func (r *MemoryRepository) AppendTurn(_ context.Context, turn Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contacts[turn.ContactID]; !ok {
		return ErrNotFound
	}
	if turn.ExternalID != "" {
		if _, seen := r.external[turn.ExternalID]; seen {
			return ErrDuplicateTurn
		}
		r.external[turn.ExternalID] = struct{}{}
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = r.now()
	}
	r.turns[turn.ContactID] = append(r.turns[turn.ContactID], turn)
	return nil
}

func (r *MemoryRepository) RecentTurns(_ context.Context, contactID string, limit int) ([]Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := append([]Turn(nil), r.turns[contactID]...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (r *MemoryRepository) TurnsBetween(_ context.Context, from, to time.Time) ([]Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Turn
	for _, turns := range r.turns {
		for _, t := range turns {
			if !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
				out = append(out, t)
			}
		}
	}
	sortForExport(out)
	return out, nil
}

func sortForExport(turns []Turn) {
	sort.SliceStable(turns, func(i, j int) bool {
		if turns[i].OrgID != turns[j].OrgID {
			return turns[i].OrgID < turns[j].OrgID
		}
		return turns[i].CreatedAt.Before(turns[j].CreatedAt)
	})
}
