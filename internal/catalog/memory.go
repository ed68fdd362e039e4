package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// StockLine is one product/quantity pair to take from stock.
type StockLine struct {
	ProductID string
	Quantity  int
}

// StockError reports the first line that could not be fulfilled.
type StockError struct {
	ProductID string
	Requested int
	Available int
	Reason    string
}

func (e *StockError) Error() string {
	return fmt.Sprintf("catalog: %s for %s: requested %d, available %d", strings.ToLower(e.Reason), e.ProductID, e.Requested, e.Available)
}

// MemoryStore is an in-process catalog with an atomic stock ledger.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]*Product
}

var _ Catalog = (*MemoryStore)(nil)

func NewMemoryStore(products ...Product) *MemoryStore {
	s := &MemoryStore{products: make(map[string]*Product)}
	for _, p := range products {
		s.Put(p)
	}
	return s
}

// Put inserts or replaces a product, assigning an id when missing.
func (s *MemoryStore) Put(p Product) Product {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.ID] = &cp
	return cp
}

func (s *MemoryStore) Search(_ context.Context, orgID, query, category string) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Product
	for _, p := range s.products {
		if p.OrgID != orgID || !p.Active {
			continue
		}
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		if !matches(*p, query) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, productID string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) CheckAvailability(_ context.Context, productID string, qty int) (Availability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return availabilityFor(nil, qty), nil
	}
	return availabilityFor(p, qty), nil
}

// TakeStock decrements every line or none of them. Products outside orgID
// are reported as not found.
func (s *MemoryStore) TakeStock(orgID string, lines []StockLine) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	need := make(map[string]int, len(lines))
	for _, line := range lines {
		need[line.ProductID] += line.Quantity
	}
	taken := make([]Product, 0, len(lines))
	for _, line := range lines {
		p, ok := s.products[line.ProductID]
		if !ok || p.OrgID != orgID {
			return nil, &StockError{ProductID: line.ProductID, Requested: line.Quantity, Reason: ReasonNotFound}
		}
		av := availabilityFor(p, need[line.ProductID])
		if !av.Available {
			return nil, &StockError{ProductID: p.ID, Requested: need[line.ProductID], Available: p.Stock, Reason: av.Reason}
		}
		taken = append(taken, *p)
	}
	for _, line := range lines {
		s.products[line.ProductID].Stock -= line.Quantity
	}
	return taken, nil
}

