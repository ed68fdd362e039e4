package orders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/storefront-ai/internal/catalog"
)

// MemoryLedger commits orders against a catalog.MemoryStore.
type MemoryLedger struct {
	stock *catalog.MemoryStore

	mu     sync.RWMutex
	orders map[string]*Order
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger(stock *catalog.MemoryStore) *MemoryLedger {
	if stock == nil {
		panic("orders: memory catalog required")
	}
	return &MemoryLedger{stock: stock, orders: make(map[string]*Order)}
}

func (l *MemoryLedger) Submit(_ context.Context, req SubmitRequest) (*Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	lines := make([]catalog.StockLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, catalog.StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	products, err := l.stock.TakeStock(req.OrgID, lines)
	if err != nil {
		var stockErr *catalog.StockError
		if errors.As(err, &stockErr) {
			rej := &RejectionError{Reason: stockErr.Reason, ProductID: stockErr.ProductID, Requested: stockErr.Requested}
			if stockErr.Reason != catalog.ReasonNotFound {
				available := stockErr.Available
				rej.CurrentStock = &available
			}
			if p, getErr := l.stock.Get(context.Background(), stockErr.ProductID); getErr == nil && p.OrgID == req.OrgID {
				rej.ProductName = p.Name
			}
			return nil, rej
		}
		return nil, err
	}

	order := &Order{
		ID:        uuid.NewString(),
		OrgID:     req.OrgID,
		ContactID: req.ContactID,
		Address:   req.Address,
		Status:    StatusConfirmed,
		CreatedAt: time.Now().UTC(),
	}
	for i, p := range products {
		qty := req.Items[i].Quantity
		order.Items = append(order.Items, Item{ProductID: p.ID, Name: p.Name, Quantity: qty, UnitCents: p.PriceCents})
		order.TotalCents += p.PriceCents * int64(qty)
		order.Currency = p.Currency
	}

	l.mu.Lock()
	l.orders[order.ID] = order
	l.mu.Unlock()

	out := *order
	return &out, nil
}

func (l *MemoryLedger) Status(_ context.Context, orgID, contactID, reference string) (*Order, error) {
	ref := normalizeReference(reference)
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, o := range l.orders {
		if o.OrgID == orgID && o.ContactID == contactID && o.Reference() == ref {
			out := *o
			return &out, nil
		}
	}
	return nil, ErrOrderNotFound
}
