// Package orders is the order ledger: it commits orders and decrements stock
// in a single atomic step.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/storefront-ai/internal/catalog"
)

var (
	// ErrInsufficientStock matches any RejectionError caused by a stock shortfall.
	ErrInsufficientStock = errors.New("orders: insufficient stock")
	ErrInvalidOrder      = errors.New("orders: invalid order")
	ErrOrderNotFound     = errors.New("orders: order not found")
)

const StatusConfirmed = "confirmed"

// ReferenceLength is the number of characters shown to customers.
const ReferenceLength = 8

// ItemRequest is one requested order line.
type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// SubmitRequest is everything required to commit an order.
type SubmitRequest struct {
	OrgID     string
	ContactID string
	Items     []ItemRequest
	Address   string
}

func (r SubmitRequest) validate() error {
	if strings.TrimSpace(r.OrgID) == "" || strings.TrimSpace(r.ContactID) == "" {
		return fmt.Errorf("%w: org and contact are required", ErrInvalidOrder)
	}
	if strings.TrimSpace(r.Address) == "" {
		return fmt.Errorf("%w: delivery address is required", ErrInvalidOrder)
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}
	for _, item := range r.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return fmt.Errorf("%w: each item needs a product and a positive quantity", ErrInvalidOrder)
		}
	}
	return nil
}

// Item is a committed order line.
type Item struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitCents int64  `json:"unit_cents"`
}

// Order is a committed order.
type Order struct {
	ID         string    `json:"-"`
	OrgID      string    `json:"-"`
	ContactID  string    `json:"-"`
	Items      []Item    `json:"items"`
	Address    string    `json:"address"`
	TotalCents int64     `json:"total_cents"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reference is the short customer-facing order code.
func (o Order) Reference() string {
	return ReferenceFor(o.ID)
}

// Total renders the order total with its currency.
func (o Order) Total() string {
	return catalog.FormatPrice(o.TotalCents, o.Currency)
}

// ReferenceFor derives the short reference from an order id.
func ReferenceFor(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) > ReferenceLength {
		compact = compact[:ReferenceLength]
	}
	return strings.ToUpper(compact)
}

// RejectionError is a business-rule refusal that the customer can act on.
type RejectionError struct {
	Reason       string
	ProductID    string
	ProductName  string
	Requested    int
	CurrentStock *int
}

func (e *RejectionError) Error() string {
	msg := "orders: rejected: " + e.Reason
	if e.ProductName != "" {
		msg += " (" + e.ProductName + ")"
	}
	if e.CurrentStock != nil {
		msg += fmt.Sprintf(": requested %d, in stock %d", e.Requested, *e.CurrentStock)
	}
	return msg
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrInsufficientStock && e.Reason == catalog.ReasonInsufficient
}

// Ledger commits orders and looks them up.
type Ledger interface {
	Submit(ctx context.Context, req SubmitRequest) (*Order, error)
	// Status finds an order by its short reference, scoped to the contact.
	Status(ctx context.Context, orgID, contactID, reference string) (*Order, error)
}

func normalizeReference(ref string) string {
	ref = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ref), "#")))
	return strings.ReplaceAll(ref, "-", "")
}
