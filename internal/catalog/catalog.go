// Package catalog answers product search and stock availability questions
// for a tenant's storefront.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrProductNotFound is returned when a product id is unknown.
var ErrProductNotFound = errors.New("catalog: product not found")

// Availability reasons surfaced to the run loop and the order handler.
const (
	ReasonNotFound     = "Product not found"
	ReasonInactive     = "Product unavailable"
	ReasonInsufficient = "Insufficient stock"
	ReasonBadQuantity  = "Invalid quantity"
)

// Product is a sellable catalog item.
type Product struct {
	ID          string `json:"id"`
	OrgID       string `json:"-"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	Stock       int    `json:"stock"`
	Active      bool   `json:"-"`
}

// Price renders the product price for customer-facing text.
func (p Product) Price() string {
	return FormatPrice(p.PriceCents, p.Currency)
}

// Availability is the answer to "can qty units of product be sold now".
type Availability struct {
	Available    bool   `json:"available"`
	Reason       string `json:"reason,omitempty"`
	CurrentStock *int   `json:"current_stock,omitempty"`
}

// Catalog is the read contract consumed by the orchestrator.
type Catalog interface {
	Search(ctx context.Context, orgID, query, category string) ([]Product, error)
	CheckAvailability(ctx context.Context, productID string, qty int) (Availability, error)
	Get(ctx context.Context, productID string) (*Product, error)
}

// FormatPrice renders cents with a currency symbol.
func FormatPrice(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	amount := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "BRL":
		return sign + "R$ " + amount
	case "USD", "":
		return sign + "$" + amount
	case "EUR":
		return sign + "€" + amount
	case "GBP":
		return sign + "£" + amount
	default:
		return sign + amount + " " + strings.ToUpper(currency)
	}
}

func availabilityFor(p *Product, qty int) Availability {
	if p == nil {
		return Availability{Available: false, Reason: ReasonNotFound}
	}
	stock := p.Stock
	if !p.Active {
		return Availability{Available: false, Reason: ReasonInactive, CurrentStock: &stock}
	}
	if qty <= 0 {
		return Availability{Available: false, Reason: ReasonBadQuantity, CurrentStock: &stock}
	}
	if stock < qty {
		return Availability{Available: false, Reason: ReasonInsufficient, CurrentStock: &stock}
	}
	return Availability{Available: true, CurrentStock: &stock}
}

// matches reports whether every query token appears in the product text.
// A trailing plural "s" is tolerated ("widgets" finds "Widget").
func matches(p Product, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	haystack := strings.ToLower(p.Name + " " + p.Description + " " + p.Category)
	if strings.Contains(haystack, query) {
		return true
	}
	for _, token := range strings.Fields(query) {
		if strings.Contains(haystack, token) {
			continue
		}
		if len(token) > 3 && strings.HasSuffix(token, "s") && strings.Contains(haystack, strings.TrimSuffix(token, "s")) {
			continue
		}
		return false
	}
	return true
}
