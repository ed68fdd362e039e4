package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/storefront-ai/internal/catalog"
)

var ledgerTracer = otel.Tracer("storefront.internal.orders")

type txPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger commits orders inside one transaction that locks the
// product rows it decrements.
type PostgresLedger struct {
	pool txPool
}

var _ Ledger = (*PostgresLedger)(nil)

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	if pool == nil {
		panic("orders: pgx pool required")
	}
	return &PostgresLedger{pool: pool}
}

func newPostgresLedgerWithPool(pool txPool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (l *PostgresLedger) Submit(ctx context.Context, req SubmitRequest) (*Order, error) {
	ctx, span := ledgerTracer.Start(ctx, "orders.submit")
	defer span.End()
	span.SetAttributes(attribute.Int("storefront.order.items", len(req.Items)))

	if err := req.validate(); err != nil {
		return nil, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("orders: begin: %w", err)
	}
	rollback := func() { _ = tx.Rollback(ctx) }

	order := &Order{
		ID:        uuid.NewString(),
		OrgID:     req.OrgID,
		ContactID: req.ContactID,
		Address:   req.Address,
		Status:    StatusConfirmed,
		CreatedAt: time.Now().UTC(),
	}

	for _, item := range req.Items {
		var (
			name     string
			price    int64
			currency string
			stock    int
			active   bool
		)
		err := tx.QueryRow(ctx, `
			SELECT name, price_cents, currency, stock, active
			FROM products
			WHERE id = $1 AND org_id = $2
			FOR UPDATE
		`, item.ProductID, req.OrgID).Scan(&name, &price, &currency, &stock, &active)
		if errors.Is(err, pgx.ErrNoRows) {
			rollback()
			return nil, &RejectionError{Reason: catalog.ReasonNotFound, ProductID: item.ProductID, Requested: item.Quantity}
		}
		if err != nil {
			rollback()
			span.RecordError(err)
			return nil, fmt.Errorf("orders: lock product: %w", err)
		}
		if !active {
			rollback()
			return nil, &RejectionError{Reason: catalog.ReasonInactive, ProductID: item.ProductID, ProductName: name, Requested: item.Quantity, CurrentStock: &stock}
		}
		if stock < item.Quantity {
			rollback()
			return nil, &RejectionError{Reason: catalog.ReasonInsufficient, ProductID: item.ProductID, ProductName: name, Requested: item.Quantity, CurrentStock: &stock}
		}
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2 WHERE id = $1`, item.ProductID, item.Quantity); err != nil {
			rollback()
			span.RecordError(err)
			return nil, fmt.Errorf("orders: decrement stock: %w", err)
		}
		order.Items = append(order.Items, Item{ProductID: item.ProductID, Name: name, Quantity: item.Quantity, UnitCents: price})
		order.TotalCents += price * int64(item.Quantity)
		order.Currency = currency
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders (id, org_id, contact_id, address, total_cents, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, order.ID, order.OrgID, order.ContactID, order.Address, order.TotalCents, order.Currency, order.Status, order.CreatedAt); err != nil {
		rollback()
		span.RecordError(err)
		return nil, fmt.Errorf("orders: insert order: %w", err)
	}
	for _, item := range order.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, name, quantity, unit_cents)
			VALUES ($1, $2, $3, $4, $5)
		`, order.ID, item.ProductID, item.Name, item.Quantity, item.UnitCents); err != nil {
			rollback()
			span.RecordError(err)
			return nil, fmt.Errorf("orders: insert item: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("orders: commit: %w", err)
	}
	return order, nil
}

func (l *PostgresLedger) Status(ctx context.Context, orgID, contactID, reference string) (*Order, error) {
	ref := normalizeReference(reference)
	if len(ref) != ReferenceLength {
		return nil, ErrOrderNotFound
	}
	var o Order
	err := l.pool.QueryRow(ctx, `
		SELECT id::text, org_id, contact_id, address, total_cents, currency, status, created_at
		FROM orders
		WHERE org_id = $1 AND contact_id = $2 AND upper(left(replace(id::text, '-', ''), 8)) = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, orgID, contactID, ref).Scan(&o.ID, &o.OrgID, &o.ContactID, &o.Address, &o.TotalCents, &o.Currency, &o.Status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("orders: status: %w", err)
	}

	rows, err := l.pool.Query(ctx, `SELECT product_id, name, quantity, unit_cents FROM order_items WHERE order_id = $1`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("orders: status items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.UnitCents); err != nil {
			return nil, fmt.Errorf("orders: scan item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orders: status items: %w", err)
	}
	return &o, nil
}
