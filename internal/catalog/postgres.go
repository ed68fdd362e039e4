package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const searchLimit = 20

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads the products table.
type PostgresStore struct {
	db querier
}

var _ Catalog = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(db querier) *PostgresStore {
	return &PostgresStore{db: db}
}

const productColumns = `id, org_id, name, description, category, price_cents, currency, stock, active`

func (s *PostgresStore) Search(ctx context.Context, orgID, query, category string) ([]Product, error) {
	sql := `
		SELECT ` + productColumns + `
		FROM products
		WHERE org_id = $1
		  AND active
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')
		  AND ($3 = '' OR lower(category) = lower($3))
		ORDER BY lower(name)
		LIMIT $4
	`
	rows, err := s.db.Query(ctx, sql, orgID, query, category, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, productID string) (*Product, error) {
	row := s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) CheckAvailability(ctx context.Context, productID string, qty int) (Availability, error) {
	p, err := s.Get(ctx, productID)
	if errors.Is(err, ErrProductNotFound) {
		return availabilityFor(nil, qty), nil
	}
	if err != nil {
		return Availability{}, err
	}
	return availabilityFor(p, qty), nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.Description, &p.Category, &p.PriceCents, &p.Currency, &p.Stock, &p.Active); err != nil {
		return nil, err
	}
	return &p, nil
}

