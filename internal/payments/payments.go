// Package payments exposes the read-only list of bank accounts a tenant
// accepts transfers on.
package payments

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BankAccount is a payment destination shown to customers.
type BankAccount struct {
	BankName      string `json:"bank_name"`
	AccountHolder string `json:"account_holder"`
	AccountNumber string `json:"account_number,omitempty"`
	Branch        string `json:"branch,omitempty"`
	PixKey        string `json:"pix_key,omitempty"`
	Instructions  string `json:"instructions,omitempty"`
}

// Directory lists payment destinations for a tenant.
type Directory interface {
	List(ctx context.Context, orgID string) ([]BankAccount, error)
}

// MemoryDirectory is a static Directory.
type MemoryDirectory struct {
	mu       sync.RWMutex
	accounts map[string][]BankAccount
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{accounts: make(map[string][]BankAccount)}
}

// Set replaces the accounts for orgID.
func (d *MemoryDirectory) Set(orgID string, accounts ...BankAccount) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[orgID] = append([]BankAccount(nil), accounts...)
}

func (d *MemoryDirectory) List(_ context.Context, orgID string) ([]BankAccount, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := append([]BankAccount(nil), d.accounts[orgID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].BankName < out[j].BankName })
	return out, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresDirectory reads the bank_accounts table.
type PostgresDirectory struct {
	db querier
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &PostgresDirectory{db: pool}
}

func (d *PostgresDirectory) List(ctx context.Context, orgID string) ([]BankAccount, error) {
	rows, err := d.db.Query(ctx, `
		SELECT bank_name, account_holder, account_number, branch, pix_key, instructions
		FROM bank_accounts
		WHERE org_id = $1 AND active
		ORDER BY bank_name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("payments: list accounts: %w", err)
	}
	defer rows.Close()

	var out []BankAccount
	for rows.Next() {
		var a BankAccount
		if err := rows.Scan(&a.BankName, &a.AccountHolder, &a.AccountNumber, &a.Branch, &a.PixKey, &a.Instructions); err != nil {
			return nil, fmt.Errorf("payments: scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payments: list accounts: %w", err)
	}
	return out, nil
}
