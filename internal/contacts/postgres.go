package contacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository persists contacts and turns in Postgres.
type PostgresRepository struct {
	db querier
}

var (
	_ Repository   = (*PostgresRepository)(nil)
	_ TurnExporter = (*PostgresRepository)(nil)
)

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("contacts: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(db querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const contactColumns = `id, org_id, address, display_name, COALESCE(thread_handle, ''), created_at`

func (r *PostgresRepository) Resolve(ctx context.Context, orgID, address, displayName string) (*Contact, error) {
	query := `
		INSERT INTO contacts (id, org_id, address, display_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, address)
		DO UPDATE SET display_name = COALESCE(NULLIF(contacts.display_name, ''), EXCLUDED.display_name)
		RETURNING ` + contactColumns
	row := r.db.QueryRow(ctx, query, uuid.NewString(), orgID, address, displayName)
	c, err := scanContact(row)
	if err != nil {
		return nil, fmt.Errorf("contacts: resolve: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Get(ctx context.Context, contactID string) (*Contact, error) {
	row := r.db.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, contactID)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("contacts: get: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) SetThreadHandle(ctx context.Context, contactID, handle string) (string, error) {
	query := `UPDATE contacts SET thread_handle = COALESCE(thread_handle, $2) WHERE id = $1 RETURNING thread_handle`
	var stored string
	if err := r.db.QueryRow(ctx, query, contactID, handle).Scan(&stored); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("contacts: set thread handle: %w", err)
	}
	return stored, nil
}

func (r *PostgresRepository) AppendTurn(ctx context.Context, turn Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO conversation_turns (id, contact_id, org_id, role, content, external_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		ON CONFLICT DO NOTHING
	`
	ct, err := r.db.Exec(ctx, query, turn.ID, turn.ContactID, turn.OrgID, string(turn.Role), turn.Content, turn.ExternalID, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("contacts: append turn: %w", err)
	}
	if ct.RowsAffected() == 0 && turn.ExternalID != "" {
		return ErrDuplicateTurn
	}
	return nil
}

func (r *PostgresRepository) RecentTurns(ctx context.Context, contactID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 12
	}
	query := `
		SELECT id, contact_id, org_id, role, content, COALESCE(external_id, ''), created_at
		FROM (
			SELECT id, contact_id, org_id, role, content, external_id, created_at
			FROM conversation_turns
			WHERE contact_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, contactID, limit)
	if err != nil {
		return nil, fmt.Errorf("contacts: recent turns: %w", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, fmt.Errorf("contacts: recent turns: %w", err)
	}
	return turns, nil
}

func (r *PostgresRepository) TurnsBetween(ctx context.Context, from, to time.Time) ([]Turn, error) {
	query := `
		SELECT id, contact_id, org_id, role, content, COALESCE(external_id, ''), created_at
		FROM conversation_turns
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY org_id, created_at
	`
	rows, err := r.db.Query(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("contacts: turns between: %w", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, fmt.Errorf("contacts: turns between: %w", err)
	}
	return turns, nil
}

func scanTurns(rows pgx.Rows) ([]Turn, error) {
	defer rows.Close()
	var turns []Turn
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&t.ID, &t.ContactID, &t.OrgID, &role, &t.Content, &t.ExternalID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = Role(role)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func scanContact(row pgx.Row) (*Contact, error) {
	var c Contact
	if err := row.Scan(&c.ID, &c.OrgID, &c.Address, &c.DisplayName, &c.ThreadHandle, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
