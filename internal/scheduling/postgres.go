package scheduling

import (
	"context"
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
}

// PostgresStore persists follow-ups in the follow_ups table.
type PostgresStore struct {
	db querier
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func (s *PostgresStore) Create(ctx context.Context, f FollowUp) (*FollowUp, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.Status = StatusPending
	f.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO follow_ups (id, org_id, contact_id, subject, summary, due_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, f.ID, f.OrgID, f.ContactID, f.Subject, f.Summary, f.When.UTC(), string(f.Status), f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scheduling: create follow-up: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time, limit int) ([]FollowUp, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, org_id, contact_id, subject, summary, due_at, status, created_at
		FROM follow_ups
		WHERE status = 'pending' AND due_at <= $1
		ORDER BY due_at
		LIMIT $2
	`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list due: %w", err)
	}
	defer rows.Close()

	var out []FollowUp
	for rows.Next() {
		var f FollowUp
		var status string
		if err := rows.Scan(&f.ID, &f.OrgID, &f.ContactID, &f.Subject, &f.Summary, &f.When, &status, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scheduling: scan follow-up: %w", err)
		}
		f.Status = Status(status)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: list due: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusSent)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusFailed)
}

func (s *PostgresStore) setStatus(ctx context.Context, id string, status Status) error {
	if _, err := s.db.Exec(ctx, `UPDATE follow_ups SET status = $2, updated_at = now() WHERE id = $1`, id, string(status)); err != nil {
		return fmt.Errorf("scheduling: mark status: %w", err)
	}
	return nil
}
