// Package contacts stores tenant-scoped customer identities and their
// append-only conversation turns.
package contacts

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a contact does not exist.
var ErrNotFound = errors.New("contacts: not found")

// ErrDuplicateTurn is returned when a turn with the same ExternalID was already stored.
var ErrDuplicateTurn = errors.New("contacts: duplicate turn")

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// Contact is a customer identity keyed by (OrgID, Address).
type Contact struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id"`
	Address      string    `json:"address"`
	DisplayName  string    `json:"display_name,omitempty"`
	// ThreadHandle is the completion-service conversation handle. Set once.
	ThreadHandle string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Turn is an immutable conversation record.
type Turn struct {
	ID         string    `json:"id"`
	ContactID  string    `json:"contact_id"`
	OrgID      string    `json:"org_id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Render formats the turn as "role: content" for prompts.
func (t Turn) Render() string {
	return strings.ToLower(string(t.Role)) + ": " + t.Content
}

// Repository is the persistence contract for contacts and turns.
type Repository interface {
	// Resolve returns the contact for (orgID, address), creating it on first sight.
	Resolve(ctx context.Context, orgID, address, displayName string) (*Contact, error)
	Get(ctx context.Context, contactID string) (*Contact, error)
	// SetThreadHandle stores handle unless one already exists; the stored value is returned.
	SetThreadHandle(ctx context.Context, contactID, handle string) (string, error)
	// AppendTurn stores a turn at most once per non-empty ExternalID;
	// a repeat returns ErrDuplicateTurn and stores nothing.
	AppendTurn(ctx context.Context, turn Turn) error
	// RecentTurns returns up to limit turns, oldest first.
	RecentTurns(ctx context.Context, contactID string, limit int) ([]Turn, error)
}

// TurnExporter lists turns across every tenant for offline export.
type TurnExporter interface {
	// TurnsBetween returns turns created in [from, to), ordered by org then time.
	TurnsBetween(ctx context.Context, from, to time.Time) ([]Turn, error)
}
