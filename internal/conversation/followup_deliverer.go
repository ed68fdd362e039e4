package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/storefront-ai/internal/contacts"
	"github.com/wolfman30/storefront-ai/internal/messaging"
	"github.com/wolfman30/storefront-ai/internal/scheduling"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

// ErrNoSession means the follow-up's tenant has no messaging session to send from.
var ErrNoSession = errors.New("conversation: no session for org")

// SessionLister enumerates the bound messaging sessions.
type SessionLister interface {
	List() []messaging.Session
}

// FollowUpDeliverer sends due follow-ups to the customer over the tenant's
// session and records them as assistant turns.
type FollowUpDeliverer struct {
	contacts contacts.Repository
	sessions SessionLister
	sender   messaging.Sender
	logger   *logging.Logger
}

var _ scheduling.Deliverer = (*FollowUpDeliverer)(nil)

func NewFollowUpDeliverer(repo contacts.Repository, sessions SessionLister, sender messaging.Sender, logger *logging.Logger) *FollowUpDeliverer {
	if repo == nil || sessions == nil || sender == nil {
		panic("conversation: follow-up deliverer requires contacts, sessions and sender")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FollowUpDeliverer{contacts: repo, sessions: sessions, sender: sender, logger: logger}
}

func (d *FollowUpDeliverer) DeliverFollowUp(ctx context.Context, f scheduling.FollowUp) error {
	contact, err := d.contacts.Get(ctx, f.ContactID)
	if err != nil {
		return fmt.Errorf("conversation: follow-up contact: %w", err)
	}
	sessionID := ""
	for _, s := range d.sessions.List() {
		if s.OrgID == f.OrgID {
			sessionID = s.ID
			break
		}
	}
	if sessionID == "" {
		return fmt.Errorf("%w: %s", ErrNoSession, f.OrgID)
	}

	text := followUpText(f)
	if err := d.sender.SendText(ctx, sessionID, contact.Address, text); err != nil {
		return fmt.Errorf("conversation: follow-up send: %w", err)
	}
	if err := d.contacts.AppendTurn(ctx, contacts.Turn{
		ContactID: contact.ID,
		OrgID:     f.OrgID,
		Role:      contacts.RoleAssistant,
		Content:   text,
	}); err != nil {
		d.logger.Warn("follow-up turn not recorded", "error", err, "follow_up_id", f.ID)
	}
	return nil
}

func followUpText(f scheduling.FollowUp) string {
	if s := strings.TrimSpace(f.Summary); s != "" {
		return fmt.Sprintf("Hi! Following up about %s as promised. %s", f.Subject, s)
	}
	return fmt.Sprintf("Hi! Following up about %s as promised. How can I help?", f.Subject)
}
