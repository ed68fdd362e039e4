package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDeliverer struct {
	delivered []string
	failFor   string
}

func (r *recordingDeliverer) DeliverFollowUp(_ context.Context, f FollowUp) error {
	if f.ID == r.failFor {
		return errors.New("gateway down")
	}
	r.delivered = append(r.delivered, f.ID)
	return nil
}

func TestMemoryStoreCreateValidates(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Create(context.Background(), FollowUp{OrgID: "org-1", ContactID: "c-1", When: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidFollowUp)

	f, err := store.Create(context.Background(), FollowUp{OrgID: "org-1", ContactID: "c-1", Subject: "Call back", When: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, f.Status)
	assert.NotEmpty(t, f.ID)
}

func TestDispatcherProcessDue(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	due, _ := store.Create(ctx, FollowUp{ID: "due", OrgID: "org-1", ContactID: "c-1", Subject: "Delivery", When: now.Add(-time.Minute)})
	failing, _ := store.Create(ctx, FollowUp{ID: "fail", OrgID: "org-1", ContactID: "c-2", Subject: "Delivery", When: now.Add(-2 * time.Minute)})
	_, _ = store.Create(ctx, FollowUp{ID: "later", OrgID: "org-1", ContactID: "c-3", Subject: "Delivery", When: now.Add(time.Hour)})

	deliverer := &recordingDeliverer{failFor: failing.ID}
	d := NewDispatcher(store, deliverer, nil)
	d.now = func() time.Time { return now }

	sent := d.ProcessDue(ctx)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{due.ID}, deliverer.delivered)

	remaining, err := store.ListDue(ctx, now, 0)
	require.NoError(t, err)
	assert.Empty(t, remaining, "sent and failed follow-ups leave the pending set")
}

func TestPostgresStoreCreateAndListDue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := &PostgresStore{db: mock}
	when := time.Date(2026, 5, 5, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO follow_ups").
		WithArgs(pgxmock.AnyArg(), "org-1", "c-1", "Call back", "asked about restock", when, "pending", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	_, err = store.Create(context.Background(), FollowUp{OrgID: "org-1", ContactID: "c-1", Subject: "Call back", Summary: "asked about restock", When: when})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, org_id, contact_id, subject").
		WithArgs(when, 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "org_id", "contact_id", "subject", "summary", "due_at", "status", "created_at"}).
			AddRow("f-1", "org-1", "c-1", "Call back", "", when, "pending", when))
	due, err := store.ListDue(context.Background(), when, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, StatusPending, due[0].Status)

	mock.ExpectExec("UPDATE follow_ups SET status").
		WithArgs("f-1", "sent").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkSent(context.Background(), "f-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
