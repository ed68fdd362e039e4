package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/storefront-ai/internal/orders"
)

type recordingSender struct {
	sent   []EmailMessage
	failTo string
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	if msg.To == r.failTo {
		return errors.New("mailbox unavailable")
	}
	r.sent = append(r.sent, msg)
	return nil
}

func sampleOrder() *orders.Order {
	return &orders.Order{
		ID:         "3f2a9c1e-0000-4000-8000-000000000000",
		OrgID:      "org-1",
		Items:      []orders.Item{{ProductID: "p-1", Name: "Blue Mug", Quantity: 2, UnitCents: 2500}},
		Address:    "Rua das Flores 10",
		TotalCents: 5000,
		Currency:   "BRL",
	}
}

func TestOrderNotifierSendsToEveryRecipient(t *testing.T) {
	sender := &recordingSender{}
	n := NewOrderNotifier(sender, nil)

	err := n.NotifyOrderPlaced(context.Background(), OrderNotice{
		Recipients:   []string{"ops@shop.example", " ", "owner@shop.example"},
		StoreName:    "Lojinha",
		CustomerName: "Ana",
		CustomerAddr: "5511999990000",
		Order:        sampleOrder(),
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 2)

	msg := sender.sent[0]
	assert.Equal(t, "New order 3F2A9C1E - Ana", msg.Subject)
	assert.Contains(t, msg.Body, "2 x Blue Mug (R$ 25.00 each)")
	assert.Contains(t, msg.Body, "Total: R$ 50.00")
	assert.True(t, strings.HasPrefix(msg.Body, "Lojinha received a new order."))
	assert.Equal(t, categoryOrderPlaced, msg.Category)
	assert.Equal(t, map[string]string{"org_id": "org-1", "order_ref": "3F2A9C1E"}, msg.Tags)
}

func TestOrderNotifierSkipsInvalidRecipients(t *testing.T) {
	sender := &recordingSender{}
	err := NewOrderNotifier(sender, nil).NotifyOrderPlaced(context.Background(), OrderNotice{
		Recipients: []string{"not-an-address", "ops@shop.example"},
		Order:      sampleOrder(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid recipient")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ops@shop.example", sender.sent[0].To)
}

func TestOrderNotifierNoRecipients(t *testing.T) {
	sender := &recordingSender{}
	require.NoError(t, NewOrderNotifier(sender, nil).NotifyOrderPlaced(context.Background(), OrderNotice{Order: sampleOrder()}))
	assert.Empty(t, sender.sent)
}

func TestOrderNotifierJoinsFailures(t *testing.T) {
	sender := &recordingSender{failTo: "bad@shop.example"}
	err := NewOrderNotifier(sender, nil).NotifyOrderPlaced(context.Background(), OrderNotice{
		Recipients: []string{"bad@shop.example", "ops@shop.example"},
		Order:      sampleOrder(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad@shop.example")
	assert.Len(t, sender.sent, 1, "other recipients still receive the email")
}
