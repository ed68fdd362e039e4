package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProductsBindsOrgAndActivates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "mug-blue", "name": "Blue Mug", "price_cents": 2500, "currency": "BRL", "stock": 3},
		{"name": "Red Mug", "price_cents": 2600, "currency": "BRL", "stock": 1}
	]`), 0o600))

	products, err := loadProducts(path, "acme")
	require.NoError(t, err)
	require.Len(t, products, 2)
	for _, p := range products {
		assert.Equal(t, "acme", p.OrgID)
		assert.True(t, p.Active)
		assert.NotEmpty(t, p.ID)
	}
	assert.Equal(t, "mug-blue", products[0].ID)
}

func TestLoadProductsWithoutPath(t *testing.T) {
	products, err := loadProducts("", "acme")
	require.NoError(t, err)
	assert.Nil(t, products)
}

func TestLoadProductsRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not": "an array"}`), 0o600))

	_, err := loadProducts(path, "acme")
	require.Error(t, err)
}

func TestInboundMessageCarriesSessionIdentity(t *testing.T) {
	opts := &chatOptions{orgID: "acme", agentID: "sales", address: "ana"}
	msg := inboundMessage(opts, "hello")

	assert.Equal(t, cliSessionID, msg.SessionID)
	assert.Equal(t, "acme", msg.OrgID)
	assert.Equal(t, "sales", msg.AgentID)
	assert.Equal(t, "ana", msg.From)
	assert.Equal(t, "hello", msg.Body)
	assert.NotEmpty(t, msg.MessageID)
	assert.False(t, msg.ReceivedAt.IsZero())
}

func TestPrintSenderWritesReply(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&printSender{out: &buf}).SendText(context.Background(), "s", "to", "hi there"))
	assert.Equal(t, "bot> hi there\n", buf.String())
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd(&bytes.Buffer{})
	require.NoError(t, cmd.ParseFlags([]string{"--org", "acme", "-c", "p.json"}))

	org, err := cmd.Flags().GetString("org")
	require.NoError(t, err)
	assert.Equal(t, "acme", org)
	catalogPath, err := cmd.Flags().GetString("catalog")
	require.NoError(t, err)
	assert.Equal(t, "p.json", catalogPath)
}
