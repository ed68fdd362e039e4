package catalog

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore() *MemoryStore {
	return NewMemoryStore(
		Product{ID: "p-widget", OrgID: "org-1", Name: "Widget", Description: "Blue widget", Category: "tools", PriceCents: 1250, Currency: "BRL", Stock: 1, Active: true},
		Product{ID: "p-gadget", OrgID: "org-1", Name: "Gadget", Category: "tools", PriceCents: 990, Currency: "BRL", Stock: 10, Active: true},
		Product{ID: "p-old", OrgID: "org-1", Name: "Widget Classic", PriceCents: 500, Currency: "BRL", Stock: 3, Active: false},
		Product{ID: "p-other", OrgID: "org-2", Name: "Widget", PriceCents: 100, Currency: "USD", Stock: 5, Active: true},
	)
}

func TestMemoryStoreSearch(t *testing.T) {
	store := seedStore()
	ctx := context.Background()

	got, err := store.Search(ctx, "org-1", "widgets", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p-widget", got[0].ID)

	all, err := store.Search(ctx, "org-1", "", "TOOLS")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Gadget", all[0].Name)

	none, err := store.Search(ctx, "org-1", "sprocket", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStoreCheckAvailability(t *testing.T) {
	store := seedStore()
	ctx := context.Background()

	av, err := store.CheckAvailability(ctx, "p-widget", 5)
	require.NoError(t, err)
	assert.False(t, av.Available)
	assert.Equal(t, ReasonInsufficient, av.Reason)
	require.NotNil(t, av.CurrentStock)
	assert.Equal(t, 1, *av.CurrentStock)

	av, err = store.CheckAvailability(ctx, "p-gadget", 2)
	require.NoError(t, err)
	assert.True(t, av.Available)

	av, err = store.CheckAvailability(ctx, "p-old", 1)
	require.NoError(t, err)
	assert.Equal(t, ReasonInactive, av.Reason)

	av, err = store.CheckAvailability(ctx, "nope", 1)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, av.Reason)
	assert.Nil(t, av.CurrentStock)
}

func TestMemoryStoreTakeStockIsAllOrNothing(t *testing.T) {
	store := seedStore()

	_, err := store.TakeStock("org-1", []StockLine{{ProductID: "p-gadget", Quantity: 2}, {ProductID: "p-widget", Quantity: 5}})
	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "p-widget", stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Available)

	gadget, _ := store.Get(context.Background(), "p-gadget")
	assert.Equal(t, 10, gadget.Stock, "failed batch must not decrement any line")

	taken, err := store.TakeStock("org-1", []StockLine{{ProductID: "p-gadget", Quantity: 2}})
	require.NoError(t, err)
	require.Len(t, taken, 1)
	gadget, _ = store.Get(context.Background(), "p-gadget")
	assert.Equal(t, 8, gadget.Stock)
}

func TestMemoryStoreTakeStockStaysInOrg(t *testing.T) {
	store := seedStore()

	_, err := store.TakeStock("org-1", []StockLine{{ProductID: "p-other", Quantity: 2}})
	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, ReasonNotFound, stockErr.Reason)
	assert.Zero(t, stockErr.Available)

	other, _ := store.Get(context.Background(), "p-other")
	assert.Equal(t, 5, other.Stock)
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		cents    int64
		currency string
		want     string
	}{
		{1250, "BRL", "R$ 12.50"},
		{990, "usd", "$9.90"},
		{5, "EUR", "€0.05"},
		{100000, "JPY", "1000.00 JPY"},
		{-250, "", "-$2.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPrice(tt.cents, tt.currency))
	}
}

func TestPostgresStoreSearchAndAvailability(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithQuerier(mock)
	cols := []string{"id", "org_id", "name", "description", "category", "price_cents", "currency", "stock", "active"}

	mock.ExpectQuery("SELECT id, org_id, name").
		WithArgs("org-1", "widget", "", searchLimit).
		WillReturnRows(pgxmock.NewRows(cols).AddRow("p-1", "org-1", "Widget", "Blue", "tools", int64(1250), "BRL", 1, true))
	got, err := store.Search(context.Background(), "org-1", "widget", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "R$ 12.50", got[0].Price())

	mock.ExpectQuery("SELECT id, org_id, name").
		WithArgs("p-1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow("p-1", "org-1", "Widget", "Blue", "tools", int64(1250), "BRL", 1, true))
	av, err := store.CheckAvailability(context.Background(), "p-1", 3)
	require.NoError(t, err)
	assert.False(t, av.Available)
	assert.Equal(t, ReasonInsufficient, av.Reason)

	require.NoError(t, mock.ExpectationsWereMet())
}
