package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookstore/fulfillment/internal/db"
)

func seedOrder(t *testing.T, database *db.DB, processed, restocked bool) *db.Order {
	order := &db.Order{
		UserID:             1,
		Status:             db.StatusPending,
		TotalAmount:        10.00,
		InventoryProcessed: processed,
		InventoryRestocked: restocked,
	}
	require.NoError(t, database.Create(order).Error)
	return order
}

func reloadOrder(t *testing.T, database *db.DB, id uint) *db.Order {
	var order db.Order
	require.NoError(t, database.First(&order, id).Error)
	return &order
}

func TestApplyPaidEffect(t *testing.T) {
	database := setupTestDB(t)
	repo := NewReconcileRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 5)
	order := seedOrder(t, database, false, false)
	lines := []StockLine{{BookID: book.ID, Quantity: 2}}

	outcome, err := repo.ApplyPaidEffect(ctx, order.ID, lines)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, 3, bookStock(t, database, book.ID))
	assert.True(t, reloadOrder(t, database, order.ID).InventoryProcessed)
}

func TestApplyPaidEffectIsIdempotent(t *testing.T) {
	database := setupTestDB(t)
	repo := NewReconcileRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 5)
	order := seedOrder(t, database, false, false)
	lines := []StockLine{{BookID: book.ID, Quantity: 2}}

	outcome, err := repo.ApplyPaidEffect(ctx, order.ID, lines)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	// A redelivered paid event must not decrement a second time.
	outcome, err = repo.ApplyPaidEffect(ctx, order.ID, lines)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, outcome)
	assert.Equal(t, 3, bookStock(t, database, book.ID))
	assert.True(t, reloadOrder(t, database, order.ID).InventoryProcessed)
}

func TestApplyPaidEffectSkipsPlacementDecrementedOrders(t *testing.T) {
	database := setupTestDB(t)
	reconciler := NewReconcileRepo(database, testLogger())
	orders := NewOrderRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 5)
	seedCartItem(t, database, 1, book.ID, 2)

	// Placement already decremented stock and set the processed flag.
	order, err := orders.PlaceOrder(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 3, bookStock(t, database, book.ID))

	outcome, err := reconciler.ApplyPaidEffect(ctx, order.ID, []StockLine{{BookID: book.ID, Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, outcome)
	assert.Equal(t, 3, bookStock(t, database, book.ID))
}

func TestApplyPaidEffectOrderMissing(t *testing.T) {
	database := setupTestDB(t)
	repo := NewReconcileRepo(database, testLogger())

	outcome, err := repo.ApplyPaidEffect(context.Background(), 999, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrderMissing, outcome)
}

func TestApplyPaidEffectInsufficientStock(t *testing.T) {
	database := setupTestDB(t)
	repo := NewReconcileRepo(database, testLogger())
	ctx := context.Background()

	bookA := seedBook(t, database, "Book A", 10.00, 5)
	bookB := seedBook(t, database, "Book B", 5.00, 1)
	order := seedOrder(t, database, false, false)
	lines := []StockLine{
		{BookID: bookA.ID, Quantity: 2},
		{BookID: bookB.ID, Quantity: 3},
	}

	outcome, err := repo.ApplyPaidEffect(ctx, order.ID, lines)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInsufficientStock, outcome)

	// Pre-check failed on the second line, so the first line was not
	// decremented either and the flag stayed clear.
	assert.Equal(t, 5, bookStock(t, database, bookA.ID))
	assert.Equal(t, 1, bookStock(t, database, bookB.ID))
	assert.False(t, reloadOrder(t, database, order.ID).InventoryProcessed)
}

func TestApplyRestockEffect(t *testing.T) {
	database := setupTestDB(t)
	repo := NewReconcileRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 3)
	order := seedOrder(t, database, true, false)
	lines := []StockLine{{BookID: book.ID, Quantity: 2}}

	outcome, err := repo.ApplyRestockEffect(ctx, order.ID, lines)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, 5, bookStock(t, database, book.ID))
	assert.True(t, reloadOrder(t, database, order.ID).InventoryRestocked)
}

func TestApplyRestockEffectIsIdempotent(t *testing.T) {
	database := setupTestDB(t)
	repo := NewReconcileRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 3)
	order := seedOrder(t, database, true, false)
	lines := []StockLine{{BookID: book.ID, Quantity: 2}}

	outcome, err := repo.ApplyRestockEffect(ctx, order.ID, lines)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	outcome, err = repo.ApplyRestockEffect(ctx, order.ID, lines)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyRestocked, outcome)
	assert.Equal(t, 5, bookStock(t, database, book.ID))
}

func TestApplyRestockEffectNeverProcessed(t *testing.T) {
	database := setupTestDB(t)
	repo := NewReconcileRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 3)
	order := seedOrder(t, database, false, false)

	// Cancelled before the paid effect ever ran: nothing to return.
	outcome, err := repo.ApplyRestockEffect(ctx, order.ID, []StockLine{{BookID: book.ID, Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNeverProcessed, outcome)
	assert.Equal(t, 3, bookStock(t, database, book.ID))
	assert.False(t, reloadOrder(t, database, order.ID).InventoryRestocked)
}

func TestApplyRestockEffectOrderMissing(t *testing.T) {
	database := setupTestDB(t)
	repo := NewReconcileRepo(database, testLogger())

	outcome, err := repo.ApplyRestockEffect(context.Background(), 999, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrderMissing, outcome)
}

func TestApplyRestockEffectSkipsMissingBook(t *testing.T) {
	database := setupTestDB(t)
	repo := NewReconcileRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 3)
	order := seedOrder(t, database, true, false)
	lines := []StockLine{
		{BookID: 999, Quantity: 1},
		{BookID: book.ID, Quantity: 2},
	}

	outcome, err := repo.ApplyRestockEffect(ctx, order.ID, lines)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, 5, bookStock(t, database, book.ID))
	assert.True(t, reloadOrder(t, database, order.ID).InventoryRestocked)
}
