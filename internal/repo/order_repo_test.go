package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookstore/fulfillment/internal/db"
)

func TestPlaceOrderHappyPath(t *testing.T) {
	database := setupTestDB(t)
	orders := NewOrderRepo(database, testLogger())
	carts := NewCartRepo(database, testLogger())
	ctx := context.Background()

	bookA := seedBook(t, database, "Book A", 10.00, 5)
	bookB := seedBook(t, database, "Book B", 5.00, 5)
	seedCartItem(t, database, 1, bookA.ID, 2)
	seedCartItem(t, database, 1, bookB.ID, 1)

	before, err := carts.GetCart(ctx, 1)
	require.NoError(t, err)

	order, err := orders.PlaceOrder(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, db.StatusPending, order.Status)
	assert.Equal(t, 25.00, order.TotalAmount)
	assert.Equal(t, before.TotalAmount, order.TotalAmount)
	assert.True(t, order.InventoryProcessed)
	assert.False(t, order.InventoryRestocked)
	require.Len(t, order.Lines, 2)

	// Stock was decremented synchronously.
	assert.Equal(t, 3, bookStock(t, database, bookA.ID))
	assert.Equal(t, 4, bookStock(t, database, bookB.ID))

	// Cart was cleared in the same transaction.
	summary, err := carts.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, summary.Lines)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	database := setupTestDB(t)
	orders := NewOrderRepo(database, testLogger())

	_, err := orders.PlaceOrder(context.Background(), 1)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	database := setupTestDB(t)
	orders := NewOrderRepo(database, testLogger())
	ctx := context.Background()

	bookA := seedBook(t, database, "Book A", 10.00, 1)
	bookB := seedBook(t, database, "Book B", 5.00, 5)
	seedCartItem(t, database, 1, bookA.ID, 2)
	seedCartItem(t, database, 1, bookB.ID, 1)

	_, err := orders.PlaceOrder(ctx, 1)

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, bookA.ID, insufficient.BookID)
	assert.Equal(t, 2, insufficient.Requested)
	assert.Equal(t, 1, insufficient.Available)

	// Nothing was written: no order, stock untouched, cart intact.
	var orderCount int64
	require.NoError(t, database.Model(&db.Order{}).Count(&orderCount).Error)
	assert.Equal(t, int64(0), orderCount)
	assert.Equal(t, 1, bookStock(t, database, bookA.ID))
	assert.Equal(t, 5, bookStock(t, database, bookB.ID))

	var itemCount int64
	require.NoError(t, database.Model(&db.CartItem{}).Count(&itemCount).Error)
	assert.Equal(t, int64(2), itemCount)
}

func TestPlaceOrderInactiveBook(t *testing.T) {
	database := setupTestDB(t)
	orders := NewOrderRepo(database, testLogger())

	book := seedBook(t, database, "Retired", 10.00, 5)
	require.NoError(t, database.Model(book).Update("active", false).Error)
	seedCartItem(t, database, 1, book.ID, 1)

	_, err := orders.PlaceOrder(context.Background(), 1)
	assert.ErrorIs(t, err, ErrBookUnavailable)
}

func TestPlaceOrderSnapshotsUnitPrice(t *testing.T) {
	database := setupTestDB(t)
	orders := NewOrderRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 5)
	seedCartItem(t, database, 1, book.ID, 1)

	order, err := orders.PlaceOrder(ctx, 1)
	require.NoError(t, err)

	// Reprice the catalog after placement.
	require.NoError(t, database.Model(book).Update("price", 99.00).Error)

	got, err := orders.GetOrder(ctx, order.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 10.00, got.Lines[0].UnitPrice)
	assert.Equal(t, 10.00, got.TotalAmount)
}

func TestGetOrderScopedToUser(t *testing.T) {
	database := setupTestDB(t)
	orders := NewOrderRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 5)
	seedCartItem(t, database, 1, book.ID, 1)

	order, err := orders.PlaceOrder(ctx, 1)
	require.NoError(t, err)

	_, err = orders.GetOrder(ctx, order.ID, 2)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = orders.GetOrder(ctx, 999, 1)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListOrdersNewestFirst(t *testing.T) {
	database := setupTestDB(t)
	orders := NewOrderRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 10)

	seedCartItem(t, database, 1, book.ID, 1)
	first, err := orders.PlaceOrder(ctx, 1)
	require.NoError(t, err)

	seedCartItem(t, database, 1, book.ID, 2)
	second, err := orders.PlaceOrder(ctx, 1)
	require.NoError(t, err)

	list, err := orders.ListOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []uint{list[0].ID, list[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)
}

func TestCancelOrderPendingOnly(t *testing.T) {
	database := setupTestDB(t)
	orders := NewOrderRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 5)
	seedCartItem(t, database, 1, book.ID, 1)

	order, err := orders.PlaceOrder(ctx, 1)
	require.NoError(t, err)

	cancelled, err := orders.CancelOrder(ctx, order.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCancelled, cancelled.Status)

	// Cancelling again hits the pending-only rule.
	_, err = orders.CancelOrder(ctx, order.ID, 1)
	assert.ErrorIs(t, err, db.ErrInvalidTransition)
}

func TestCancelOrderScopedToUser(t *testing.T) {
	database := setupTestDB(t)
	orders := NewOrderRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 5)
	seedCartItem(t, database, 1, book.ID, 1)

	order, err := orders.PlaceOrder(ctx, 1)
	require.NoError(t, err)

	_, err = orders.CancelOrder(ctx, order.ID, 2)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateStatusAdmin(t *testing.T) {
	database := setupTestDB(t)
	orders := NewOrderRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 5)
	seedCartItem(t, database, 1, book.ID, 1)

	order, err := orders.PlaceOrder(ctx, 1)
	require.NoError(t, err)

	updated, err := orders.UpdateStatus(ctx, order.ID, db.StatusShipped, nil)
	require.NoError(t, err)
	assert.Equal(t, db.StatusShipped, updated.Status)

	// Same status again is rejected as a no-op.
	_, err = orders.UpdateStatus(ctx, order.ID, db.StatusShipped, nil)
	assert.ErrorIs(t, err, db.ErrNoOpTransition)

	// Backwards jump is legal for admins.
	updated, err = orders.UpdateStatus(ctx, order.ID, db.StatusPending, nil)
	require.NoError(t, err)
	assert.Equal(t, db.StatusPending, updated.Status)
}

func TestUpdateStatusRestrictedRefund(t *testing.T) {
	database := setupTestDB(t)
	orders := NewOrderRepo(database, testLogger())
	ctx := context.Background()

	book := seedBook(t, database, "Book A", 10.00, 5)
	seedCartItem(t, database, 1, book.ID, 1)

	order, err := orders.PlaceOrder(ctx, 1)
	require.NoError(t, err)

	refundFrom := []string{"paid", "delivered"}

	_, err = orders.UpdateStatus(ctx, order.ID, db.StatusRefunded, refundFrom)
	assert.ErrorIs(t, err, db.ErrInvalidTransition)

	_, err = orders.UpdateStatus(ctx, order.ID, db.StatusPaid, refundFrom)
	require.NoError(t, err)

	updated, err := orders.UpdateStatus(ctx, order.ID, db.StatusRefunded, refundFrom)
	require.NoError(t, err)
	assert.Equal(t, db.StatusRefunded, updated.Status)
}
