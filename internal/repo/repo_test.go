package repo

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bookstore/fulfillment/internal/db"
	"github.com/bookstore/fulfillment/pkg/logger"
)

func setupTestDB(t *testing.T) *db.DB {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = gormDB.AutoMigrate(&db.Book{}, &db.CartItem{}, &db.Order{}, &db.OrderLine{})
	require.NoError(t, err)

	return &db.DB{DB: gormDB}
}

func seedBook(t *testing.T, database *db.DB, title string, price float64, stock int) *db.Book {
	book := &db.Book{
		Title:  title,
		Author: "Test Author",
		Price:  price,
		Stock:  stock,
		Active: true,
	}
	require.NoError(t, database.Create(book).Error)
	return book
}

func seedCartItem(t *testing.T, database *db.DB, userID, bookID uint, quantity int) {
	item := &db.CartItem{
		UserID:   userID,
		BookID:   bookID,
		Quantity: quantity,
	}
	require.NoError(t, database.Create(item).Error)
}

func bookStock(t *testing.T, database *db.DB, bookID uint) int {
	var book db.Book
	require.NoError(t, database.First(&book, bookID).Error)
	return book.Stock
}

func testLogger() *zap.Logger {
	return logger.NewLogger("test", "error")
}
