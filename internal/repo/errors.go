package repo

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCart is returned when an order is placed against an empty cart.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrBookUnavailable is returned at placement time when a cart line
	// references a missing or inactive book.
	ErrBookUnavailable = errors.New("book not found or inactive")

	// ErrBookNotFound is returned when a book is not found
	ErrBookNotFound = errors.New("book not found")

	// ErrOrderNotFound is returned when an order is not found
	ErrOrderNotFound = errors.New("order not found")

	// ErrCartItemNotFound is returned when a cart item is not found
	ErrCartItemNotFound = errors.New("cart item not found")
)

// InsufficientStockError reports a stock-sufficiency check failure for a
// specific book, with the requested and available quantities.
type InsufficientStockError struct {
	BookID    uint
	Title     string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for book %d (%s): requested %d, available %d",
		e.BookID, e.Title, e.Requested, e.Available)
}
