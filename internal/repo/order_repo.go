package repo

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bookstore/fulfillment/internal/db"
)

// OrderRepo handles order placement and lifecycle transitions.
type OrderRepo struct {
	db  *db.DB
	log *zap.Logger
}

// NewOrderRepo creates a new order repository
func NewOrderRepo(database *db.DB, logger *zap.Logger) *OrderRepo {
	return &OrderRepo{
		db:  database,
		log: logger,
	}
}

// lockRows adds SELECT ... FOR UPDATE on dialects that support it. Stock
// reads that precede a decrement must serialize on the book row; sqlite
// (used in tests) runs the whole transaction under a single writer lock, so
// the clause is only needed on postgres.
func lockRows(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// PlaceOrder converts the user's cart into an order as one atomic unit:
// validate every line, snapshot unit prices, decrement stock, clear the
// cart. Any failure rolls back everything; there is no partial state.
//
// The committed order carries InventoryProcessed=true: the synchronous
// decrement here is the one authoritative stock effect for the paid path, so
// the reconciler's idempotency gate turns any later order.paid delivery into
// a no-op instead of a second decrement.
func (r *OrderRepo) PlaceOrder(ctx context.Context, userID uint) (*db.Order, error) {
	var order *db.Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []db.CartItem
		if err := tx.Where("user_id = ?", userID).Order("id").Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		var total float64
		lines := make([]db.OrderLine, 0, len(items))
		for _, item := range items {
			var book db.Book
			err := lockRows(tx).First(&book, item.BookID).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: book_id=%d", ErrBookUnavailable, item.BookID)
				}
				return fmt.Errorf("failed to load book %d: %w", item.BookID, err)
			}
			if !book.Active {
				return fmt.Errorf("%w: book_id=%d", ErrBookUnavailable, item.BookID)
			}
			if book.Stock < item.Quantity {
				return &InsufficientStockError{
					BookID:    book.ID,
					Title:     book.Title,
					Requested: item.Quantity,
					Available: book.Stock,
				}
			}

			total += book.Price * float64(item.Quantity)
			lines = append(lines, db.OrderLine{
				BookID:    book.ID,
				Quantity:  item.Quantity,
				UnitPrice: book.Price,
			})
		}

		order = &db.Order{
			UserID:             userID,
			Status:             db.StatusPending,
			TotalAmount:        roundMoney(total),
			InventoryProcessed: true,
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i := range lines {
			lines[i].OrderID = order.ID
		}
		if err := tx.Create(&lines).Error; err != nil {
			return fmt.Errorf("failed to insert order lines: %w", err)
		}

		// Guarded decrement: the row was validated above under lock, but the
		// stock predicate makes overdraw impossible even without one.
		for _, line := range lines {
			result := tx.Model(&db.Book{}).
				Where("id = ? AND stock >= ?", line.BookID, line.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", line.Quantity))
			if result.Error != nil {
				return fmt.Errorf("failed to decrement stock for book %d: %w", line.BookID, result.Error)
			}
			if result.RowsAffected == 0 {
				var book db.Book
				if err := tx.First(&book, line.BookID).Error; err != nil {
					return fmt.Errorf("failed to re-read book %d: %w", line.BookID, err)
				}
				return &InsufficientStockError{
					BookID:    book.ID,
					Title:     book.Title,
					Requested: line.Quantity,
					Available: book.Stock,
				}
			}
		}

		if err := tx.Where("user_id = ?", userID).Delete(&db.CartItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		order.Lines = lines
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("Order placed",
		zap.Uint("order_id", order.ID),
		zap.Uint("user_id", userID),
		zap.Float64("total_amount", order.TotalAmount),
		zap.Int("lines", len(order.Lines)),
	)
	return order, nil
}

// GetOrder retrieves one of the user's orders with its lines.
func (r *OrderRepo) GetOrder(ctx context.Context, orderID, userID uint) (*db.Order, error) {
	var order db.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Lines.Book").
		Where("id = ? AND user_id = ?", orderID, userID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		r.log.Error("Failed to get order", zap.Uint("order_id", orderID), zap.Error(err))
		return nil, err
	}
	return &order, nil
}

// ListOrders returns all of the user's orders, newest first.
func (r *OrderRepo) ListOrders(ctx context.Context, userID uint) ([]db.Order, error) {
	var orders []db.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		r.log.Error("Failed to list orders", zap.Uint("user_id", userID), zap.Error(err))
		return nil, err
	}
	return orders, nil
}

// CancelOrder performs a user-initiated cancellation, legal only from
// pending. Returns the cancelled order with its lines so the caller can
// publish the corresponding event.
func (r *OrderRepo) CancelOrder(ctx context.Context, orderID, userID uint) (*db.Order, error) {
	var order db.Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := lockRows(tx).
			Preload("Lines").
			Where("id = ? AND user_id = ?", orderID, userID).
			First(&order).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		if err := db.ValidateUserCancel(order.Status); err != nil {
			return err
		}

		order.Status = db.StatusCancelled
		return tx.Model(&db.Order{}).
			Where("id = ?", order.ID).
			Update("status", db.StatusCancelled).Error
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("Order cancelled", zap.Uint("order_id", orderID), zap.Uint("user_id", userID))
	return &order, nil
}

// UpdateStatus performs an admin status change. refundFrom restricts which
// statuses a refund may be issued from; empty means unrestricted.
func (r *OrderRepo) UpdateStatus(ctx context.Context, orderID uint, next db.OrderStatus, refundFrom []string) (*db.Order, error) {
	var order db.Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := lockRows(tx).
			Preload("Lines").
			First(&order, orderID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		if err := db.ValidateAdminUpdate(order.Status, next, refundFrom); err != nil {
			return err
		}

		order.Status = next
		return tx.Model(&db.Order{}).
			Where("id = ?", order.ID).
			Update("status", next).Error
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("Order status updated",
		zap.Uint("order_id", orderID),
		zap.String("status", string(next)),
	)
	return &order, nil
}
