package repo

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bookstore/fulfillment/internal/db"
)

// CartRepo handles shopping cart operations.
type CartRepo struct {
	db  *db.DB
	log *zap.Logger
}

// NewCartRepo creates a new cart repository
func NewCartRepo(database *db.DB, logger *zap.Logger) *CartRepo {
	return &CartRepo{
		db:  database,
		log: logger,
	}
}

// CartLine is one cart item joined with its book, priced at the book's
// current price.
type CartLine struct {
	CartItemID uint      `json:"cart_item_id"`
	BookID     uint      `json:"book_id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	UnitPrice  float64   `json:"price"`
	Quantity   int       `json:"quantity"`
	Subtotal   float64   `json:"subtotal"`
	AddedAt    time.Time `json:"added_at"`
}

// CartSummary is a user's cart priced against the current catalog.
type CartSummary struct {
	Lines       []CartLine `json:"items"`
	TotalAmount float64    `json:"total_amount"`
}

// GetCart loads all cart lines for a user joined with current book data and
// computes per-line subtotals and the cart total. Pure read; lines whose book
// is missing or inactive are filtered out silently so browsing stays
// resilient. Placement is where a dead line becomes an error.
func (r *CartRepo) GetCart(ctx context.Context, userID uint) (*CartSummary, error) {
	var items []db.CartItem
	err := r.db.WithContext(ctx).
		Preload("Book").
		Where("user_id = ?", userID).
		Order("id").
		Find(&items).Error
	if err != nil {
		r.log.Error("Failed to load cart", zap.Uint("user_id", userID), zap.Error(err))
		return nil, err
	}

	summary := &CartSummary{Lines: []CartLine{}}
	var total float64
	for _, item := range items {
		if item.Book == nil || !item.Book.Active {
			r.log.Warn("Skipping cart line with unavailable book",
				zap.Uint("user_id", userID),
				zap.Uint("book_id", item.BookID),
			)
			continue
		}

		subtotal := roundMoney(float64(item.Quantity) * item.Book.Price)
		total += subtotal
		summary.Lines = append(summary.Lines, CartLine{
			CartItemID: item.ID,
			BookID:     item.BookID,
			Title:      item.Book.Title,
			Author:     item.Book.Author,
			UnitPrice:  item.Book.Price,
			Quantity:   item.Quantity,
			Subtotal:   subtotal,
			AddedAt:    item.AddedAt,
		})
	}
	summary.TotalAmount = roundMoney(total)

	return summary, nil
}

// AddItem adds a book to the user's cart, incrementing the quantity when the
// (user, book) pair already exists.
func (r *CartRepo) AddItem(ctx context.Context, userID, bookID uint, quantity int) error {
	var book db.Book
	err := r.db.WithContext(ctx).First(&book, bookID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookNotFound
		}
		r.log.Error("Failed to look up book", zap.Uint("book_id", bookID), zap.Error(err))
		return err
	}
	if !book.Active {
		return ErrBookNotFound
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing db.CartItem
		err := tx.Where("user_id = ? AND book_id = ?", userID, bookID).First(&existing).Error
		if err == nil {
			return tx.Model(&existing).
				UpdateColumn("quantity", gorm.Expr("quantity + ?", quantity)).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		item := db.CartItem{
			UserID:   userID,
			BookID:   bookID,
			Quantity: quantity,
			AddedAt:  time.Now(),
		}
		return tx.Create(&item).Error
	})
}

// UpdateItemQuantity sets the quantity of an existing cart line.
func (r *CartRepo) UpdateItemQuantity(ctx context.Context, userID, bookID uint, quantity int) error {
	result := r.db.WithContext(ctx).
		Model(&db.CartItem{}).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Update("quantity", quantity)
	if result.Error != nil {
		r.log.Error("Failed to update cart item",
			zap.Uint("user_id", userID),
			zap.Uint("book_id", bookID),
			zap.Error(result.Error),
		)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

// RemoveItem deletes a single cart line owned by the user.
func (r *CartRepo) RemoveItem(ctx context.Context, userID, cartItemID uint) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", cartItemID, userID).
		Delete(&db.CartItem{})
	if result.Error != nil {
		r.log.Error("Failed to remove cart item",
			zap.Uint("cart_item_id", cartItemID),
			zap.Error(result.Error),
		)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

// Clear removes every cart line for the user and returns how many were
// deleted.
func (r *CartRepo) Clear(ctx context.Context, userID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&db.CartItem{})
	if result.Error != nil {
		r.log.Error("Failed to clear cart", zap.Uint("user_id", userID), zap.Error(result.Error))
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
