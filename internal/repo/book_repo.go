package repo

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bookstore/fulfillment/internal/db"
)

// BookRepo handles catalog reads and admin stock adjustments.
type BookRepo struct {
	db  *db.DB
	log *zap.Logger
}

// NewBookRepo creates a new book repository
func NewBookRepo(database *db.DB, logger *zap.Logger) *BookRepo {
	return &BookRepo{
		db:  database,
		log: logger,
	}
}

// ListBooks returns active books ordered by id.
func (r *BookRepo) ListBooks(ctx context.Context) ([]db.Book, error) {
	var books []db.Book
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id").
		Find(&books).Error
	if err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, err
	}
	return books, nil
}

// GetBook retrieves a book by id.
func (r *BookRepo) GetBook(ctx context.Context, id uint) (*db.Book, error) {
	var book db.Book
	err := r.db.WithContext(ctx).First(&book, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		r.log.Error("Failed to get book", zap.Uint("book_id", id), zap.Error(err))
		return nil, err
	}
	return &book, nil
}

// SetStock replaces a book's stock with an absolute value (admin edit).
func (r *BookRepo) SetStock(ctx context.Context, id uint, stock int) error {
	result := r.db.WithContext(ctx).
		Model(&db.Book{}).
		Where("id = ?", id).
		Update("stock", stock)
	if result.Error != nil {
		r.log.Error("Failed to set stock", zap.Uint("book_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}
	r.log.Info("Stock updated", zap.Uint("book_id", id), zap.Int("stock", stock))
	return nil
}
