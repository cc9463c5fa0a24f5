package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bookstore/fulfillment/internal/db"
)

// BookSource is the read side of the book repository.
type BookSource interface {
	ListBooks(ctx context.Context) ([]db.Book, error)
	GetBook(ctx context.Context, id uint) (*db.Book, error)
}

// BookStore adds the admin write path to BookSource.
type BookStore interface {
	BookSource
	SetStock(ctx context.Context, id uint, stock int) error
}

// CachedBookRepo caches catalog reads in Redis. Admin stock edits invalidate
// the touched keys; placement-path decrements do not, so cached stock may lag
// the database. The authoritative sufficiency check happens inside the
// placement transaction, never against the cache.
type CachedBookRepo struct {
	source BookStore
	cache  *RedisCache
	log    *zap.Logger
}

// NewCachedBookRepo wraps a book store with a Redis cache.
func NewCachedBookRepo(source BookStore, cache *RedisCache, log *zap.Logger) *CachedBookRepo {
	return &CachedBookRepo{
		source: source,
		cache:  cache,
		log:    log,
	}
}

func bookKey(id uint) string {
	return fmt.Sprintf("book:%d", id)
}

func activeBooksKey() string {
	return "books:active"
}

// ListBooks returns active books, cached.
func (r *CachedBookRepo) ListBooks(ctx context.Context) ([]db.Book, error) {
	var books []db.Book
	err := r.cache.Get(ctx, activeBooksKey(), &books)
	if err == nil {
		return books, nil
	}
	if !errors.Is(err, redis.Nil) {
		r.log.Warn("Cache error listing books", zap.Error(err))
	}

	books, err = r.source.ListBooks(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, activeBooksKey(), books); err != nil {
		r.log.Warn("Failed to cache book list", zap.Error(err))
	}
	return books, nil
}

// GetBook returns a single book, cached.
func (r *CachedBookRepo) GetBook(ctx context.Context, id uint) (*db.Book, error) {
	var book db.Book
	err := r.cache.Get(ctx, bookKey(id), &book)
	if err == nil {
		return &book, nil
	}
	if !errors.Is(err, redis.Nil) {
		r.log.Warn("Cache error getting book", zap.Uint("book_id", id), zap.Error(err))
	}

	fresh, err := r.source.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, bookKey(id), fresh); err != nil {
		r.log.Warn("Failed to cache book", zap.Uint("book_id", id), zap.Error(err))
	}
	return fresh, nil
}

// SetStock writes through to the underlying store and invalidates the
// affected cache entries. Invalidation failures only log; the next read
// repopulates or the TTL expires the stale value.
func (r *CachedBookRepo) SetStock(ctx context.Context, id uint, stock int) error {
	if err := r.source.SetStock(ctx, id, stock); err != nil {
		return err
	}

	if err := r.cache.Delete(ctx, bookKey(id)); err != nil {
		r.log.Warn("Failed to invalidate book cache", zap.Uint("book_id", id), zap.Error(err))
	}
	if err := r.cache.Delete(ctx, activeBooksKey()); err != nil {
		r.log.Warn("Failed to invalidate book list cache", zap.Error(err))
	}
	return nil
}
