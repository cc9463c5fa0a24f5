package repo

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bookstore/fulfillment/internal/db"
)

// ReconcileOutcome classifies the result of applying a stock effect so the
// consumer can decide between ack, requeue and dead-letter without inspecting
// errors.
type ReconcileOutcome int

const (
	// OutcomeApplied means the stock effect was committed.
	OutcomeApplied ReconcileOutcome = iota
	// OutcomeOrderMissing means no order exists for the id; events can race
	// ahead of the placing transaction, so this is drop, not failure.
	OutcomeOrderMissing
	// OutcomeAlreadyProcessed means the paid effect was applied before.
	OutcomeAlreadyProcessed
	// OutcomeNeverProcessed means a restock was requested for an order whose
	// paid effect never happened; there is nothing to return to stock.
	OutcomeNeverProcessed
	// OutcomeAlreadyRestocked means the restock effect was applied before.
	OutcomeAlreadyRestocked
	// OutcomeInsufficientStock means the paid-path pre-check failed; nothing
	// was mutated.
	OutcomeInsufficientStock
)

// String returns the outcome label used in logs and metrics.
func (o ReconcileOutcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeOrderMissing:
		return "order_missing"
	case OutcomeAlreadyProcessed:
		return "already_processed"
	case OutcomeNeverProcessed:
		return "never_processed"
	case OutcomeAlreadyRestocked:
		return "already_restocked"
	case OutcomeInsufficientStock:
		return "insufficient_stock"
	}
	return "unknown"
}

// StockLine is one (book, quantity) pair from an order event.
type StockLine struct {
	BookID   uint
	Quantity int
}

// ReconcileRepo applies order-lifecycle stock effects. Each effect runs in
// one transaction together with its idempotency-flag update, so redelivery
// after a partial failure is safe: the flag is the single source of truth
// for "was this already applied".
type ReconcileRepo struct {
	db  *db.DB
	log *zap.Logger
}

// NewReconcileRepo creates a new reconciler repository
func NewReconcileRepo(database *db.DB, logger *zap.Logger) *ReconcileRepo {
	return &ReconcileRepo{
		db:  database,
		log: logger,
	}
}

// ApplyPaidEffect decrements stock for every line of a paid order, exactly
// once. All lines are pre-checked for sufficiency before anything is
// mutated; a failed pre-check aborts with no partial state.
func (r *ReconcileRepo) ApplyPaidEffect(ctx context.Context, orderID uint, lines []StockLine) (ReconcileOutcome, error) {
	outcome := OutcomeApplied

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order db.Order
		if err := lockRows(tx).First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				outcome = OutcomeOrderMissing
				return nil
			}
			return fmt.Errorf("failed to load order %d: %w", orderID, err)
		}

		if order.InventoryProcessed {
			outcome = OutcomeAlreadyProcessed
			return nil
		}

		// Pre-check every line before mutating anything.
		for _, line := range lines {
			var book db.Book
			err := lockRows(tx).First(&book, line.BookID).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					r.log.Error("Paid effect pre-check failed: book missing",
						zap.Uint("order_id", orderID),
						zap.Uint("book_id", line.BookID),
					)
					outcome = OutcomeInsufficientStock
					return nil
				}
				return fmt.Errorf("failed to load book %d: %w", line.BookID, err)
			}
			if book.Stock < line.Quantity {
				r.log.Error("Paid effect pre-check failed: insufficient stock",
					zap.Uint("order_id", orderID),
					zap.Uint("book_id", line.BookID),
					zap.Int("requested", line.Quantity),
					zap.Int("available", book.Stock),
				)
				outcome = OutcomeInsufficientStock
				return nil
			}
		}

		for _, line := range lines {
			err := tx.Model(&db.Book{}).
				Where("id = ?", line.BookID).
				UpdateColumn("stock", gorm.Expr("stock - ?", line.Quantity)).Error
			if err != nil {
				return fmt.Errorf("failed to decrement stock for book %d: %w", line.BookID, err)
			}
		}

		err := tx.Model(&db.Order{}).
			Where("id = ?", orderID).
			Update("inventory_processed", true).Error
		if err != nil {
			return fmt.Errorf("failed to mark order %d processed: %w", orderID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if outcome == OutcomeApplied {
		r.log.Info("Stock decremented for paid order",
			zap.Uint("order_id", orderID),
			zap.Int("lines", len(lines)),
		)
	}
	return outcome, nil
}

// ApplyRestockEffect returns stock for a cancelled or refunded order,
// exactly once, and only when the paid effect was applied first. A missing
// book is skipped with a log rather than failing the whole batch.
func (r *ReconcileRepo) ApplyRestockEffect(ctx context.Context, orderID uint, lines []StockLine) (ReconcileOutcome, error) {
	outcome := OutcomeApplied

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order db.Order
		if err := lockRows(tx).First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				outcome = OutcomeOrderMissing
				return nil
			}
			return fmt.Errorf("failed to load order %d: %w", orderID, err)
		}

		if !order.InventoryProcessed {
			outcome = OutcomeNeverProcessed
			return nil
		}
		if order.InventoryRestocked {
			outcome = OutcomeAlreadyRestocked
			return nil
		}

		for _, line := range lines {
			result := tx.Model(&db.Book{}).
				Where("id = ?", line.BookID).
				UpdateColumn("stock", gorm.Expr("stock + ?", line.Quantity))
			if result.Error != nil {
				return fmt.Errorf("failed to restock book %d: %w", line.BookID, result.Error)
			}
			if result.RowsAffected == 0 {
				r.log.Warn("Book missing during restock, skipping line",
					zap.Uint("order_id", orderID),
					zap.Uint("book_id", line.BookID),
				)
			}
		}

		err := tx.Model(&db.Order{}).
			Where("id = ?", orderID).
			Update("inventory_restocked", true).Error
		if err != nil {
			return fmt.Errorf("failed to mark order %d restocked: %w", orderID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if outcome == OutcomeApplied {
		r.log.Info("Stock restocked for order",
			zap.Uint("order_id", orderID),
			zap.Int("lines", len(lines)),
		)
	}
	return outcome, nil
}
