package db

import (
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Book{}, &CartItem{}, &Order{}, &OrderLine{}); err != nil {
		return err
	}

	if err := createIndexes(db.DB); err != nil {
		return err
	}

	return seedBooks(db.DB)
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_cart_items_user ON cart_items(user_id)`,

		// Partial index for the reconciler's hot lookup: orders whose paid
		// effect has been applied but which have not been restocked yet.
		`CREATE INDEX IF NOT EXISTS idx_orders_pending_restock ON orders(id) WHERE inventory_processed AND NOT inventory_restocked`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}

func seedBooks(db *gorm.DB) error {
	var count int64
	if err := db.Model(&Book{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seed := []Book{
		{Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", ISBN: "9780743273565", Price: 15.99, Stock: 100, Active: true},
		{Title: "To Kill a Mockingbird", Author: "Harper Lee", ISBN: "9780060935467", Price: 14.99, Stock: 75, Active: true},
		{Title: "1984", Author: "George Orwell", ISBN: "9780451524935", Price: 13.99, Stock: 50, Active: true},
		{Title: "Pride and Prejudice", Author: "Jane Austen", ISBN: "9780141439518", Price: 12.99, Stock: 60, Active: true},
		{Title: "The Catcher in the Rye", Author: "J.D. Salinger", ISBN: "9780316769488", Price: 11.99, Stock: 40, Active: true},
		{Title: "The Hobbit", Author: "J.R.R. Tolkien", ISBN: "9780547928227", Price: 16.99, Stock: 80, Active: true},
	}

	return db.Create(&seed).Error
}
