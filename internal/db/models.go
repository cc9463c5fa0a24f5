package db

import (
	"time"
)

// Book represents a book in the catalog. The stock column is the
// authoritative stock value; it is only ever mutated inside a transaction
// that has checked sufficiency first.
type Book struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"type:varchar(255);not null;index:idx_books_title" json:"title"`
	Author    string    `gorm:"type:varchar(255);not null;index:idx_books_author" json:"author"`
	ISBN      string    `gorm:"type:varchar(20);uniqueIndex" json:"isbn"`
	Price     float64   `gorm:"not null;check:price >= 0" json:"price"`
	Stock     int       `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	Active    bool      `gorm:"not null;default:true;index:idx_books_active" json:"active"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

// CartItem is a (user, book) pair in a user's shopping cart. It is not
// authoritative for stock; quantities are validated against Book.Stock at
// placement time.
type CartItem struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	UserID   uint      `gorm:"not null;uniqueIndex:uix_user_book_cart" json:"user_id"`
	BookID   uint      `gorm:"not null;uniqueIndex:uix_user_book_cart" json:"book_id"`
	Quantity int       `gorm:"not null;default:1;check:quantity >= 1" json:"quantity"`
	AddedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"added_at"`

	Book *Book `gorm:"foreignKey:BookID" json:"book,omitempty"`
}

// TableName specifies the table name for CartItem model
func (CartItem) TableName() string {
	return "cart_items"
}

// Order is created exactly once at placement and never deleted. The two
// idempotency flags make the reconciler's stock effects safe under
// at-least-once delivery: InventoryProcessed gates the paid-path decrement,
// InventoryRestocked gates the cancel/refund-path restock.
type Order struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	UserID             uint        `gorm:"not null;index:idx_orders_user" json:"user_id"`
	Status             OrderStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	TotalAmount        float64     `gorm:"not null;check:total_amount >= 0" json:"total_amount"`
	InventoryProcessed bool        `gorm:"not null;default:false" json:"inventory_processed"`
	InventoryRestocked bool        `gorm:"not null;default:false" json:"inventory_restocked"`
	CreatedAt          time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	Lines []OrderLine `gorm:"foreignKey:OrderID" json:"lines,omitempty"`
}

// TableName specifies the table name for Order model
func (Order) TableName() string {
	return "orders"
}

// OrderLine snapshots the unit price at placement time so historical order
// value is decoupled from later price changes.
type OrderLine struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	OrderID   uint    `gorm:"not null;index:idx_order_lines_order" json:"order_id"`
	BookID    uint    `gorm:"not null" json:"book_id"`
	Quantity  int     `gorm:"not null;check:quantity >= 0" json:"quantity"`
	UnitPrice float64 `gorm:"not null;check:unit_price >= 0" json:"unit_price"`

	Book *Book `gorm:"foreignKey:BookID" json:"book,omitempty"`
}

// TableName specifies the table name for OrderLine model
func (OrderLine) TableName() string {
	return "order_lines"
}
