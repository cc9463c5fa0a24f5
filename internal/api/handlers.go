package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bookstore/fulfillment/internal/cache"
	"github.com/bookstore/fulfillment/internal/config"
	"github.com/bookstore/fulfillment/internal/db"
	"github.com/bookstore/fulfillment/internal/events"
	"github.com/bookstore/fulfillment/internal/metrics"
	"github.com/bookstore/fulfillment/internal/repo"
)

const publishTimeout = 10 * time.Second

// Handler holds the HTTP surface of the order service. Authentication and
// authorization happen upstream; the caller identity arrives pre-verified in
// the X-User-ID header.
type Handler struct {
	books     cache.BookStore
	carts     *repo.CartRepo
	orders    *repo.OrderRepo
	publisher *events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

// NewHandler creates the HTTP handler set. books may be the plain repository
// or its cached decorator.
func NewHandler(
	books cache.BookStore,
	carts *repo.CartRepo,
	orders *repo.OrderRepo,
	publisher *events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *Handler {
	return &Handler{
		books:     books,
		carts:     carts,
		orders:    orders,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

func (h *Handler) userID(c *gin.Context) (uint, bool) {
	raw := c.GetHeader("X-User-ID")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  "error",
			"message": "missing or invalid X-User-ID header",
		})
		return 0, false
	}
	return uint(id), true
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "invalid " + name,
		})
		return 0, false
	}
	return uint(id), true
}

// respondError maps the repository error taxonomy onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	var insufficient *repo.InsufficientStockError

	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": insufficient.Error(),
			"data": gin.H{
				"book_id":   insufficient.BookID,
				"requested": insufficient.Requested,
				"available": insufficient.Available,
			},
		})
	case errors.Is(err, repo.ErrEmptyCart),
		errors.Is(err, db.ErrNoOpTransition),
		errors.Is(err, db.ErrInvalidTransition),
		errors.Is(err, db.ErrUnknownStatus):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
	case errors.Is(err, repo.ErrBookUnavailable),
		errors.Is(err, repo.ErrBookNotFound),
		errors.Is(err, repo.ErrOrderNotFound),
		errors.Is(err, repo.ErrCartItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": err.Error()})
	default:
		h.log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "internal error",
		})
	}
}

// publishOrderEvent is the best-effort boundary: a publish failure is logged
// and swallowed, never surfaced to the HTTP caller. The order stands either
// way; the reconciler's idempotency flags make a later retry safe.
func (h *Handler) publishOrderEvent(order *db.Order, status db.OrderStatus) {
	if h.publisher == nil {
		h.log.Warn("Event publisher unavailable, order event dropped",
			zap.Uint("order_id", order.ID),
			zap.String("status", string(status)),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := h.publisher.PublishOrderEvent(ctx, order, status); err != nil {
		h.log.Error("Failed to publish order event",
			zap.Uint("order_id", order.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// ListBooks returns the active catalog.
func (h *Handler) ListBooks(c *gin.Context) {
	books, err := h.books.ListBooks(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": books})
}

// GetBook returns a single book.
func (h *Handler) GetBook(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	book, err := h.books.GetBook(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": book})
}

type stockUpdateRequest struct {
	Stock *int `json:"stock" binding:"required,gte=0"`
}

// SetBookStock is the admin stock edit: replaces a book's stock with an
// absolute value. Cached reads may lag until the cache entry expires.
func (h *Handler) SetBookStock(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req stockUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	if err := h.books.SetStock(c.Request.Context(), id, *req.Stock); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Stock updated successfully."})
}

// GetCart returns the user's priced cart.
func (h *Handler) GetCart(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	summary, err := h.carts.GetCart(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Cart retrieved successfully.",
		"data":    summary,
	})
}

type cartItemRequest struct {
	BookID   uint `json:"book_id" binding:"required"`
	Quantity int  `json:"quantity" binding:"required,min=1"`
}

// AddCartItem adds a book to the cart, incrementing quantity on repeat adds.
func (h *Handler) AddCartItem(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	if err := h.carts.AddItem(c.Request.Context(), userID, req.BookID, req.Quantity); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "message": "Item added to cart."})
}

// UpdateCartItem sets the quantity of an existing cart line.
func (h *Handler) UpdateCartItem(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	if err := h.carts.UpdateItemQuantity(c.Request.Context(), userID, req.BookID, req.Quantity); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Cart item updated successfully."})
}

// RemoveCartItem deletes one cart line, identified by the cart_item_id query
// parameter.
func (h *Handler) RemoveCartItem(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	raw := c.Query("cart_item_id")
	itemID, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "cart_item_id query parameter is required",
		})
		return
	}
	if err := h.carts.RemoveItem(c.Request.Context(), userID, uint(itemID)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Cart item removed successfully."})
}

// ClearCart removes every line from the user's cart.
func (h *Handler) ClearCart(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	if _, err := h.carts.Clear(c.Request.Context(), userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Cart cleared successfully."})
}

// PlaceOrder converts the cart into an order and publishes the placement
// event post-commit, best-effort.
func (h *Handler) PlaceOrder(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	metrics.OrdersPlaced.Inc()

	// Which status the placement event carries is a configuration knob;
	// placement races with payment confirmation.
	eventStatus := db.StatusPending
	if h.cfg.OrderEventStatus == string(db.StatusPaid) {
		eventStatus = db.StatusPaid
	}
	h.publishOrderEvent(order, eventStatus)

	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Order placed successfully.",
		"data":    order,
	})
}

// ListOrders returns the user's orders.
func (h *Handler) ListOrders(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	orders, err := h.orders.ListOrders(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": orders})
}

// GetOrder returns one of the user's orders.
func (h *Handler) GetOrder(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": order})
}

// CancelOrder cancels one of the user's pending orders and publishes
// order.cancelled.
func (h *Handler) CancelOrder(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.publishOrderEvent(order, db.StatusCancelled)

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Order cancelled successfully."})
}

type statusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateOrderStatus is the admin status change endpoint. Any jump is legal
// as long as the new status differs from the current one (refund may be
// restricted by configuration); the new status is published post-commit.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	next, err := db.ParseOrderStatus(req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), orderID, next, h.cfg.RefundFromStatuses)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.publishOrderEvent(order, next)

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Order status updated successfully.",
		"data":    order,
	})
}

// Healthz reports service liveness.
func (h *Handler) Healthz(database *db.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "message": "database unreachable"})
			return
		}
		if h.publisher != nil && !h.publisher.IsHealthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "message": "broker unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
}
