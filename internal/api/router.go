package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bookstore/fulfillment/internal/db"
	"github.com/bookstore/fulfillment/internal/metrics"
)

// NewRouter wires the HTTP routes.
func NewRouter(h *Handler, database *db.DB, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	r.GET("/healthz", h.Healthz(database))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/books", h.ListBooks)
		v1.GET("/books/:id", h.GetBook)
		v1.PATCH("/books/:id/stock", h.SetBookStock)

		v1.GET("/cart", h.GetCart)
		v1.POST("/cart", h.AddCartItem)
		v1.PATCH("/cart", h.UpdateCartItem)
		v1.DELETE("/cart", h.RemoveCartItem)
		v1.DELETE("/cart/clear", h.ClearCart)

		v1.POST("/orders", h.PlaceOrder)
		v1.GET("/orders", h.ListOrders)
		v1.GET("/orders/:id", h.GetOrder)
		v1.POST("/orders/:id/cancel", h.CancelOrder)
		v1.PATCH("/orders/:id/status", h.UpdateOrderStatus)
	}

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
