package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bookstore/fulfillment/internal/api"
	"github.com/bookstore/fulfillment/internal/cache"
	"github.com/bookstore/fulfillment/internal/config"
	"github.com/bookstore/fulfillment/internal/db"
	"github.com/bookstore/fulfillment/internal/events"
	"github.com/bookstore/fulfillment/internal/repo"
	"github.com/bookstore/fulfillment/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	log.Info("Order service starting")

	// Connect to database
	log.Info("Connecting to database...")
	database, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Run migrations
	log.Info("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize repositories
	bookRepo := repo.NewBookRepo(database, log)
	cartRepo := repo.NewCartRepo(database, log)
	orderRepo := repo.NewOrderRepo(database, log)

	// Wrap catalog reads with Redis; run uncached if Redis is down
	var books cache.BookStore = bookRepo
	redisCache, err := cache.NewRedisCache(cfg.RedisAddr, 5*time.Minute)
	if err != nil {
		log.Warn("Redis unavailable, running without catalog cache", zap.Error(err))
	} else {
		defer redisCache.Close()
		books = cache.NewCachedBookRepo(bookRepo, redisCache, log)
	}

	// Connect to RabbitMQ. Order placement does not depend on the broker,
	// so a publish outage degrades to dropped events rather than downtime.
	log.Info("Connecting to RabbitMQ")
	publisher, err := events.NewPublisher(cfg.RabbitMQURL, log)
	if err != nil {
		log.Warn("RabbitMQ unavailable, order events disabled", zap.Error(err))
		publisher = nil
	}
	if publisher != nil {
		defer publisher.Close()
	}

	// Build HTTP server
	handler := api.NewHandler(books, cartRepo, orderRepo, publisher, cfg, log)
	router := api.NewRouter(handler, database, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Server stopped")
}
