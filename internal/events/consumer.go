package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/bookstore/fulfillment/internal/metrics"
	"github.com/bookstore/fulfillment/internal/repo"
)

// Consumer is the inventory reconciler's consumption loop. It binds one
// durable queue to the order.paid, order.cancelled and order.refunded
// routing keys and applies each event's stock effect exactly once, relying
// on the order's idempotency flags to stay safe under redelivery.
//
// Delivery discipline:
//   - malformed payload, unknown kind, missing order, idempotency-gate hit:
//     ack and drop, never redeliver;
//   - transient database error: nack + requeue;
//   - insufficient stock on the paid path: requeue once, then dead-letter to
//     order_events.dlx with an error log for alerting.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	repo    *repo.ReconcileRepo
	log     *zap.Logger
}

// NewConsumer connects to RabbitMQ and declares the reconciler topology:
// the order_events exchange, the dead-letter exchange and queue, and the
// work queue bound to the three order lifecycle routing keys.
func NewConsumer(url string, repository *repo.ReconcileRepo, log *zap.Logger) (*Consumer, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial: amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	c := &Consumer{
		conn:    conn,
		channel: ch,
		repo:    repository,
		log:     log,
	}

	if err := c.declareTopology(); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	log.Info("Consumer connected to RabbitMQ",
		zap.String("exchange", ExchangeName),
		zap.String("queue", QueueName),
	)
	return c, nil
}

func (c *Consumer) declareTopology() error {
	if err := c.channel.ExchangeDeclare(
		ExchangeName, ExchangeType,
		true, false, false, false, nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := c.channel.ExchangeDeclare(
		DeadLetterExchange, ExchangeType,
		true, false, false, false, nil,
	); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	if _, err := c.channel.QueueDeclare(
		DeadLetterQueue,
		true, false, false, false, nil,
	); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}

	// Dead-lettered messages keep their original routing key.
	routingKeys := []string{"order.paid", "order.cancelled", "order.refunded"}
	for _, key := range routingKeys {
		if err := c.channel.QueueBind(DeadLetterQueue, key, DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind dead-letter queue to %s: %w", key, err)
		}
	}

	if _, err := c.channel.QueueDeclare(
		QueueName,
		true, false, false, false,
		amqp.Table{"x-dead-letter-exchange": DeadLetterExchange},
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range routingKeys {
		if err := c.channel.QueueBind(QueueName, key, ExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
		c.log.Info("Listening for events", zap.String("routing_key", key))
	}

	// One unacknowledged message at a time: within this process no two
	// deliveries ever mutate the same order concurrently.
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	return nil
}

// Start consumes until the context is cancelled or the channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		QueueName,
		"inventory-reconciler", // consumer tag
		false,                  // auto-ack
		false,                  // exclusive
		false,                  // no-local
		false,                  // no-wait
		nil,                    // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	kind := KindFromRoutingKey(msg.RoutingKey)
	c.log.Info("Received order event",
		zap.String("routing_key", msg.RoutingKey),
		zap.Bool("redelivered", msg.Redelivered),
	)

	var event OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		// A payload this consumer cannot parse will never become parseable;
		// redelivering it would loop forever.
		c.log.Error("Dropping malformed order event",
			zap.String("routing_key", msg.RoutingKey),
			zap.Error(err),
		)
		metrics.EventsConsumed.WithLabelValues(kind.String(), "malformed").Inc()
		msg.Ack(false)
		return
	}

	lines := make([]repo.StockLine, 0, len(event.Items))
	for _, item := range event.Items {
		lines = append(lines, repo.StockLine{
			BookID:   item.BookID,
			Quantity: item.Quantity,
		})
	}

	switch kind {
	case KindPaid:
		c.handlePaid(ctx, msg, event.OrderID, lines)
	case KindCancelled, KindRefunded:
		c.handleRestock(ctx, msg, kind, event.OrderID, lines)
	case KindUnknown:
		c.log.Warn("Dropping event with unknown routing key",
			zap.String("routing_key", msg.RoutingKey),
		)
		metrics.EventsConsumed.WithLabelValues(kind.String(), "unknown_key").Inc()
		msg.Ack(false)
	}
}

func (c *Consumer) handlePaid(ctx context.Context, msg amqp.Delivery, orderID uint, lines []repo.StockLine) {
	outcome, err := c.repo.ApplyPaidEffect(ctx, orderID, lines)
	if err != nil {
		c.log.Error("Database error applying paid effect, requeueing",
			zap.Uint("order_id", orderID),
			zap.Error(err),
		)
		metrics.EventsConsumed.WithLabelValues(KindPaid.String(), "db_error").Inc()
		msg.Nack(false, true)
		return
	}

	metrics.EventsConsumed.WithLabelValues(KindPaid.String(), outcome.String()).Inc()

	switch outcome {
	case repo.OutcomeApplied, repo.OutcomeAlreadyProcessed, repo.OutcomeOrderMissing:
		msg.Ack(false)
	case repo.OutcomeInsufficientStock:
		if msg.Redelivered {
			c.log.Error("Insufficient stock on redelivery, dead-lettering",
				zap.Uint("order_id", orderID),
			)
			msg.Nack(false, false)
			return
		}
		c.log.Warn("Insufficient stock at reconciliation, requeueing once",
			zap.Uint("order_id", orderID),
		)
		msg.Nack(false, true)
	default:
		msg.Ack(false)
	}
}

func (c *Consumer) handleRestock(ctx context.Context, msg amqp.Delivery, kind Kind, orderID uint, lines []repo.StockLine) {
	outcome, err := c.repo.ApplyRestockEffect(ctx, orderID, lines)
	if err != nil {
		c.log.Error("Database error applying restock effect, requeueing",
			zap.Uint("order_id", orderID),
			zap.Error(err),
		)
		metrics.EventsConsumed.WithLabelValues(kind.String(), "db_error").Inc()
		msg.Nack(false, true)
		return
	}

	metrics.EventsConsumed.WithLabelValues(kind.String(), outcome.String()).Inc()
	msg.Ack(false)
}

// IsHealthy checks if the consumer connection is alive.
func (c *Consumer) IsHealthy() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Close closes the consumer channel and connection.
func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
