package mq

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает оповещение. Ошибка: сообщение возвращается в очередь.
type Handler func(ctx context.Context, msg Message) error

// ConsumerConfig: конфигурация Consumer.
type ConsumerConfig struct {
	Queue    Queue // default: alerts.jobs
	Handler  Handler
	Prefetch int // default: 10
}

// Consumer читает оповещения из очереди (cronlock alerts watch).
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	prefetch int
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	queue := cfg.Queue
	if queue == "" {
		queue = QueueAlerts
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Run читает сообщения до отмены ctx, переживая переподключения.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Warn("alert consumer waiting for connection", "queue", c.queue, "error", err)
		} else {
			c.logger.Info("alert consumer started", "queue", c.queue)
			if c.drain(ctx, deliveries) {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed", "queue", c.queue)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.Reconnected():
		}
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery
	err := c.conn.WithChannel(context.Background(), func(ch *amqp.Channel) error {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return err
		}
		d, err := ch.Consume(string(c.queue), "", false, false, false, false, nil)
		if err != nil {
			return err
		}
		deliveries = d
		return nil
	})
	return deliveries, err
}

// drain обрабатывает доставки. true: остановлен через ctx.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case raw, ok := <-deliveries:
			if !ok {
				return false
			}
			c.handle(ctx, raw)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) {
	msg, err := decodeMessage(raw.Body)
	if err != nil {
		c.logger.Error("malformed alert, dead-lettering", "queue", c.queue, "error", err)
		raw.Nack(false, false)
		return
	}

	if err := c.handler(ctx, msg); err != nil {
		c.logger.Error("alert handler failed", "message_id", msg.ID, "error", err)
		raw.Nack(false, true)
		return
	}
	raw.Ack(false)
}
