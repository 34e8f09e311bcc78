package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/cronlock/internal/domain"
)

// Message: конверт оповещения в очереди.
type Message struct {
	ID        string           `json:"id"`
	Type      domain.AlertKind `json:"type"`
	Alert     domain.Alert     `json:"alert"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewMessage оборачивает оповещение в конверт с новым ID.
func NewMessage(alert domain.Alert) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      alert.Kind,
		Alert:     alert,
		Timestamp: time.Now().UTC(),
	}
}

// decodeMessage разбирает тело сообщения и проверяет тип.
func decodeMessage(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("unmarshal message: %w", err)
	}
	if !knownKind(msg.Type) {
		return msg, fmt.Errorf("unknown alert type %q", msg.Type)
	}
	return msg, nil
}

func knownKind(kind domain.AlertKind) bool {
	for _, key := range alertRoutingKeys {
		if RoutingKey(kind) == key {
			return true
		}
	}
	return false
}

// Publisher публикует оповещения в cronlock.alerts.
// Реализует runner.Notifier.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Notify публикует оповещение с routing key, равным его типу.
func (p *Publisher) Notify(ctx context.Context, alert domain.Alert) error {
	if !knownKind(alert.Kind) {
		return fmt.Errorf("unknown alert type %q", alert.Kind)
	}
	return p.Publish(ctx, ExchangeAlerts, RoutingKey(alert.Kind), NewMessage(alert))
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("alert published",
			"routing_key", routingKey,
			"message_id", msg.ID,
			"job", msg.Alert.Job,
		)
		return nil
	})
}
