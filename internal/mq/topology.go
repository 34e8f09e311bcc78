package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/cronlock/internal/domain"
)

// Exchange: имя обменника.
type Exchange string

// Queue: имя очереди.
type Queue string

// RoutingKey: ключ маршрутизации. Для оповещений совпадает с domain.AlertKind.
type RoutingKey string

const (
	ExchangeAlerts     Exchange = "cronlock.alerts"
	ExchangeAlertsDead Exchange = "cronlock.alerts.dlx"

	QueueAlerts     Queue = "alerts.jobs"
	QueueAlertsDead Queue = "alerts.dead"

	RoutingKeyDead RoutingKey = "dead"
)

// alertRoutingKeys: ключи, по которым очередь оповещений получает сообщения.
var alertRoutingKeys = []RoutingKey{
	RoutingKey(domain.AlertJobFailed),
	RoutingKey(domain.AlertJobOverrun),
	RoutingKey(domain.AlertReleaseFailed),
}

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
//
//	cronlock.alerts (direct)
//	└── alerts.jobs [job.failed, job.overrun, job.release_failed]
//	        DLX: cronlock.alerts.dlx
//	cronlock.alerts.dlx (direct)
//	└── alerts.dead [dead]
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangeAlerts, ExchangeAlertsDead} {
			if err := ch.ExchangeDeclare(string(ex), amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		// Сообщения, которые не удалось разобрать, уходят в alerts.dead
		alertArgs := amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeAlertsDead),
			"x-dead-letter-routing-key": string(RoutingKeyDead),
		}
		if _, err := ch.QueueDeclare(string(QueueAlerts), true, false, false, false, alertArgs); err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueAlerts, err)
		}
		if _, err := ch.QueueDeclare(string(QueueAlertsDead), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueAlertsDead, err)
		}

		for _, key := range alertRoutingKeys {
			if err := ch.QueueBind(string(QueueAlerts), string(key), string(ExchangeAlerts), false, nil); err != nil {
				return fmt.Errorf("bind %s to %s/%s: %w", QueueAlerts, ExchangeAlerts, key, err)
			}
		}
		if err := ch.QueueBind(string(QueueAlertsDead), string(RoutingKeyDead), string(ExchangeAlertsDead), false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", QueueAlertsDead, ExchangeAlertsDead, err)
		}
		return nil
	})
}
