package runner

import (
	"context"

	"github.com/shaiso/cronlock/internal/domain"
)

// Notifier доставляет оповещения оператору (mq.Publisher).
// Ошибка доставки логируется и не меняет исход запуска.
type Notifier interface {
	Notify(ctx context.Context, alert domain.Alert) error
}
