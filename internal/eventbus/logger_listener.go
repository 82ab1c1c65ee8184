package eventbus

import (
	"context"

	"github.com/annel0/replay-engine/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог компонента events.
// Функция неблокирующая.
func StartLoggingListener(ctx context.Context, bus EventBus) (Subscription, error) {
	logger := logging.GetComponentLogger("events")
	sub, err := bus.Subscribe(ctx, Filter{}, func(ctx context.Context, ev *Envelope) {
		logger.Debug("[EventBus] %s %s session=%s src=%s size=%dB", ev.ID, ev.EventType, ev.SessionID, ev.Source, len(ev.Payload))
	})
	if err != nil {
		return nil, err
	}
	logger.Info("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}
