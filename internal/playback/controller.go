// Package playback управляет перемоткой записи по загруженному кешу.
package playback

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/container"
	"github.com/annel0/replay-engine/internal/eventbus"
	"github.com/annel0/replay-engine/internal/logging"
	"github.com/annel0/replay-engine/internal/metrics"
	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/state"
)

// ErrNotLoaded - перемотка вызвана до успешного Load
var ErrNotLoaded = errors.New("запись не загружена")

const eventSource = "playback"

// Option настраивает Controller
type Option func(*Controller)

// WithLogger задаёт логгер вместо логгера компонента playback
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics включает Prometheus-метрики
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithEventBus включает публикацию событий жизненного цикла
func WithEventBus(bus eventbus.EventBus) Option {
	return func(c *Controller) { c.bus = bus }
}

// WithTracer задаёт трассировщик; по умолчанию берётся глобальный провайдер
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// WithChunkSize задаёт размер порции чтения потока данных
func WithChunkSize(n int) Option {
	return func(c *Controller) { c.chunkSize = n }
}

// Controller владеет загруженной моделью и буфером кеша одной записи.
// Не потокобезопасен: вызовы должны быть упорядочены снаружи.
type Controller struct {
	container container.Container
	registry  *protocol.Registry
	sink      state.Sink

	logger    *logging.Logger
	metrics   *metrics.Collector
	bus       eventbus.EventBus
	tracer    trace.Tracer
	chunkSize int

	sessionID string
	duration  int32
	current   int32

	codec  *cache.PacketCodec
	store  *state.Store
	replay *state.Replay
}

// New создаёт контроллер. Пакеты перемотки уходят в sink.
func New(c container.Container, registry *protocol.Registry, sink state.Sink, opts ...Option) *Controller {
	ctl := &Controller{
		container: c,
		registry:  registry,
		sink:      sink,
		sessionID: uuid.NewString(),
		chunkSize: cache.ReadChunkSize,
		current:   -1,
	}
	for _, opt := range opts {
		opt(ctl)
	}
	if ctl.logger == nil {
		ctl.logger = logging.GetPlaybackLogger()
	}
	if ctl.tracer == nil {
		ctl.tracer = otel.Tracer("github.com/annel0/replay-engine/internal/playback")
	}
	return ctl
}

// SessionID возвращает идентификатор сессии воспроизведения
func (c *Controller) SessionID() string {
	return c.sessionID
}

// CurrentTime возвращает время последней перемотки; -1 после Reset
func (c *Controller) CurrentTime() int32 {
	return c.current
}

// Duration возвращает длительность записи из метаданных
func (c *Controller) Duration() int32 {
	return c.duration
}

// Loaded сообщает, загружена ли модель
func (c *Controller) Loaded() bool {
	return c.replay != nil
}

// Summary описывает загруженную модель: миры и их объекты
func (c *Controller) Summary() (state.Summary, error) {
	if c.replay == nil {
		return state.Summary{}, ErrNotLoaded
	}
	return c.replay.Summary()
}

// Reset сбрасывает текущее время: следующая перемотка начнётся с пустого состояния
func (c *Controller) Reset() {
	c.current = -1
}

// Seek переводит клиента из текущего времени в target.
// Вызов до Load - ошибка программы и приводит к панике.
func (c *Controller) Seek(target int32) error {
	if c.replay == nil {
		panic(ErrNotLoaded)
	}
	_, span := c.tracer.Start(context.Background(), "playback.Seek", trace.WithAttributes(
		attribute.Int("seek.from", int(c.current)),
		attribute.Int("seek.to", int(target)),
	))
	defer span.End()
	started := time.Now()
	var packets int
	sink := func(p protocol.Packet) error {
		packets++
		return c.sink(p)
	}

	from := c.current
	direction := metrics.DirectionPlay
	var err error
	if target > from {
		err = c.replay.Play(sink, from, target)
	} else {
		direction = metrics.DirectionRewind
		err = c.replay.Rewind(sink, from, target)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	c.current = target
	span.SetAttributes(attribute.Int("seek.packets", packets))

	elapsed := time.Since(started)
	c.metrics.Seek(direction, elapsed, packets)
	c.logger.Debug("⏩ Перемотка %d → %d: %d пакетов за %v", from, target, packets, elapsed)
	c.publish(context.Background(), eventbus.TypeSeek, eventbus.Seek{From: from, To: target, Packets: packets})
	return nil
}

// Release выгружает модель без отправки пакетов и освобождает буфер кеша
func (c *Controller) Release() {
	if c.replay == nil {
		return
	}
	if err := c.replay.Unload(state.Discard); err != nil {
		c.logger.Warn("Не удалось выгрузить модель: %v", err)
	}
	c.replay = nil
	c.store.Release()
	c.store = nil
	c.codec.Close()
	c.codec = nil
	c.metrics.CacheSize(0)
	c.publish(context.Background(), eventbus.TypeReleased, nil)
}

// publish отправляет событие, если шина задана; ошибки шины не прерывают работу
func (c *Controller) publish(ctx context.Context, eventType string, payload interface{}) {
	if c.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(eventType, eventSource, c.sessionID, payload)
	if err == nil {
		err = c.bus.Publish(ctx, ev)
	}
	if err != nil {
		c.logger.Warn("Не удалось опубликовать %s: %v", eventType, err)
	}
}
