// Package analyzer строит кеш быстрого режима за один проход по записи.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/logging"
	"github.com/annel0/replay-engine/internal/metrics"
	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/state"
)

// Analyzer превращает поток пакетов записи в шкалы состояний и пишет их в кеш
type Analyzer struct {
	registry *protocol.Registry
	logger   *logging.Logger
	metrics  *metrics.Collector
}

// New создаёт анализатор для версии протокола registry
func New(registry *protocol.Registry, logger *logging.Logger) *Analyzer {
	if logger == nil {
		logger = logging.GetAnalyzerLogger()
	}
	return &Analyzer{registry: registry, logger: logger}
}

// WithMetrics включает учёт обработанных пакетов
func (a *Analyzer) WithMetrics(c *metrics.Collector) *Analyzer {
	a.metrics = c
	return a
}

// Analyze читает source до конца и пишет поток индекса в index, поток данных в data.
// duration - длительность записи в мс, нужна только для прогресса.
// progress может быть nil. Отмена ctx проверяется между пакетами и
// возвращается как обычная ошибка; записанное к этому моменту не имеет смысла.
func (a *Analyzer) Analyze(ctx context.Context, source protocol.Source, duration int32,
	index, data io.Writer, progress func(float64)) error {
	started := time.Now()
	version := int32(a.registry.Version())
	if err := cache.WriteHeader(index, version); err != nil {
		return err
	}
	if err := cache.WriteHeader(data, version); err != nil {
		return err
	}

	codec, err := cache.NewPacketCodec(a.registry)
	if err != nil {
		return err
	}
	defer codec.Close()

	s := newSession(a.registry, state.NewReplayBuilder(state.NewOutput(data, codec)))
	report := newProgress(duration, progress)

	var (
		now   int32
		count int
	)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("анализ прерван: %w", err)
		}
		tp, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("не удалось прочитать запись: %w", err)
		}
		now = tp.Time
		if err := s.handle(now, tp.Packet); err != nil {
			return fmt.Errorf("пакет %s в %d мс: %w", tp.Packet.Kind, now, err)
		}
		a.metrics.PacketAnalyzed(tp.Packet.Kind.String())
		count++
		report.at(now)
	}

	idx, err := s.finish(now)
	if err != nil {
		return err
	}
	if _, err := idx.WriteTo(index); err != nil {
		return fmt.Errorf("не удалось записать индекс кеша: %w", err)
	}
	report.done()

	elapsed := time.Since(started)
	a.metrics.AnalysisFinished(elapsed)
	a.logger.Info("🔍 Запись проанализирована: %d пакетов, %d миров, %d байт данных за %v",
		count, s.worlds, idx.Size, elapsed)
	return nil
}

// до конца разбора доля не достигает 1; ровно 1 сообщает только done
const progressCeiling = 0.999

// progress переводит время записи в долю [0, 1], не убывающую между вызовами
type progress struct {
	fn       func(float64)
	duration int32
	last     float64
}

func newProgress(duration int32, fn func(float64)) *progress {
	return &progress{fn: fn, duration: duration}
}

func (p *progress) at(t int32) {
	if p.fn == nil {
		return
	}
	var v float64
	if p.duration > 0 {
		v = float64(t) / float64(p.duration)
	}
	if v > progressCeiling {
		v = progressCeiling
	}
	if v > p.last {
		p.last = v
	}
	p.fn(p.last)
}

func (p *progress) done() {
	if p.fn == nil {
		return
	}
	p.last = 1
	p.fn(1)
}
