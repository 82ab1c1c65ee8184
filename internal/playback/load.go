package playback

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/replay-engine/internal/analyzer"
	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/container"
	"github.com/annel0/replay-engine/internal/eventbus"
	"github.com/annel0/replay-engine/internal/metrics"
	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/state"
)

// analysisShare - доля прогресса, отведённая анализу; остаток - загрузке кеша
const analysisShare = 0.9

// Load загружает кеш записи, при необходимости построив его анализом.
// progress может быть nil. После успешной загрузки текущее время сброшено.
func (c *Controller) Load(ctx context.Context, progress func(float64)) (err error) {
	ctx, span := c.tracer.Start(ctx, "playback.Load",
		trace.WithAttributes(attribute.String("session.id", c.sessionID)))
	started := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			c.metrics.LoadFinished(time.Since(started))
		}
		span.End()
	}()

	meta, err := c.container.Meta(ctx)
	if err != nil {
		return err
	}
	c.duration = meta.Duration
	if version := int32(c.registry.Version()); meta.Protocol != 0 && meta.Protocol != version {
		c.logger.Warn("Протокол записи %d, воспроизведение идёт протоколом %d", meta.Protocol, version)
	}
	if progress == nil {
		progress = func(float64) {}
	}

	ok, err := c.tryLoadFromCache(ctx, progress)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Bool("cache.hit", ok))
	if !ok {
		if err := c.analyse(ctx, func(p float64) { progress(p * analysisShare) }); err != nil {
			return err
		}
		ok, err = c.tryLoadFromCache(ctx, func(p float64) { progress(analysisShare + p*(1-analysisShare)) })
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: построенный кеш не читается", cache.ErrCorrupt)
		}
	}
	c.Reset()
	return nil
}

// tryLoadFromCache загружает готовый кеш. false без ошибки означает, что
// пригодного кеша нет и его нужно построить.
func (c *Controller) tryLoadFromCache(ctx context.Context, progress func(float64)) (bool, error) {
	c.Release()

	_, span := c.tracer.Start(ctx, "playback.LoadCache")
	defer span.End()
	started := time.Now()

	index, err := c.container.OpenSlot(ctx, cache.IndexSlot)
	if errors.Is(err, container.ErrSlotNotFound) {
		c.metrics.CacheLoad(metrics.CacheMiss)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer index.Close()

	data, err := c.container.OpenSlot(ctx, cache.DataSlot)
	if errors.Is(err, container.ErrSlotNotFound) {
		c.metrics.CacheLoad(metrics.CacheMiss)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer data.Close()

	err = c.loadCache(index, data, progress)
	if cache.IsInvalid(err) {
		c.logger.Warn("⚠️ Кеш записи непригоден, запись будет проанализирована заново: %v", err)
		c.metrics.CacheLoad(metrics.CacheCorrupt)
		c.publish(ctx, eventbus.TypeCacheInvalid, eventbus.CacheInvalid{Reason: err.Error()})
		return false, nil
	}
	if err != nil {
		return false, err
	}

	elapsed := time.Since(started)
	size := c.store.Size()
	c.metrics.CacheLoad(metrics.CacheHit)
	c.metrics.CacheSize(size)
	span.SetAttributes(attribute.Int("cache.bytes", size))
	c.logger.Info("📦 Кеш загружен: %d КБ за %v", size/1024, elapsed)
	c.publish(ctx, eventbus.TypeCacheLoaded, eventbus.CacheLoaded{
		Bytes: size, FromCache: true, ElapsedMs: elapsed.Milliseconds(),
	})
	return true, nil
}

func (c *Controller) loadCache(indexIn, dataIn io.Reader, progress func(float64)) error {
	version := int32(c.registry.Version())
	if err := cache.ReadHeader(indexIn, version); err != nil {
		return err
	}
	if err := cache.ReadHeader(dataIn, version); err != nil {
		return err
	}
	idx, err := state.ReadIndex(indexIn)
	if err != nil {
		return err
	}
	c.checkMemory(idx.Size)

	reader, err := cache.Load(dataIn, idx.Size, c.chunkSize, progress)
	if err != nil {
		return err
	}
	codec, err := cache.NewPacketCodec(c.registry)
	if err != nil {
		return err
	}
	store := state.NewStore(reader, codec)
	replay := state.NewReplay(store, idx)
	if err := replay.Load(state.Discard); err != nil {
		store.Release()
		codec.Close()
		return err
	}
	c.codec, c.store, c.replay = codec, store, replay
	return nil
}

// checkMemory предупреждает, если буфер кеша не помещается в свободную память
func (c *Controller) checkMemory(size int32) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Debug("Не удалось получить сведения о памяти: %v", err)
		return
	}
	if uint64(size) > vm.Available {
		c.logger.Warn("⚠️ Буфер кеша %d МБ больше свободной памяти %d МБ",
			size>>20, vm.Available>>20)
	}
}

// analyse строит кеш. Слоты фиксируются только после успешного анализа,
// при любой ошибке оба отбрасываются.
func (c *Controller) analyse(ctx context.Context, progress func(float64)) (err error) {
	ctx, span := c.tracer.Start(ctx, "playback.Analyse")
	defer span.End()
	started := time.Now()

	rc, err := c.container.OpenRecording(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	dataSlot, err := c.container.CreateSlot(ctx, cache.DataSlot)
	if err != nil {
		return err
	}
	defer abortOnError(dataSlot, &err)
	indexSlot, err := c.container.CreateSlot(ctx, cache.IndexSlot)
	if err != nil {
		return err
	}
	defer abortOnError(indexSlot, &err)

	index := &countingWriter{w: bufio.NewWriter(indexSlot)}
	data := &countingWriter{w: bufio.NewWriter(dataSlot)}
	source := protocol.NewRecordingReader(bufio.NewReader(rc), c.registry)
	err = analyzer.New(c.registry, nil).WithMetrics(c.metrics).
		Analyze(ctx, source, c.duration, index, data, progress)
	if err != nil {
		return err
	}
	if err = index.flush(); err != nil {
		return err
	}
	if err = data.flush(); err != nil {
		return err
	}
	// Индекс фиксируется последним: без него кеш считается отсутствующим
	if err = dataSlot.Commit(); err != nil {
		return err
	}
	if err = indexSlot.Commit(); err != nil {
		return err
	}

	elapsed := time.Since(started)
	span.SetAttributes(attribute.Int64("cache.bytes", data.n))
	c.publish(ctx, eventbus.TypeCacheBuilt, eventbus.CacheBuilt{
		Duration:  c.duration,
		Protocol:  int32(c.registry.Version()),
		Bytes:     int32(data.n),
		ElapsedMs: elapsed.Milliseconds(),
	})
	return nil
}

func abortOnError(w container.SlotWriter, err *error) {
	if *err == nil {
		return
	}
	if abortErr := w.Abort(); abortErr != nil {
		*err = errors.Join(*err, abortErr)
	}
}

// countingWriter буферизует запись в слот и считает байты
type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (cw *countingWriter) flush() error {
	if err := cw.w.Flush(); err != nil {
		return fmt.Errorf("не удалось записать кеш: %w", err)
	}
	return nil
}
