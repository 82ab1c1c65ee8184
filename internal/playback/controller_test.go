package playback

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/container"
	"github.com/annel0/replay-engine/internal/eventbus"
	"github.com/annel0/replay-engine/internal/metrics"
	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/vec"
)

var (
	overworld = protocol.WorldInfo{Dimension: "minecraft:overworld", DimensionType: "overworld", Height: 256}
	nether    = protocol.WorldInfo{Dimension: "minecraft:the_nether", DimensionType: "the_nether", Height: 256}
)

const sessionEnd = 120

// session - запись с двумя переходами между мирами. В аду время
// приходит не сразу после входа.
func session(t *testing.T) (*protocol.Registry, []protocol.TimedPacket) {
	t.Helper()
	r, err := protocol.NewRegistry(protocol.V1_16)
	require.NoError(t, err)

	var packets []protocol.TimedPacket
	at := func(time int32, p protocol.Packet) {
		packets = append(packets, protocol.TimedPacket{Time: time, Packet: p})
	}
	chunk := func(x, z int32) protocol.Packet {
		return protocol.ChunkData{Pos: vec.ChunkPos{X: x, Z: z}, Full: true}.Encode(r)
	}
	notify := func(reason uint8) protocol.Packet {
		return protocol.NotifyClient{Reason: reason}.Encode(r)
	}

	at(0, r.Raw(protocol.KindTags, []byte{1}))
	at(0, protocol.JoinGame{EntityID: 1, World: overworld, ViewDistance: 8, SimulationDistance: 6}.Encode(r))
	at(0, protocol.UpdateTime{WorldAge: 100, TimeOfDay: 1000}.Encode(r))
	at(5, chunk(0, 0))
	at(5, chunk(1, 0))
	at(10, protocol.SpawnEntity{EntityID: 3, Type: 1, Location: vec.Location{X: 1, Y: 64, Z: 1}}.Encode(r, protocol.KindSpawnMob))
	at(15, protocol.BlockChange{Pos: vec.BlockPos{X: 2, Y: 60, Z: 2}, State: 5}.Encode(r))
	at(20, protocol.EntityMove{EntityID: 3, DX: 1}.Encode(r, protocol.KindEntityPosition))
	at(25, notify(protocol.NotifyBeginRain))
	at(30, protocol.UpdateTime{WorldAge: 200, TimeOfDay: 1100}.Encode(r))
	at(35, protocol.BlockChange{Pos: vec.BlockPos{X: 2, Y: 60, Z: 2}, State: 6}.Encode(r))
	at(35, protocol.MultiBlockChange{Chunk: vec.ChunkPos{X: 1}, Records: []protocol.BlockChange{
		{Pos: vec.BlockPos{X: 17, Y: 61, Z: 3}, State: 7},
	}}.Encode(r))
	at(40, protocol.EncodeTeleport(r, 3, vec.Location{X: 5, Y: 70, Z: 5}, true))
	at(45, notify(protocol.NotifyEndRain))
	at(50, protocol.NotifyClient{Reason: protocol.NotifyThunderStrength, Value: 0.8}.Encode(r))
	at(50, protocol.EncodeUnloadChunk(r, vec.ChunkPos{X: 1}))
	at(55, protocol.EncodeDestroyEntities(r, 3))
	at(60, protocol.SpawnEntity{EntityID: 4, Type: 2, Location: vec.Location{Y: 64}}.Encode(r, protocol.KindSpawnObject))
	at(70, protocol.Respawn{World: nether}.Encode(r))
	at(75, chunk(0, 0))
	at(78, protocol.UpdateTime{WorldAge: 300, TimeOfDay: 5000}.Encode(r))
	at(80, protocol.SpawnEntity{EntityID: 9, Type: 1, Location: vec.Location{X: 3, Y: 40, Z: 3}}.Encode(r, protocol.KindSpawnMob))
	at(85, protocol.BlockChange{Pos: vec.BlockPos{X: 1, Y: 30, Z: 1}, State: 2}.Encode(r))
	at(90, notify(protocol.NotifyBeginRain))
	at(100, protocol.Respawn{World: overworld}.Encode(r))
	at(100, protocol.UpdateTime{WorldAge: 400, TimeOfDay: 6000}.Encode(r))
	at(105, chunk(2, 2))
	at(sessionEnd, r.Raw(protocol.KindKeepAlive, nil))
	return r, packets
}

// newContainer пишет запись в каталог и держит слоты кеша в памяти
func newContainer(t *testing.T, packets []protocol.TimedPacket) (container.Container, *container.MemorySlots) {
	t.Helper()
	var buf bytes.Buffer
	w := protocol.NewRecordingWriter(&buf)
	for _, tp := range packets {
		require.NoError(t, w.WritePacket(tp.Time, tp.Packet))
	}
	dir := t.TempDir()
	meta := container.Meta{Duration: sessionEnd, Protocol: int32(protocol.V1_16)}
	require.NoError(t, container.WriteDir(dir, meta, &buf))

	slots := container.NewMemorySlots()
	c := container.New(container.NewDirRecording(dir), slots)
	t.Cleanup(func() { c.Close() })
	return c, slots
}

// expected - состояние клиента после всех пакетов записи до target включительно
func expected(t *testing.T, packets []protocol.TimedPacket, target int32) view {
	c := newClient(t)
	for _, tp := range packets {
		if tp.Time > target {
			break
		}
		require.NoError(t, c.apply(tp.Packet))
	}
	return c.view()
}

func load(t *testing.T, c container.Container, r *protocol.Registry, cl *client, opts ...Option) *Controller {
	t.Helper()
	ctl := New(c, r, cl.apply, opts...)
	require.NoError(t, ctl.Load(context.Background(), nil))
	t.Cleanup(ctl.Release)
	return ctl
}

func TestController_ForwardEquivalence(t *testing.T) {
	r, packets := session(t)
	c, _ := newContainer(t, packets)

	for target := int32(0); target <= sessionEnd; target += 5 {
		cl := newClient(t)
		ctl := load(t, c, r, cl)
		require.NoError(t, ctl.Seek(target))
		assert.Equal(t, expected(t, packets, target), cl.view(), "перемотка с начала до %d", target)
		assert.Equal(t, target, ctl.CurrentTime())
	}
}

func TestController_SeekRoundTrips(t *testing.T) {
	r, packets := session(t)
	c, _ := newContainer(t, packets)
	cl := newClient(t)
	ctl := load(t, c, r, cl)

	targets := []int32{
		40, 20, 60, 12, 85, 30, 110, 50, 95, 0, 115, 72, 71, 5, 100, 99, 35, 34, 45,
		60, 49, 90, 74, sessionEnd, 10, sessionEnd, 105,
	}
	for _, target := range targets {
		require.NoError(t, ctl.Seek(target))
		assert.Equal(t, expected(t, packets, target), cl.view(), "перемотка %d", target)
	}

	t.Run("откат до первого значения возвращает исходные время и грозу", func(t *testing.T) {
		require.NoError(t, ctl.Seek(65))
		require.Equal(t, float32(0.8), cl.view().Thunder)
		require.NoError(t, ctl.Seek(20))
		assert.Zero(t, cl.view().Thunder, "гроза до первого пакета")

		require.NoError(t, ctl.Seek(90))
		require.Equal(t, int64(5000), cl.view().Time.TimeOfDay)
		require.NoError(t, ctl.Seek(76))
		assert.Equal(t, protocol.UpdateTime{}, cl.view().Time, "время ада до первого пакета")
		assert.Equal(t, expected(t, packets, 76), cl.view())
	})

	t.Run("повторная перемотка в то же время ничего не меняет", func(t *testing.T) {
		before := cl.view()
		require.NoError(t, ctl.Seek(ctl.CurrentTime()))
		assert.Equal(t, before, cl.view())
	})

	t.Run("после Reset перемотка идёт с нуля", func(t *testing.T) {
		fresh := newClient(t)
		ctl.sink = fresh.apply
		ctl.Reset()
		assert.Equal(t, int32(-1), ctl.CurrentTime())
		require.NoError(t, ctl.Seek(65))
		assert.Equal(t, expected(t, packets, 65), fresh.view())
	})
}

// events собирает события шины
type events struct {
	mu    sync.Mutex
	types []string
}

func (e *events) handle(_ context.Context, ev *eventbus.Envelope) {
	e.mu.Lock()
	e.types = append(e.types, ev.EventType)
	e.mu.Unlock()
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.types...)
}

func TestController_Load(t *testing.T) {
	r, packets := session(t)
	c, slots := newContainer(t, packets)

	bus := eventbus.NewMemoryBus(64)
	var got events
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{}, got.handle)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m := metrics.New("test", reg)

	var progress []float64
	first := New(c, r, newClient(t).apply, WithEventBus(bus), WithMetrics(m))
	require.NoError(t, first.Load(context.Background(), func(p float64) { progress = append(progress, p) }))
	assert.Equal(t, int32(sessionEnd), first.Duration())
	assert.Equal(t, int32(-1), first.CurrentTime())
	assert.True(t, first.Loaded())

	require.NotEmpty(t, progress)
	for i, p := range progress {
		if i > 0 {
			assert.GreaterOrEqual(t, p, progress[i-1], "прогресс не убывает")
		}
	}
	assert.InDelta(t, 1.0, progress[len(progress)-1], 1e-9)
	assert.Contains(t, progress, analysisShare, "анализ занимает 90% прогресса")

	for _, name := range []string{cache.IndexSlot, cache.DataSlot} {
		rc, err := slots.OpenSlot(context.Background(), name)
		require.NoError(t, err, "слот %s сохранён", name)
		rc.Close()
	}

	second := New(c, r, newClient(t).apply, WithEventBus(bus), WithMetrics(m))
	require.NoError(t, second.Load(context.Background(), nil))
	assert.NotEqual(t, first.SessionID(), second.SessionID())
	require.NoError(t, second.Seek(40))
	second.Release()
	assert.False(t, second.Loaded())
	first.Release()

	require.NoError(t, bus.Close())
	assert.Equal(t, []string{
		eventbus.TypeCacheBuilt, eventbus.TypeCacheLoaded,
		eventbus.TypeCacheLoaded, eventbus.TypeSeek, eventbus.TypeReleased,
		eventbus.TypeReleased,
	}, got.list(), "второй контроллер берёт готовый кеш")
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP test_cache_loads_total Попытки загрузить готовый кеш по результату.
# TYPE test_cache_loads_total counter
test_cache_loads_total{result="hit"} 2
test_cache_loads_total{result="miss"} 1
`), "test_cache_loads_total"))
}

func TestController_CorruptCache(t *testing.T) {
	r, packets := session(t)
	c, slots := newContainer(t, packets)

	w, err := slots.CreateSlot(context.Background(), cache.IndexSlot)
	require.NoError(t, err)
	_, err = w.Write([]byte{cache.Version + 1, 0})
	require.NoError(t, err)
	require.NoError(t, w.Commit())
	w, err = slots.CreateSlot(context.Background(), cache.DataSlot)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	cl := newClient(t)
	ctl := load(t, c, r, cl)
	require.NoError(t, ctl.Seek(40))
	assert.Equal(t, expected(t, packets, 40), cl.view(), "непригодный кеш построен заново")
}

func TestController_TruncatedCache(t *testing.T) {
	r, packets := session(t)
	c, slots := newContainer(t, packets)
	load(t, c, r, newClient(t))

	rc, err := slots.OpenSlot(context.Background(), cache.DataSlot)
	require.NoError(t, err)
	var data bytes.Buffer
	_, err = data.ReadFrom(rc)
	require.NoError(t, err)
	rc.Close()
	w, err := slots.CreateSlot(context.Background(), cache.DataSlot)
	require.NoError(t, err)
	_, err = w.Write(data.Bytes()[:data.Len()/2])
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	cl := newClient(t)
	ctl := load(t, c, r, cl)
	require.NoError(t, ctl.Seek(90))
	assert.Equal(t, expected(t, packets, 90), cl.view())
}

func TestController_LoadFailure(t *testing.T) {
	r, packets := session(t)

	t.Run("отмена", func(t *testing.T) {
		c, slots := newContainer(t, packets)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ctl := New(c, r, ignore)
		err := ctl.Load(ctx, nil)
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, ctl.Loaded())
		_, err = slots.OpenSlot(context.Background(), cache.IndexSlot)
		assert.ErrorIs(t, err, container.ErrSlotNotFound, "прерванный анализ ничего не сохраняет")
	})

	t.Run("битая запись", func(t *testing.T) {
		broken := append([]protocol.TimedPacket(nil), packets[:5]...)
		broken = append(broken, protocol.TimedPacket{Time: 6, Packet: r.Raw(protocol.KindChunkData, []byte{1})})
		c, slots := newContainer(t, broken)
		err := New(c, r, ignore).Load(context.Background(), nil)
		require.Error(t, err)
		_, err = slots.OpenSlot(context.Background(), cache.DataSlot)
		assert.ErrorIs(t, err, container.ErrSlotNotFound)
	})

	t.Run("ошибка получателя", func(t *testing.T) {
		c, _ := newContainer(t, packets)
		boom := errors.New("boom")
		ctl := New(c, r, func(protocol.Packet) error { return boom })
		require.NoError(t, ctl.Load(context.Background(), nil))
		defer ctl.Release()
		assert.ErrorIs(t, ctl.Seek(10), boom)
		assert.Equal(t, int32(-1), ctl.CurrentTime(), "время не меняется при ошибке")
	})
}

func TestController_SeekBeforeLoad(t *testing.T) {
	r, packets := session(t)
	c, _ := newContainer(t, packets)
	ctl := New(c, r, ignore)
	assert.PanicsWithValue(t, ErrNotLoaded, func() { _ = ctl.Seek(10) })

	require.NoError(t, ctl.Load(context.Background(), nil))
	ctl.Release()
	ctl.Release()
	assert.PanicsWithValue(t, ErrNotLoaded, func() { _ = ctl.Seek(10) }, "после Release модель недоступна")
}

func ignore(protocol.Packet) error { return nil }
