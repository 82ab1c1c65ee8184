package state

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/vec"
)

func timelineOf(entries ...int32) *Timeline[string] {
	var tl Timeline[string]
	for _, time := range entries {
		tl.Put(time, string(rune('a'+len(tl.times))))
	}
	return &tl
}

func TestTimeline_PutAndFloor(t *testing.T) {
	tl := timelineOf(10, 30, 20)
	assert.Equal(t, []int32{10, 20, 30}, tl.Times(), "вставка вне порядка сохраняет сортировку")

	tl.Put(20, "x")
	assert.Equal(t, 3, tl.Len(), "повторный момент заменяет значение")
	_, v := tl.At(1)
	assert.Equal(t, "x", v)

	tests := []struct {
		time int32
		want int
		ok   bool
	}{
		{time: 5, ok: false},
		{time: 10, want: 0, ok: true},
		{time: 25, want: 1, ok: true},
		{time: 100, want: 2, ok: true},
	}
	for _, tt := range tests {
		i, ok := tl.Floor(tt.time)
		assert.Equal(t, tt.ok, ok, "floor(%d)", tt.time)
		if ok {
			assert.Equal(t, tt.want, i, "floor(%d)", tt.time)
		}
	}

	lo, hi := tl.Range(10, 30)
	assert.Equal(t, 1, lo)
	assert.Equal(t, 3, hi)
	lo, hi = tl.Range(30, 10)
	assert.Equal(t, lo, hi, "обратный интервал пуст")
}

func TestTimeline_FullApply(t *testing.T) {
	tl := timelineOf(10, 20, 30)
	collect := func(fn func(func(string) error) error) []string {
		var got []string
		require.NoError(t, fn(func(v string) error {
			got = append(got, v)
			return nil
		}))
		return got
	}

	t.Run("play", func(t *testing.T) {
		assert.Equal(t, []string{"b"}, collect(func(f func(string) error) error { return tl.PlayFull(-1, 25, f) }))
		assert.Empty(t, collect(func(f func(string) error) error { return tl.PlayFull(20, 25, f) }),
			"значение уже действовало в current")
		assert.Equal(t, []string{"c"}, collect(func(f func(string) error) error { return tl.PlayFull(25, 35, f) }))
	})

	t.Run("rewind", func(t *testing.T) {
		assert.Equal(t, []string{"a"}, collect(func(f func(string) error) error { return tl.RewindFull(35, 15, f) }))
		assert.Empty(t, collect(func(f func(string) error) error { return tl.RewindFull(25, 22, f) }),
			"в current и target действует одно значение")
		assert.Empty(t, collect(func(f func(string) error) error { return tl.RewindFull(35, 5, f) }),
			"до первого значения шкала молчит")
	})
}

func TestTimeline_DiffApply(t *testing.T) {
	var tl Timeline[int]
	for _, time := range []int32{10, 20, 30, 40} {
		tl.Put(time, int(time))
	}

	var played []int
	require.NoError(t, tl.PlayDiff(10, 30, func(v int) error {
		played = append(played, v)
		return nil
	}))
	assert.Equal(t, []int{20, 30}, played)

	var reverted []int
	require.NoError(t, tl.RewindDiff(40, 10, func(v int) error {
		reverted = append(reverted, v)
		return nil
	}))
	assert.Equal(t, []int{40, 30, 20}, reverted)

	stop := errors.New("stop")
	err := tl.PlayDiff(-1, 40, func(int) error { return stop })
	assert.Equal(t, stop, err)
}

func newTestOutput(t *testing.T) (*Output, *bytes.Buffer, *cache.PacketCodec) {
	t.Helper()
	registry, err := protocol.NewRegistry(protocol.V1_16)
	require.NoError(t, err)
	codec, err := cache.NewPacketCodec(registry)
	require.NoError(t, err)
	t.Cleanup(codec.Close)
	var buf bytes.Buffer
	return NewOutput(&buf, codec), &buf, codec
}

func TestTimeline_Serialization(t *testing.T) {
	out, buf, codec := newTestOutput(t)

	var locations Timeline[vec.Location]
	locations.Put(0, vec.Location{X: 1})
	locations.Put(300, vec.Location{X: 2, Yaw: 90})
	locations.Put(100000, vec.Location{Z: -3.5, Pitch: 45})
	want := locations.Times()

	off, err := writeTimeline(out, &locations, func(b *cache.Block, l vec.Location) { b.Location(l) })
	require.NoError(t, err)
	assert.Zero(t, locations.Len(), "после записи шкала очищается")

	store := NewStore(cache.NewReader(buf.Bytes()), codec)
	got, err := readTimeline(store, off, (*cache.Cursor).Location)
	require.NoError(t, err)
	assert.Equal(t, want, got.Times())
	_, last := got.At(2)
	assert.Equal(t, vec.Location{Z: -3.5, Pitch: 45}, last)

	t.Run("обрезанная шкала", func(t *testing.T) {
		truncated := NewStore(cache.NewReader(buf.Bytes()[:buf.Len()-3]), codec)
		_, err := readTimeline(truncated, off, (*cache.Cursor).Location)
		assert.True(t, errors.Is(err, cache.ErrCorrupt))
	})
}

func TestBlockTracker(t *testing.T) {
	info := protocol.WorldInfo{Dimension: "minecraft:overworld", MinY: -64, Height: 384}
	states := make([]int32, protocol.SectionVolume)
	states[0] = 1
	column := protocol.ChunkData{
		Pos:      vec.ChunkPos{X: -1, Z: 2},
		Full:     true,
		Sections: []protocol.ChunkSection{{Index: 4, States: states}},
	}
	bt := newBlockTracker(info, column)
	states[0] = 99
	assert.Equal(t, int32(1), bt.sections[4][0], "трекер хранит собственную копию секции")

	// секция 4 при minY = -64 начинается с y = 0
	bt.update(5, protocol.BlockChange{Pos: vec.BlockPos{X: -16, Y: 0, Z: 32}, State: 7})
	bt.update(5, protocol.BlockChange{Pos: vec.BlockPos{X: -16, Y: 500, Z: 32}, State: 7})
	bt.update(5, protocol.BlockChange{Pos: vec.BlockPos{X: -15, Y: -64, Z: 32}, State: 3})

	require.Equal(t, 1, bt.changes.Len())
	_, changes := bt.changes.At(0)
	assert.Equal(t, []BlockChange{
		{Pos: vec.BlockPos{X: -16, Y: 0, Z: 32}, From: 1, To: 7},
		{Pos: vec.BlockPos{X: -15, Y: -64, Z: 32}, From: 0, To: 3},
	}, changes, "блок выше мира пропускается")

	partial := make([]int32, protocol.SectionVolume)
	partial[0] = 7
	partial[1<<8|2<<4|3] = 11
	bt.updateColumn(9, protocol.ChunkData{
		Pos:      column.Pos,
		Sections: []protocol.ChunkSection{{Index: 4, States: partial}},
	})
	require.Equal(t, 2, bt.changes.Len())
	_, changes = bt.changes.At(1)
	assert.Equal(t, []BlockChange{
		{Pos: vec.BlockPos{X: -16 + 3, Y: 1, Z: 32 + 2}, From: 0, To: 11},
	}, changes)
}
