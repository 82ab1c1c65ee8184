package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/replay-engine/internal/vec"
)

func newRegistry(t *testing.T, v Version) *Registry {
	t.Helper()
	r, err := NewRegistry(v)
	require.NoError(t, err)
	return r
}

func TestNewRegistry(t *testing.T) {
	t.Run("неподдерживаемая версия", func(t *testing.T) {
		_, err := NewRegistry(47)
		assert.True(t, errors.Is(err, ErrUnsupportedVersion))
	})

	t.Run("набор типов зависит от версии", func(t *testing.T) {
		old := newRegistry(t, V1_12_2)
		assert.False(t, old.Has(KindUpdateLight))
		assert.False(t, old.Has(KindUpdateViewPosition))
		assert.True(t, old.Has(KindDestroyEntities))

		v117 := newRegistry(t, V1_17)
		assert.True(t, v117.Has(KindDestroyEntity))
		assert.False(t, v117.Has(KindDestroyEntities))

		latest := newRegistry(t, V1_20)
		assert.True(t, latest.Has(KindFeatures))
		assert.False(t, latest.Has(KindSpawnMob))
	})

	t.Run("id и тип взаимно однозначны", func(t *testing.T) {
		r := newRegistry(t, V1_18)
		for kind := KindKeepAlive; kind <= KindFeatures; kind++ {
			id, ok := r.ID(kind)
			if !ok {
				continue
			}
			assert.Equal(t, kind, r.KindOf(id), "тип %s", kind)
		}
		assert.Equal(t, KindUnknown, r.KindOf(9999))
	})
}

func TestPacket_Clone(t *testing.T) {
	p := Packet{Kind: KindChat, ID: 1, Data: []byte{1, 2, 3}}
	c := p.Clone()
	p.Data[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, c.Data, "копия не должна разделять буфер")
}

func TestJoinGameAndRespawn(t *testing.T) {
	r := newRegistry(t, V1_18)
	info := WorldInfo{Dimension: "minecraft:overworld", DimensionType: "overworld", MinY: -64, Height: 384, HashedSeed: 42, Difficulty: 2, Flat: true}

	join := JoinGame{EntityID: 7, Gamemode: 3, World: info, ViewDistance: 10, SimulationDistance: 8}
	got, err := ReadJoinGame(join.Encode(r))
	require.NoError(t, err)
	assert.Equal(t, join, got)
	assert.Equal(t, -4, got.World.MinSection())
	assert.Equal(t, 24, got.World.SectionCount())

	nether := info
	nether.Dimension = "minecraft:the_nether"
	resp, err := ReadRespawn(Respawn{World: nether, Gamemode: 1}.Encode(r))
	require.NoError(t, err)
	assert.Equal(t, nether, resp.World)
	assert.True(t, nether.RespawnSufficient(info))
	assert.False(t, info.RespawnSufficient(info))

	_, err = ReadRespawn(join.Encode(r))
	assert.True(t, errors.Is(err, ErrWrongKind))
}

func TestUpdateLocation(t *testing.T) {
	r := newRegistry(t, V1_16)
	spawn := SpawnEntity{EntityID: 5, UUID: uuid.New(), Type: 3, Location: vec.Location{X: 1, Y: 2, Z: 3, Yaw: 90}}

	t.Run("появление задаёт абсолютное положение", func(t *testing.T) {
		p := spawn.Encode(r, KindSpawnMob)
		id, ok := EntityID(p)
		require.True(t, ok)
		assert.Equal(t, int32(5), id)

		loc, changed, err := UpdateLocation(p, nil)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, spawn.Location, loc)
	})

	t.Run("относительное перемещение без базы считается от нуля", func(t *testing.T) {
		p := EntityMove{EntityID: 5, DX: 1, DY: 0.5}.Encode(r, KindEntityPosition)
		loc, changed, err := UpdateLocation(p, nil)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, vec.Location{X: 1, Y: 0.5}, loc)
	})

	t.Run("поворот сохраняет координаты", func(t *testing.T) {
		prev := vec.Location{X: 4, Y: 5, Z: 6}
		p := EntityMove{EntityID: 5, Yaw: 45, Pitch: 90}.Encode(r, KindEntityRotation)
		loc, _, err := UpdateLocation(p, &prev)
		require.NoError(t, err)
		assert.Equal(t, vec.Location{X: 4, Y: 5, Z: 6, Yaw: 45, Pitch: 90}, loc)
	})

	t.Run("телепорт абсолютный", func(t *testing.T) {
		prev := vec.Location{X: 100}
		target := vec.Location{X: -3, Y: 64, Z: 7.5, Yaw: 180}
		loc, _, err := UpdateLocation(EncodeTeleport(r, 5, target, true), &prev)
		require.NoError(t, err)
		assert.Equal(t, target, loc)
	})

	t.Run("прочие пакеты положение не меняют", func(t *testing.T) {
		_, changed, err := UpdateLocation(EncodeHeadLook(r, 5, 90), nil)
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

func TestDestroyEntities(t *testing.T) {
	r := newRegistry(t, V1_16)
	ids, err := ReadDestroyEntities(EncodeDestroyEntities(r, 1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, ids)

	single := newRegistry(t, V1_17)
	p := EncodeDestroyEntities(single, 9)
	assert.Equal(t, KindDestroyEntity, p.Kind)
	ids, err = ReadDestroyEntities(p)
	require.NoError(t, err)
	assert.Equal(t, []int32{9}, ids)
}

func TestChunkPackets(t *testing.T) {
	r := newRegistry(t, V1_16)

	states := make([]int32, SectionVolume)
	states[0] = 1
	states[4095] = 17
	chunk := ChunkData{
		Pos:      vec.ChunkPos{X: -2, Z: 3},
		Full:     true,
		Sections: []ChunkSection{{Index: 4, States: states}},
		Extra:    []byte{0xAA},
	}
	got, err := ReadChunkData(chunk.Encode(r))
	require.NoError(t, err)
	assert.Equal(t, chunk, got)

	multi := MultiBlockChange{
		Chunk: vec.ChunkPos{X: -1, Z: 2},
		Records: []BlockChange{
			{Pos: vec.BlockPos{X: -1, Y: 70, Z: 32}, State: 5},
			{Pos: vec.BlockPos{X: -16, Y: -10, Z: 47}, State: 0},
		},
	}
	gotMulti, err := ReadMultiBlockChange(multi.Encode(r))
	require.NoError(t, err)
	assert.Equal(t, multi, gotMulti)
}

func TestPlayerListEntry(t *testing.T) {
	r := newRegistry(t, V1_16)
	name := "§aAlex"
	add := PlayerListEntry{Action: PlayerListAdd, Items: []PlayerListItem{
		{UUID: uuid.New(), Name: "Alex", Gamemode: 1, Latency: 30, DisplayName: &name},
		{UUID: uuid.New(), Name: "Steve"},
	}}
	got, err := ReadPlayerListEntry(add.Encode(r))
	require.NoError(t, err)
	assert.Equal(t, add, got)

	latency := PlayerListEntry{Action: PlayerListLatency, Items: []PlayerListItem{{UUID: add.Items[0].UUID, Latency: 99}}}
	got, err = ReadPlayerListEntry(latency.Encode(r))
	require.NoError(t, err)
	assert.Equal(t, latency, got)
}

func TestRecording(t *testing.T) {
	r := newRegistry(t, V1_16)
	var buf bytes.Buffer
	w := NewRecordingWriter(&buf)

	packets := []TimedPacket{
		{Time: 0, Packet: UpdateTime{WorldAge: 1, TimeOfDay: 2}.Encode(r)},
		{Time: 50, Packet: NotifyClient{Reason: NotifyBeginRain}.Encode(r)},
		{Time: 50, Packet: r.Raw(KindKeepAlive, nil)},
	}
	for _, p := range packets {
		require.NoError(t, w.WritePacket(p.Time, p.Packet))
	}

	t.Run("чтение целого потока", func(t *testing.T) {
		rr := NewRecordingReader(bytes.NewReader(buf.Bytes()), r)
		for _, want := range packets {
			got, err := rr.Next()
			require.NoError(t, err)
			assert.Equal(t, want.Time, got.Time)
			assert.Equal(t, want.Packet.Kind, got.Packet.Kind)
			assert.Equal(t, len(want.Packet.Data), len(got.Packet.Data))
		}
		_, err := rr.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("обрезанный поток", func(t *testing.T) {
		rr := NewRecordingReader(bytes.NewReader(buf.Bytes()[:buf.Len()-3]), r)
		var err error
		for err == nil {
			_, err = rr.Next()
		}
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "ожидался ErrUnexpectedEOF, получено %v", err)
	})
}
