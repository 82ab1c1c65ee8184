package cache

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/vec"
)

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, 754))
	raw := buf.Bytes()

	t.Run("совпадающие версии", func(t *testing.T) {
		assert.NoError(t, ReadHeader(bytes.NewReader(raw), 754))
	})

	t.Run("другой протокол", func(t *testing.T) {
		err := ReadHeader(bytes.NewReader(raw), 755)
		assert.True(t, errors.Is(err, ErrVersionMismatch))
		assert.True(t, IsInvalid(err))
	})

	t.Run("другая версия формата", func(t *testing.T) {
		var other bytes.Buffer
		other.Write([]byte{Version + 1})
		other.Write(raw[1:])
		assert.True(t, errors.Is(ReadHeader(&other, 754), ErrVersionMismatch))
	})

	t.Run("обрезанный заголовок", func(t *testing.T) {
		err := ReadHeader(bytes.NewReader(raw[:1]), 754)
		assert.True(t, errors.Is(err, ErrCorrupt))
	})
}

func TestWriter_DeferredBlocks(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)

	first := w.Deferred()
	first.VarInt(300).Str("мир")
	second := w.Deferred()
	second.Position(vec.BlockPos{X: -5, Y: 70, Z: 12}).Location(vec.Location{X: 1.5, Yaw: 90})

	off2, err := second.Commit()
	require.NoError(t, err)
	off1, err := first.Commit()
	require.NoError(t, err)

	assert.Equal(t, int32(0), off2, "блок попадает в поток в момент Commit")
	assert.Equal(t, int64(out.Len()), w.Offset())
	assert.Greater(t, off1, off2)

	r := NewReader(out.Bytes())
	cur, err := r.At(off1)
	require.NoError(t, err)
	v, err := cur.VarInt()
	require.NoError(t, err)
	assert.Equal(t, int32(300), v)
	s, err := cur.Str()
	require.NoError(t, err)
	assert.Equal(t, "мир", s)

	cur, err = r.At(off2)
	require.NoError(t, err)
	pos, err := cur.Position()
	require.NoError(t, err)
	assert.Equal(t, vec.BlockPos{X: -5, Y: 70, Z: 12}, pos)
	loc, err := cur.Location()
	require.NoError(t, err)
	assert.Equal(t, vec.Location{X: 1.5, Yaw: 90}, loc)

	_, err = NewBlock().Commit()
	assert.Error(t, err, "непривязанный блок нельзя зафиксировать")
}

func TestLoad(t *testing.T) {
	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i)
	}

	t.Run("чтение порциями с прогрессом", func(t *testing.T) {
		var progress []float64
		r, err := Load(bytes.NewReader(data), int32(len(data)), ReadChunkSize, func(p float64) {
			progress = append(progress, p)
		})
		require.NoError(t, err)
		assert.Equal(t, len(data), r.Size())
		require.NotEmpty(t, progress)
		for i := 1; i < len(progress); i++ {
			assert.GreaterOrEqual(t, progress[i], progress[i-1], "прогресс не должен убывать")
		}
		assert.InDelta(t, 1.0, progress[len(progress)-1], 1e-9)

		r.Release()
		assert.True(t, r.Released())
		_, err = r.At(0)
		assert.True(t, errors.Is(err, ErrCorrupt))
	})

	t.Run("нехватка данных", func(t *testing.T) {
		_, err := Load(bytes.NewReader(data[:5000]), int32(len(data)), ReadChunkSize, nil)
		assert.True(t, errors.Is(err, ErrCorrupt))
	})

	t.Run("смещение за границей", func(t *testing.T) {
		r := NewReader(data[:10])
		_, err := r.At(11)
		assert.True(t, errors.Is(err, ErrCorrupt))
	})
}

func TestPacketCodec(t *testing.T) {
	registry, err := protocol.NewRegistry(protocol.V1_16)
	require.NoError(t, err)
	codec, err := NewPacketCodec(registry)
	require.NoError(t, err)
	defer codec.Close()

	big := protocol.ChunkData{
		Pos:   vec.ChunkPos{X: 1, Z: 2},
		Full:  true,
		Extra: make([]byte, 4096),
	}.Encode(registry)
	small := protocol.UpdateTime{WorldAge: 1, TimeOfDay: 2}.Encode(registry)

	var out bytes.Buffer
	w := NewWriter(&out)
	b := w.Deferred()
	codec.AppendList(b, []protocol.Packet{big, small})
	off, err := b.Commit()
	require.NoError(t, err)
	assert.Less(t, out.Len(), len(big.Data), "сжимаемый пакет должен храниться сжатым")

	cur, err := NewReader(out.Bytes()).At(off)
	require.NoError(t, err)
	packets, err := codec.ReadList(cur)
	require.NoError(t, err)
	require.Len(t, packets, 2)
	assert.Equal(t, big, packets[0])
	assert.Equal(t, small, packets[1])

	t.Run("обрезанный пакет", func(t *testing.T) {
		cur := NewCursor(out.Bytes()[:out.Len()-2])
		_, err := codec.ReadList(cur)
		assert.True(t, errors.Is(err, ErrCorrupt))
	})
}
