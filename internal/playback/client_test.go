package playback

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/vec"
)

// client повторяет то, что видит игровой клиент: сущности, столбцы,
// блоки, погоду и время мира. Новый мир начинается с нулевого времени.
type client struct {
	t        *testing.T
	entities map[int32]vec.Location
	chunks   map[vec.ChunkPos]bool
	blocks   map[vec.BlockPos]int32
	raining  bool
	thunder  float32
	time     protocol.UpdateTime
}

func newClient(t *testing.T) *client {
	c := &client{t: t}
	c.clear()
	return c
}

func (c *client) clear() {
	c.entities = make(map[int32]vec.Location)
	c.chunks = make(map[vec.ChunkPos]bool)
	c.blocks = make(map[vec.BlockPos]int32)
	c.raining = false
	c.thunder = 0
	c.time = protocol.UpdateTime{}
}

func (c *client) dropChunk(pos vec.ChunkPos) {
	delete(c.chunks, pos)
	for b := range c.blocks {
		if vec.ChunkOf(b) == pos {
			delete(c.blocks, b)
		}
	}
}

func (c *client) setBlock(change protocol.BlockChange) {
	if change.State == 0 {
		delete(c.blocks, change.Pos)
		return
	}
	c.blocks[change.Pos] = change.State
}

// apply обрабатывает один пакет так, как это сделал бы клиент
func (c *client) apply(p protocol.Packet) error {
	t := c.t
	t.Helper()
	switch {
	case p.Kind == protocol.KindJoinGame || p.Kind == protocol.KindRespawn:
		c.clear()
	case p.Kind.IsEntitySpawn():
		s, err := protocol.ReadSpawnEntity(p)
		require.NoError(t, err)
		c.entities[s.EntityID] = s.Location
	case p.Kind == protocol.KindDestroyEntities:
		ids, err := protocol.ReadDestroyEntities(p)
		require.NoError(t, err)
		for _, id := range ids {
			delete(c.entities, id)
		}
	case p.Kind == protocol.KindChunkData:
		column, err := protocol.ReadChunkData(p)
		require.NoError(t, err)
		c.dropChunk(column.Pos)
		c.chunks[column.Pos] = true
	case p.Kind == protocol.KindUnloadChunk:
		pos, err := protocol.ReadUnloadChunk(p)
		require.NoError(t, err)
		c.dropChunk(pos)
	case p.Kind == protocol.KindBlockChange:
		change, err := protocol.ReadBlockChange(p)
		require.NoError(t, err)
		c.setBlock(change)
	case p.Kind == protocol.KindMultiBlockChange:
		m, err := protocol.ReadMultiBlockChange(p)
		require.NoError(t, err)
		for _, change := range m.Records {
			c.setBlock(change)
		}
	case p.Kind == protocol.KindNotifyClient:
		n, err := protocol.ReadNotifyClient(p)
		require.NoError(t, err)
		switch n.Reason {
		case protocol.NotifyBeginRain:
			c.raining = true
		case protocol.NotifyEndRain:
			c.raining = false
		case protocol.NotifyThunderStrength:
			c.thunder = n.Value
		}
	case p.Kind == protocol.KindUpdateTime:
		ut, err := protocol.ReadUpdateTime(p)
		require.NoError(t, err)
		c.time = ut
	default:
		id, ok := protocol.EntityID(p)
		if !ok {
			return nil
		}
		prev, known := c.entities[id]
		if !known {
			return nil
		}
		loc, changed, err := protocol.UpdateLocation(p, &prev)
		require.NoError(t, err)
		if changed {
			c.entities[id] = loc
		}
	}
	return nil
}

// view - сравниваемый снимок состояния клиента
type view struct {
	Entities map[int32]vec.Location
	Chunks   map[vec.ChunkPos]bool
	Blocks   map[vec.BlockPos]int32
	Raining  bool
	Thunder  float32
	Time     protocol.UpdateTime
}

func (c *client) view() view {
	v := view{
		Entities: make(map[int32]vec.Location, len(c.entities)),
		Chunks:   make(map[vec.ChunkPos]bool, len(c.chunks)),
		Blocks:   make(map[vec.BlockPos]int32, len(c.blocks)),
		Raining:  c.raining,
		Thunder:  c.thunder,
		Time:     c.time,
	}
	for k, e := range c.entities {
		v.Entities[k] = e
	}
	for k := range c.chunks {
		v.Chunks[k] = true
	}
	for k, b := range c.blocks {
		v.Blocks[k] = b
	}
	return v
}
