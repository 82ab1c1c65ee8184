package state

import (
	"fmt"

	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/vec"
)

// Chunk - столбец чанка на стороне чтения: интервал жизни и шкала изменений блоков
type Chunk struct {
	transient
	pos    vec.ChunkPos
	blocks *blockState
}

func readChunk(base transient, cur *cache.Cursor) (*Chunk, error) {
	var fields [3]int32
	for i := range fields {
		v, err := cur.VarInt()
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}
	return &Chunk{
		transient: base,
		pos:       vec.ChunkPos{X: fields[0], Z: fields[1]},
		blocks:    &blockState{store: base.store, off: fields[2]},
	}, nil
}

// Pos возвращает координаты столбца
func (c *Chunk) Pos() vec.ChunkPos {
	return c.pos
}

// Key возвращает ключ столбца в реестре мира
func (c *Chunk) Key() string {
	return chunkKey(c.pos)
}

func chunkKey(pos vec.ChunkPos) string {
	return fmt.Sprintf("chunk:%d,%d", pos.X, pos.Z)
}

func (c *Chunk) Load(sink Sink) error {
	if err := c.spawn(sink); err != nil {
		return err
	}
	return c.blocks.Load(sink)
}

func (c *Chunk) Unload(sink Sink) error {
	if err := c.despawn(sink); err != nil {
		return err
	}
	return c.blocks.Unload(sink)
}

func (c *Chunk) Play(sink Sink, current, target int32) error {
	return c.blocks.Play(sink, current, target)
}

func (c *Chunk) Rewind(sink Sink, current, target int32) error {
	return c.blocks.Rewind(sink, current, target)
}

// ChunkBuilder собирает столбец во время анализа
type ChunkBuilder struct {
	transientBuilder
	blocks *blockTracker
}

func newChunkBuilder(registry *protocol.Registry, info protocol.WorldInfo, packet protocol.Packet, column protocol.ChunkData) *ChunkBuilder {
	c := &ChunkBuilder{blocks: newBlockTracker(info, column)}
	c.AddSpawnPacket(packet)
	c.addDespawnPacket(protocol.EncodeUnloadChunk(registry, column.Pos))
	return c
}

// Pos возвращает координаты столбца
func (c *ChunkBuilder) Pos() vec.ChunkPos {
	return c.blocks.pos
}

// UpdateBlock записывает изменение одного блока
func (c *ChunkBuilder) UpdateBlock(time int32, change protocol.BlockChange) {
	c.blocks.update(time, change)
}

// UpdateColumn записывает разницу, которую вносит частичный ChunkData
func (c *ChunkBuilder) UpdateColumn(time int32, column protocol.ChunkData) {
	c.blocks.updateColumn(time, column)
}

func (c *ChunkBuilder) build(out *Output, rec *cache.Block) error {
	if err := c.transientBuilder.build(out, rec); err != nil {
		return err
	}
	off, err := writeTimeline(out, &c.blocks.changes, writeBlockChanges)
	if err != nil {
		return err
	}
	c.blocks.sections = nil
	rec.VarInt(c.blocks.pos.X).VarInt(c.blocks.pos.Z).VarInt(off)
	return nil
}

func (c *ChunkBuilder) summary() ThingSummary {
	var updates int
	for i := 0; i < c.blocks.changes.Len(); i++ {
		_, changes := c.blocks.changes.At(i)
		updates += len(changes)
	}
	return ThingSummary{Key: chunkKey(c.blocks.pos), Span: c.span, Updates: updates}
}
