package state

import (
	"fmt"

	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/vec"
)

// maxBlockChanges ограничивает число изменений одного момента при чтении
const maxBlockChanges = 1 << 20

// BlockChange - изменение одного блока: прежнее и новое состояние
type BlockChange struct {
	Pos  vec.BlockPos
	From int32
	To   int32
}

// blockTracker хранит текущее содержимое секций столбца, чтобы знать
// прежнее состояние блока при каждом изменении.
type blockTracker struct {
	pos        vec.ChunkPos
	minSection int
	sections   [][]int32 // nil - секция из воздуха
	changes    Timeline[[]BlockChange]
}

func newBlockTracker(info protocol.WorldInfo, column protocol.ChunkData) *blockTracker {
	bt := &blockTracker{
		pos:        column.Pos,
		minSection: info.MinSection(),
		sections:   make([][]int32, info.SectionCount()),
	}
	for _, s := range column.Sections {
		if s.Index < 0 || s.Index >= len(bt.sections) {
			continue
		}
		bt.sections[s.Index] = append([]int32(nil), s.States...)
	}
	return bt
}

func (bt *blockTracker) record(time int32, c BlockChange) {
	bt.changes.update(time, func(old []BlockChange, _ bool) []BlockChange {
		return append(old, c)
	})
}

// update применяет изменение одного блока. Блоки вне высоты измерения
// сервер присылает при попытке строить за границей; они пропускаются.
func (bt *blockTracker) update(time int32, change protocol.BlockChange) {
	index := change.Pos.SectionY() - bt.minSection
	if index < 0 || index >= len(bt.sections) {
		return
	}
	section := bt.sections[index]
	if section == nil {
		section = make([]int32, protocol.SectionVolume)
		bt.sections[index] = section
	}
	i := change.Pos.SectionIndex()
	from := section[i]
	section[i] = change.State
	bt.record(time, BlockChange{Pos: change.Pos, From: from, To: change.State})
}

// updateColumn сравнивает присланные секции с текущими и записывает разницу
func (bt *blockTracker) updateColumn(time int32, column protocol.ChunkData) {
	for _, s := range column.Sections {
		if s.Index < 0 || s.Index >= len(bt.sections) {
			continue
		}
		from := bt.sections[s.Index]
		sectionY := bt.minSection + s.Index
		for i := 0; i < protocol.SectionVolume; i++ {
			var before, after int32
			if from != nil {
				before = from[i]
			}
			if s.States != nil {
				after = s.States[i]
			}
			if before == after {
				continue
			}
			bt.record(time, BlockChange{
				Pos: vec.BlockPos{
					X: int(bt.pos.X)<<4 | i&15,
					Y: sectionY<<4 | i>>8,
					Z: int(bt.pos.Z)<<4 | (i>>4)&15,
				},
				From: before,
				To:   after,
			})
		}
		bt.sections[s.Index] = append([]int32(nil), s.States...)
	}
}

func writeBlockChanges(b *cache.Block, changes []BlockChange) {
	b.VarInt(int32(len(changes)))
	for _, c := range changes {
		b.Position(c.Pos).VarInt(c.From).VarInt(c.To)
	}
}

func readBlockChanges(cur *cache.Cursor) ([]BlockChange, error) {
	n, err := cur.VarInt()
	if err != nil {
		return nil, err
	}
	if n < 0 || n > maxBlockChanges || int(n) > cur.Remaining() {
		return nil, fmt.Errorf("%w: число изменений блоков %d", cache.ErrCorrupt, n)
	}
	changes := make([]BlockChange, n)
	for i := range changes {
		pos, err := cur.Position()
		if err != nil {
			return nil, err
		}
		from, err := cur.VarInt()
		if err != nil {
			return nil, err
		}
		to, err := cur.VarInt()
		if err != nil {
			return nil, err
		}
		changes[i] = BlockChange{Pos: pos, From: from, To: to}
	}
	return changes, nil
}

// blockState - шкала изменений блоков столбца на стороне чтения
type blockState struct {
	store *Store
	off   int32
	tl    Timeline[[]BlockChange]
}

func (b *blockState) Load(Sink) error {
	tl, err := readTimeline(b.store, b.off, readBlockChanges)
	if err != nil {
		return err
	}
	b.tl = tl
	return nil
}

func (b *blockState) Unload(Sink) error {
	b.tl.Reset()
	return nil
}

func (b *blockState) Play(sink Sink, current, target int32) error {
	registry := b.store.Registry()
	return b.tl.PlayDiff(current, target, func(changes []BlockChange) error {
		for _, c := range changes {
			if err := sink(protocol.BlockChange{Pos: c.Pos, State: c.To}.Encode(registry)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *blockState) Rewind(sink Sink, current, target int32) error {
	registry := b.store.Registry()
	return b.tl.RewindDiff(current, target, func(changes []BlockChange) error {
		for i := len(changes) - 1; i >= 0; i-- {
			c := changes[i]
			if err := sink(protocol.BlockChange{Pos: c.Pos, State: c.From}.Encode(registry)); err != nil {
				return err
			}
		}
		return nil
	})
}
