package state

import (
	"fmt"

	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/vec"
)

// Entity - сущность на стороне чтения: интервал жизни и шкала положений
type Entity struct {
	transient
	id        int32
	locations *fullState[vec.Location]
}

func readEntity(base transient, cur *cache.Cursor) (*Entity, error) {
	id, err := cur.VarInt()
	if err != nil {
		return nil, err
	}
	off, err := cur.VarInt()
	if err != nil {
		return nil, err
	}
	e := &Entity{transient: base, id: id}
	registry := base.store.Registry()
	e.locations = &fullState[vec.Location]{
		store: base.store,
		off:   off,
		read:  (*cache.Cursor).Location,
		apply: func(sink Sink, l vec.Location) error {
			if err := sink(protocol.EncodeTeleport(registry, id, l, false)); err != nil {
				return err
			}
			return sink(protocol.EncodeHeadLook(registry, id, l.Yaw))
		},
	}
	return e, nil
}

// ID возвращает id сущности
func (e *Entity) ID() int32 {
	return e.id
}

// Key возвращает ключ сущности в реестре мира
func (e *Entity) Key() string {
	return fmt.Sprintf("entity:%d", e.id)
}

func (e *Entity) Load(sink Sink) error {
	if err := e.spawn(sink); err != nil {
		return err
	}
	return e.locations.Load(sink)
}

func (e *Entity) Unload(sink Sink) error {
	if err := e.despawn(sink); err != nil {
		return err
	}
	return e.locations.Unload(sink)
}

func (e *Entity) Play(sink Sink, current, target int32) error {
	return e.locations.Play(sink, current, target)
}

func (e *Entity) Rewind(sink Sink, current, target int32) error {
	return e.locations.Rewind(sink, current, target)
}

// EntityBuilder собирает сущность во время анализа
type EntityBuilder struct {
	transientBuilder
	id        int32
	locations Timeline[vec.Location]
}

func newEntityBuilder(registry *protocol.Registry, id int32) *EntityBuilder {
	e := &EntityBuilder{id: id}
	e.addDespawnPacket(protocol.EncodeDestroyEntities(registry, id))
	return e
}

// Location возвращает последнее известное положение
func (e *EntityBuilder) Location() (vec.Location, bool) {
	return e.locations.Latest()
}

// UpdateLocation записывает положение в момент time
func (e *EntityBuilder) UpdateLocation(time int32, l vec.Location) {
	e.locations.Put(time, l)
}

func (e *EntityBuilder) build(out *Output, rec *cache.Block) error {
	if err := e.transientBuilder.build(out, rec); err != nil {
		return err
	}
	off, err := writeTimeline(out, &e.locations, func(b *cache.Block, l vec.Location) { b.Location(l) })
	if err != nil {
		return err
	}
	rec.VarInt(e.id).VarInt(off)
	return nil
}

func (e *EntityBuilder) summary() ThingSummary {
	return ThingSummary{Key: fmt.Sprintf("entity:%d", e.id), Span: e.span, Updates: e.locations.Len()}
}
