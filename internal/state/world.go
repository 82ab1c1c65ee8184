package state

import (
	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/protocol"
)

func writeInfo(b *cache.Block, i protocol.WorldInfo) {
	b.Str(i.Dimension).Str(i.DimensionType).
		VarInt(i.MinY).VarInt(i.Height).
		Long(i.HashedSeed).Byte(i.Difficulty).
		Bool(i.Debug).Bool(i.Flat)
}

func readInfo(cur *cache.Cursor) (protocol.WorldInfo, error) {
	var (
		i   protocol.WorldInfo
		err error
	)
	if i.Dimension, err = cur.Str(); err != nil {
		return i, err
	}
	if i.DimensionType, err = cur.Str(); err != nil {
		return i, err
	}
	if i.MinY, err = cur.VarInt(); err != nil {
		return i, err
	}
	if i.Height, err = cur.VarInt(); err != nil {
		return i, err
	}
	if i.HashedSeed, err = cur.Long(); err != nil {
		return i, err
	}
	if i.Difficulty, err = cur.Byte(); err != nil {
		return i, err
	}
	if i.Debug, err = cur.Bool(); err != nil {
		return i, err
	}
	i.Flat, err = cur.Bool()
	return i, err
}

// World - одно измерение на стороне чтения
type World struct {
	Info   protocol.WorldInfo
	things *TransientThings
	// порядок шкал совпадает с порядком их применения
	scalars []*fullState[protocol.Packet]
}

// Шкалы мира: позиция и дальность прорисовки, дальность симуляции,
// время мира, сила грозы
const (
	scalarViewPosition = iota
	scalarViewDistance
	scalarSimulationDistance
	scalarWorldTime
	scalarThunder
	worldScalars
)

// initialScalars - значения, с которыми клиент входит в новый мир.
// Прорисовка и симуляция пишутся при входе в мир, им исходное не нужно.
var initialScalars = [worldScalars]func(*protocol.Registry) protocol.Packet{
	scalarWorldTime: func(r *protocol.Registry) protocol.Packet {
		return protocol.UpdateTime{}.Encode(r)
	},
	scalarThunder: func(r *protocol.Registry) protocol.Packet {
		return protocol.NotifyClient{Reason: protocol.NotifyThunderStrength}.Encode(r)
	},
}

func readWorld(store *Store, cur *cache.Cursor) (*World, error) {
	info, err := readInfo(cur)
	if err != nil {
		return nil, err
	}
	thingsOff, err := cur.VarInt()
	if err != nil {
		return nil, err
	}
	w := &World{Info: info, things: newTransientThings(store, thingsOff)}
	for i := 0; i < worldScalars; i++ {
		off, err := cur.VarInt()
		if err != nil {
			return nil, err
		}
		if initial := initialScalars[i]; initial != nil {
			w.scalars = append(w.scalars, packetStateFrom(store, off, initial))
		} else {
			w.scalars = append(w.scalars, packetState(store, off))
		}
	}
	return w, nil
}

// Things возвращает реестр временных объектов мира
func (w *World) Things() *TransientThings {
	return w.things
}

// parts возвращает части мира в порядке обработки: сначала состояние
// прорисовки, затем объекты, затем время и гроза.
func (w *World) parts() []State {
	return []State{
		w.scalars[scalarViewPosition], w.scalars[scalarViewDistance], w.scalars[scalarSimulationDistance],
		w.things,
		w.scalars[scalarWorldTime], w.scalars[scalarThunder],
	}
}

func (w *World) Load(sink Sink) error {
	for _, p := range w.parts() {
		if err := p.Load(sink); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) Unload(sink Sink) error {
	for _, p := range w.parts() {
		if err := p.Unload(sink); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) Play(sink Sink, current, target int32) error {
	for _, p := range w.parts() {
		if err := p.Play(sink, current, target); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) Rewind(sink Sink, current, target int32) error {
	for _, p := range w.parts() {
		if err := p.Rewind(sink, current, target); err != nil {
			return err
		}
	}
	return nil
}

// WorldBuilder собирает измерение во время анализа
type WorldBuilder struct {
	Info               protocol.WorldInfo
	Things             *ThingsBuilder
	ViewPosition       Timeline[protocol.Packet]
	ViewDistance       Timeline[protocol.Packet]
	SimulationDistance Timeline[protocol.Packet]
	WorldTime          Timeline[protocol.Packet]
	Thunder            Timeline[protocol.Packet]
}

func newWorldBuilder(out *Output, info protocol.WorldInfo) *WorldBuilder {
	return &WorldBuilder{Info: info, Things: newThingsBuilder(out, info)}
}

// build закрывает объекты мира в момент end и пишет мир в запись b
func (w *WorldBuilder) build(out *Output, b *cache.Block, end int32) error {
	thingsOff, err := w.Things.build(end)
	if err != nil {
		return err
	}
	offsets := []int32{thingsOff}
	for _, tl := range []*Timeline[protocol.Packet]{&w.ViewPosition, &w.ViewDistance, &w.SimulationDistance, &w.WorldTime, &w.Thunder} {
		off, err := writePackets(out, tl)
		if err != nil {
			return err
		}
		offsets = append(offsets, off)
	}
	writeInfo(b, w.Info)
	for _, off := range offsets {
		b.VarInt(off)
	}
	return nil
}
