package state

import (
	"fmt"
	"io"

	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/protocol"
)

// maxIndexLen ограничивает размер потока индекса
const maxIndexLen = 1 << 10

// Index - содержимое потока индекса после заголовка: смещения корневых
// шкал в потоке данных и размер потока данных
type Index struct {
	Features int32
	Tags     int32
	Worlds   int32
	Size     int32
}

// WriteTo пишет индекс; размер данных идёт последним
func (i Index) WriteTo(w io.Writer) (int64, error) {
	return cache.NewBlock().VarInt(i.Features).VarInt(i.Tags).VarInt(i.Worlds).VarInt(i.Size).WriteTo(w)
}

// ReadIndex читает индекс, записанный WriteTo
func ReadIndex(r io.Reader) (Index, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxIndexLen))
	if err != nil {
		return Index{}, fmt.Errorf("не удалось прочитать индекс кеша: %w", err)
	}
	cur := cache.NewCursor(raw)
	var fields [4]int32
	for i := range fields {
		if fields[i], err = cur.VarInt(); err != nil {
			return Index{}, err
		}
	}
	idx := Index{Features: fields[0], Tags: fields[1], Worlds: fields[2], Size: fields[3]}
	if idx.Size < 0 {
		return Index{}, fmt.Errorf("%w: размер данных %d", cache.ErrCorrupt, idx.Size)
	}
	return idx, nil
}

// Replay - корень модели на стороне чтения: глобальные снимки флагов
// и тегов и шкала миров
type Replay struct {
	features *fullState[protocol.Packet]
	tags     *fullState[protocol.Packet]
	worlds   *WorldTimeline
}

// NewReplay создаёт модель над загруженным потоком данных
func NewReplay(store *Store, idx Index) *Replay {
	r := &Replay{
		features: packetState(store, idx.Features),
		tags:     packetState(store, idx.Tags),
	}
	r.worlds = newWorldTimeline(store, idx.Worlds, func(sink Sink, target int32) error {
		return r.tags.Play(sink, -1, target)
	})
	return r
}

// Worlds возвращает шкалу миров
func (r *Replay) Worlds() *WorldTimeline {
	return r.worlds
}

func (r *Replay) parts() []State {
	return []State{r.features, r.tags, r.worlds}
}

func (r *Replay) Load(sink Sink) error {
	for _, p := range r.parts() {
		if err := p.Load(sink); err != nil {
			return err
		}
	}
	return nil
}

// Unload выгружает модель в обратном порядке: миры, теги, флаги
func (r *Replay) Unload(sink Sink) error {
	parts := r.parts()
	for i := len(parts) - 1; i >= 0; i-- {
		if err := parts[i].Unload(sink); err != nil {
			return err
		}
	}
	return nil
}

func (r *Replay) Play(sink Sink, current, target int32) error {
	for _, p := range r.parts() {
		if err := p.Play(sink, current, target); err != nil {
			return err
		}
	}
	return nil
}

func (r *Replay) Rewind(sink Sink, current, target int32) error {
	for _, p := range r.parts() {
		if err := p.Rewind(sink, current, target); err != nil {
			return err
		}
	}
	return nil
}

// ReplayBuilder собирает модель во время анализа
type ReplayBuilder struct {
	out      *Output
	Features Timeline[protocol.Packet]
	Tags     Timeline[protocol.Packet]
	worlds   worldsBuilder
	// World - текущий мир; nil до первого JoinGame
	World *WorldBuilder
}

// NewReplayBuilder создаёт построитель, пишущий данные в out
func NewReplayBuilder(out *Output) *ReplayBuilder {
	return &ReplayBuilder{out: out, worlds: worldsBuilder{out: out}}
}

// NewWorld открывает мир с момента time и делает его текущим
func (r *ReplayBuilder) NewWorld(time int32, info protocol.WorldInfo) *WorldBuilder {
	r.World = r.worlds.newWorld(time, info)
	return r.World
}

// Build закрывает все объекты в момент end, пишет шкалы и возвращает индекс
func (r *ReplayBuilder) Build(end int32) (Index, error) {
	var (
		idx Index
		err error
	)
	if idx.Features, err = writePackets(r.out, &r.Features); err != nil {
		return Index{}, err
	}
	if idx.Tags, err = writePackets(r.out, &r.Tags); err != nil {
		return Index{}, err
	}
	if idx.Worlds, err = r.worlds.build(end); err != nil {
		return Index{}, err
	}
	if idx.Size, err = r.out.Size(); err != nil {
		return Index{}, err
	}
	r.World = nil
	return idx, nil
}
