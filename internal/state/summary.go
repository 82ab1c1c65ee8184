package state

import "github.com/annel0/replay-engine/internal/protocol"

// ThingSummary - интервал и число записей шкалы одного временного объекта
type ThingSummary struct {
	Key     string
	Span    Span
	Updates int
}

// WorldSummary описывает мир и все его объекты
type WorldSummary struct {
	Start  int32
	Info   protocol.WorldInfo
	Things []ThingSummary
}

// Summary - сводка модели, одинаковая для построителя и для загруженного кеша
type Summary struct {
	Features []int32
	Tags     []int32
	Worlds   []WorldSummary
}

// Summary описывает то, что будет записано при Build(end)
func (r *ReplayBuilder) Summary(end int32) Summary {
	s := Summary{Features: r.Features.Times(), Tags: r.Tags.Times()}
	tl := &r.worlds.tl
	for i := 0; i < tl.Len(); i++ {
		start, w := tl.At(i)
		until := end
		if i+1 < tl.Len() {
			until, _ = tl.At(i + 1)
		}
		s.Worlds = append(s.Worlds, WorldSummary{Start: start, Info: w.Info, Things: w.Things.preview(until)})
	}
	return s
}

// Summary описывает загруженную модель. Объекты читаются отдельно
// от активного состояния и не влияют на него.
func (r *Replay) Summary() (Summary, error) {
	s := Summary{Features: r.features.tl.Times(), Tags: r.tags.tl.Times()}
	tl := &r.worlds.tl
	for i := 0; i < tl.Len(); i++ {
		start, h := tl.At(i)
		w := r.worlds.worlds[h]
		ws := WorldSummary{Start: start, Info: w.Info}

		things := newTransientThings(w.things.store, w.things.off)
		if err := things.Load(Discard); err != nil {
			return Summary{}, err
		}
		for _, thing := range things.things {
			ts, err := summarize(thing)
			if err != nil {
				return Summary{}, err
			}
			ws.Things = append(ws.Things, ts)
		}
		s.Worlds = append(s.Worlds, ws)
	}
	return s, nil
}

func summarize(thing Thing) (ThingSummary, error) {
	if err := thing.Load(Discard); err != nil {
		return ThingSummary{}, err
	}
	ts := ThingSummary{Key: thing.Key(), Span: thing.Span()}
	switch t := thing.(type) {
	case *Entity:
		ts.Updates = t.locations.tl.Len()
	case *Chunk:
		for i := 0; i < t.blocks.tl.Len(); i++ {
			_, changes := t.blocks.tl.At(i)
			ts.Updates += len(changes)
		}
	case *Weather:
		ts.Updates = t.rain.tl.Len()
	}
	return ts, thing.Unload(Discard)
}
