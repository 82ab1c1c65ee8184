package state

import (
	"fmt"

	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/protocol"
)

// spectatorEntityID - id игрока в синтетическом JoinGame; отрицательный,
// чтобы не совпасть с сущностями записи
const spectatorEntityID = -1789435

const gamemodeSpectator = 3

// WorldTimeline - шкала "время -> мир". Миры лежат в арене worlds,
// шкала хранит их номера. Активен не больше одного мира.
type WorldTimeline struct {
	store  *Store
	off    int32
	worlds []*World
	tl     Timeline[int]
	active int
	// rejoin восстанавливает глобальные снимки, которые клиент теряет при JoinGame
	rejoin func(sink Sink, target int32) error
}

func newWorldTimeline(store *Store, off int32, rejoin func(Sink, int32) error) *WorldTimeline {
	return &WorldTimeline{store: store, off: off, active: -1, rejoin: rejoin}
}

// Load читает описания миров; сами миры загружаются при переходе в них
func (wt *WorldTimeline) Load(Sink) error {
	wt.worlds = nil
	tl, err := readTimeline(wt.store, wt.off, func(cur *cache.Cursor) (int, error) {
		w, err := readWorld(wt.store, cur)
		if err != nil {
			return 0, err
		}
		wt.worlds = append(wt.worlds, w)
		return len(wt.worlds) - 1, nil
	})
	if err != nil {
		return err
	}
	wt.tl = tl
	return nil
}

func (wt *WorldTimeline) Unload(sink Sink) error {
	if wt.active >= 0 {
		if err := wt.worlds[wt.active].Unload(sink); err != nil {
			return err
		}
		wt.active = -1
	}
	wt.worlds = nil
	wt.tl.Reset()
	return nil
}

// Worlds возвращает миры в порядке их появления
func (wt *WorldTimeline) Worlds() []*World {
	return append([]*World(nil), wt.worlds...)
}

func (wt *WorldTimeline) handleAt(time int32) int {
	i, ok := wt.tl.Floor(time)
	if !ok {
		return -1
	}
	_, h := wt.tl.At(i)
	return h
}

// activate молча делает активным мир h. Нужен, когда состояние клиента
// было сброшено и загруженный мир не соответствует current.
func (wt *WorldTimeline) activate(h int) error {
	if h == wt.active {
		return nil
	}
	if wt.active >= 0 {
		if err := wt.worlds[wt.active].Unload(Discard); err != nil {
			return err
		}
		wt.active = -1
	}
	if h >= 0 {
		if err := wt.worlds[h].Load(Discard); err != nil {
			return err
		}
		wt.active = h
	}
	return nil
}

// worldOrSwitch возвращает мир, если он один и тот же в current и target.
// Иначе переключает клиента в мир target, уже доведённый до target, и возвращает nil.
func (wt *WorldTimeline) worldOrSwitch(sink Sink, current, target int32) (*World, error) {
	prev, next := wt.handleAt(current), wt.handleAt(target)
	if prev < 0 && next < 0 {
		return nil, nil
	}
	if err := wt.activate(prev); err != nil {
		return nil, err
	}
	if prev == next {
		return wt.worlds[next], nil
	}

	if prev >= 0 {
		if err := wt.worlds[prev].Unload(sink); err != nil {
			return nil, err
		}
	}
	wt.active = next
	if next < 0 {
		return nil, nil
	}

	w := wt.worlds[next]
	if prev < 0 || wt.worlds[prev].Info != w.Info {
		if err := wt.enter(sink, prev, w, target); err != nil {
			return nil, err
		}
	}
	if err := w.Load(sink); err != nil {
		return nil, err
	}
	if err := w.Play(sink, -1, target); err != nil {
		return nil, err
	}
	return nil, nil
}

// enter переводит клиента в мир w: Respawn, если меняется только измерение,
// иначе полный JoinGame. Позиция игрока закрывает экран загрузки мира.
func (wt *WorldTimeline) enter(sink Sink, prev int, w *World, target int32) error {
	registry := wt.store.Registry()
	if prev >= 0 && w.Info.RespawnSufficient(wt.worlds[prev].Info) {
		if err := sink(protocol.Respawn{World: w.Info, Gamemode: gamemodeSpectator}.Encode(registry)); err != nil {
			return err
		}
	} else {
		join := protocol.JoinGame{EntityID: spectatorEntityID, Gamemode: gamemodeSpectator, World: w.Info}
		if err := sink(join.Encode(registry)); err != nil {
			return err
		}
		if wt.rejoin != nil {
			if err := wt.rejoin(sink, target); err != nil {
				return err
			}
		}
	}
	return sink(protocol.PlayerPosition{}.Encode(registry))
}

func (wt *WorldTimeline) Play(sink Sink, current, target int32) error {
	w, err := wt.worldOrSwitch(sink, current, target)
	if err != nil || w == nil {
		return err
	}
	return w.Play(sink, current, target)
}

func (wt *WorldTimeline) Rewind(sink Sink, current, target int32) error {
	w, err := wt.worldOrSwitch(sink, current, target)
	if err != nil || w == nil {
		return err
	}
	return w.Rewind(sink, current, target)
}

// worldsBuilder - шкала миров на стороне записи
type worldsBuilder struct {
	out *Output
	tl  Timeline[*WorldBuilder]
}

func (wb *worldsBuilder) newWorld(time int32, info protocol.WorldInfo) *WorldBuilder {
	w := newWorldBuilder(wb.out, info)
	wb.tl.Put(time, w)
	return w
}

// build пишет миры; каждый мир закрывается в момент появления следующего,
// последний - в момент end
func (wb *worldsBuilder) build(end int32) (int32, error) {
	b := wb.out.deferred()
	b.VarInt(int32(wb.tl.Len()))
	var last int32
	for i := 0; i < wb.tl.Len(); i++ {
		time, w := wb.tl.At(i)
		until := end
		if i+1 < wb.tl.Len() {
			until, _ = wb.tl.At(i + 1)
		}
		b.VarInt(time - last)
		last = time
		if err := w.build(wb.out, b, until); err != nil {
			return 0, fmt.Errorf("не удалось записать мир %s: %w", w.Info.Dimension, err)
		}
	}
	wb.tl.Reset()
	off, err := b.Commit()
	if err != nil {
		return 0, fmt.Errorf("не удалось записать шкалу миров: %w", err)
	}
	return off, nil
}
