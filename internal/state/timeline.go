package state

import (
	"fmt"
	"math"
	"sort"

	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/protocol"
)

// Timeline - разреженная шкала "время -> значение", отсортированная по времени.
// Каждому моменту соответствует не больше одного значения.
type Timeline[T any] struct {
	times  []int32
	values []T
}

// Len возвращает число записей
func (t *Timeline[T]) Len() int {
	return len(t.times)
}

// At возвращает i-ю запись
func (t *Timeline[T]) At(i int) (int32, T) {
	return t.times[i], t.values[i]
}

// Times возвращает копию моментов шкалы
func (t *Timeline[T]) Times() []int32 {
	return append([]int32(nil), t.times...)
}

// Reset очищает шкалу
func (t *Timeline[T]) Reset() {
	t.times = nil
	t.values = nil
}

// search возвращает позицию первого момента >= time
func (t *Timeline[T]) search(time int32) int {
	return sort.Search(len(t.times), func(i int) bool { return t.times[i] >= time })
}

// Put записывает значение в момент time, заменяя прежнее значение этого момента
func (t *Timeline[T]) Put(time int32, v T) {
	n := len(t.times)
	if n == 0 || time > t.times[n-1] {
		t.times = append(t.times, time)
		t.values = append(t.values, v)
		return
	}
	i := t.search(time)
	if t.times[i] == time {
		t.values[i] = v
		return
	}
	t.insert(i, time, v)
}

func (t *Timeline[T]) insert(i int, time int32, v T) {
	var zero T
	t.times = append(t.times, 0)
	t.values = append(t.values, zero)
	copy(t.times[i+1:], t.times[i:])
	copy(t.values[i+1:], t.values[i:])
	t.times[i] = time
	t.values[i] = v
}

// update меняет значение момента time через fn; ok == false, если момента ещё не было
func (t *Timeline[T]) update(time int32, fn func(old T, ok bool) T) {
	i := t.search(time)
	if i < len(t.times) && t.times[i] == time {
		t.values[i] = fn(t.values[i], true)
		return
	}
	var zero T
	t.insert(i, time, fn(zero, false))
}

// Latest возвращает последнее значение
func (t *Timeline[T]) Latest() (T, bool) {
	if len(t.values) == 0 {
		var zero T
		return zero, false
	}
	return t.values[len(t.values)-1], true
}

// Floor возвращает позицию записи с наибольшим моментом <= time
func (t *Timeline[T]) Floor(time int32) (int, bool) {
	i := sort.Search(len(t.times), func(i int) bool { return t.times[i] > time })
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

// Range возвращает границы [lo, hi) записей с моментами в (from, to]
func (t *Timeline[T]) Range(from, to int32) (int, int) {
	lo := sort.Search(len(t.times), func(i int) bool { return t.times[i] > from })
	hi := sort.Search(len(t.times), func(i int) bool { return t.times[i] > to })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// PlayFull применяет последнее значение не позже target, если оно появилось после current
func (t *Timeline[T]) PlayFull(current, target int32, apply func(T) error) error {
	i, ok := t.Floor(target)
	if !ok || t.times[i] <= current {
		return nil
	}
	return apply(t.values[i])
}

// RewindFull применяет последнее значение не позже target, если оно отличается
// от действовавшего в current. Если до target значений не было, шкала молчит.
func (t *Timeline[T]) RewindFull(current, target int32, apply func(T) error) error {
	i, ok := t.Floor(target)
	if !ok {
		return nil
	}
	if j, ok := t.Floor(current); ok && j == i {
		return nil
	}
	return apply(t.values[i])
}

// PlayDiff применяет записи из (current, target] по возрастанию времени
func (t *Timeline[T]) PlayDiff(current, target int32, apply func(T) error) error {
	lo, hi := t.Range(current, target)
	for i := lo; i < hi; i++ {
		if err := apply(t.values[i]); err != nil {
			return err
		}
	}
	return nil
}

// RewindDiff откатывает записи из (target, current] по убыванию времени
func (t *Timeline[T]) RewindDiff(current, target int32, revert func(T) error) error {
	lo, hi := t.Range(target, current)
	for i := hi - 1; i >= lo; i-- {
		if err := revert(t.values[i]); err != nil {
			return err
		}
	}
	return nil
}

// writeTimeline пишет шкалу: число записей, затем для каждой приращение
// времени и значение. После записи шкала очищается.
func writeTimeline[T any](out *Output, t *Timeline[T], write func(*cache.Block, T)) (int32, error) {
	b := out.deferred()
	b.VarInt(int32(t.Len()))
	var last int32
	for i, time := range t.times {
		b.VarInt(time - last)
		last = time
		write(b, t.values[i])
	}
	t.Reset()
	off, err := b.Commit()
	if err != nil {
		return 0, fmt.Errorf("не удалось записать шкалу: %w", err)
	}
	return off, nil
}

// readTimeline читает шкалу, записанную writeTimeline
func readTimeline[T any](s *Store, off int32, read func(*cache.Cursor) (T, error)) (Timeline[T], error) {
	var t Timeline[T]
	cur, err := s.at(off)
	if err != nil {
		return t, err
	}
	n, err := cur.VarInt()
	if err != nil {
		return t, err
	}
	if n < 0 || int(n) > cur.Remaining() {
		return t, fmt.Errorf("%w: длина шкалы %d", cache.ErrCorrupt, n)
	}
	t.times = make([]int32, 0, n)
	t.values = make([]T, 0, n)
	var time int64
	for i := int32(0); i < n; i++ {
		delta, err := cur.VarInt()
		if err != nil {
			return t, err
		}
		if i > 0 && delta <= 0 {
			return t, fmt.Errorf("%w: шкала не упорядочена", cache.ErrCorrupt)
		}
		time += int64(delta)
		if time > math.MaxInt32 || time < math.MinInt32 {
			return t, fmt.Errorf("%w: время %d вне диапазона", cache.ErrCorrupt, time)
		}
		v, err := read(cur)
		if err != nil {
			return t, err
		}
		t.times = append(t.times, int32(time))
		t.values = append(t.values, v)
	}
	return t, nil
}

// fullState - шкала полных значений, загружаемая из кеша по требованию
type fullState[T any] struct {
	store   *Store
	off     int32
	read    func(*cache.Cursor) (T, error)
	apply   func(Sink, T) error
	// initial - значение, которое клиент имеет до первой записи шкалы; nil - неизвестно
	initial func() protocol.Packet
	tl      Timeline[T]
}

func (f *fullState[T]) Load(Sink) error {
	tl, err := readTimeline(f.store, f.off, f.read)
	if err != nil {
		return err
	}
	f.tl = tl
	return nil
}

func (f *fullState[T]) Unload(Sink) error {
	f.tl.Reset()
	return nil
}

func (f *fullState[T]) Play(sink Sink, current, target int32) error {
	return f.tl.PlayFull(current, target, func(v T) error { return f.apply(sink, v) })
}

// Rewind откатывает шкалу. Если до target значений не было, а в current
// уже было, клиенту возвращается исходное значение.
func (f *fullState[T]) Rewind(sink Sink, current, target int32) error {
	if f.initial != nil {
		if _, ok := f.tl.Floor(target); !ok {
			if _, had := f.tl.Floor(current); had {
				return sink(f.initial())
			}
			return nil
		}
	}
	return f.tl.RewindFull(current, target, func(v T) error { return f.apply(sink, v) })
}

// packetState - шкала пакетов: каждое значение отправляется как есть
func packetState(store *Store, off int32) *fullState[protocol.Packet] {
	return &fullState[protocol.Packet]{
		store: store,
		off:   off,
		read:  func(cur *cache.Cursor) (protocol.Packet, error) { return store.codec.Read(cur) },
		apply: sendClone,
	}
}

// packetStateFrom - шкала пакетов с известным исходным значением
func packetStateFrom(store *Store, off int32, initial func(*protocol.Registry) protocol.Packet) *fullState[protocol.Packet] {
	f := packetState(store, off)
	f.initial = func() protocol.Packet { return initial(store.Registry()) }
	return f
}

func sendClone(sink Sink, p protocol.Packet) error {
	return sink(p.Clone())
}

// writePackets пишет шкалу пакетов
func writePackets(out *Output, t *Timeline[protocol.Packet]) (int32, error) {
	return writeTimeline(out, t, func(b *cache.Block, p protocol.Packet) { out.codec.Append(b, p) })
}
