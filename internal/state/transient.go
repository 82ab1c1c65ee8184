package state

import (
	"fmt"
	"math"
	"sort"

	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/vec"
)

// Типы записей индекса временных объектов
const (
	recordEnd     uint8 = 0
	recordEntity  uint8 = 1
	recordChunk   uint8 = 2
	recordWeather uint8 = 3
)

// Span - интервал существования [Spawn, Despawn)
type Span struct {
	Spawn   int32
	Despawn int32
}

// Contains сообщает, существует ли объект в момент t
func (s Span) Contains(t int32) bool {
	return s.Spawn <= t && t < s.Despawn
}

// Thing - временный объект мира: сущность, столбец чанка или погода
type Thing interface {
	State
	Span() Span
	// Key однозначно задаёт объект среди живых объектов мира
	Key() string
}

// transient - общая часть временных объектов на стороне чтения
type transient struct {
	store          *Store
	span           Span
	spawnPackets   int32
	despawnPackets int32
}

func readTransient(store *Store, cur *cache.Cursor) (transient, error) {
	var fields [4]int32
	for i := range fields {
		v, err := cur.VarInt()
		if err != nil {
			return transient{}, err
		}
		fields[i] = v
	}
	t := transient{
		store:          store,
		span:           Span{Spawn: fields[0], Despawn: fields[1]},
		spawnPackets:   fields[2],
		despawnPackets: fields[3],
	}
	if t.span.Despawn < t.span.Spawn {
		return transient{}, fmt.Errorf("%w: интервал [%d, %d)", cache.ErrCorrupt, t.span.Spawn, t.span.Despawn)
	}
	return t, nil
}

func (t *transient) Span() Span {
	return t.span
}

func (t *transient) spawn(sink Sink) error {
	return t.store.emit(t.spawnPackets, sink)
}

func (t *transient) despawn(sink Sink) error {
	return t.store.emit(t.despawnPackets, sink)
}

// TransientThings - реестр временных объектов мира на стороне чтения.
// Объекты лежат в арене things; шкалы появления и исчезновения и набор
// активных объектов хранят их номера.
type TransientThings struct {
	store    *Store
	off      int32
	things   []Thing
	spawns   Timeline[[]int]
	despawns Timeline[[]int]
	active   []int
	// activeAt - момент, которому соответствует набор active
	activeAt int32
}

func newTransientThings(store *Store, off int32) *TransientThings {
	return &TransientThings{store: store, off: off, activeAt: -1}
}

func addHandle(t *Timeline[[]int], time int32, h int) {
	t.update(time, func(old []int, _ bool) []int { return append(old, h) })
}

// Load читает индекс объектов; пакеты при этом не отправляются
func (tt *TransientThings) Load(Sink) error {
	cur, err := tt.store.at(tt.off)
	if err != nil {
		return err
	}
	for {
		kind, err := cur.Byte()
		if err != nil {
			return err
		}
		if kind == recordEnd {
			return nil
		}
		base, err := readTransient(tt.store, cur)
		if err != nil {
			return err
		}
		var thing Thing
		switch kind {
		case recordEntity:
			thing, err = readEntity(base, cur)
		case recordChunk:
			thing, err = readChunk(base, cur)
		case recordWeather:
			thing, err = readWeather(base, cur)
		default:
			return fmt.Errorf("%w: тип записи %d", cache.ErrCorrupt, kind)
		}
		if err != nil {
			return err
		}
		h := len(tt.things)
		tt.things = append(tt.things, thing)
		span := thing.Span()
		addHandle(&tt.spawns, span.Spawn, h)
		addHandle(&tt.despawns, span.Despawn, h)
	}
}

// Unload убирает активные объекты через sink и забывает индекс
func (tt *TransientThings) Unload(sink Sink) error {
	for _, h := range tt.active {
		if err := tt.things[h].Unload(sink); err != nil {
			return err
		}
	}
	tt.things = nil
	tt.spawns.Reset()
	tt.despawns.Reset()
	tt.active = nil
	tt.activeAt = -1
	return nil
}

// settle приводит набор активных объектов к моменту current без отправки пакетов.
// Нужен, когда состояние клиента было сброшено или мир загружен заново.
func (tt *TransientThings) settle(current int32) error {
	if current == tt.activeAt {
		return nil
	}
	for _, h := range tt.active {
		if err := tt.things[h].Unload(Discard); err != nil {
			return err
		}
	}
	tt.active = tt.active[:0]

	lo, hi := tt.spawns.Range(math.MinInt32, current)
	for i := lo; i < hi; i++ {
		_, handles := tt.spawns.At(i)
		for _, h := range handles {
			if tt.things[h].Span().Despawn <= current {
				continue
			}
			if err := tt.things[h].Load(Discard); err != nil {
				return err
			}
			tt.active = append(tt.active, h)
		}
	}
	tt.activeAt = current
	return nil
}

// Play продвигает объекты из current в target
func (tt *TransientThings) Play(sink Sink, current, target int32) error {
	if err := tt.settle(current); err != nil {
		return err
	}

	kept := tt.active[:0]
	for _, h := range tt.active {
		if tt.things[h].Span().Despawn <= target {
			if err := tt.things[h].Unload(sink); err != nil {
				return err
			}
			continue
		}
		kept = append(kept, h)
	}
	old := len(kept)

	lo, hi := tt.spawns.Range(current, target)
	for i := lo; i < hi; i++ {
		_, handles := tt.spawns.At(i)
		for _, h := range handles {
			if tt.things[h].Span().Despawn <= target {
				continue
			}
			if err := tt.things[h].Load(sink); err != nil {
				return err
			}
			kept = append(kept, h)
		}
	}
	tt.active = kept
	tt.activeAt = target

	return tt.advance(sink, old, current, target, false)
}

// Rewind возвращает объекты из current в более ранний target
func (tt *TransientThings) Rewind(sink Sink, current, target int32) error {
	if err := tt.settle(current); err != nil {
		return err
	}

	kept := tt.active[:0]
	for _, h := range tt.active {
		if tt.things[h].Span().Spawn > target {
			if err := tt.things[h].Unload(sink); err != nil {
				return err
			}
			continue
		}
		kept = append(kept, h)
	}
	old := len(kept)

	lo, hi := tt.despawns.Range(target, current)
	for i := lo; i < hi; i++ {
		_, handles := tt.despawns.At(i)
		for _, h := range handles {
			if tt.things[h].Span().Spawn > target {
				continue
			}
			if err := tt.things[h].Load(sink); err != nil {
				return err
			}
			kept = append(kept, h)
		}
	}
	tt.active = kept
	tt.activeAt = target

	return tt.advance(sink, old, current, target, true)
}

// advance переводит активные объекты в target. Первые old объектов были
// активны и в current; остальные только что появились в состоянии своего
// рождения и проигрываются от него.
func (tt *TransientThings) advance(sink Sink, old int, current, target int32, rewind bool) error {
	for i, h := range tt.active {
		thing := tt.things[h]
		var err error
		switch {
		case i >= old:
			err = thing.Play(sink, thing.Span().Spawn-1, target)
		case rewind:
			err = thing.Rewind(sink, current, target)
		default:
			err = thing.Play(sink, current, target)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Active возвращает живые в последний переданный момент объекты
func (tt *TransientThings) Active() []Thing {
	out := make([]Thing, 0, len(tt.active))
	for _, h := range tt.active {
		out = append(out, tt.things[h])
	}
	return out
}

// Things возвращает все объекты мира в порядке индекса
func (tt *TransientThings) Things() []Thing {
	return append([]Thing(nil), tt.things...)
}

// thingBuilder - временный объект на стороне записи
type thingBuilder interface {
	base() *transientBuilder
	// build пишет данные объекта в поток и дописывает его поля в запись индекса
	build(out *Output, rec *cache.Block) error
	summary() ThingSummary
}

// transientBuilder - общая часть построителей временных объектов
type transientBuilder struct {
	span           Span
	spawnPackets   []protocol.Packet
	despawnPackets []protocol.Packet
}

func (b *transientBuilder) base() *transientBuilder {
	return b
}

// AddSpawnPacket добавляет пакет появления; пакет должен принадлежать построителю
func (b *transientBuilder) AddSpawnPacket(p protocol.Packet) {
	b.spawnPackets = append(b.spawnPackets, p)
}

// PrependSpawnPacket ставит пакет первым в списке появления
func (b *transientBuilder) PrependSpawnPacket(p protocol.Packet) {
	b.spawnPackets = append([]protocol.Packet{p}, b.spawnPackets...)
}

// SpawnPackets возвращает пакеты появления в порядке отправки
func (b *transientBuilder) SpawnPackets() []protocol.Packet {
	return b.spawnPackets
}

func (b *transientBuilder) addDespawnPacket(p protocol.Packet) {
	b.despawnPackets = append(b.despawnPackets, p)
}

func (b *transientBuilder) build(out *Output, rec *cache.Block) error {
	spawnOff, err := out.packets(b.spawnPackets)
	if err != nil {
		return err
	}
	despawnOff, err := out.packets(b.despawnPackets)
	if err != nil {
		return err
	}
	b.spawnPackets, b.despawnPackets = nil, nil
	rec.VarInt(b.span.Spawn).VarInt(b.span.Despawn).VarInt(spawnOff).VarInt(despawnOff)
	return nil
}

// ThingsBuilder собирает временные объекты одного мира. Закрытый объект сразу
// пишется в поток данных, а его запись - в индекс объектов.
type ThingsBuilder struct {
	out      *Output
	info     protocol.WorldInfo
	index    *cache.Block
	entities map[int32]*EntityBuilder
	chunks   map[vec.ChunkPos]*ChunkBuilder
	weather  *WeatherBuilder
	done     []ThingSummary
}

func newThingsBuilder(out *Output, info protocol.WorldInfo) *ThingsBuilder {
	return &ThingsBuilder{
		out:      out,
		info:     info,
		index:    out.deferred(),
		entities: make(map[int32]*EntityBuilder),
		chunks:   make(map[vec.ChunkPos]*ChunkBuilder),
	}
}

func (tb *ThingsBuilder) commit(kind uint8, thing thingBuilder, time int32) error {
	thing.base().span.Despawn = time
	summary := thing.summary()
	tb.index.Byte(kind)
	if err := thing.build(tb.out, tb.index); err != nil {
		return err
	}
	tb.done = append(tb.done, summary)
	return nil
}

// NewEntity открывает сущность id; прежняя сущность с тем же id закрывается в момент time
func (tb *ThingsBuilder) NewEntity(time int32, id int32) (*EntityBuilder, error) {
	if prev, ok := tb.entities[id]; ok {
		if err := tb.commit(recordEntity, prev, time); err != nil {
			return nil, err
		}
	}
	e := newEntityBuilder(tb.out.Registry(), id)
	e.span.Spawn = time
	tb.entities[id] = e
	return e, nil
}

// Entity возвращает открытую сущность
func (tb *ThingsBuilder) Entity(id int32) (*EntityBuilder, bool) {
	e, ok := tb.entities[id]
	return e, ok
}

// RemoveEntity закрывает сущность; неизвестный id игнорируется
func (tb *ThingsBuilder) RemoveEntity(time int32, id int32) error {
	e, ok := tb.entities[id]
	if !ok {
		return nil
	}
	delete(tb.entities, id)
	return tb.commit(recordEntity, e, time)
}

// NewChunk открывает столбец по полному пакету ChunkData; packet переходит во владение построителя
func (tb *ThingsBuilder) NewChunk(time int32, packet protocol.Packet, column protocol.ChunkData) (*ChunkBuilder, error) {
	if prev, ok := tb.chunks[column.Pos]; ok {
		if err := tb.commit(recordChunk, prev, time); err != nil {
			return nil, err
		}
	}
	c := newChunkBuilder(tb.out.Registry(), tb.info, packet, column)
	c.span.Spawn = time
	tb.chunks[column.Pos] = c
	return c, nil
}

// Chunk возвращает открытый столбец
func (tb *ThingsBuilder) Chunk(pos vec.ChunkPos) (*ChunkBuilder, bool) {
	c, ok := tb.chunks[pos]
	return c, ok
}

// ChunkPositions возвращает открытые столбцы в порядке X, затем Z
func (tb *ThingsBuilder) ChunkPositions() []vec.ChunkPos {
	positions := make([]vec.ChunkPos, 0, len(tb.chunks))
	for pos := range tb.chunks {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Less(positions[j]) })
	return positions
}

// RemoveChunk закрывает столбец; неизвестный столбец игнорируется
func (tb *ThingsBuilder) RemoveChunk(time int32, pos vec.ChunkPos) error {
	c, ok := tb.chunks[pos]
	if !ok {
		return nil
	}
	delete(tb.chunks, pos)
	return tb.commit(recordChunk, c, time)
}

// NewWeather начинает дождь; идущий дождь закрывается в момент time
func (tb *ThingsBuilder) NewWeather(time int32) (*WeatherBuilder, error) {
	if tb.weather != nil {
		if err := tb.commit(recordWeather, tb.weather, time); err != nil {
			return nil, err
		}
	}
	tb.weather = newWeatherBuilder(tb.out.Registry())
	tb.weather.span.Spawn = time
	return tb.weather, nil
}

// Weather возвращает идущий дождь
func (tb *ThingsBuilder) Weather() (*WeatherBuilder, bool) {
	return tb.weather, tb.weather != nil
}

// RemoveWeather заканчивает дождь
func (tb *ThingsBuilder) RemoveWeather(time int32) error {
	if tb.weather == nil {
		return nil
	}
	w := tb.weather
	tb.weather = nil
	return tb.commit(recordWeather, w, time)
}

func (tb *ThingsBuilder) entityIDs() []int32 {
	ids := make([]int32, 0, len(tb.entities))
	for id := range tb.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// flush закрывает все открытые объекты: столбцы, сущности, погоду
func (tb *ThingsBuilder) flush(time int32) error {
	for _, pos := range tb.ChunkPositions() {
		if err := tb.RemoveChunk(time, pos); err != nil {
			return err
		}
	}
	for _, id := range tb.entityIDs() {
		if err := tb.RemoveEntity(time, id); err != nil {
			return err
		}
	}
	return tb.RemoveWeather(time)
}

// build закрывает объекты в момент time и пишет индекс объектов
func (tb *ThingsBuilder) build(time int32) (int32, error) {
	if err := tb.flush(time); err != nil {
		return 0, err
	}
	tb.index.Byte(recordEnd)
	off, err := tb.index.Commit()
	if err != nil {
		return 0, fmt.Errorf("не удалось записать индекс объектов: %w", err)
	}
	return off, nil
}

// preview описывает объекты так, как они будут записаны при закрытии в момент end
func (tb *ThingsBuilder) preview(end int32) []ThingSummary {
	out := append([]ThingSummary(nil), tb.done...)
	add := func(thing thingBuilder) {
		s := thing.summary()
		s.Span.Despawn = end
		out = append(out, s)
	}
	for _, pos := range tb.ChunkPositions() {
		add(tb.chunks[pos])
	}
	for _, id := range tb.entityIDs() {
		add(tb.entities[id])
	}
	if tb.weather != nil {
		add(tb.weather)
	}
	return out
}
