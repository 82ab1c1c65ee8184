package analyzer

import (
	"math"

	"github.com/google/uuid"

	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/state"
	"github.com/annel0/replay-engine/internal/vec"
)

// minViewDistance - клиент держит столбцы минимум на таком расстоянии,
// даже если сервер прислал меньшую дальность
const minViewDistance = 2

// viewMargin - запас сверх дальности прорисовки, после которого клиент выгружает столбец
const viewMargin = 3

// pendingLight - освещение, пришедшее раньше своего столбца
type pendingLight struct {
	pos    vec.ChunkPos
	packet protocol.Packet
}

// session - состояние одного прохода по записи
type session struct {
	registry *protocol.Registry
	version  protocol.Version
	replay   *state.ReplayBuilder

	players map[uuid.UUID]protocol.PlayerListItem
	light   *pendingLight

	viewCenter         vec.ChunkPos
	viewDistance       int32
	simulationDistance int32
	worlds             int
}

func newSession(registry *protocol.Registry, replay *state.ReplayBuilder) *session {
	return &session{
		registry: registry,
		version:  registry.Version(),
		replay:   replay,
		players:  make(map[uuid.UUID]protocol.PlayerListItem),
	}
}

// handle применяет один пакет записи. Пакеты, которым нужен мир,
// до первого JoinGame пропускаются.
func (s *session) handle(time int32, p protocol.Packet) error {
	switch p.Kind {
	case protocol.KindJoinGame:
		return s.joinGame(time, p)
	case protocol.KindTags:
		s.replay.Tags.Put(time, p.Clone())
		return nil
	case protocol.KindFeatures:
		s.replay.Features.Put(time, p.Clone())
		return nil
	case protocol.KindPlayerListEntry:
		return s.playerList(p)
	}

	w := s.replay.World
	if w == nil {
		return nil
	}
	if err := s.worldPacket(w, time, p); err != nil {
		return err
	}
	return s.updateLocation(w, time, p)
}

func (s *session) worldPacket(w *state.WorldBuilder, time int32, p protocol.Packet) error {
	switch p.Kind {
	case protocol.KindSpawnPlayer, protocol.KindSpawnMob, protocol.KindSpawnObject, protocol.KindSpawnPainting:
		return s.spawnEntity(w, time, p)

	case protocol.KindDestroyEntities, protocol.KindDestroyEntity:
		ids, err := protocol.ReadDestroyEntities(p)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := w.Things.RemoveEntity(time, id); err != nil {
				return err
			}
		}

	case protocol.KindChunkData:
		column, err := protocol.ReadChunkData(p)
		if err != nil {
			return err
		}
		return s.loadColumn(w, time, p, column)

	case protocol.KindUnloadChunk:
		pos, err := protocol.ReadUnloadChunk(p)
		if err != nil {
			return err
		}
		return w.Things.RemoveChunk(time, pos)

	case protocol.KindUpdateLight:
		return s.updateLight(w, p)

	case protocol.KindBlockChange:
		change, err := protocol.ReadBlockChange(p)
		if err != nil {
			return err
		}
		s.changeBlock(w, time, change)

	case protocol.KindMultiBlockChange:
		m, err := protocol.ReadMultiBlockChange(p)
		if err != nil {
			return err
		}
		for _, change := range m.Records {
			s.changeBlock(w, time, change)
		}

	case protocol.KindRespawn:
		return s.respawn(w, time, p)

	case protocol.KindUpdateViewPosition:
		view, err := protocol.ReadUpdateViewPosition(p)
		if err != nil {
			return err
		}
		s.viewCenter = view.Center
		if err := s.invalidateChunks(w, time); err != nil {
			return err
		}
		w.ViewPosition.Put(time, p.Clone())

	case protocol.KindUpdateViewDistance:
		d, err := protocol.ReadDistance(p)
		if err != nil {
			return err
		}
		s.viewDistance = d
		if err := s.invalidateChunks(w, time); err != nil {
			return err
		}
		w.ViewDistance.Put(time, p.Clone())

	case protocol.KindUpdateSimulationDistance:
		d, err := protocol.ReadDistance(p)
		if err != nil {
			return err
		}
		s.simulationDistance = d
		w.SimulationDistance.Put(time, p.Clone())

	case protocol.KindUpdateTime:
		w.WorldTime.Put(time, p.Clone())

	case protocol.KindNotifyClient:
		return s.notify(w, time, p)
	}
	return nil
}

func (s *session) spawnEntity(w *state.WorldBuilder, time int32, p protocol.Packet) error {
	spawn, err := protocol.ReadSpawnEntity(p)
	if err != nil {
		return err
	}
	e, err := w.Things.NewEntity(time, spawn.EntityID)
	if err != nil {
		return err
	}
	if p.Kind == protocol.KindSpawnPlayer {
		if item, ok := s.players[spawn.UUID]; ok {
			entry := protocol.PlayerListEntry{Action: protocol.PlayerListAdd, Items: []protocol.PlayerListItem{item}}
			e.AddSpawnPacket(entry.Encode(s.registry))
		}
	}
	e.AddSpawnPacket(p.Clone())
	return nil
}

// loadColumn открывает столбец по полному ChunkData или применяет частичный
// к уже известному столбцу
func (s *session) loadColumn(w *state.WorldBuilder, time int32, p protocol.Packet, column protocol.ChunkData) error {
	if !column.Full {
		if c, ok := w.Things.Chunk(column.Pos); ok {
			c.UpdateColumn(time, column)
		}
		return nil
	}
	c, err := w.Things.NewChunk(time, p.Clone(), column)
	if err != nil {
		return err
	}
	if s.light != nil && s.light.pos == column.Pos {
		c.PrependSpawnPacket(s.light.packet)
		s.light = nil
	}
	return nil
}

// updateLight привязывает освещение к столбцу. Сервер может прислать его
// как до, так и после ChunkData.
func (s *session) updateLight(w *state.WorldBuilder, p protocol.Packet) error {
	if s.version.LightInChunkData() {
		return nil
	}
	light, err := protocol.ReadUpdateLight(p)
	if err != nil {
		return err
	}
	if c, ok := w.Things.Chunk(light.Pos); ok && len(c.SpawnPackets()) == 1 {
		c.PrependSpawnPacket(p.Clone())
		return nil
	}
	s.light = &pendingLight{pos: light.Pos, packet: p.Clone()}
	return nil
}

// changeBlock направляет изменение в столбец; изменения неизвестных столбцов теряются
func (s *session) changeBlock(w *state.WorldBuilder, time int32, change protocol.BlockChange) {
	if c, ok := w.Things.Chunk(vec.ChunkOf(change.Pos)); ok {
		c.UpdateBlock(time, change)
	}
}

// invalidateChunks закрывает столбцы, которые клиент выгрузил бы сам
// после смены центра или дальности прорисовки
func (s *session) invalidateChunks(w *state.WorldBuilder, time int32) error {
	radius := s.viewDistance
	if radius < minViewDistance {
		radius = minViewDistance
	}
	radius += viewMargin
	for _, pos := range w.Things.ChunkPositions() {
		if !pos.OutOfView(s.viewCenter, radius) {
			continue
		}
		if err := w.Things.RemoveChunk(time, pos); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) notify(w *state.WorldBuilder, time int32, p protocol.Packet) error {
	n, err := protocol.ReadNotifyClient(p)
	if err != nil {
		return err
	}
	switch n.Reason {
	case protocol.NotifyBeginRain:
		_, err := w.Things.NewWeather(time)
		return err
	case protocol.NotifyEndRain:
		return w.Things.RemoveWeather(time)
	case protocol.NotifyRainStrength:
		if weather, ok := w.Things.Weather(); ok {
			weather.UpdateRainStrength(time, p.Clone())
		}
	case protocol.NotifyThunderStrength:
		w.Thunder.Put(time, p.Clone())
	}
	return nil
}

func (s *session) joinGame(time int32, p protocol.Packet) error {
	join, err := protocol.ReadJoinGame(p)
	if err != nil {
		return err
	}
	w := s.newWorld(time, join.World)
	if s.version.HasViewState() {
		s.viewDistance = join.ViewDistance
	}
	if s.version.HasSimulationDistance() {
		s.simulationDistance = join.SimulationDistance
	}
	s.resetView(w, time)
	return nil
}

// respawn открывает новый мир только при смене измерения
func (s *session) respawn(w *state.WorldBuilder, time int32, p protocol.Packet) error {
	respawn, err := protocol.ReadRespawn(p)
	if err != nil {
		return err
	}
	if respawn.World.Dimension == w.Info.Dimension {
		return nil
	}
	s.resetView(s.newWorld(time, respawn.World), time)
	return nil
}

func (s *session) newWorld(time int32, info protocol.WorldInfo) *state.WorldBuilder {
	s.worlds++
	return s.replay.NewWorld(time, info)
}

// resetView записывает в новый мир центр 0,0 и текущие дальности
func (s *session) resetView(w *state.WorldBuilder, time int32) {
	if s.version.HasViewState() {
		s.viewCenter = vec.ChunkPos{}
		w.ViewPosition.Put(time, protocol.UpdateViewPosition{}.Encode(s.registry))
		w.ViewDistance.Put(time, protocol.EncodeDistance(s.registry, protocol.KindUpdateViewDistance, s.viewDistance))
	}
	if s.version.HasSimulationDistance() {
		w.SimulationDistance.Put(time, protocol.EncodeDistance(s.registry, protocol.KindUpdateSimulationDistance, s.simulationDistance))
	}
}

// updateLocation отслеживает положение сущности по любому пакету с её id
func (s *session) updateLocation(w *state.WorldBuilder, time int32, p protocol.Packet) error {
	id, ok := protocol.EntityID(p)
	if !ok {
		return nil
	}
	e, ok := w.Things.Entity(id)
	if !ok {
		return nil
	}
	var prev *vec.Location
	if l, ok := e.Location(); ok {
		prev = &l
	}
	l, changed, err := protocol.UpdateLocation(p, prev)
	if err != nil {
		return err
	}
	if changed {
		e.UpdateLocation(time, l)
	}
	return nil
}

// playerList ведёт таблицу записей списка игроков по UUID
func (s *session) playerList(p protocol.Packet) error {
	entry, err := protocol.ReadPlayerListEntry(p)
	if err != nil {
		return err
	}
	for _, it := range entry.Items {
		if entry.Action == protocol.PlayerListAdd {
			s.players[it.UUID] = it
			continue
		}
		known, ok := s.players[it.UUID]
		if !ok {
			continue
		}
		switch entry.Action {
		case protocol.PlayerListGamemode:
			known.Gamemode = it.Gamemode
		case protocol.PlayerListLatency:
			known.Latency = it.Latency
		case protocol.PlayerListDisplayName:
			known.DisplayName = it.DisplayName
		case protocol.PlayerListRemove:
			delete(s.players, it.UUID)
			continue
		}
		s.players[it.UUID] = known
	}
	return nil
}

// finish отбрасывает непривязанное освещение и пишет шкалы. Объекты, живые
// к концу записи, закрываются сразу после end: в момент end они ещё видны.
func (s *session) finish(end int32) (state.Index, error) {
	s.light = nil
	if end < math.MaxInt32 {
		end++
	}
	return s.replay.Build(end)
}
