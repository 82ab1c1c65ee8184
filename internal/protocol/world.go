package protocol

import (
	"bytes"
	"io"

	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/annel0/replay-engine/internal/vec"
)

// WorldInfo описывает измерение, в котором находится игрок
type WorldInfo struct {
	Dimension     string
	DimensionType string
	MinY          int32
	Height        int32
	HashedSeed    int64
	Difficulty    uint8
	Debug         bool
	Flat          bool
}

// MinSection возвращает номер нижней секции измерения
func (i WorldInfo) MinSection() int {
	return int(i.MinY) >> 4
}

// SectionCount возвращает число секций по высоте
func (i WorldInfo) SectionCount() int {
	return int(i.Height) >> 4
}

// RespawnSufficient сообщает, можно ли перейти из prev в i пакетом Respawn
// вместо полного JoinGame.
func (i WorldInfo) RespawnSufficient(prev WorldInfo) bool {
	return i.Dimension != prev.Dimension
}

func (i WorldInfo) fields() []io.WriterTo {
	return []io.WriterTo{
		pk.String(i.Dimension),
		pk.String(i.DimensionType),
		pk.VarInt(i.MinY),
		pk.VarInt(i.Height),
		pk.Long(i.HashedSeed),
		pk.UnsignedByte(i.Difficulty),
	}
}

// JoinGame - вход в игру и первое измерение
type JoinGame struct {
	EntityID           int32
	Gamemode           uint8
	World              WorldInfo
	ViewDistance       int32
	SimulationDistance int32
}

// Encode собирает пакет JoinGame
func (j JoinGame) Encode(r *Registry) Packet {
	var buf bytes.Buffer
	writeFields(&buf, pk.Int(j.EntityID), pk.UnsignedByte(j.Gamemode))
	writeFields(&buf, j.World.fields()...)
	writeFields(&buf,
		pk.VarInt(j.ViewDistance),
		pk.VarInt(j.SimulationDistance),
		pk.Boolean(j.World.Debug),
		pk.Boolean(j.World.Flat),
	)
	return r.packet(KindJoinGame, buf.Bytes())
}

// ReadJoinGame разбирает пакет JoinGame
func ReadJoinGame(p Packet) (JoinGame, error) {
	if err := expect(p, KindJoinGame); err != nil {
		return JoinGame{}, err
	}
	var (
		id                pk.Int
		gamemode, diff    pk.UnsignedByte
		dim, dimType      pk.String
		minY, height      pk.VarInt
		seed              pk.Long
		viewDist, simDist pk.VarInt
		debug, flat       pk.Boolean
	)
	err := readFields(bytes.NewReader(p.Data), p.Kind,
		&id, &gamemode, &dim, &dimType, &minY, &height, &seed, &diff,
		&viewDist, &simDist, &debug, &flat)
	if err != nil {
		return JoinGame{}, err
	}
	return JoinGame{
		EntityID: int32(id),
		Gamemode: uint8(gamemode),
		World: WorldInfo{
			Dimension:     string(dim),
			DimensionType: string(dimType),
			MinY:          int32(minY),
			Height:        int32(height),
			HashedSeed:    int64(seed),
			Difficulty:    uint8(diff),
			Debug:         bool(debug),
			Flat:          bool(flat),
		},
		ViewDistance:       int32(viewDist),
		SimulationDistance: int32(simDist),
	}, nil
}

// Respawn - переход в другое измерение
type Respawn struct {
	World    WorldInfo
	Gamemode uint8
}

// Encode собирает пакет Respawn
func (s Respawn) Encode(r *Registry) Packet {
	var buf bytes.Buffer
	writeFields(&buf, s.World.fields()...)
	writeFields(&buf,
		pk.UnsignedByte(s.Gamemode),
		pk.Boolean(s.World.Debug),
		pk.Boolean(s.World.Flat),
	)
	return r.packet(KindRespawn, buf.Bytes())
}

// ReadRespawn разбирает пакет Respawn
func ReadRespawn(p Packet) (Respawn, error) {
	if err := expect(p, KindRespawn); err != nil {
		return Respawn{}, err
	}
	var (
		dim, dimType   pk.String
		minY, height   pk.VarInt
		seed           pk.Long
		diff, gamemode pk.UnsignedByte
		debug, flat    pk.Boolean
	)
	err := readFields(bytes.NewReader(p.Data), p.Kind,
		&dim, &dimType, &minY, &height, &seed, &diff, &gamemode, &debug, &flat)
	if err != nil {
		return Respawn{}, err
	}
	return Respawn{
		World: WorldInfo{
			Dimension:     string(dim),
			DimensionType: string(dimType),
			MinY:          int32(minY),
			Height:        int32(height),
			HashedSeed:    int64(seed),
			Difficulty:    uint8(diff),
			Debug:         bool(debug),
			Flat:          bool(flat),
		},
		Gamemode: uint8(gamemode),
	}, nil
}

// PlayerPosition - позиция камеры игрока; закрывает экран загрузки мира
type PlayerPosition struct {
	Location   vec.Location
	TeleportID int32
}

// Encode собирает пакет PlayerPosition
func (pp PlayerPosition) Encode(r *Registry) Packet {
	l := pp.Location
	return r.packet(KindPlayerPosition, marshal(
		pk.Double(l.X), pk.Double(l.Y), pk.Double(l.Z),
		pk.Float(l.Yaw), pk.Float(l.Pitch),
		pk.Byte(0),
		pk.VarInt(pp.TeleportID),
	))
}

// ReadPlayerPosition разбирает пакет PlayerPosition
func ReadPlayerPosition(p Packet) (PlayerPosition, error) {
	if err := expect(p, KindPlayerPosition); err != nil {
		return PlayerPosition{}, err
	}
	var (
		x, y, z    pk.Double
		yaw, pitch pk.Float
		flags      pk.Byte
		teleport   pk.VarInt
	)
	if err := readFields(bytes.NewReader(p.Data), p.Kind, &x, &y, &z, &yaw, &pitch, &flags, &teleport); err != nil {
		return PlayerPosition{}, err
	}
	return PlayerPosition{
		Location:   vec.Location{X: float64(x), Y: float64(y), Z: float64(z), Yaw: float32(yaw), Pitch: float32(pitch)},
		TeleportID: int32(teleport),
	}, nil
}

// UpdateViewPosition - новый центр прорисовки в координатах чанков
type UpdateViewPosition struct {
	Center vec.ChunkPos
}

// Encode собирает пакет UpdateViewPosition
func (u UpdateViewPosition) Encode(r *Registry) Packet {
	return r.packet(KindUpdateViewPosition, marshal(pk.VarInt(u.Center.X), pk.VarInt(u.Center.Z)))
}

// ReadUpdateViewPosition разбирает пакет UpdateViewPosition
func ReadUpdateViewPosition(p Packet) (UpdateViewPosition, error) {
	if err := expect(p, KindUpdateViewPosition); err != nil {
		return UpdateViewPosition{}, err
	}
	var x, z pk.VarInt
	if err := readFields(bytes.NewReader(p.Data), p.Kind, &x, &z); err != nil {
		return UpdateViewPosition{}, err
	}
	return UpdateViewPosition{Center: vec.ChunkPos{X: int32(x), Z: int32(z)}}, nil
}

// EncodeDistance собирает UpdateViewDistance или UpdateSimulationDistance
func EncodeDistance(r *Registry, kind Kind, distance int32) Packet {
	return r.packet(kind, marshal(pk.VarInt(distance)))
}

// ReadDistance разбирает UpdateViewDistance или UpdateSimulationDistance
func ReadDistance(p Packet) (int32, error) {
	if err := expect(p, KindUpdateViewDistance, KindUpdateSimulationDistance); err != nil {
		return 0, err
	}
	var d pk.VarInt
	if err := readFields(bytes.NewReader(p.Data), p.Kind, &d); err != nil {
		return 0, err
	}
	return int32(d), nil
}

// UpdateTime - возраст мира и время суток
type UpdateTime struct {
	WorldAge  int64
	TimeOfDay int64
}

// Encode собирает пакет UpdateTime
func (u UpdateTime) Encode(r *Registry) Packet {
	return r.packet(KindUpdateTime, marshal(pk.Long(u.WorldAge), pk.Long(u.TimeOfDay)))
}

// ReadUpdateTime разбирает пакет UpdateTime
func ReadUpdateTime(p Packet) (UpdateTime, error) {
	if err := expect(p, KindUpdateTime); err != nil {
		return UpdateTime{}, err
	}
	var age, tod pk.Long
	if err := readFields(bytes.NewReader(p.Data), p.Kind, &age, &tod); err != nil {
		return UpdateTime{}, err
	}
	return UpdateTime{WorldAge: int64(age), TimeOfDay: int64(tod)}, nil
}

// Причины NotifyClient, которые отслеживаются
const (
	NotifyEndRain         uint8 = 1
	NotifyBeginRain       uint8 = 2
	NotifyRainStrength    uint8 = 7
	NotifyThunderStrength uint8 = 8
)

// NotifyClient - изменение состояния игры (погода и т.п.)
type NotifyClient struct {
	Reason uint8
	Value  float32
}

// Encode собирает пакет NotifyClient
func (n NotifyClient) Encode(r *Registry) Packet {
	return r.packet(KindNotifyClient, marshal(pk.UnsignedByte(n.Reason), pk.Float(n.Value)))
}

// ReadNotifyClient разбирает пакет NotifyClient
func ReadNotifyClient(p Packet) (NotifyClient, error) {
	if err := expect(p, KindNotifyClient); err != nil {
		return NotifyClient{}, err
	}
	var reason pk.UnsignedByte
	var value pk.Float
	if err := readFields(bytes.NewReader(p.Data), p.Kind, &reason, &value); err != nil {
		return NotifyClient{}, err
	}
	return NotifyClient{Reason: uint8(reason), Value: float32(value)}, nil
}
