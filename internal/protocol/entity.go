package protocol

import (
	"bytes"
	"fmt"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"

	"github.com/annel0/replay-engine/internal/vec"
)

// maxListLen ограничивает длину списков при разборе
const maxListLen = 1 << 16

// SpawnEntity - общие поля пакетов появления сущностей
type SpawnEntity struct {
	EntityID int32
	UUID     uuid.UUID
	Type     int32
	Location vec.Location
}

// Encode собирает пакет появления сущности данного типа.
// Для картины позиция округляется до блока.
func (s SpawnEntity) Encode(r *Registry, kind Kind) Packet {
	l := s.Location
	switch kind {
	case KindSpawnPlayer:
		return r.packet(kind, marshal(
			pk.VarInt(s.EntityID), pk.UUID(s.UUID),
			pk.Double(l.X), pk.Double(l.Y), pk.Double(l.Z),
			toAngle(l.Yaw), toAngle(l.Pitch),
		))
	case KindSpawnPainting:
		return r.packet(kind, marshal(
			pk.VarInt(s.EntityID), pk.UUID(s.UUID), pk.VarInt(s.Type),
			pk.Position{X: int(l.X), Y: int(l.Y), Z: int(l.Z)},
			pk.Byte(0),
		))
	default:
		return r.packet(kind, marshal(
			pk.VarInt(s.EntityID), pk.UUID(s.UUID), pk.VarInt(s.Type),
			pk.Double(l.X), pk.Double(l.Y), pk.Double(l.Z),
			toAngle(l.Pitch), toAngle(l.Yaw),
		))
	}
}

// ReadSpawnEntity разбирает любой пакет появления сущности
func ReadSpawnEntity(p Packet) (SpawnEntity, error) {
	if !p.Kind.IsEntitySpawn() {
		return SpawnEntity{}, fmt.Errorf("%w: %s", ErrWrongKind, p.Kind)
	}
	r := bytes.NewReader(p.Data)
	var (
		id         pk.VarInt
		id2        pk.UUID
		typ        pk.VarInt
		x, y, z    pk.Double
		yaw, pitch pk.UnsignedByte
	)
	switch p.Kind {
	case KindSpawnPlayer:
		if err := readFields(r, p.Kind, &id, &id2, &x, &y, &z, &yaw, &pitch); err != nil {
			return SpawnEntity{}, err
		}
	case KindSpawnPainting:
		var pos pk.Position
		var dir pk.Byte
		if err := readFields(r, p.Kind, &id, &id2, &typ, &pos, &dir); err != nil {
			return SpawnEntity{}, err
		}
		x, y, z = pk.Double(pos.X), pk.Double(pos.Y), pk.Double(pos.Z)
	default:
		if err := readFields(r, p.Kind, &id, &id2, &typ, &x, &y, &z, &pitch, &yaw); err != nil {
			return SpawnEntity{}, err
		}
	}
	return SpawnEntity{
		EntityID: int32(id),
		UUID:     uuid.UUID(id2),
		Type:     int32(typ),
		Location: vec.Location{
			X: float64(x), Y: float64(y), Z: float64(z),
			Yaw: fromAngle(yaw), Pitch: fromAngle(pitch),
		},
	}, nil
}

// EncodeDestroyEntities собирает пакет уничтожения сущностей. Для версии,
// где есть только одиночный DestroyEntity, ids должен содержать один id.
func EncodeDestroyEntities(r *Registry, ids ...int32) Packet {
	if !r.Has(KindDestroyEntities) && len(ids) == 1 {
		return r.packet(KindDestroyEntity, marshal(pk.VarInt(ids[0])))
	}
	var buf bytes.Buffer
	writeFields(&buf, pk.VarInt(len(ids)))
	for _, id := range ids {
		writeFields(&buf, pk.VarInt(id))
	}
	return r.packet(KindDestroyEntities, buf.Bytes())
}

// ReadDestroyEntities возвращает id из DestroyEntities или DestroyEntity
func ReadDestroyEntities(p Packet) ([]int32, error) {
	if err := expect(p, KindDestroyEntities, KindDestroyEntity); err != nil {
		return nil, err
	}
	r := bytes.NewReader(p.Data)
	if p.Kind == KindDestroyEntity {
		var id pk.VarInt
		if err := readFields(r, p.Kind, &id); err != nil {
			return nil, err
		}
		return []int32{int32(id)}, nil
	}
	n, err := readCount(r, p.Kind, maxListLen)
	if err != nil {
		return nil, err
	}
	ids := make([]int32, n)
	for i := range ids {
		var id pk.VarInt
		if err := readFields(r, p.Kind, &id); err != nil {
			return nil, err
		}
		ids[i] = int32(id)
	}
	return ids, nil
}

// EntityMove - относительное перемещение и/или поворот сущности
type EntityMove struct {
	EntityID   int32
	DX, DY, DZ float64
	Yaw, Pitch float32
	OnGround   bool
}

func deltaToShort(d float64) pk.Short {
	return pk.Short(int16(d * 4096))
}

// Encode собирает EntityPosition, EntityRotation или EntityPositionRotation
func (m EntityMove) Encode(r *Registry, kind Kind) Packet {
	switch kind {
	case KindEntityPosition:
		return r.packet(kind, marshal(pk.VarInt(m.EntityID),
			deltaToShort(m.DX), deltaToShort(m.DY), deltaToShort(m.DZ), pk.Boolean(m.OnGround)))
	case KindEntityRotation:
		return r.packet(kind, marshal(pk.VarInt(m.EntityID),
			toAngle(m.Yaw), toAngle(m.Pitch), pk.Boolean(m.OnGround)))
	default:
		return r.packet(KindEntityPositionRotation, marshal(pk.VarInt(m.EntityID),
			deltaToShort(m.DX), deltaToShort(m.DY), deltaToShort(m.DZ),
			toAngle(m.Yaw), toAngle(m.Pitch), pk.Boolean(m.OnGround)))
	}
}

// EncodeTeleport собирает EntityTeleport в абсолютную позицию
func EncodeTeleport(r *Registry, entityID int32, l vec.Location, onGround bool) Packet {
	return r.packet(KindEntityTeleport, marshal(
		pk.VarInt(entityID),
		pk.Double(l.X), pk.Double(l.Y), pk.Double(l.Z),
		toAngle(l.Yaw), toAngle(l.Pitch),
		pk.Boolean(onGround),
	))
}

// EncodeHeadLook собирает EntityHeadLook
func EncodeHeadLook(r *Registry, entityID int32, yaw float32) Packet {
	return r.packet(KindEntityHeadLook, marshal(pk.VarInt(entityID), toAngle(yaw)))
}

// EntityID извлекает id сущности из пакетов, которые его содержат
func EntityID(p Packet) (int32, bool) {
	switch p.Kind {
	case KindSpawnPlayer, KindSpawnMob, KindSpawnObject, KindSpawnPainting,
		KindEntityMovement, KindEntityPosition, KindEntityRotation,
		KindEntityPositionRotation, KindEntityTeleport, KindEntityHeadLook:
	default:
		return 0, false
	}
	var id pk.VarInt
	if _, err := id.ReadFrom(bytes.NewReader(p.Data)); err != nil {
		return 0, false
	}
	return int32(id), true
}

// UpdateLocation применяет пакет к положению сущности. prev == nil означает,
// что положение ещё неизвестно; относительные перемещения тогда считаются от нуля.
// Возвращает false, если пакет положение не меняет.
func UpdateLocation(p Packet, prev *vec.Location) (vec.Location, bool, error) {
	var base vec.Location
	if prev != nil {
		base = *prev
	}
	r := bytes.NewReader(p.Data)
	var (
		id         pk.VarInt
		dx, dy, dz pk.Short
		yaw, pitch pk.UnsignedByte
		onGround   pk.Boolean
	)
	switch p.Kind {
	case KindSpawnPlayer, KindSpawnMob, KindSpawnObject, KindSpawnPainting:
		s, err := ReadSpawnEntity(p)
		if err != nil {
			return base, false, err
		}
		return s.Location, true, nil
	case KindEntityPosition:
		if err := readFields(r, p.Kind, &id, &dx, &dy, &dz, &onGround); err != nil {
			return base, false, err
		}
		return base.Move(float64(dx)/4096, float64(dy)/4096, float64(dz)/4096), true, nil
	case KindEntityRotation:
		if err := readFields(r, p.Kind, &id, &yaw, &pitch, &onGround); err != nil {
			return base, false, err
		}
		return base.WithRotation(fromAngle(yaw), fromAngle(pitch)), true, nil
	case KindEntityPositionRotation:
		if err := readFields(r, p.Kind, &id, &dx, &dy, &dz, &yaw, &pitch, &onGround); err != nil {
			return base, false, err
		}
		moved := base.Move(float64(dx)/4096, float64(dy)/4096, float64(dz)/4096)
		return moved.WithRotation(fromAngle(yaw), fromAngle(pitch)), true, nil
	case KindEntityTeleport:
		var x, y, z pk.Double
		if err := readFields(r, p.Kind, &id, &x, &y, &z, &yaw, &pitch, &onGround); err != nil {
			return base, false, err
		}
		return vec.Location{
			X: float64(x), Y: float64(y), Z: float64(z),
			Yaw: fromAngle(yaw), Pitch: fromAngle(pitch),
		}, true, nil
	}
	return base, false, nil
}
