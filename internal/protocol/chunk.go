package protocol

import (
	"bytes"
	"fmt"

	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/annel0/replay-engine/internal/vec"
)

// SectionVolume - число блоков в секции 16x16x16
const SectionVolume = 16 * 16 * 16

// maxSections ограничивает число секций в столбце битовой маской
const maxSections = 32

// ChunkSection - содержимое одной секции; Index считается от нижней секции измерения
type ChunkSection struct {
	Index  int
	States []int32 // SectionVolume состояний блоков, 0 - воздух
}

// ChunkData - данные столбца чанка. Full == false означает обновление
// только перечисленных секций уже загруженного столбца.
type ChunkData struct {
	Pos      vec.ChunkPos
	Full     bool
	Sections []ChunkSection
	Extra    []byte // карты высот, биомы, освещение - не разбираются
}

// Encode собирает пакет ChunkData. Секции пишутся разреженно: только не-воздух.
func (c ChunkData) Encode(r *Registry) Packet {
	var mask int32
	for _, s := range c.Sections {
		mask |= 1 << uint(s.Index)
	}

	var buf bytes.Buffer
	writeFields(&buf, pk.Int(c.Pos.X), pk.Int(c.Pos.Z), pk.Boolean(c.Full), pk.VarInt(mask))
	for i := 0; i < maxSections; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		states := sectionByIndex(c.Sections, i)
		var count int
		for _, st := range states {
			if st != 0 {
				count++
			}
		}
		writeFields(&buf, pk.VarInt(count))
		for idx, st := range states {
			if st != 0 {
				writeFields(&buf, pk.VarInt(idx), pk.VarInt(st))
			}
		}
	}
	writeFields(&buf, pk.ByteArray(c.Extra))
	return r.packet(KindChunkData, buf.Bytes())
}

func sectionByIndex(sections []ChunkSection, index int) []int32 {
	for _, s := range sections {
		if s.Index == index {
			return s.States
		}
	}
	return nil
}

// ReadChunkData разбирает пакет ChunkData
func ReadChunkData(p Packet) (ChunkData, error) {
	if err := expect(p, KindChunkData); err != nil {
		return ChunkData{}, err
	}
	r := bytes.NewReader(p.Data)
	var (
		x, z pk.Int
		full pk.Boolean
		mask pk.VarInt
	)
	if err := readFields(r, p.Kind, &x, &z, &full, &mask); err != nil {
		return ChunkData{}, err
	}

	c := ChunkData{Pos: vec.ChunkPos{X: int32(x), Z: int32(z)}, Full: bool(full)}
	for i := 0; i < maxSections; i++ {
		if int32(mask)&(1<<uint(i)) == 0 {
			continue
		}
		n, err := readCount(r, p.Kind, SectionVolume)
		if err != nil {
			return ChunkData{}, err
		}
		states := make([]int32, SectionVolume)
		for j := 0; j < n; j++ {
			var idx, st pk.VarInt
			if err := readFields(r, p.Kind, &idx, &st); err != nil {
				return ChunkData{}, err
			}
			if idx < 0 || int(idx) >= SectionVolume {
				return ChunkData{}, fmt.Errorf("не удалось разобрать %s: индекс блока %d", p.Kind, idx)
			}
			states[idx] = int32(st)
		}
		c.Sections = append(c.Sections, ChunkSection{Index: i, States: states})
	}

	var extra pk.ByteArray
	if err := readFields(r, p.Kind, &extra); err != nil {
		return ChunkData{}, err
	}
	c.Extra = []byte(extra)
	return c, nil
}

// EncodeUnloadChunk собирает UnloadChunk
func EncodeUnloadChunk(r *Registry, pos vec.ChunkPos) Packet {
	return r.packet(KindUnloadChunk, marshal(pk.Int(pos.X), pk.Int(pos.Z)))
}

// ReadUnloadChunk разбирает UnloadChunk
func ReadUnloadChunk(p Packet) (vec.ChunkPos, error) {
	if err := expect(p, KindUnloadChunk); err != nil {
		return vec.ChunkPos{}, err
	}
	var x, z pk.Int
	if err := readFields(bytes.NewReader(p.Data), p.Kind, &x, &z); err != nil {
		return vec.ChunkPos{}, err
	}
	return vec.ChunkPos{X: int32(x), Z: int32(z)}, nil
}

// UpdateLight - освещение столбца, приходит до или после ChunkData
type UpdateLight struct {
	Pos  vec.ChunkPos
	Data []byte
}

// Encode собирает UpdateLight
func (u UpdateLight) Encode(r *Registry) Packet {
	return r.packet(KindUpdateLight, marshal(pk.VarInt(u.Pos.X), pk.VarInt(u.Pos.Z), pk.ByteArray(u.Data)))
}

// ReadUpdateLight разбирает UpdateLight
func ReadUpdateLight(p Packet) (UpdateLight, error) {
	if err := expect(p, KindUpdateLight); err != nil {
		return UpdateLight{}, err
	}
	var x, z pk.VarInt
	var data pk.ByteArray
	if err := readFields(bytes.NewReader(p.Data), p.Kind, &x, &z, &data); err != nil {
		return UpdateLight{}, err
	}
	return UpdateLight{Pos: vec.ChunkPos{X: int32(x), Z: int32(z)}, Data: []byte(data)}, nil
}

// BlockChange - новое состояние одного блока
type BlockChange struct {
	Pos   vec.BlockPos
	State int32
}

// Encode собирает BlockChange
func (b BlockChange) Encode(r *Registry) Packet {
	return r.packet(KindBlockChange, marshal(pk.Position{X: b.Pos.X, Y: b.Pos.Y, Z: b.Pos.Z}, pk.VarInt(b.State)))
}

// ReadBlockChange разбирает BlockChange
func ReadBlockChange(p Packet) (BlockChange, error) {
	if err := expect(p, KindBlockChange); err != nil {
		return BlockChange{}, err
	}
	var pos pk.Position
	var st pk.VarInt
	if err := readFields(bytes.NewReader(p.Data), p.Kind, &pos, &st); err != nil {
		return BlockChange{}, err
	}
	return BlockChange{Pos: vec.BlockPos{X: pos.X, Y: pos.Y, Z: pos.Z}, State: int32(st)}, nil
}

// MultiBlockChange - пакет изменений блоков одного столбца
type MultiBlockChange struct {
	Chunk   vec.ChunkPos
	Records []BlockChange // абсолютные позиции
}

// Encode собирает MultiBlockChange; позиции вне столбца Chunk обрезаются по модулю 16
func (m MultiBlockChange) Encode(r *Registry) Packet {
	var buf bytes.Buffer
	writeFields(&buf, pk.Int(m.Chunk.X), pk.Int(m.Chunk.Z), pk.VarInt(len(m.Records)))
	for _, rec := range m.Records {
		local := rec.Pos.LocalInChunk()
		writeFields(&buf,
			pk.UnsignedByte(uint8(local.X<<4|local.Z)),
			pk.VarInt(rec.Pos.Y),
			pk.VarInt(rec.State),
		)
	}
	return r.packet(KindMultiBlockChange, buf.Bytes())
}

// ReadMultiBlockChange разбирает MultiBlockChange в отдельные изменения
func ReadMultiBlockChange(p Packet) (MultiBlockChange, error) {
	if err := expect(p, KindMultiBlockChange); err != nil {
		return MultiBlockChange{}, err
	}
	r := bytes.NewReader(p.Data)
	var cx, cz pk.Int
	if err := readFields(r, p.Kind, &cx, &cz); err != nil {
		return MultiBlockChange{}, err
	}
	n, err := readCount(r, p.Kind, maxListLen)
	if err != nil {
		return MultiBlockChange{}, err
	}
	m := MultiBlockChange{Chunk: vec.ChunkPos{X: int32(cx), Z: int32(cz)}, Records: make([]BlockChange, 0, n)}
	for i := 0; i < n; i++ {
		var (
			xz    pk.UnsignedByte
			y, st pk.VarInt
		)
		if err := readFields(r, p.Kind, &xz, &y, &st); err != nil {
			return MultiBlockChange{}, err
		}
		m.Records = append(m.Records, BlockChange{
			Pos: vec.BlockPos{
				X: int(cx)<<4 | int(xz>>4),
				Y: int(y),
				Z: int(cz)<<4 | int(xz&0xF),
			},
			State: int32(st),
		})
	}
	return m, nil
}
