package cache

import (
	"bytes"
	"fmt"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/klauspost/compress/zstd"

	"github.com/annel0/replay-engine/internal/protocol"
)

// maxPacketLen ограничивает размер распакованного пакета
const maxPacketLen = 1 << 24

// PacketCodec сжимает пакеты для хранения в кеше.
// Формат: VarInt(len<<1 | сжат); для сжатых далее VarInt исходной длины;
// затем содержимое: VarInt id + данные, сжатые zstd, если так короче.
type PacketCodec struct {
	registry     *protocol.Registry
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

// NewPacketCodec создаёт кодек для версии протокола registry
func NewPacketCodec(registry *protocol.Registry) (*PacketCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("не удалось создать компрессор: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("не удалось создать декомпрессор: %w", err)
	}
	return &PacketCodec{registry: registry, compressor: enc, decompressor: dec}, nil
}

// Registry возвращает таблицу пакетов кодека
func (c *PacketCodec) Registry() *protocol.Registry {
	return c.registry
}

// Close освобождает ресурсы zstd
func (c *PacketCodec) Close() {
	_ = c.compressor.Close()
	c.decompressor.Close()
}

// Append дописывает пакет в блок. Данные пакета копируются.
func (c *PacketCodec) Append(b *Block, p protocol.Packet) {
	var content bytes.Buffer
	_, _ = pk.VarInt(p.ID).WriteTo(&content)
	content.Write(p.Data)

	compressed := c.compressor.EncodeAll(content.Bytes(), nil)
	if len(compressed) < content.Len() {
		b.VarInt(int32(len(compressed))<<1 | 1).VarInt(int32(content.Len())).Raw(compressed)
		return
	}
	b.VarInt(int32(content.Len()) << 1).Raw(content.Bytes())
}

// Read читает пакет, записанный Append
func (c *PacketCodec) Read(cur *Cursor) (protocol.Packet, error) {
	head, err := cur.VarInt()
	if err != nil {
		return protocol.Packet{}, err
	}
	length := int(uint32(head) >> 1)

	var content []byte
	if head&1 == 1 {
		full, err := cur.VarInt()
		if err != nil {
			return protocol.Packet{}, err
		}
		if full < 0 || full > maxPacketLen {
			return protocol.Packet{}, fmt.Errorf("%w: длина пакета %d", ErrCorrupt, full)
		}
		compressed, err := cur.Bytes(length)
		if err != nil {
			return protocol.Packet{}, err
		}
		content, err = c.decompressor.DecodeAll(compressed, make([]byte, 0, full))
		if err != nil {
			return protocol.Packet{}, corrupt(err)
		}
		if len(content) != int(full) {
			return protocol.Packet{}, fmt.Errorf("%w: распаковано %d байт вместо %d", ErrCorrupt, len(content), full)
		}
	} else {
		if content, err = cur.Bytes(length); err != nil {
			return protocol.Packet{}, err
		}
	}

	r := bytes.NewReader(content)
	var id pk.VarInt
	if _, err := id.ReadFrom(r); err != nil {
		return protocol.Packet{}, corrupt(err)
	}
	data := content[len(content)-r.Len():]
	return c.registry.Classify(int32(id), data), nil
}

// AppendList пишет список пакетов: VarInt число, затем пакеты
func (c *PacketCodec) AppendList(b *Block, packets []protocol.Packet) {
	b.VarInt(int32(len(packets)))
	for _, p := range packets {
		c.Append(b, p)
	}
}

// ReadList читает список пакетов, записанный AppendList
func (c *PacketCodec) ReadList(cur *Cursor) ([]protocol.Packet, error) {
	n, err := cur.VarInt()
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > cur.Remaining() {
		return nil, fmt.Errorf("%w: длина списка пакетов %d", ErrCorrupt, n)
	}
	packets := make([]protocol.Packet, 0, n)
	for i := int32(0); i < n; i++ {
		p, err := c.Read(cur)
		if err != nil {
			return nil, err
		}
		packets = append(packets, p)
	}
	return packets, nil
}
