package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/annel0/replay-engine/internal/vec"
)

// ErrTooLarge - поток данных превысил адресуемый размер
var ErrTooLarge = errors.New("кеш превышает допустимый размер")

// Writer - счётчик поверх потока данных кеша. Смещения отсчитываются
// от первого байта, записанного через Writer (после заголовка).
type Writer struct {
	w   io.Writer
	off int64
}

// NewWriter создаёт Writer поверх w
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Offset возвращает число уже записанных байт
func (w *Writer) Offset() int64 {
	return w.off
}

// Write дописывает байты в поток
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.off += int64(n)
	return n, err
}

// Deferred возвращает пустой блок, который попадёт в поток при Commit
func (w *Writer) Deferred() *Block {
	return &Block{w: w}
}

// Block накапливает одну запись. Поля пишутся типами go-mc,
// поэтому ошибки возможны только при Commit.
type Block struct {
	buf bytes.Buffer
	w   *Writer
}

// NewBlock создаёт блок, не привязанный к потоку (для индекса)
func NewBlock() *Block {
	return &Block{}
}

// Commit дописывает блок в поток и возвращает смещение его начала
func (b *Block) Commit() (int32, error) {
	if b.w == nil {
		return 0, errors.New("блок не привязан к потоку")
	}
	off := b.w.off
	if off+int64(b.buf.Len()) > math.MaxInt32 {
		return 0, ErrTooLarge
	}
	if _, err := b.w.Write(b.buf.Bytes()); err != nil {
		return 0, fmt.Errorf("не удалось записать блок кеша: %w", err)
	}
	b.buf.Reset()
	return int32(off), nil
}

// WriteTo сбрасывает содержимое блока в произвольный поток
func (b *Block) WriteTo(w io.Writer) (int64, error) {
	return b.buf.WriteTo(w)
}

// Len возвращает размер накопленной записи
func (b *Block) Len() int {
	return b.buf.Len()
}

func (b *Block) put(f io.WriterTo) *Block {
	_, _ = f.WriteTo(&b.buf)
	return b
}

func (b *Block) VarInt(v int32) *Block   { return b.put(pk.VarInt(v)) }
func (b *Block) Long(v int64) *Block     { return b.put(pk.Long(v)) }
func (b *Block) Double(v float64) *Block { return b.put(pk.Double(v)) }
func (b *Block) Float(v float32) *Block  { return b.put(pk.Float(v)) }
func (b *Block) Bool(v bool) *Block      { return b.put(pk.Boolean(v)) }
func (b *Block) Str(v string) *Block     { return b.put(pk.String(v)) }
func (b *Block) Byte(v uint8) *Block     { return b.put(pk.UnsignedByte(v)) }

// Position пишет позицию блока упакованной в int64
func (b *Block) Position(p vec.BlockPos) *Block {
	return b.put(pk.Position{X: p.X, Y: p.Y, Z: p.Z})
}

// Location пишет положение сущности
func (b *Block) Location(l vec.Location) *Block {
	return b.Double(l.X).Double(l.Y).Double(l.Z).Float(l.Yaw).Float(l.Pitch)
}

// Raw дописывает байты как есть
func (b *Block) Raw(p []byte) *Block {
	b.buf.Write(p)
	return b
}
