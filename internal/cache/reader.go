package cache

import (
	"bytes"
	"fmt"
	"io"

	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/annel0/replay-engine/internal/vec"
)

// ReadChunkSize - размер порции при чтении потока данных
const ReadChunkSize = 4096

// Reader владеет буфером потока данных. После Release буфер недоступен.
type Reader struct {
	buf []byte
}

// NewReader оборачивает готовый буфер; буфер переходит во владение Reader
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Load читает size байт из r порциями по chunk байт, сообщая прогресс после каждой.
// Нехватка данных означает повреждённый кеш.
func Load(r io.Reader, size int32, chunk int, progress func(float64)) (*Reader, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: отрицательный размер %d", ErrCorrupt, size)
	}
	if chunk <= 0 {
		chunk = ReadChunkSize
	}
	buf := make([]byte, size)
	var read int
	for read < len(buf) {
		end := read + chunk
		if end > len(buf) {
			end = len(buf)
		}
		n, err := io.ReadFull(r, buf[read:end])
		read += n
		if err != nil {
			return nil, corrupt(err)
		}
		if progress != nil {
			progress(float64(read) / float64(size))
		}
	}
	if progress != nil {
		progress(1)
	}
	return &Reader{buf: buf}, nil
}

// Size возвращает размер буфера
func (r *Reader) Size() int {
	return len(r.buf)
}

// Released сообщает, освобождён ли буфер
func (r *Reader) Released() bool {
	return r.buf == nil
}

// Release освобождает буфер
func (r *Reader) Release() {
	r.buf = nil
}

// At возвращает курсор, стоящий на смещении off
func (r *Reader) At(off int32) (*Cursor, error) {
	if r.buf == nil {
		return nil, fmt.Errorf("%w: буфер освобождён", ErrCorrupt)
	}
	if off < 0 || int(off) > len(r.buf) {
		return nil, fmt.Errorf("%w: смещение %d вне буфера %d", ErrCorrupt, off, len(r.buf))
	}
	return &Cursor{r: bytes.NewReader(r.buf[off:])}, nil
}

// Cursor последовательно читает поля записи. Любая ошибка - ErrCorrupt.
type Cursor struct {
	r *bytes.Reader
}

// NewCursor создаёт курсор над произвольным буфером (например, индексом)
func NewCursor(buf []byte) *Cursor {
	return &Cursor{r: bytes.NewReader(buf)}
}

// Remaining возвращает число непрочитанных байт
func (c *Cursor) Remaining() int {
	return c.r.Len()
}

func (c *Cursor) get(f io.ReaderFrom) error {
	if _, err := f.ReadFrom(c.r); err != nil {
		return corrupt(err)
	}
	return nil
}

func (c *Cursor) VarInt() (int32, error) {
	var v pk.VarInt
	err := c.get(&v)
	return int32(v), err
}

func (c *Cursor) Long() (int64, error) {
	var v pk.Long
	err := c.get(&v)
	return int64(v), err
}

func (c *Cursor) Double() (float64, error) {
	var v pk.Double
	err := c.get(&v)
	return float64(v), err
}

func (c *Cursor) Float() (float32, error) {
	var v pk.Float
	err := c.get(&v)
	return float32(v), err
}

func (c *Cursor) Bool() (bool, error) {
	var v pk.Boolean
	err := c.get(&v)
	return bool(v), err
}

func (c *Cursor) Str() (string, error) {
	var v pk.String
	err := c.get(&v)
	return string(v), err
}

func (c *Cursor) Byte() (uint8, error) {
	var v pk.UnsignedByte
	err := c.get(&v)
	return uint8(v), err
}

// Position читает позицию блока
func (c *Cursor) Position() (vec.BlockPos, error) {
	var v pk.Position
	if err := c.get(&v); err != nil {
		return vec.BlockPos{}, err
	}
	return vec.BlockPos{X: v.X, Y: v.Y, Z: v.Z}, nil
}

// Location читает положение сущности
func (c *Cursor) Location() (vec.Location, error) {
	var (
		x, y, z    pk.Double
		yaw, pitch pk.Float
	)
	for _, f := range []io.ReaderFrom{&x, &y, &z, &yaw, &pitch} {
		if err := c.get(f); err != nil {
			return vec.Location{}, err
		}
	}
	return vec.Location{X: float64(x), Y: float64(y), Z: float64(z), Yaw: float32(yaw), Pitch: float32(pitch)}, nil
}

// Bytes читает ровно n байт в новый срез
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if n < 0 || n > c.r.Len() {
		return nil, fmt.Errorf("%w: запрошено %d байт, осталось %d", ErrCorrupt, n, c.r.Len())
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(c.r, out); err != nil {
		return nil, corrupt(err)
	}
	return out, nil
}
