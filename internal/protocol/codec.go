package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	pk "github.com/Tnze/go-mc/net/packet"
)

// ErrWrongKind возвращается при разборе пакета не того типа
var ErrWrongKind = errors.New("неожиданный тип пакета")

func marshal(fields ...io.WriterTo) []byte {
	var buf bytes.Buffer
	writeFields(&buf, fields...)
	return buf.Bytes()
}

// writeFields пишет поля в буфер; bytes.Buffer не возвращает ошибок записи
func writeFields(buf *bytes.Buffer, fields ...io.WriterTo) {
	for _, f := range fields {
		_, _ = f.WriteTo(buf)
	}
}

func readFields(r io.Reader, kind Kind, fields ...io.ReaderFrom) error {
	for _, f := range fields {
		if _, err := f.ReadFrom(r); err != nil {
			return fmt.Errorf("не удалось разобрать %s: %w", kind, err)
		}
	}
	return nil
}

func expect(p Packet, kinds ...Kind) error {
	for _, k := range kinds {
		if p.Kind == k {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrWrongKind, p.Kind)
}

// toAngle переводит градусы в угол протокола (1/256 оборота)
func toAngle(deg float32) pk.UnsignedByte {
	return pk.UnsignedByte(uint8(int64(math.Floor(float64(deg) * 256 / 360))))
}

func fromAngle(a pk.UnsignedByte) float32 {
	return float32(a) * 360 / 256
}

// readCount читает длину списка и отсекает заведомо битые значения
func readCount(r io.Reader, kind Kind, limit int) (int, error) {
	var n pk.VarInt
	if err := readFields(r, kind, &n); err != nil {
		return 0, err
	}
	if n < 0 || int(n) > limit {
		return 0, fmt.Errorf("не удалось разобрать %s: длина списка %d вне диапазона", kind, n)
	}
	return int(n), nil
}
