package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	pk "github.com/Tnze/go-mc/net/packet"
)

// maxFrameLen ограничивает размер одной записи потока
const maxFrameLen = 1 << 24

// ErrBadFrame - повреждённая запись потока пакетов
var ErrBadFrame = errors.New("повреждённая запись потока пакетов")

// RecordingReader читает поток recording.tmcpr:
// [время int32 BE][длина int32 BE][VarInt id][данные].
type RecordingReader struct {
	r        *bufio.Reader
	registry *Registry
	last     int32
}

// NewRecordingReader создаёт читатель поверх r
func NewRecordingReader(r io.Reader, registry *Registry) *RecordingReader {
	return &RecordingReader{r: bufio.NewReader(r), registry: registry}
}

// Next возвращает следующий пакет; в конце потока - io.EOF.
// Данные пакета принадлежат вызывающему.
func (rr *RecordingReader) Next() (TimedPacket, error) {
	var ts, length pk.Int
	if _, err := ts.ReadFrom(rr.r); err != nil {
		if errors.Is(err, io.EOF) {
			return TimedPacket{}, io.EOF
		}
		return TimedPacket{}, fmt.Errorf("не удалось прочитать время пакета: %w", err)
	}
	if _, err := length.ReadFrom(rr.r); err != nil {
		return TimedPacket{}, fmt.Errorf("не удалось прочитать длину пакета: %w", unexpected(err))
	}
	if length < 1 || length > maxFrameLen {
		return TimedPacket{}, fmt.Errorf("%w: длина %d", ErrBadFrame, length)
	}
	if int32(ts) < rr.last {
		return TimedPacket{}, fmt.Errorf("%w: время %d меньше предыдущего %d", ErrBadFrame, ts, rr.last)
	}
	rr.last = int32(ts)

	frame := make([]byte, length)
	if _, err := io.ReadFull(rr.r, frame); err != nil {
		return TimedPacket{}, fmt.Errorf("не удалось прочитать пакет: %w", unexpected(err))
	}
	body := bytes.NewReader(frame)
	var id pk.VarInt
	if _, err := id.ReadFrom(body); err != nil {
		return TimedPacket{}, fmt.Errorf("%w: id пакета: %v", ErrBadFrame, err)
	}
	data := frame[len(frame)-body.Len():]
	return TimedPacket{Time: int32(ts), Packet: rr.registry.Classify(int32(id), data)}, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// RecordingWriter пишет поток в формате recording.tmcpr
type RecordingWriter struct {
	w   io.Writer
	buf bytes.Buffer
}

// NewRecordingWriter создаёт писатель поверх w
func NewRecordingWriter(w io.Writer) *RecordingWriter {
	return &RecordingWriter{w: w}
}

// WritePacket дописывает пакет с отметкой времени ts
func (rw *RecordingWriter) WritePacket(ts int32, p Packet) error {
	rw.buf.Reset()
	writeFields(&rw.buf, pk.VarInt(p.ID))
	rw.buf.Write(p.Data)

	var head bytes.Buffer
	writeFields(&head, pk.Int(ts), pk.Int(rw.buf.Len()))
	if _, err := rw.w.Write(head.Bytes()); err != nil {
		return fmt.Errorf("не удалось записать заголовок пакета: %w", err)
	}
	if _, err := rw.w.Write(rw.buf.Bytes()); err != nil {
		return fmt.Errorf("не удалось записать пакет: %w", err)
	}
	return nil
}

// SliceSource отдаёт пакеты из памяти; удобен для тестов и инструментов
type SliceSource struct {
	packets []TimedPacket
	pos     int
}

// NewSliceSource создаёт источник над готовым списком пакетов
func NewSliceSource(packets []TimedPacket) *SliceSource {
	return &SliceSource{packets: packets}
}

// Next возвращает копию следующего пакета или io.EOF
func (s *SliceSource) Next() (TimedPacket, error) {
	if s.pos >= len(s.packets) {
		return TimedPacket{}, io.EOF
	}
	tp := s.packets[s.pos]
	s.pos++
	return TimedPacket{Time: tp.Time, Packet: tp.Packet.Clone()}, nil
}
