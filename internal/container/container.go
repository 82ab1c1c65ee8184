// Package container описывает контейнер записи: исходный поток пакетов,
// метаданные и именованные слоты, в которых хранится кеш.
package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Имена файлов внутри записи
const (
	MetaFile      = "metaData.json"
	RecordingFile = "recording.tmcpr"
)

var (
	// ErrSlotNotFound - слота с таким именем нет
	ErrSlotNotFound = errors.New("слот кеша не найден")
	// ErrSlotClosed - запись в слот уже завершена
	ErrSlotClosed = errors.New("слот кеша уже закрыт")
)

// Recording - источник записи
type Recording interface {
	Meta(ctx context.Context) (Meta, error)
	OpenRecording(ctx context.Context) (io.ReadCloser, error)
	Close() error
}

// SlotWriter - запись в слот. Содержимое становится видимым только после Commit;
// Abort отбрасывает его. После любого из них повторный вызов ничего не делает.
type SlotWriter interface {
	io.Writer
	Commit() error
	Abort() error
}

// Slots - хранилище именованных слотов кеша
type Slots interface {
	OpenSlot(ctx context.Context, name string) (io.ReadCloser, error)
	CreateSlot(ctx context.Context, name string) (SlotWriter, error)
	Close() error
}

// Container объединяет запись и слоты её кеша
type Container interface {
	Recording
	Slots
}

type container struct {
	Recording
	slots Slots
}

// New собирает контейнер из источника записи и хранилища слотов
func New(rec Recording, slots Slots) Container {
	return &container{Recording: rec, slots: slots}
}

func (c *container) OpenSlot(ctx context.Context, name string) (io.ReadCloser, error) {
	return c.slots.OpenSlot(ctx, name)
}

func (c *container) CreateSlot(ctx context.Context, name string) (SlotWriter, error) {
	return c.slots.CreateSlot(ctx, name)
}

// Close закрывает запись и хранилище слотов
func (c *container) Close() error {
	return errors.Join(c.Recording.Close(), c.slots.Close())
}

// OpenRecording открывает запись по пути: каталог или архив .mcpr
func OpenRecording(path string) (Recording, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("запись %s недоступна: %w", path, err)
	}
	if info.IsDir() {
		return NewDirRecording(path), nil
	}
	if !strings.HasSuffix(strings.ToLower(path), ".mcpr") {
		return nil, fmt.Errorf("неизвестный формат записи: %s", path)
	}
	return OpenArchive(path)
}

// bufferedSlot копит содержимое в памяти и передаёт его в commit целиком
type bufferedSlot struct {
	buf    bytes.Buffer
	commit func([]byte) error
	closed bool
}

func newBufferedSlot(commit func([]byte) error) *bufferedSlot {
	return &bufferedSlot{commit: commit}
}

func (s *bufferedSlot) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrSlotClosed
	}
	return s.buf.Write(p)
}

func (s *bufferedSlot) Commit() error {
	if s.closed {
		return nil
	}
	s.closed = true
	data := s.buf.Bytes()
	s.buf = bytes.Buffer{}
	return s.commit(data)
}

func (s *bufferedSlot) Abort() error {
	s.closed = true
	s.buf = bytes.Buffer{}
	return nil
}
