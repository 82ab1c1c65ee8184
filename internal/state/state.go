// Package state - модель состояния записи: миры, сущности, чанки, погода
// и их временные шкалы. Каждая часть модели существует в двух видах:
// построитель (заполняется анализатором и пишется в кеш) и
// представление для чтения (загружается из кеша и перематывается).
package state

import (
	"fmt"
	"io"

	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/protocol"
)

// Sink принимает синтетические пакеты. Пакет переходит во владение приёмника.
type Sink func(protocol.Packet) error

// Discard выбрасывает пакеты; используется для тихой загрузки и выгрузки
func Discard(protocol.Packet) error { return nil }

// State - часть модели, которую можно загрузить из кеша и перемотать.
// current == -1 означает пустое состояние клиента.
type State interface {
	Load(sink Sink) error
	Unload(sink Sink) error
	Play(sink Sink, current, target int32) error
	Rewind(sink Sink, current, target int32) error
}

// Store - загруженный поток данных кеша и кодек пакетов
type Store struct {
	data  *cache.Reader
	codec *cache.PacketCodec
}

// NewStore связывает буфер данных кеша с кодеком пакетов
func NewStore(data *cache.Reader, codec *cache.PacketCodec) *Store {
	return &Store{data: data, codec: codec}
}

// Registry возвращает таблицу пакетов версии записи
func (s *Store) Registry() *protocol.Registry {
	return s.codec.Registry()
}

// Size возвращает размер загруженного потока данных
func (s *Store) Size() int {
	return s.data.Size()
}

// Release освобождает буфер данных
func (s *Store) Release() {
	s.data.Release()
}

func (s *Store) at(off int32) (*cache.Cursor, error) {
	return s.data.At(off)
}

// emit читает список пакетов по смещению off и отправляет их в sink
func (s *Store) emit(off int32, sink Sink) error {
	cur, err := s.at(off)
	if err != nil {
		return err
	}
	packets, err := s.codec.ReadList(cur)
	if err != nil {
		return err
	}
	for _, p := range packets {
		if err := sink(p); err != nil {
			return err
		}
	}
	return nil
}

// Output - поток данных кеша на стороне записи
type Output struct {
	w     *cache.Writer
	codec *cache.PacketCodec
}

// NewOutput создаёт Output поверх потока данных (после заголовка)
func NewOutput(w io.Writer, codec *cache.PacketCodec) *Output {
	return &Output{w: cache.NewWriter(w), codec: codec}
}

// Registry возвращает таблицу пакетов версии записи
func (o *Output) Registry() *protocol.Registry {
	return o.codec.Registry()
}

// Size возвращает размер уже записанных данных
func (o *Output) Size() (int32, error) {
	off := o.w.Offset()
	if off > int64(^uint32(0)>>1) {
		return 0, cache.ErrTooLarge
	}
	return int32(off), nil
}

func (o *Output) deferred() *cache.Block {
	return o.w.Deferred()
}

// packets пишет список пакетов и возвращает его смещение
func (o *Output) packets(list []protocol.Packet) (int32, error) {
	b := o.w.Deferred()
	o.codec.AppendList(b, list)
	off, err := b.Commit()
	if err != nil {
		return 0, fmt.Errorf("не удалось записать список пакетов: %w", err)
	}
	return off, nil
}
