// Package cache реализует двоичный кеш быстрого режима: поток индекса и поток данных.
package cache

import (
	"errors"
	"fmt"
	"io"

	pk "github.com/Tnze/go-mc/net/packet"
)

// Version - версия формата кеша; при изменении формата увеличивается
const Version = 7

// Имена слотов контейнера для двух потоков кеша
const (
	IndexSlot = "quickModeCacheIndex.bin"
	DataSlot  = "quickModeCache.bin"
)

var (
	// ErrCorrupt - кеш обрезан или содержит недопустимые данные
	ErrCorrupt = errors.New("кеш повреждён")
	// ErrVersionMismatch - кеш записан другой версией формата или протокола
	ErrVersionMismatch = errors.New("версия кеша не совпадает")
)

// IsInvalid сообщает, что ошибка означает отсутствие пригодного кеша
func IsInvalid(err error) bool {
	return errors.Is(err, ErrCorrupt) || errors.Is(err, ErrVersionMismatch)
}

func corrupt(err error) error {
	if errors.Is(err, ErrCorrupt) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}

// WriteHeader пишет версию формата и протокола в начало потока
func WriteHeader(w io.Writer, protocol int32) error {
	if _, err := pk.VarInt(Version).WriteTo(w); err != nil {
		return fmt.Errorf("не удалось записать версию кеша: %w", err)
	}
	if _, err := pk.VarInt(protocol).WriteTo(w); err != nil {
		return fmt.Errorf("не удалось записать версию протокола: %w", err)
	}
	return nil
}

// ReadHeader читает и проверяет заголовок потока
func ReadHeader(r io.Reader, protocol int32) error {
	var version, proto pk.VarInt
	if _, err := version.ReadFrom(r); err != nil {
		return corrupt(err)
	}
	if version != Version {
		return fmt.Errorf("%w: формат %d, ожидался %d", ErrVersionMismatch, version, Version)
	}
	if _, err := proto.ReadFrom(r); err != nil {
		return corrupt(err)
	}
	if int32(proto) != protocol {
		return fmt.Errorf("%w: протокол %d, ожидался %d", ErrVersionMismatch, proto, protocol)
	}
	return nil
}
