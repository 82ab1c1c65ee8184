package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/go-redis/redis/v8"
)

// FileSlots хранит слоты файлами в каталоге. Запись идёт во временный файл,
// который при Commit переименовывается в имя слота.
type FileSlots struct {
	dir string
}

// NewFileSlots создаёт каталог слотов, если его нет
func NewFileSlots(dir string) (*FileSlots, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог кеша %s: %w", dir, err)
	}
	return &FileSlots{dir: dir}, nil
}

func (s *FileSlots) OpenSlot(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть слот %s: %w", name, err)
	}
	return f, nil
}

func (s *FileSlots) CreateSlot(ctx context.Context, name string) (SlotWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("не удалось создать слот %s: %w", name, err)
	}
	return &fileSlot{f: tmp, path: filepath.Join(s.dir, name)}, nil
}

func (s *FileSlots) Close() error {
	return nil
}

type fileSlot struct {
	f      *os.File
	path   string
	closed bool
}

func (w *fileSlot) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrSlotClosed
	}
	return w.f.Write(p)
}

func (w *fileSlot) Commit() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.f.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("не удалось сохранить слот: %w", err)
	}
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.f.Name())
		return fmt.Errorf("не удалось сохранить слот: %w", err)
	}
	if err := os.Rename(w.f.Name(), w.path); err != nil {
		_ = os.Remove(w.f.Name())
		return fmt.Errorf("не удалось сохранить слот: %w", err)
	}
	return nil
}

func (w *fileSlot) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.discard()
}

func (w *fileSlot) discard() error {
	_ = w.f.Close()
	if err := os.Remove(w.f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// BadgerSlots хранит слоты значениями BadgerDB с общим префиксом ключа
type BadgerSlots struct {
	db     *badger.DB
	prefix string
	owned  bool
}

// OpenBadgerSlots открывает базу в каталоге path; Close закроет её
func OpenBadgerSlots(path, prefix string) (*BadgerSlots, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	return &BadgerSlots{db: db, prefix: prefix, owned: true}, nil
}

// NewBadgerSlots использует уже открытую базу; Close её не закрывает
func NewBadgerSlots(db *badger.DB, prefix string) *BadgerSlots {
	return &BadgerSlots{db: db, prefix: prefix}
}

func (s *BadgerSlots) key(name string) []byte {
	return []byte(s.prefix + name)
}

func (s *BadgerSlots) OpenSlot(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать слот %s: %w", name, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *BadgerSlots) CreateSlot(ctx context.Context, name string) (SlotWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := s.key(name)
	return newBufferedSlot(func(data []byte) error {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, data)
		})
		if err != nil {
			return fmt.Errorf("не удалось сохранить слот %s: %w", name, err)
		}
		return nil
	}), nil
}

func (s *BadgerSlots) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// RedisConfig - настройки хранения слотов в Redis
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration // 0 - без ограничения
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "replay:cache:",
		TTL:       24 * time.Hour,
	}
}

// RedisSlots хранит слоты строковыми ключами Redis с временем жизни
type RedisSlots struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSlots подключается к Redis и проверяет соединение
func NewRedisSlots(ctx context.Context, cfg RedisConfig) (*RedisSlots, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}
	return &RedisSlots{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

// Scope возвращает слоты той же базы с дополнительным префиксом ключей
func (s *RedisSlots) Scope(prefix string) *RedisSlots {
	return &RedisSlots{client: s.client, prefix: s.prefix + prefix, ttl: s.ttl}
}

func (s *RedisSlots) OpenSlot(ctx context.Context, name string) (io.ReadCloser, error) {
	data, err := s.client.Get(ctx, s.prefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать слот %s: %w", name, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *RedisSlots) CreateSlot(ctx context.Context, name string) (SlotWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := s.prefix + name
	return newBufferedSlot(func(data []byte) error {
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			return fmt.Errorf("не удалось сохранить слот %s: %w", name, err)
		}
		return nil
	}), nil
}

func (s *RedisSlots) Close() error {
	return s.client.Close()
}

// MemorySlots хранит слоты в памяти процесса
type MemorySlots struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// NewMemorySlots создаёт пустое хранилище
func NewMemorySlots() *MemorySlots {
	return &MemorySlots{slots: make(map[string][]byte)}
}

func (s *MemorySlots) OpenSlot(ctx context.Context, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.slots[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemorySlots) CreateSlot(ctx context.Context, name string) (SlotWriter, error) {
	return newBufferedSlot(func(data []byte) error {
		s.mu.Lock()
		s.slots[name] = append([]byte(nil), data...)
		s.mu.Unlock()
		return nil
	}), nil
}

// Delete удаляет слот; отсутствующий слот игнорируется
func (s *MemorySlots) Delete(name string) {
	s.mu.Lock()
	delete(s.slots, name)
	s.mu.Unlock()
}

func (s *MemorySlots) Close() error {
	return nil
}
