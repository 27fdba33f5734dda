// Package pebble — встраиваемый бэкенд документного хранилища поверх
// cockroachdb/pebble для однонодовых установок и тестов. Документы хранятся
// в JSON под ключами msg/<id> и chan/<id>; условная замена выполняется под
// полосатой блокировкой по id; поток изменений раздаётся подписчикам в процессе.
package pebble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/oklog/ulid/v2"

	"github.com/pribylovaa/go-forum/internal/storage"
)

const (
	msgPrefix      = "msg/"
	chanPrefix     = "chan/"
	chanNamePrefix = "chan-name/"

	stripes = 64
	// Буфер подписчика; переполнение обрывает подписку (подписчик перестроит индекс).
	feedBuffer = 4096
)

// ErrFeedOverflow — подписчик не успевает разбирать поток изменений.
var ErrFeedOverflow = errors.New("change feed overflow")

// Store — документное хранилище на pebble.
type Store struct {
	db     *pebble.DB
	locks  [stripes]sync.Mutex
	closed atomic.Bool

	subMu  sync.Mutex
	subs   map[int]*subscriber
	nextID int
}

type subscriber struct {
	ch       chan storage.Change
	overflow chan struct{}
	once     sync.Once
}

var _ storage.Store = (*Store)(nil)

// Open открывает (или создаёт) базу в каталоге path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("pebble: mkdir %q: %w", path, err)
	}

	return open(path, &pebble.Options{})
}

// OpenInMemory открывает базу в памяти (тесты, эфемерные окружения).
func OpenInMemory() (*Store, error) {
	return open("forum", &pebble.Options{FS: vfs.NewMem()})
}

func open(path string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}

	return &Store{db: db, subs: make(map[int]*subscriber)}, nil
}

// Ping сообщает о недоступности закрытой базы.
func (s *Store) Ping(_ context.Context) error {
	if s.closed.Load() {
		return fmt.Errorf("storage/pebble/Ping: %w", storage.ErrUnavailable)
	}

	return nil
}

// Close закрывает базу. Повторный вызов безопасен.
func (s *Store) Close() {
	if s.closed.Swap(true) {
		return
	}

	_ = s.db.Close()
}

// NewID — ULID: уникален и сортируется по времени создания.
func (s *Store) NewID() string {
	return ulid.Make().String()
}

func (s *Store) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	mu := &s.locks[h.Sum32()%stripes]
	mu.Lock()

	return mu.Unlock
}

func (s *Store) check(op string) error {
	if s.closed.Load() {
		return fmt.Errorf("%s: %w", op, storage.ErrUnavailable)
	}

	return nil
}

// get читает и декодирует значение. Отсутствие ключа — storage.ErrNotFound.
func (s *Store) get(key string, out any) error {
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return storage.ErrNotFound
		}

		return err
	}
	defer closer.Close()

	return json.Unmarshal(v, out)
}

func (s *Store) exists(key string) (bool, error) {
	_, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	_ = closer.Close()
	return true, nil
}

func (s *Store) put(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return s.db.Set([]byte(key), b, pebble.Sync)
}

// scanPrefix обходит все ключи с префиксом в порядке ключей.
func (s *Store) scanPrefix(ctx context.Context, prefix string, fn func(key, value []byte) error) error {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer it.Close()

	for ok := it.First(); ok; ok = it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}

	return it.Error()
}

// upperBound — наименьший ключ, больший всех ключей с префиксом.
func upperBound(prefix string) []byte {
	b := []byte(prefix)
	b[len(b)-1]++
	return b
}
