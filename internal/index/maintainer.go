package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/storage"
)

const degree = 32

// Source — источник полного сканирования для перестройки.
type Source interface {
	ScanMessages(ctx context.Context, f storage.ScanFilter, fn func(models.Message) error) error
}

type docState struct {
	rev     int64
	deleted bool
	at      time.Time // когда записан надгробный камень
	keys    map[Name]string
}

// state — согласованный снимок всех проекций.
type state struct {
	trees map[Name]*btree.BTreeG[Entry]
	docs  map[string]docState
}

func newState() *state {
	st := &state{
		trees: make(map[Name]*btree.BTreeG[Entry], len(Names)),
		docs:  make(map[string]docState),
	}

	for _, n := range Names {
		st.trees[n] = btree.NewG(degree, func(a, b Entry) bool { return a.Key < b.Key })
	}

	return st
}

// apply обновляет все проекции для одного документа.
//   - удаление терминально: последующие изменения того же ID игнорируются;
//   - изменение с ревизией не новее известной игнорируется.
//
// at — время записи надгробного камня при удалении.
func (st *state) apply(ch storage.Change, at time.Time) {
	prev, known := st.docs[ch.ID]
	if known && prev.deleted {
		return
	}

	if ch.Deleted || ch.Message == nil {
		if known {
			st.drop(prev)
		}

		st.docs[ch.ID] = docState{deleted: true, at: at}
		return
	}

	if known && ch.Rev != 0 && ch.Rev <= prev.rev {
		return
	}

	if known {
		st.drop(prev)
	}

	keys := make(map[Name]string, len(Names))
	for _, n := range Names {
		e, ok := Projections[n](*ch.Message)
		if !ok {
			continue
		}

		st.trees[n].ReplaceOrInsert(e)
		keys[n] = e.Key
	}

	st.docs[ch.ID] = docState{rev: ch.Rev, keys: keys}
}

func (st *state) drop(d docState) {
	for n, k := range d.keys {
		st.trees[n].Delete(Entry{Key: k})
	}
}

// Maintainer хранит проекции и применяет к ним изменения.
// Все проекции одного документа обновляются под одной блокировкой:
// читатель не увидит частично применённое изменение.
type Maintainer struct {
	mu         sync.RWMutex
	st         *state
	rebuilding bool
	pending    []storage.Change

	// lastStart — начало предыдущей успешной перестройки.
	lastStart time.Time

	rebuildMu sync.Mutex
	log       *slog.Logger
	now       func() time.Time
}

// New создаёт пустой Maintainer. До первой перестройки запросы возвращают
// только то, что пришло через Apply.
func New(log *slog.Logger) *Maintainer {
	if log == nil {
		log = slog.Default()
	}

	return &Maintainer{st: newState(), log: log, now: time.Now}
}

// Apply применяет одно изменение. Идемпотентно; безопасно для повторов и
// доставки не по порядку.
func (m *Maintainer) Apply(ch storage.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rebuilding {
		m.pending = append(m.pending, ch)
	}

	m.st.apply(ch, m.now())
}

// Rebuild перестраивает все проекции из полного сканирования.
// Изменения, пришедшие во время сканирования, доигрываются поверх результата,
// затем снимок атомарно подменяется.
//
// Надгробные камни, записанные раньше начала предыдущей перестройки,
// в новый снимок не переносятся.
func (m *Maintainer) Rebuild(ctx context.Context, src Source) error {
	const op = "index/Rebuild"

	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	m.mu.Lock()
	m.rebuilding = true
	m.pending = nil
	m.mu.Unlock()

	started := m.now()
	fresh := newState()

	err := src.ScanMessages(ctx, storage.ScanFilter{}, func(msg models.Message) error {
		fresh.apply(storage.Change{ID: msg.ID, Rev: msg.Rev, Message: &msg}, started)
		return nil
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	pending := m.pending
	m.rebuilding = false
	m.pending = nil

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	compacted := 0
	for id, d := range m.st.docs {
		if !d.deleted {
			continue
		}
		if d.at.Before(m.lastStart) {
			compacted++
			continue
		}
		fresh.apply(storage.Change{ID: id, Deleted: true}, d.at)
	}

	for _, ch := range pending {
		at := started
		if d, ok := m.st.docs[ch.ID]; ok && d.deleted {
			at = d.at
		}
		fresh.apply(ch, at)
	}

	m.st = fresh
	m.lastStart = started

	m.log.Info("index_rebuilt",
		"docs", len(fresh.docs),
		"replayed", len(pending),
		"tombstones_compacted", compacted,
		"took", time.Since(started),
	)

	return nil
}

// Query возвращает элементы проекции, ключ которых начинается с
// компонентов parts, в порядке ключа.
func (m *Maintainer) Query(name Name, parts ...string) []Entry {
	prefix := Prefix(parts...)

	m.mu.RLock()
	defer m.mu.RUnlock()

	tree, ok := m.st.trees[name]
	if !ok {
		return nil
	}

	var out []Entry
	tree.AscendGreaterOrEqual(Entry{Key: prefix}, func(e Entry) bool {
		if !strings.HasPrefix(e.Key, prefix) {
			return false
		}

		out = append(out, e)
		return true
	})

	return out
}

// IDs — удобная обёртка над Query, возвращающая только идентификаторы.
func (m *Maintainer) IDs(name Name, parts ...string) []string {
	entries := m.Query(name, parts...)
	ids := make([]string, 0, len(entries))

	for _, e := range entries {
		ids = append(ids, e.ID)
	}

	return ids
}

// Len — число элементов проекции (для метрик).
func (m *Maintainer) Len(name Name) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if t, ok := m.st.trees[name]; ok {
		return t.Len()
	}

	return 0
}

// Run потребляет поток изменений хранилища до отмены ctx. После обрыва потока
// переподключается с экспоненциальной паузой и перестраивает индекс из src,
// чтобы закрыть пропущенные изменения.
func (m *Maintainer) Run(ctx context.Context, w storage.Watcher, src Source) {
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		err := w.Watch(ctx, m.Apply)
		if ctx.Err() != nil {
			m.log.Info("index_watch_stopped")
			return
		}

		m.log.Warn("index_watch_interrupted", "err", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		if src == nil {
			continue
		}

		if err := m.Rebuild(ctx, src); err != nil {
			m.log.Error("index_rebuild_failed", "err", err)
			continue
		}

		backoff = 500 * time.Millisecond
	}
}
