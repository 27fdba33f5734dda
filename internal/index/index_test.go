package index

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/storage"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func mk(id, channel, parent, root string, depth int32, offset time.Duration, rev int64) models.Message {
	return models.Message{
		ID:        id,
		ChannelID: channel,
		ParentID:  parent,
		RootID:    root,
		Depth:     depth,
		CreatedAt: base.Add(offset),
		Rev:       rev,
	}
}

func put(m models.Message) storage.Change {
	return storage.Change{ID: m.ID, Rev: m.Rev, Message: &m}
}

// sliceSource — источник сканирования из среза; hook вызывается после первого документа.
type sliceSource struct {
	docs []models.Message
	hook func()
	err  error
}

func (s *sliceSource) ScanMessages(_ context.Context, _ storage.ScanFilter, fn func(models.Message) error) error {
	for i, d := range s.docs {
		if err := fn(d); err != nil {
			return err
		}

		if i == 0 && s.hook != nil {
			s.hook()
		}
	}

	return s.err
}

// fixture — A (корень), B ответ на A, D ответ на B, E второй корень; X в другом канале.
func fixture() []models.Message {
	return []models.Message{
		mk("A", "c1", "", "A", 0, 0, 1),
		mk("B", "c1", "A", "A", 1, time.Second, 1),
		mk("D", "c1", "B", "A", 2, 2*time.Second, 1),
		mk("E", "c1", "", "E", 0, 3*time.Second, 1),
		mk("X", "c2", "", "X", 0, 0, 1),
	}
}

// TestProjections — ключи и принадлежность проекциям.
func TestProjections(t *testing.T) {
	t.Parallel()

	root := mk("A", "c1", "", "A", 0, 0, 1)
	_, ok := Projections[ByParent](root)
	require.False(t, ok, "roots are not in byParent")

	reply := mk("B", "c1", "A", "A", 1, time.Second, 1)
	e, ok := Projections[ByParent](reply)
	require.True(t, ok)
	require.Equal(t, "B", e.ID)

	rootKey, _ := Projections[ByChannel](root)
	replyKey, _ := Projections[ByChannel](reply)
	require.Less(t, rootKey.Key, replyKey.Key, "null parent sorts first")

	late := mk("Z", "c1", "", "Z", 0, time.Hour, 1)
	lateKey, _ := Projections[ByChannel](late)
	require.Less(t, rootKey.Key, lateKey.Key)
}

// TestMaintainer_ApplyAndQuery — выборки по всем трём проекциям.
func TestMaintainer_ApplyAndQuery(t *testing.T) {
	t.Parallel()

	m := New(nil)
	for _, d := range fixture() {
		m.Apply(put(d))
	}

	require.Equal(t, []string{"A", "E", "B", "D"}, m.IDs(ByChannel, "c1"))
	require.Equal(t, []string{"X"}, m.IDs(ByChannel, "c2"))
	require.Equal(t, []string{"B"}, m.IDs(ByParent, "A"))
	require.Equal(t, []string{"D"}, m.IDs(ByParent, "B"))
	require.Empty(t, m.IDs(ByParent, "D"))
	require.Equal(t, []string{"A", "B", "D"}, m.IDs(ByRoot, "A"))
	require.Empty(t, m.IDs(ByChannel, "c"), "prefix must match whole component")
	require.Equal(t, 5, m.Len(ByChannel))
	require.Equal(t, 2, m.Len(ByParent))
}

// TestMaintainer_Idempotent — повтор изменения не дублирует элементы.
func TestMaintainer_Idempotent(t *testing.T) {
	t.Parallel()

	m := New(nil)
	for i := 0; i < 3; i++ {
		for _, d := range fixture() {
			m.Apply(put(d))
		}
	}

	require.Equal(t, 5, m.Len(ByChannel))
	require.Equal(t, 5, m.Len(ByRoot))
}

// TestMaintainer_StaleRevisionIgnored — старая ревизия не откатывает новую.
func TestMaintainer_StaleRevisionIgnored(t *testing.T) {
	t.Parallel()

	m := New(nil)
	v2 := mk("A", "c1", "", "A", 0, time.Minute, 2)
	v1 := mk("A", "c1", "", "A", 0, 0, 1)

	m.Apply(put(v2))
	m.Apply(put(v1))

	entries := m.Query(ByChannel, "c1")
	require.Len(t, entries, 1)
	want, _ := Projections[ByChannel](v2)
	require.Equal(t, want.Key, entries[0].Key)
}

// TestMaintainer_TombstoneBlocksResurrection — удаление терминально.
func TestMaintainer_TombstoneBlocksResurrection(t *testing.T) {
	t.Parallel()

	m := New(nil)
	a := mk("A", "c1", "", "A", 0, 0, 1)
	m.Apply(put(a))
	m.Apply(storage.Change{ID: "A", Deleted: true})
	require.Empty(t, m.IDs(ByChannel, "c1"))

	a.Rev = 5
	m.Apply(put(a))
	require.Empty(t, m.IDs(ByChannel, "c1"))
	require.Empty(t, m.IDs(ByRoot, "A"))
}

// TestMaintainer_RebuildIdempotent — перестройка даёт тот же результат, что и инкрементальное применение.
func TestMaintainer_RebuildIdempotent(t *testing.T) {
	t.Parallel()

	src := &sliceSource{docs: fixture()}
	incremental := New(nil)
	for _, d := range fixture() {
		incremental.Apply(put(d))
	}

	m := New(nil)
	require.NoError(t, m.Rebuild(context.Background(), src))
	first := m.Query(ByChannel, "c1")
	require.NoError(t, m.Rebuild(context.Background(), src))

	require.Equal(t, first, m.Query(ByChannel, "c1"))
	for _, n := range Names {
		require.Equal(t, incremental.Query(n, "c1"), m.Query(n, "c1"))
		require.Equal(t, incremental.Query(n, "A"), m.Query(n, "A"))
	}
}

// TestMaintainer_RebuildReplaysConcurrentChanges — изменения во время сканирования не теряются.
func TestMaintainer_RebuildReplaysConcurrentChanges(t *testing.T) {
	t.Parallel()

	m := New(nil)
	docs := fixture()
	for _, d := range docs {
		m.Apply(put(d))
	}

	added := mk("F", "c1", "E", "E", 1, 10*time.Second, 1)
	src := &sliceSource{docs: docs}
	src.hook = func() {
		m.Apply(put(added))
		m.Apply(storage.Change{ID: "D", Deleted: true})
	}

	require.NoError(t, m.Rebuild(context.Background(), src))

	require.Equal(t, []string{"A", "E", "B", "F"}, m.IDs(ByChannel, "c1"))
	require.Equal(t, []string{"F"}, m.IDs(ByParent, "E"))
	require.Empty(t, m.IDs(ByParent, "B"))
}

// TestMaintainer_RebuildKeepsTombstones — удалённый до перестройки документ не возвращается.
func TestMaintainer_RebuildKeepsTombstones(t *testing.T) {
	t.Parallel()

	m := New(nil)
	m.Apply(storage.Change{ID: "B", Deleted: true})

	require.NoError(t, m.Rebuild(context.Background(), &sliceSource{docs: fixture()}))
	require.Equal(t, []string{"A", "E", "D"}, m.IDs(ByChannel, "c1"))
}

// TestMaintainer_RebuildCompactsOldTombstones — удаления старше предыдущей
// перестройки отбрасываются, более свежие переживают следующую.
func TestMaintainer_RebuildCompactsOldTombstones(t *testing.T) {
	t.Parallel()

	clock := base
	m := New(nil)
	m.now = func() time.Time { return clock }

	tombstones := func() []string {
		var out []string
		for id, d := range m.st.docs {
			if d.deleted {
				out = append(out, id)
			}
		}
		sort.Strings(out)
		return out
	}

	without := func(ids ...string) []models.Message {
		var out []models.Message
		for _, d := range fixture() {
			if !slices.Contains(ids, d.ID) {
				out = append(out, d)
			}
		}
		return out
	}

	m.Apply(storage.Change{ID: "B", Deleted: true})

	clock = base.Add(time.Minute)
	require.NoError(t, m.Rebuild(context.Background(), &sliceSource{docs: without("B")}))
	require.Equal(t, []string{"B"}, tombstones())

	clock = base.Add(2 * time.Minute)
	m.Apply(storage.Change{ID: "E", Deleted: true})

	clock = base.Add(3 * time.Minute)
	require.NoError(t, m.Rebuild(context.Background(), &sliceSource{docs: without("B", "E")}))
	require.Equal(t, []string{"E"}, tombstones())
	require.Equal(t, []string{"A", "D"}, m.IDs(ByChannel, "c1"))

	// Свежий камень по-прежнему блокирует воскрешение.
	m.Apply(put(mk("E", "c1", "", "E", 0, 3*time.Second, 2)))
	require.Equal(t, []string{"A", "D"}, m.IDs(ByChannel, "c1"))
}

// TestMaintainer_RebuildErrorKeepsState — ошибка сканирования не портит текущий индекс.
func TestMaintainer_RebuildErrorKeepsState(t *testing.T) {
	t.Parallel()

	m := New(nil)
	for _, d := range fixture() {
		m.Apply(put(d))
	}

	boom := errors.New("boom")
	err := m.Rebuild(context.Background(), &sliceSource{docs: fixture()[:1], err: boom})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 5, m.Len(ByChannel))

	// После неудачи Apply не копит pending.
	m.Apply(put(mk("G", "c3", "", "G", 0, 0, 1)))
	require.Equal(t, []string{"G"}, m.IDs(ByChannel, "c3"))
}

// TestMaintainer_ConcurrentApplyAndQuery — гонок нет (go test -race).
func TestMaintainer_ConcurrentApplyAndQuery(t *testing.T) {
	t.Parallel()

	m := New(nil)
	src := &sliceSource{docs: fixture()}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, d := range fixture() {
				m.Apply(put(d))
				_ = m.IDs(ByChannel, "c1")
			}
			errs <- m.Rebuild(context.Background(), src)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, []string{"A", "E", "B", "D"}, m.IDs(ByChannel, "c1"))
}

// chanWatcher — поток изменений из канала; завершается по закрытию или ctx.
type chanWatcher struct {
	ch chan storage.Change
}

func (w *chanWatcher) Watch(ctx context.Context, fn func(storage.Change)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-w.ch:
			fn(c)
		}
	}
}

// TestMaintainer_Run — изменения из потока попадают в индекс.
func TestMaintainer_Run(t *testing.T) {
	t.Parallel()

	m := New(nil)
	w := &chanWatcher{ch: make(chan storage.Change)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, w, nil)
		close(done)
	}()

	for _, d := range fixture() {
		w.ch <- put(d)
	}

	require.Eventually(t, func() bool { return m.Len(ByChannel) == 5 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

// TestSchedule_InvalidCron — невалидное выражение отклоняется сразу.
func TestSchedule_InvalidCron(t *testing.T) {
	t.Parallel()

	err := Schedule(context.Background(), "not a cron", time.Second, New(nil), &sliceSource{})
	require.Error(t, err)
}

// TestSchedule_StopsOnCancel — планировщик завершается по отмене ctx.
func TestSchedule_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, Schedule(ctx, "* * * * *", time.Second, New(nil), &sliceSource{}))
}
