package service

// Тесты сервисного слоя forum-service.
//
//  Проверяем:
//  - создание сообщений и ответов (глубина, root_id, межканальные ссылки);
//  - голосование (перенос голоса, no-op, конкурентные голоса, исчерпание повторов);
//  - выдачу канала/ответов/ветки по индексам и присоединение авторов;
//  - поиск, подсказки, статистику;
//  - каскадные удаления, включая отставший индекс.
//
// Большая часть тестов идёт поверх pebble в памяти; ветки ошибок хранилища
// проверяются на моках из /mocks.
//
//   go test ./internal/service -v -race -count=1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pribylovaa/go-forum/internal/config"
	"github.com/pribylovaa/go-forum/internal/index"
	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/storage"
	"github.com/pribylovaa/go-forum/internal/storage/pebble"
	"github.com/pribylovaa/go-forum/mocks"
	"github.com/stretchr/testify/require"
)

var (
	admin = models.Principal{ID: "admin-1", Role: models.RoleAdmin}
	alice = models.Principal{ID: "alice", Role: models.RoleUser}
)

func testConfig() config.Config {
	return config.Config{
		Limits: config.LimitsConfig{
			MaxDepth:    32,
			MaxContent:  10000,
			SearchPage:  100,
			Suggestions: 10,
		},
		Ratings: config.RatingsConfig{
			MaxRetries:   5,
			RetryBackoff: time.Millisecond,
		},
		Timeouts: config.TimeoutConfig{
			Service: 5 * time.Second,
			Scan:    5 * time.Second,
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestService — сервис поверх pebble в памяти.
func newTestService(t *testing.T, users storage.UserDirectory) (*Service, *pebble.Store) {
	t.Helper()

	st, err := pebble.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(st.Close)

	s := New(Deps{Store: st, Users: users, Index: index.New(quietLogger())}, testConfig())

	return s, st
}

func mustChannel(t *testing.T, s *Service, name string) *models.Channel {
	t.Helper()

	ch, err := s.CreateChannel(context.Background(), alice, name, "")
	require.NoError(t, err)

	return ch
}

func mustPost(t *testing.T, s *Service, channelID, parentID, author, content string) *models.MessageView {
	t.Helper()

	m, err := s.CreateMessage(context.Background(), CreateMessageInput{
		ChannelID: channelID,
		ParentID:  parentID,
		AuthorID:  author,
		Content:   content,
	})
	require.NoError(t, err)

	return m
}

func countMessages(t *testing.T, st storage.Store) int {
	t.Helper()

	n := 0
	require.NoError(t, st.ScanMessages(context.Background(), storage.ScanFilter{}, func(models.Message) error {
		n++
		return nil
	}))

	return n
}

// Корень A, ответ B на A, ответ D на B: глубины 0/1/2, общий root_id.
func TestService_CreateMessage_Thread(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()
	ch := mustChannel(t, s, "general")

	a := mustPost(t, s, ch.ID, "", "u1", "A")
	b := mustPost(t, s, ch.ID, a.ID, "u2", "B")
	d := mustPost(t, s, ch.ID, b.ID, "u1", "D")

	require.Equal(t, int32(0), a.Depth)
	require.Equal(t, a.ID, a.RootID)
	require.Equal(t, int32(1), b.Depth)
	require.Equal(t, a.ID, b.RootID)
	require.Equal(t, int32(2), d.Depth)
	require.Equal(t, a.ID, d.RootID)
	require.Equal(t, b.ID, d.ParentID)

	// Без каталога пользователей — заглушка.
	require.Equal(t, "Unknown User", a.Author.DisplayName)

	replies, err := s.ListReplies(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.Equal(t, b.ID, replies[0].ID)

	thr, err := s.ListThread(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, thr, 3)
	require.Equal(t, []string{a.ID, b.ID, d.ID}, []string{thr[0].ID, thr[1].ID, thr[2].ID})
}

func TestService_CreateMessage_Errors(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()
	c1 := mustChannel(t, s, "one")
	c2 := mustChannel(t, s, "two")
	root := mustPost(t, s, c1.ID, "", "u1", "root")

	t.Run("empty content", func(t *testing.T) {
		_, err := s.CreateMessage(ctx, CreateMessageInput{ChannelID: c1.ID, AuthorID: "u1", Content: "   "})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("empty author", func(t *testing.T) {
		_, err := s.CreateMessage(ctx, CreateMessageInput{ChannelID: c1.ID, Content: "x"})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown channel", func(t *testing.T) {
		_, err := s.CreateMessage(ctx, CreateMessageInput{ChannelID: "nope", AuthorID: "u1", Content: "x"})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown parent", func(t *testing.T) {
		_, err := s.CreateMessage(ctx, CreateMessageInput{ChannelID: c1.ID, ParentID: "missing", AuthorID: "u1", Content: "x"})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("cross channel parent", func(t *testing.T) {
		_, err := s.CreateMessage(ctx, CreateMessageInput{ChannelID: c2.ID, ParentID: root.ID, AuthorID: "u1", Content: "x"})
		require.ErrorIs(t, err, ErrInvalidReference)
	})

	t.Run("too long", func(t *testing.T) {
		long := make([]byte, 10001)
		for i := range long {
			long[i] = 'a'
		}
		_, err := s.CreateMessage(ctx, CreateMessageInput{ChannelID: c1.ID, AuthorID: "u1", Content: string(long)})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("attachment without storage", func(t *testing.T) {
		_, err := s.CreateMessage(ctx, CreateMessageInput{ChannelID: c1.ID, AuthorID: "u1", AttachmentKey: "attachments/u1/x.png"})
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestService_CreateMessage_MaxDepth(t *testing.T) {
	s, _ := newTestService(t, nil)
	s.cfg.Limits.MaxDepth = 2
	ch := mustChannel(t, s, "deep")

	a := mustPost(t, s, ch.ID, "", "u1", "0")
	b := mustPost(t, s, ch.ID, a.ID, "u1", "1")
	c := mustPost(t, s, ch.ID, b.ID, "u1", "2")

	_, err := s.CreateMessage(context.Background(), CreateMessageInput{ChannelID: ch.ID, ParentID: c.ID, AuthorID: "u1", Content: "3"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestService_ListChannelMessages(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	users := mocks.NewMockUserDirectory(ctrl)
	users.EXPECT().UsersByIDs(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ids []string) (map[string]models.User, error) {
			out := map[string]models.User{}
			for _, id := range ids {
				if id == "u1" {
					out[id] = models.User{ID: "u1", Username: "ann", DisplayName: "Ann"}
				}
			}
			return out, nil
		}).AnyTimes()

	s, _ := newTestService(t, users)
	ctx := context.Background()
	ch := mustChannel(t, s, "general")
	other := mustChannel(t, s, "other")

	r1 := mustPost(t, s, ch.ID, "", "u1", "first root")
	r2 := mustPost(t, s, ch.ID, "", "ghost", "second root")
	rep := mustPost(t, s, ch.ID, r1.ID, "u1", "reply")
	mustPost(t, s, other.ID, "", "u1", "elsewhere")

	list, err := s.ListChannelMessages(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	for i, m := range list {
		require.Equal(t, ch.ID, m.ChannelID)
		if i > 0 {
			prev := list[i-1]
			require.True(t, prev.Depth < m.Depth || (prev.Depth == m.Depth && !prev.CreatedAt.After(m.CreatedAt)))
		}
	}

	require.Equal(t, rep.ID, list[2].ID)
	require.ElementsMatch(t, []string{r1.ID, r2.ID}, []string{list[0].ID, list[1].ID})

	byID := map[string]models.MessageView{}
	for _, m := range list {
		byID[m.ID] = m
	}
	require.Equal(t, "Ann", byID[r1.ID].Author.DisplayName)
	require.Equal(t, "Unknown User", byID[r2.ID].Author.DisplayName)

	_, err = s.ListChannelMessages(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	empty := mustChannel(t, s, "empty")
	list, err = s.ListChannelMessages(ctx, empty.ID)
	require.NoError(t, err)
	require.NotNil(t, list)
	require.Empty(t, list)
}

// Каталог пользователей недоступен — выдача не падает, авторы заглушены.
func TestService_ListChannelMessages_DirectoryDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	users := mocks.NewMockUserDirectory(ctrl)
	users.EXPECT().UsersByIDs(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused")).AnyTimes()

	s, _ := newTestService(t, users)
	ch := mustChannel(t, s, "general")
	mustPost(t, s, ch.ID, "", "u1", "hello")

	list, err := s.ListChannelMessages(context.Background(), ch.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Unknown User", list[0].Author.DisplayName)
}

// Индекс ссылается на удалённый документ — запись пропускается.
func TestService_ListChannelMessages_DanglingIndex(t *testing.T) {
	s, st := newTestService(t, nil)
	ctx := context.Background()
	ch := mustChannel(t, s, "general")

	keep := mustPost(t, s, ch.ID, "", "u1", "keep")
	gone := mustPost(t, s, ch.ID, "", "u1", "gone")
	require.NoError(t, st.DeleteMessage(ctx, gone.ID))

	list, err := s.ListChannelMessages(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, keep.ID, list[0].ID)
}

func TestService_Rate(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()
	ch := mustChannel(t, s, "general")
	m := mustPost(t, s, ch.ID, "", "u1", "rate me")

	res, err := s.Rate(ctx, m.ID, "voter", models.VoteUp)
	require.NoError(t, err)
	require.Equal(t, models.Ratings{Up: 1, Down: 0}, res.Ratings)
	require.Equal(t, models.VoteUp, res.UserRating)

	// Смена направления переносит голос.
	res, err = s.Rate(ctx, m.ID, "voter", models.VoteDown)
	require.NoError(t, err)
	require.Equal(t, models.Ratings{Up: 0, Down: 1}, res.Ratings)
	require.Equal(t, models.VoteDown, res.UserRating)

	// Повтор того же направления — no-op.
	before, err := s.MessageByID(ctx, m.ID)
	require.NoError(t, err)
	res, err = s.Rate(ctx, m.ID, "voter", models.VoteDown)
	require.NoError(t, err)
	require.Equal(t, models.Ratings{Up: 0, Down: 1}, res.Ratings)
	after, err := s.MessageByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, before.Rev, after.Rev)

	res, err = s.ClearRating(ctx, m.ID, "voter")
	require.NoError(t, err)
	require.Equal(t, models.Ratings{}, res.Ratings)
	require.Equal(t, models.Vote(0), res.UserRating)

	_, err = s.Rate(ctx, m.ID, "voter", models.Vote(2))
	require.ErrorIs(t, err, ErrValidation)

	_, err = s.Rate(ctx, "missing", "voter", models.VoteUp)
	require.ErrorIs(t, err, ErrNotFound)
}

// Конкурентные голоса многих пользователей сходятся к точным счётчикам.
func TestService_Rate_Concurrent(t *testing.T) {
	s, _ := newTestService(t, nil)
	s.cfg.Ratings.MaxRetries = 200
	ctx := context.Background()
	ch := mustChannel(t, s, "general")
	m := mustPost(t, s, ch.ID, "", "u1", "popular")

	const voters = 20
	var wg sync.WaitGroup
	errs := make(chan error, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := models.VoteUp
			if i%4 == 0 {
				v = models.VoteDown
			}
			_, err := s.Rate(ctx, m.ID, fmt.Sprintf("user-%d", i), v)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.MessageByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, int64(15), got.Ratings.Up)
	require.Equal(t, int64(5), got.Ratings.Down)
	require.Len(t, got.UserRatings, voters)
}

// Ревизия каждый раз меняется — после MaxRetries+1 попыток ErrConflict.
func TestService_Rate_ConflictExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := mocks.NewMockStore(ctrl)
	cfg := testConfig()
	cfg.Ratings.RetryBackoff = 0
	s := New(Deps{Store: ms, Index: index.New(quietLogger())}, cfg)

	attempts := cfg.Ratings.MaxRetries + 1
	ms.EXPECT().MessageByID(gomock.Any(), "m1").DoAndReturn(func(context.Context, string) (*models.Message, error) {
		return &models.Message{ID: "m1", ChannelID: "c1", RootID: "m1", Rev: 3}, nil
	}).Times(attempts)
	ms.EXPECT().ReplaceMessage(gomock.Any(), gomock.Any()).Return(nil, storage.ErrRevisionConflict).Times(attempts)

	_, err := s.Rate(context.Background(), "m1", "voter", models.VoteUp)
	require.ErrorIs(t, err, ErrConflict)
}

func TestService_Rate_StoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := mocks.NewMockStore(ctrl)
	s := New(Deps{Store: ms, Index: index.New(quietLogger())}, testConfig())

	ms.EXPECT().MessageByID(gomock.Any(), "m1").Return(nil, storage.ErrUnavailable)
	_, err := s.Rate(context.Background(), "m1", "voter", models.VoteUp)
	require.ErrorIs(t, err, ErrUnavailable)

	// Документ удалён между чтением и записью.
	ms.EXPECT().MessageByID(gomock.Any(), "m2").Return(&models.Message{ID: "m2", Rev: 1}, nil)
	ms.EXPECT().ReplaceMessage(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)
	_, err = s.Rate(context.Background(), "m2", "voter", models.VoteUp)
	require.ErrorIs(t, err, ErrNotFound)

	ms.EXPECT().MessageByID(gomock.Any(), "m3").Return(nil, errors.New("boom"))
	_, err = s.Rate(context.Background(), "m3", "voter", models.VoteUp)
	require.ErrorIs(t, err, ErrInternal)
}

func TestService_SearchMessages(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()
	ch := mustChannel(t, s, "general")

	m1 := mustPost(t, s, ch.ID, "", "u1", "Go is fun")
	m2 := mustPost(t, s, ch.ID, "", "u2", "I like GOLANG")
	m3 := mustPost(t, s, ch.ID, "", "u1", "nothing here")

	_, err := s.Rate(ctx, m2.ID, "x", models.VoteUp)
	require.NoError(t, err)
	_, err = s.Rate(ctx, m1.ID, "x", models.VoteDown)
	require.NoError(t, err)

	got, err := s.SearchMessages(ctx, models.SearchQuery{Query: "go", SortBy: models.SortMostRated})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, m2.ID, got[0].ID)
	require.Equal(t, m1.ID, got[1].ID)

	got, err = s.SearchMessages(ctx, models.SearchQuery{Query: "go", SortBy: models.SortLeastRated})
	require.NoError(t, err)
	require.Equal(t, m1.ID, got[0].ID)

	got, err = s.SearchMessages(ctx, models.SearchQuery{AuthorID: "u1", SortBy: models.SortOldest})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, m1.ID, got[0].ID)
	require.Equal(t, m3.ID, got[1].ID)

	got, err = s.SearchMessages(ctx, models.SearchQuery{AuthorID: "u1", SortBy: models.SortNewest})
	require.NoError(t, err)
	require.Equal(t, m3.ID, got[0].ID)

	got, err = s.SearchMessages(ctx, models.SearchQuery{Query: "zzz-no-match"})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)

	_, err = s.SearchMessages(ctx, models.SearchQuery{SortBy: "random"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestService_SearchMessages_PageLimit(t *testing.T) {
	s, _ := newTestService(t, nil)
	s.cfg.Limits.SearchPage = 3
	ch := mustChannel(t, s, "general")

	for i := 0; i < 5; i++ {
		mustPost(t, s, ch.ID, "", "u1", fmt.Sprintf("post %d", i))
	}

	for _, by := range []models.SortBy{"", models.SortRelevance, models.SortNewest} {
		got, err := s.SearchMessages(context.Background(), models.SearchQuery{Query: "post", SortBy: by})
		require.NoError(t, err)
		require.Len(t, got, 3)
	}
}

func TestService_SearchMessages_ScanFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := mocks.NewMockStore(ctrl)
	s := New(Deps{Store: ms}, testConfig())

	ms.EXPECT().ScanMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return(context.DeadlineExceeded)
	_, err := s.SearchMessages(context.Background(), models.SearchQuery{Query: "x"})
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_Suggestions(t *testing.T) {
	s, _ := newTestService(t, nil)
	s.cfg.Limits.Suggestions = 2
	ch := mustChannel(t, s, "general")

	mustPost(t, s, ch.ID, "", "u1", "hello world")
	mustPost(t, s, ch.ID, "", "u2", "hello world")
	mustPost(t, s, ch.ID, "", "u2", "Hello there")
	mustPost(t, s, ch.ID, "", "u2", "hello again")

	got, err := s.Suggestions(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotEqual(t, got[0], got[1])

	got, err = s.Suggestions(context.Background(), "  ")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestService_UserStatistics(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()
	ch := mustChannel(t, s, "general")

	a := mustPost(t, s, ch.ID, "", "u1", "root")
	mustPost(t, s, ch.ID, a.ID, "u1", "reply")
	b := mustPost(t, s, ch.ID, "", "u2", "other root")

	_, err := s.Rate(ctx, a.ID, "x", models.VoteUp)
	require.NoError(t, err)
	_, err = s.Rate(ctx, a.ID, "y", models.VoteUp)
	require.NoError(t, err)
	_, err = s.Rate(ctx, b.ID, "x", models.VoteDown)
	require.NoError(t, err)

	stats, err := s.UserStatistics(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	require.Equal(t, models.UserStats{
		AuthorID: "u1", DisplayName: "Unknown User",
		TotalPosts: 2, RootPosts: 1, Replies: 1, Upvotes: 2,
	}, stats[0])
	require.Equal(t, models.UserStats{
		AuthorID: "u2", DisplayName: "Unknown User",
		TotalPosts: 1, RootPosts: 1, Downvotes: 1,
	}, stats[1])
}

func TestService_DeleteMessageCascade(t *testing.T) {
	s, st := newTestService(t, nil)
	ctx := context.Background()
	ch := mustChannel(t, s, "general")

	a := mustPost(t, s, ch.ID, "", "u1", "A")
	b := mustPost(t, s, ch.ID, a.ID, "u1", "B")
	mustPost(t, s, ch.ID, b.ID, "u1", "D")
	c := mustPost(t, s, ch.ID, a.ID, "u1", "C")
	other := mustPost(t, s, ch.ID, "", "u1", "other")

	_, err := s.DeleteMessageCascade(ctx, alice, b.ID)
	require.ErrorIs(t, err, ErrPermissionDenied)

	// Поддерево B (B и D).
	res, err := s.DeleteMessageCascade(ctx, admin, b.ID)
	require.NoError(t, err)
	require.Equal(t, models.CascadeResult{Deleted: 2}, *res)

	list, err := s.ListChannelMessages(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	// Вся ветка A.
	res, err = s.DeleteMessageCascade(ctx, admin, a.ID)
	require.NoError(t, err)
	require.Equal(t, models.CascadeResult{Deleted: 2}, *res)

	_, err = st.MessageByID(ctx, c.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.Equal(t, 1, countMessages(t, st))

	list, err = s.ListChannelMessages(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, other.ID, list[0].ID)

	_, err = s.DeleteMessageCascade(ctx, admin, a.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

// Сбой удаления одного потомка не прерывает каскад.
func TestService_DeleteMessageCascade_PartialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := mocks.NewMockStore(ctrl)
	idx := index.New(quietLogger())
	s := New(Deps{Store: ms, Index: idx}, testConfig())

	now := time.Now().UTC()
	root := models.Message{ID: "r", ChannelID: "c", RootID: "r", CreatedAt: now, Rev: 1}
	k1 := models.Message{ID: "k1", ChannelID: "c", ParentID: "r", RootID: "r", Depth: 1, CreatedAt: now, Rev: 1}
	k2 := models.Message{ID: "k2", ChannelID: "c", ParentID: "r", RootID: "r", Depth: 1, CreatedAt: now, Rev: 1}
	for _, m := range []models.Message{root, k1, k2} {
		idx.Apply(storage.Change{ID: m.ID, Rev: m.Rev, Message: &m})
	}

	ms.EXPECT().MessageByID(gomock.Any(), "r").Return(&root, nil)
	ms.EXPECT().MessagesByIDs(gomock.Any(), gomock.Any()).Return([]models.Message{k1, k2}, nil)
	ms.EXPECT().DeleteMessage(gomock.Any(), "k1").Return(errors.New("disk full"))
	ms.EXPECT().DeleteMessage(gomock.Any(), "k2").Return(storage.ErrNotFound)
	ms.EXPECT().DeleteMessage(gomock.Any(), "r").Return(nil)

	res, err := s.DeleteMessageCascade(context.Background(), admin, "r")
	require.NoError(t, err)
	require.Equal(t, models.CascadeResult{Deleted: 1, Failed: 1}, *res)
}

// Сообщения, не попавшие в индекс, всё равно удаляются зачисткой по каналу.
func TestService_DeleteChannelCascade_StaleIndex(t *testing.T) {
	s, st := newTestService(t, nil)
	ctx := context.Background()
	ch := mustChannel(t, s, "doomed")
	keep := mustChannel(t, s, "keep")

	a := mustPost(t, s, ch.ID, "", "u1", "indexed")
	mustPost(t, s, ch.ID, a.ID, "u1", "indexed reply")
	mustPost(t, s, keep.ID, "", "u1", "survivor")

	// Запись мимо сервиса: индекс о ней не знает.
	_, err := st.InsertMessage(ctx, models.Message{
		ID: st.NewID(), ChannelID: ch.ID, AuthorID: "u1", Content: "unindexed", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = s.DeleteChannelCascade(ctx, alice, ch.ID)
	require.ErrorIs(t, err, ErrPermissionDenied)

	res, err := s.DeleteChannelCascade(ctx, admin, ch.ID)
	require.NoError(t, err)
	require.Equal(t, 3, res.Deleted)
	require.Zero(t, res.Failed)

	n := 0
	require.NoError(t, st.ScanMessages(ctx, storage.ScanFilter{}, func(m models.Message) error {
		require.NotEqual(t, ch.ID, m.ChannelID)
		n++
		return nil
	}))
	require.Equal(t, 1, n)

	_, err = s.ChannelByID(ctx, ch.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.DeleteChannelCascade(ctx, admin, ch.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

// TestService_DeleteChannelCascade_SweepDropsIndex — документы, снятые
// зачисткой по channel_id, уходят и из индекса.
func TestService_DeleteChannelCascade_SweepDropsIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := mocks.NewMockStore(ctrl)
	idx := index.New(quietLogger())
	s := New(Deps{Store: ms, Index: idx}, testConfig())

	now := time.Now().UTC()
	for _, m := range []models.Message{
		{ID: "m1", ChannelID: "c1", RootID: "m1", CreatedAt: now, Rev: 1},
		{ID: "m2", ChannelID: "c1", ParentID: "m1", RootID: "m1", Depth: 1, CreatedAt: now, Rev: 1},
	} {
		idx.Apply(storage.Change{ID: m.ID, Rev: m.Rev, Message: &m})
	}
	require.Len(t, idx.IDs(index.ByChannel, "c1"), 2)

	ms.EXPECT().ChannelByID(gomock.Any(), "c1").Return(&models.Channel{ID: "c1", Name: "doomed"}, nil)
	ms.EXPECT().MessagesByIDs(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("wrapped: %w", storage.ErrUnavailable))
	ms.EXPECT().DeleteMessagesByChannel(gomock.Any(), "c1").Return([]string{"m1", "m2"}, nil)
	ms.EXPECT().DeleteChannel(gomock.Any(), "c1").Return(nil)

	res, err := s.DeleteChannelCascade(context.Background(), admin, "c1")
	require.NoError(t, err)
	require.Equal(t, 2, res.Deleted)
	require.Zero(t, res.Failed)

	require.Empty(t, idx.IDs(index.ByChannel, "c1"))
	require.Empty(t, idx.IDs(index.ByRoot, "m1"))
	require.Zero(t, idx.Len(index.ByParent))
}

func TestService_Channels(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := s.CreateChannel(ctx, alice, "   ", "")
	require.ErrorIs(t, err, ErrValidation)

	b, err := s.CreateChannel(ctx, alice, " beta ", "second")
	require.NoError(t, err)
	require.Equal(t, "beta", b.Name)
	require.Equal(t, alice.ID, b.CreatedBy)

	_, err = s.CreateChannel(ctx, alice, "alpha", "")
	require.NoError(t, err)

	_, err = s.CreateChannel(ctx, alice, "beta", "")
	require.ErrorIs(t, err, ErrConflict)

	list, err := s.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "alpha", list[0].Name)

	got, err := s.ChannelByID(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, "second", got.Description)
}

func TestService_Attachments(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	att := mocks.NewMockAttachments(ctrl)
	st, err := pebble.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(st.Close)

	s := New(Deps{Store: st, Attachments: att, Index: index.New(quietLogger())}, testConfig())
	ctx := context.Background()
	ch := mustChannel(t, s, "files")

	att.EXPECT().UploadURL(gomock.Any(), alice.ID, "image/png", int64(10)).
		Return(&storage.UploadInfo{UploadURL: "http://s3/put", Key: "attachments/alice/k.png"}, nil)
	info, err := s.PresignAttachment(ctx, alice, "image/png", 10)
	require.NoError(t, err)
	require.Equal(t, "attachments/alice/k.png", info.Key)

	att.EXPECT().UploadURL(gomock.Any(), alice.ID, "text/html", int64(10)).Return(nil, storage.ErrInvalidAttachment)
	_, err = s.PresignAttachment(ctx, alice, "text/html", 10)
	require.ErrorIs(t, err, ErrValidation)

	att.EXPECT().Resolve(gomock.Any(), alice.ID, "attachments/alice/k.png", "cat.png").
		Return(&models.Attachment{Key: "attachments/alice/k.png", Filename: "cat.png", ContentType: "image/png", Size: 10, URL: "http://cdn/k.png"}, nil)
	m, err := s.CreateMessage(ctx, CreateMessageInput{
		ChannelID: ch.ID, AuthorID: alice.ID,
		AttachmentKey: "attachments/alice/k.png", AttachmentName: "cat.png",
	})
	require.NoError(t, err)
	require.NotNil(t, m.Attachment)
	require.Equal(t, "http://cdn/k.png", m.Attachment.URL)

	att.EXPECT().Resolve(gomock.Any(), alice.ID, "attachments/bob/x.png", "").Return(nil, storage.ErrInvalidAttachment)
	_, err = s.CreateMessage(ctx, CreateMessageInput{ChannelID: ch.ID, AuthorID: alice.ID, Content: "x", AttachmentKey: "attachments/bob/x.png"})
	require.ErrorIs(t, err, ErrValidation)
}
