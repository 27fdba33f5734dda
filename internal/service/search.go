package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/pkg/log"
	"github.com/pribylovaa/go-forum/internal/storage"
)

// errPageFull прерывает сканирование, когда страница уже набрана.
var errPageFull = errors.New("page full")

// SearchMessages — подстрочный (без учёта регистра) поиск по содержимому
// с необязательным фильтром по автору.
//
// Поведение/ошибки:
//   - пустой запрос совпадает с любым содержимым;
//   - результат ограничен Limits.SearchPage элементами;
//   - пустое совпадение — пустой список, не ошибка;
//   - порядок relevance (и пустой sortBy) — порядок обхода хранилища;
//   - ErrValidation — неизвестный sortBy;
//   - превышение Timeouts.Scan — ErrUnavailable с context.DeadlineExceeded.
func (s *Service) SearchMessages(ctx context.Context, q models.SearchQuery) ([]models.MessageView, error) {
	const op = "service/search/SearchMessages"

	q.Query = strings.TrimSpace(q.Query)
	q.AuthorID = strings.TrimSpace(q.AuthorID)
	lg := log.From(ctx).With("op", op, "query", q.Query, "author_id", q.AuthorID, "sort_by", string(q.SortBy))

	if !q.SortBy.Valid() {
		lg.Warn("invalid argument: unknown sortBy")
		return nil, fmt.Errorf("%s: %w: unknown sortBy %q", op, ErrValidation, q.SortBy)
	}

	limit := s.cfg.Limits.SearchPage
	ordered := q.SortBy != "" && q.SortBy != models.SortRelevance

	scanCtx, cancel := s.scanContext(ctx)
	defer cancel()

	var found []models.Message
	err := s.store.ScanMessages(scanCtx, storage.ScanFilter{AuthorID: q.AuthorID, Contains: q.Query}, func(m models.Message) error {
		found = append(found, m)
		if !ordered && len(found) >= limit {
			return errPageFull
		}

		return nil
	})
	if err != nil && !errors.Is(err, errPageFull) {
		return nil, storeFailure(op, lg, err)
	}

	if ordered {
		sortMessages(found, q.SortBy)
	}

	if len(found) > limit {
		found = found[:limit]
	}

	lg.Debug("search done", "count", len(found))

	return s.withAuthors(ctx, found), nil
}

// Suggestions — подсказки для строки поиска: уникальные тексты сообщений,
// содержащие запрос. Пустой запрос — пустой список.
func (s *Service) Suggestions(ctx context.Context, query string) ([]string, error) {
	const op = "service/search/Suggestions"

	query = strings.TrimSpace(query)
	lg := log.From(ctx).With("op", op, "query", query)

	out := []string{}
	if query == "" {
		return out, nil
	}

	limit := s.cfg.Limits.Suggestions
	seen := make(map[string]struct{}, limit)

	scanCtx, cancel := s.scanContext(ctx)
	defer cancel()

	err := s.store.ScanMessages(scanCtx, storage.ScanFilter{Contains: query}, func(m models.Message) error {
		if _, ok := seen[m.Content]; ok {
			return nil
		}
		seen[m.Content] = struct{}{}
		out = append(out, m.Content)
		if len(out) >= limit {
			return errPageFull
		}

		return nil
	})
	if err != nil && !errors.Is(err, errPageFull) {
		return nil, storeFailure(op, lg, err)
	}

	return out, nil
}

// UserStatistics — агрегаты по всем авторам: число постов (корни/ответы)
// и сумма полученных голосов. Сортировка по TotalPosts по убыванию,
// при равенстве — по AuthorID.
func (s *Service) UserStatistics(ctx context.Context) ([]models.UserStats, error) {
	const op = "service/search/UserStatistics"

	lg := log.From(ctx).With("op", op)

	scanCtx, cancel := s.scanContext(ctx)
	defer cancel()

	acc := make(map[string]*models.UserStats)
	err := s.store.ScanMessages(scanCtx, storage.ScanFilter{}, func(m models.Message) error {
		st, ok := acc[m.AuthorID]
		if !ok {
			st = &models.UserStats{AuthorID: m.AuthorID}
			acc[m.AuthorID] = st
		}

		st.TotalPosts++
		if m.IsRoot() {
			st.RootPosts++
		} else {
			st.Replies++
		}
		st.Upvotes += m.Ratings.Up
		st.Downvotes += m.Ratings.Down

		return nil
	})
	if err != nil {
		return nil, storeFailure(op, lg, err)
	}

	ids := make([]string, 0, len(acc))
	for id := range acc {
		ids = append(ids, id)
	}
	users := s.lookupUsers(ctx, ids)

	out := make([]models.UserStats, 0, len(acc))
	for id, st := range acc {
		st.DisplayName = models.UnknownAuthor(id).DisplayName
		if u, ok := users[id]; ok {
			st.DisplayName = u.Author().DisplayName
		}
		out = append(out, *st)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPosts != out[j].TotalPosts {
			return out[i].TotalPosts > out[j].TotalPosts
		}
		return out[i].AuthorID < out[j].AuthorID
	})

	return out, nil
}

func (s *Service) scanContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeouts.Scan <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.cfg.Timeouts.Scan)
}

// sortMessages упорядочивает выдачу поиска; равные элементы — по (createdAt, id).
func sortMessages(msgs []models.Message, by models.SortBy) {
	tie := func(a, b models.Message) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		switch by {
		case models.SortMostRated:
			if a.Ratings.Net() != b.Ratings.Net() {
				return a.Ratings.Net() > b.Ratings.Net()
			}
		case models.SortLeastRated:
			if a.Ratings.Net() != b.Ratings.Net() {
				return a.Ratings.Net() < b.Ratings.Net()
			}
		case models.SortNewest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.ID > b.ID
		}
		return tie(a, b)
	})
}
