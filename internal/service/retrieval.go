package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pribylovaa/go-forum/internal/index"
	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/pkg/log"
	"github.com/pribylovaa/go-forum/internal/storage"
	"github.com/pribylovaa/go-forum/internal/thread"
)

// ListChannelMessages — все сообщения канала (корни и ответы) по индексу byChannel,
// обогащённые авторами и упорядоченные по (depth, createdAt).
// Канал должен существовать, иначе ErrNotFound.
func (s *Service) ListChannelMessages(ctx context.Context, channelID string) ([]models.MessageView, error) {
	const op = "service/retrieval/ListChannelMessages"

	channelID = strings.TrimSpace(channelID)
	lg := log.From(ctx).With("op", op, "channel_id", channelID)

	if channelID == "" {
		lg.Warn("invalid argument: empty channel_id")
		return nil, fmt.Errorf("%s: %w", op, ErrValidation)
	}

	if _, err := s.store.ChannelByID(ctx, channelID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("channel not found")
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return nil, storeFailure(op, lg, err)
	}

	ids := s.index.IDs(index.ByChannel, channelID)

	out, err := s.assemble(ctx, ids, func(m models.Message) bool { return m.ChannelID == channelID })
	if err != nil {
		return nil, storeFailure(op, lg, err)
	}

	return out, nil
}

// ListReplies — прямые ответы на сообщение (индекс byParent).
func (s *Service) ListReplies(ctx context.Context, messageID string) ([]models.MessageView, error) {
	const op = "service/retrieval/ListReplies"

	messageID = strings.TrimSpace(messageID)
	lg := log.From(ctx).With("op", op, "message_id", messageID)

	if messageID == "" {
		lg.Warn("invalid argument: empty message_id")
		return nil, fmt.Errorf("%s: %w", op, ErrValidation)
	}

	if _, err := s.store.MessageByID(ctx, messageID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("message not found")
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return nil, storeFailure(op, lg, err)
	}

	ids := s.index.IDs(index.ByParent, messageID)

	out, err := s.assemble(ctx, ids, func(m models.Message) bool { return m.ParentID == messageID })
	if err != nil {
		return nil, storeFailure(op, lg, err)
	}

	return out, nil
}

// ListThread — вся ветка, к которой принадлежит сообщение (индекс byRoot).
func (s *Service) ListThread(ctx context.Context, messageID string) ([]models.MessageView, error) {
	const op = "service/retrieval/ListThread"

	messageID = strings.TrimSpace(messageID)
	lg := log.From(ctx).With("op", op, "message_id", messageID)

	if messageID == "" {
		lg.Warn("invalid argument: empty message_id")
		return nil, fmt.Errorf("%s: %w", op, ErrValidation)
	}

	msg, err := s.store.MessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("message not found")
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return nil, storeFailure(op, lg, err)
	}

	root := msg.ThreadID()
	ids := s.index.IDs(index.ByRoot, root)

	out, err := s.assemble(ctx, ids, func(m models.Message) bool { return m.ThreadID() == root })
	if err != nil {
		return nil, storeFailure(op, lg, err)
	}

	return out, nil
}

// assemble догружает документы по id из индекса, отбрасывает устаревшие
// записи (документ удалён или больше не подходит под ключ), присоединяет
// авторов и сортирует по (depth, createdAt, id).
func (s *Service) assemble(ctx context.Context, ids []string, keep func(models.Message) bool) ([]models.MessageView, error) {
	if len(ids) == 0 {
		return []models.MessageView{}, nil
	}

	msgs, err := s.store.MessagesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	kept := msgs[:0]
	for _, m := range msgs {
		if keep(m) {
			kept = append(kept, m)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return thread.Less(kept[i], kept[j]) })

	return s.withAuthors(ctx, kept), nil
}

// withAuthors присоединяет авторов одной пачкой. Недоступный каталог
// или отсутствующий пользователь дают заглушку "Unknown User".
func (s *Service) withAuthors(ctx context.Context, msgs []models.Message) []models.MessageView {
	out := make([]models.MessageView, 0, len(msgs))
	if len(msgs) == 0 {
		return out
	}

	ids := make([]string, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.AuthorID]; ok {
			continue
		}
		seen[m.AuthorID] = struct{}{}
		ids = append(ids, m.AuthorID)
	}

	users := s.lookupUsers(ctx, ids)

	for _, m := range msgs {
		a := models.UnknownAuthor(m.AuthorID)
		if u, ok := users[m.AuthorID]; ok {
			a = u.Author()
		}
		out = append(out, models.MessageView{Message: m, Author: a})
	}

	return out
}

func (s *Service) author(ctx context.Context, id string) models.Author {
	if u, ok := s.lookupUsers(ctx, []string{id})[id]; ok {
		return u.Author()
	}

	return models.UnknownAuthor(id)
}

func (s *Service) lookupUsers(ctx context.Context, ids []string) map[string]models.User {
	if s.users == nil || len(ids) == 0 {
		return nil
	}

	users, err := s.users.UsersByIDs(ctx, ids)
	if err != nil {
		log.From(ctx).Warn("user directory unavailable, using placeholders", "err", err, "count", len(ids))
		return nil
	}

	return users
}
