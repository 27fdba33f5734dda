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
)

// DeleteMessageCascade удаляет сообщение вместе со всеми потомками.
//
// Поведение/ошибки:
//   - только администратор, иначе ErrPermissionDenied;
//   - ErrNotFound — целевого сообщения нет;
//   - потомки ищутся по byRoot (для корня) или обходом byParent в ширину,
//     удаляются от самых глубоких к корню; сама цель удаляется последней;
//   - удаление best-effort: сбои считаются в Failed и не прерывают обход,
//     уже удалённые документы пропускаются; операция всё равно успешна.
func (s *Service) DeleteMessageCascade(ctx context.Context, p models.Principal, messageID string) (*models.CascadeResult, error) {
	const op = "service/cascade/DeleteMessageCascade"

	messageID = strings.TrimSpace(messageID)
	lg := log.From(ctx).With("op", op, "message_id", messageID, "principal_id", p.ID)

	if !p.IsAdmin() {
		lg.Warn("permission denied: admin required")
		return nil, fmt.Errorf("%s: %w", op, ErrPermissionDenied)
	}

	if messageID == "" {
		lg.Warn("invalid argument: empty message_id")
		return nil, fmt.Errorf("%s: %w", op, ErrValidation)
	}

	target, err := s.store.MessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("message not found")
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return nil, storeFailure(op, lg, err)
	}

	descendants, err := s.descendants(ctx, *target)
	if err != nil {
		return nil, storeFailure(op, lg, err)
	}

	res := &models.CascadeResult{}
	for _, m := range descendants {
		s.deleteOne(ctx, m.ID, res)
	}
	s.deleteOne(ctx, target.ID, res)

	s.metrics.Cascade(res.Deleted, res.Failed)
	lg.Info("message cascade done", "deleted", res.Deleted, "failed", res.Failed)

	return res, nil
}

// DeleteChannelCascade удаляет канал, все его сообщения и сам канал.
// После прохода по индексу byChannel хранилище дополнительно зачищается
// по channel_id, так что отставший индекс не оставляет сирот.
func (s *Service) DeleteChannelCascade(ctx context.Context, p models.Principal, channelID string) (*models.CascadeResult, error) {
	const op = "service/cascade/DeleteChannelCascade"

	channelID = strings.TrimSpace(channelID)
	lg := log.From(ctx).With("op", op, "channel_id", channelID, "principal_id", p.ID)

	if !p.IsAdmin() {
		lg.Warn("permission denied: admin required")
		return nil, fmt.Errorf("%s: %w", op, ErrPermissionDenied)
	}

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

	res := &models.CascadeResult{}

	ids := s.index.IDs(index.ByChannel, channelID)
	msgs, err := s.store.MessagesByIDs(ctx, ids)
	if err != nil {
		lg.Warn("index pass skipped: batch load failed", "err", err)
	} else {
		deepestFirst(msgs)
		for _, m := range msgs {
			if m.ChannelID != channelID {
				continue
			}
			s.deleteOne(ctx, m.ID, res)
		}
	}

	swept, err := s.store.DeleteMessagesByChannel(ctx, channelID)
	if err != nil {
		lg.Error("channel sweep failed", "err", err)
		res.Failed++
	} else {
		for _, id := range swept {
			s.dropIndex(id)
		}
		res.Deleted += len(swept)
		if len(swept) > 0 {
			lg.Info("channel sweep removed unindexed messages", "count", len(swept))
		}
	}

	if err := s.store.DeleteChannel(ctx, channelID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		lg.Error("channel delete failed", "err", err)
		res.Failed++
	}

	s.metrics.Cascade(res.Deleted, res.Failed)
	lg.Info("channel cascade done", "deleted", res.Deleted, "failed", res.Failed)

	return res, nil
}

// descendants — все потомки сообщения, отсортированные от глубоких к мелким.
func (s *Service) descendants(ctx context.Context, target models.Message) ([]models.Message, error) {
	var ids []string
	if target.IsRoot() {
		for _, id := range s.index.IDs(index.ByRoot, target.ThreadID()) {
			if id != target.ID {
				ids = append(ids, id)
			}
		}
	} else {
		seen := map[string]struct{}{target.ID: {}}
		queue := []string{target.ID}
		for len(queue) > 0 {
			parent := queue[0]
			queue = queue[1:]
			for _, id := range s.index.IDs(index.ByParent, parent) {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
				queue = append(queue, id)
			}
		}
	}

	if len(ids) == 0 {
		return nil, nil
	}

	msgs, err := s.store.MessagesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	deepestFirst(msgs)

	return msgs, nil
}

func deepestFirst(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Depth != msgs[j].Depth {
			return msgs[i].Depth > msgs[j].Depth
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// deleteOne — одиночное удаление в рамках каскада.
func (s *Service) deleteOne(ctx context.Context, id string, res *models.CascadeResult) {
	err := s.store.DeleteMessage(ctx, id)
	switch {
	case err == nil:
		res.Deleted++
		s.dropIndex(id)
	case errors.Is(err, storage.ErrNotFound):
		s.dropIndex(id)
	default:
		res.Failed++
		log.From(ctx).Warn("cascade delete failed", "id", id, "err", err)
	}
}
