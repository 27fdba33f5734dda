package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/pkg/log"
	"github.com/pribylovaa/go-forum/internal/storage"
	"github.com/pribylovaa/go-forum/internal/thread"
)

// CreateMessageInput — создание корневого сообщения или ответа.
// Правила:
//   - ChannelID и AuthorID обязательны;
//   - Content может быть пустым только при наличии вложения;
//   - ParentID пуст у корня; у ответа родитель обязан быть в том же канале;
//   - AttachmentKey — ключ объекта, загруженного по presigned URL.
type CreateMessageInput struct {
	ChannelID      string
	AuthorID       string
	Content        string
	ParentID       string
	AttachmentKey  string
	AttachmentName string
}

// CreateMessage — бизнес-операция создания сообщения.
//
// Поведение/ошибки:
//   - ErrValidation — пустые поля, слишком длинный контент, превышение глубины,
//     невалидное вложение;
//   - ErrNotFound — нет канала или родителя;
//   - ErrInvalidReference — родитель в другом канале;
//   - ErrUnavailable/ErrInternal — ошибки хранилища.
func (s *Service) CreateMessage(ctx context.Context, in CreateMessageInput) (*models.MessageView, error) {
	const op = "service/messages/CreateMessage"

	in.ChannelID = strings.TrimSpace(in.ChannelID)
	in.ParentID = strings.TrimSpace(in.ParentID)
	in.Content = strings.TrimSpace(in.Content)
	in.AttachmentKey = strings.TrimSpace(in.AttachmentKey)

	lg := log.From(ctx).With(
		"op", op,
		"channel_id", in.ChannelID,
		"author_id", in.AuthorID,
		"parent_id", in.ParentID,
	)

	if in.ChannelID == "" || in.AuthorID == "" {
		lg.Warn("invalid argument: empty channel_id or author_id")
		return nil, fmt.Errorf("%s: %w", op, ErrValidation)
	}

	if in.Content == "" && in.AttachmentKey == "" {
		lg.Warn("invalid argument: empty content without attachment")
		return nil, fmt.Errorf("%s: %w: content or attachment required", op, ErrValidation)
	}

	if utf8.RuneCountInString(in.Content) > s.cfg.Limits.MaxContent {
		lg.Warn("invalid argument: content too long")
		return nil, fmt.Errorf("%s: %w: content too long", op, ErrValidation)
	}

	if _, err := s.store.ChannelByID(ctx, in.ChannelID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("channel not found")
			return nil, fmt.Errorf("%s: channel: %w", op, ErrNotFound)
		}

		return nil, storeFailure(op, lg, err)
	}

	var parent *models.Message
	if in.ParentID != "" {
		p, err := s.store.MessageByID(ctx, in.ParentID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				lg.Warn("parent not found")
				return nil, fmt.Errorf("%s: parent: %w", op, ErrNotFound)
			}

			return nil, storeFailure(op, lg, err)
		}

		parent = p
	}

	msg := models.Message{
		ID:        s.store.NewID(),
		ChannelID: in.ChannelID,
		AuthorID:  in.AuthorID,
		Content:   in.Content,
		CreatedAt: time.Now().UTC(),
	}

	if err := thread.Place(&msg, parent, s.cfg.Limits.MaxDepth); err != nil {
		switch {
		case errors.Is(err, thread.ErrCrossChannel):
			lg.Warn("parent belongs to another channel")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidReference)
		case errors.Is(err, thread.ErrMaxDepthExceeded):
			lg.Warn("max depth exceeded")
			return nil, fmt.Errorf("%s: %w: max depth exceeded", op, ErrValidation)
		default:
			lg.Error("thread placement failed", "err", err)
			return nil, fmt.Errorf("%s: %w", op, ErrInternal)
		}
	}

	if in.AttachmentKey != "" {
		att, err := s.resolveAttachment(ctx, in.AuthorID, in.AttachmentKey, in.AttachmentName)
		if err != nil {
			lg.Warn("attachment rejected", "err", err)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		msg.Attachment = att
	}

	created, err := s.store.InsertMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			lg.Warn("id conflict")
			return nil, fmt.Errorf("%s: %w", op, ErrConflict)
		}

		return nil, storeFailure(op, lg, err)
	}

	s.applyIndex(*created)

	lg.Debug("message created", "id", created.ID, "depth", created.Depth)

	return &models.MessageView{Message: *created, Author: s.author(ctx, created.AuthorID)}, nil
}

// MessageByID — одно сообщение с автором.
func (s *Service) MessageByID(ctx context.Context, id string) (*models.MessageView, error) {
	const op = "service/messages/MessageByID"

	id = strings.TrimSpace(id)
	lg := log.From(ctx).With("op", op, "id", id)

	if id == "" {
		lg.Warn("invalid argument: empty id")
		return nil, fmt.Errorf("%s: %w", op, ErrValidation)
	}

	msg, err := s.store.MessageByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("message not found")
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return nil, storeFailure(op, lg, err)
	}

	return &models.MessageView{Message: *msg, Author: s.author(ctx, msg.AuthorID)}, nil
}

// applyIndex — синхронное обновление индекса после собственной записи.
func (s *Service) applyIndex(m models.Message) {
	c := m.Clone()
	s.index.Apply(storage.Change{ID: c.ID, Rev: c.Rev, Message: &c})
}

func (s *Service) dropIndex(id string) {
	s.index.Apply(storage.Change{ID: id, Deleted: true})
}
