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
)

const maxChannelName = 100

// CreateChannel — создание канала любым аутентифицированным пользователем.
// Имя обрезается по краям, пустое или длиннее 100 символов — ErrValidation,
// повтор имени — ErrConflict.
func (s *Service) CreateChannel(ctx context.Context, p models.Principal, name, description string) (*models.Channel, error) {
	const op = "service/channels/CreateChannel"

	name = strings.TrimSpace(name)
	lg := log.From(ctx).With("op", op, "name", name, "principal_id", p.ID)

	if p.ID == "" {
		lg.Warn("invalid argument: empty principal")
		return nil, fmt.Errorf("%s: %w", op, ErrValidation)
	}

	if name == "" || utf8.RuneCountInString(name) > maxChannelName {
		lg.Warn("invalid argument: bad channel name")
		return nil, fmt.Errorf("%s: %w: channel name must be 1..%d characters", op, ErrValidation, maxChannelName)
	}

	ch, err := s.store.CreateChannel(ctx, models.Channel{
		ID:          s.store.NewID(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   p.ID,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			lg.Warn("channel name already taken")
			return nil, fmt.Errorf("%s: %w", op, ErrConflict)
		}

		return nil, storeFailure(op, lg, err)
	}

	lg.Info("channel created", "id", ch.ID)

	return ch, nil
}

// ChannelByID — канал по идентификатору.
func (s *Service) ChannelByID(ctx context.Context, id string) (*models.Channel, error) {
	const op = "service/channels/ChannelByID"

	id = strings.TrimSpace(id)
	lg := log.From(ctx).With("op", op, "channel_id", id)

	if id == "" {
		lg.Warn("invalid argument: empty channel_id")
		return nil, fmt.Errorf("%s: %w", op, ErrValidation)
	}

	ch, err := s.store.ChannelByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("channel not found")
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return nil, storeFailure(op, lg, err)
	}

	return ch, nil
}

// ListChannels — все каналы по имени.
func (s *Service) ListChannels(ctx context.Context) ([]models.Channel, error) {
	const op = "service/channels/ListChannels"

	list, err := s.store.ListChannels(ctx)
	if err != nil {
		return nil, storeFailure(op, log.From(ctx).With("op", op), err)
	}

	if list == nil {
		list = []models.Channel{}
	}

	return list, nil
}
