package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/pkg/log"
	"github.com/pribylovaa/go-forum/internal/rating"
	"github.com/pribylovaa/go-forum/internal/storage"
)

// Rate — голос пользователя за сообщение (+1/-1).
//
// Поведение/ошибки:
//   - повторный голос того же направления ничего не меняет и возвращает текущие счётчики;
//   - смена направления переносит голос, а не добавляет второй;
//   - запись выполняется через read-modify-write с проверкой ревизии;
//     при конфликте операция перечитывает документ и повторяется
//     до Ratings.MaxRetries раз, затем ErrConflict;
//   - ErrValidation — пустые id или направление не ±1;
//   - ErrNotFound — сообщения нет (в том числе удалено между попытками).
func (s *Service) Rate(ctx context.Context, messageID, userID string, v models.Vote) (*models.RatingResult, error) {
	const op = "service/ratings/Rate"

	messageID = strings.TrimSpace(messageID)
	lg := log.From(ctx).With("op", op, "message_id", messageID, "user_id", userID, "vote", int(v))

	if messageID == "" || userID == "" {
		lg.Warn("invalid argument: empty message_id or user_id")
		return nil, fmt.Errorf("%s: %w", op, ErrValidation)
	}

	if !v.Valid() {
		lg.Warn("invalid argument: vote must be +1 or -1")
		return nil, fmt.Errorf("%s: %w: vote must be +1 or -1", op, ErrValidation)
	}

	return s.mutateRating(ctx, op, messageID, userID, func(m *models.Message) (bool, error) {
		return rating.Apply(m, userID, v)
	})
}

// ClearRating снимает голос пользователя. Отсутствие голоса — не ошибка.
func (s *Service) ClearRating(ctx context.Context, messageID, userID string) (*models.RatingResult, error) {
	const op = "service/ratings/ClearRating"

	messageID = strings.TrimSpace(messageID)
	lg := log.From(ctx).With("op", op, "message_id", messageID, "user_id", userID)

	if messageID == "" || userID == "" {
		lg.Warn("invalid argument: empty message_id or user_id")
		return nil, fmt.Errorf("%s: %w", op, ErrValidation)
	}

	return s.mutateRating(ctx, op, messageID, userID, func(m *models.Message) (bool, error) {
		return rating.Clear(m, userID), nil
	})
}

// mutateRating — цикл оптимистической блокировки над одним документом.
func (s *Service) mutateRating(
	ctx context.Context,
	op, messageID, userID string,
	mutate func(m *models.Message) (bool, error),
) (*models.RatingResult, error) {
	lg := log.From(ctx).With("op", op, "message_id", messageID, "user_id", userID)

	attempts := s.cfg.Ratings.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			s.metrics.RatingRetry()
			if err := backoff(ctx, s.cfg.Ratings.RetryBackoff, attempt); err != nil {
				return nil, storeFailure(op, lg, err)
			}
		}

		msg, err := s.store.MessageByID(ctx, messageID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				lg.Warn("message not found")
				return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
			}

			return nil, storeFailure(op, lg, err)
		}

		changed, err := mutate(msg)
		if err != nil {
			lg.Warn("invalid vote", "err", err)
			return nil, fmt.Errorf("%s: %w", op, ErrValidation)
		}

		if !changed {
			res := rating.Result(*msg, userID)
			return &res, nil
		}

		saved, err := s.store.ReplaceMessage(ctx, *msg)
		switch {
		case err == nil:
			s.applyIndex(*saved)
			res := rating.Result(*saved, userID)
			lg.Debug("rating stored", "attempt", attempt, "up", saved.Ratings.Up, "down", saved.Ratings.Down)
			return &res, nil
		case errors.Is(err, storage.ErrRevisionConflict):
			lg.Debug("revision conflict, retrying", "attempt", attempt)
			continue
		case errors.Is(err, storage.ErrNotFound):
			lg.Warn("message deleted during rating")
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		default:
			return nil, storeFailure(op, lg, err)
		}
	}

	s.metrics.RatingConflict()
	lg.Warn("rating conflict: retries exhausted", "attempts", attempts)

	return nil, fmt.Errorf("%s: %w", op, ErrConflict)
}

// backoff — пауза перед повтором: base * attempt плюс случайная добавка до base.
func backoff(ctx context.Context, base time.Duration, attempt int) error {
	if base <= 0 {
		return ctx.Err()
	}

	d := base*time.Duration(attempt) + time.Duration(rand.Int63n(int64(base)))
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
