// service содержит бизнес-логику forum-service: сообщения и ветки, рейтинги
// с оптимистической блокировкой, выдачу по вторичным индексам, поиск,
// статистику и каскадные удаления.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pribylovaa/go-forum/internal/config"
	"github.com/pribylovaa/go-forum/internal/index"
	"github.com/pribylovaa/go-forum/internal/metrics"
	"github.com/pribylovaa/go-forum/internal/storage"
)

var (
	// ErrNotFound — сообщение, канал или родитель отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrInvalidReference — родитель из другого канала или битый идентификатор.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrConflict — конкурентная запись не удалась после всех повторов
	// или нарушена уникальность.
	ErrConflict = errors.New("conflict")
	// ErrValidation — неверные входные параметры.
	ErrValidation = errors.New("validation error")
	// ErrUnavailable — хранилище или коллаборатор недоступен.
	ErrUnavailable = errors.New("unavailable")
	// ErrPermissionDenied — операция требует прав администратора.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInternal — прочие внутренние ошибки.
	ErrInternal = errors.New("internal")
)

// Deps — зависимости сервиса. Users и Attachments опциональны:
// без каталога авторы отображаются заглушкой, без вложений ключ вложения
// при создании сообщения отклоняется.
type Deps struct {
	Store       storage.Store
	Users       storage.UserDirectory
	Attachments storage.Attachments
	Index       *index.Maintainer
	Metrics     *metrics.Metrics
}

// Service — бизнес-логика forum-service.
type Service struct {
	store       storage.Store
	users       storage.UserDirectory
	attachments storage.Attachments
	index       *index.Maintainer
	metrics     *metrics.Metrics
	cfg         config.Config
}

// New создает новый экземпляр Service.
func New(deps Deps, cfg config.Config) *Service {
	idx := deps.Index
	if idx == nil {
		idx = index.New(slog.Default())
	}

	return &Service{
		store:       deps.Store,
		users:       deps.Users,
		attachments: deps.Attachments,
		index:       idx,
		metrics:     deps.Metrics,
		cfg:         cfg,
	}
}

// Index возвращает обслуживаемый сервисом индекс (для перестройки и метрик).
func (s *Service) Index() *index.Maintainer {
	return s.index
}

// Ready — проверка готовности хранилища.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("service/Ready: %w", ErrUnavailable)
	}

	return nil
}

// storeFailure приводит «прочие» ошибки хранилища к ErrUnavailable/ErrInternal
// и пишет их в лог уровня Error.
func storeFailure(op string, lg *slog.Logger, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		lg.Warn("request deadline", "err", err)
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	case errors.Is(err, storage.ErrUnavailable):
		lg.Error("store unavailable", "err", err)
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	default:
		lg.Error("storage error", "err", err)
		return fmt.Errorf("%s: %w", op, ErrInternal)
	}
}
