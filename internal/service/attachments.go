package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/pkg/log"
	"github.com/pribylovaa/go-forum/internal/storage"
)

// PresignAttachment выдаёт presigned PUT для загрузки вложения.
// Ограничения по типу и размеру проверяет хранилище вложений (ErrValidation);
// без настроенного хранилища — ErrUnavailable.
func (s *Service) PresignAttachment(ctx context.Context, p models.Principal, contentType string, size int64) (*storage.UploadInfo, error) {
	const op = "service/attachments/PresignAttachment"

	contentType = strings.TrimSpace(contentType)
	lg := log.From(ctx).With("op", op, "principal_id", p.ID, "content_type", contentType, "size", size)

	if s.attachments == nil {
		lg.Warn("attachments storage not configured")
		return nil, fmt.Errorf("%s: %w: attachments disabled", op, ErrUnavailable)
	}

	if p.ID == "" || contentType == "" || size <= 0 {
		lg.Warn("invalid argument: principal, content_type and positive size required")
		return nil, fmt.Errorf("%s: %w", op, ErrValidation)
	}

	info, err := s.attachments.UploadURL(ctx, p.ID, contentType, size)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidAttachment) {
			lg.Warn("attachment rejected", "err", err)
			return nil, fmt.Errorf("%s: %w: %w", op, ErrValidation, err)
		}

		lg.Error("presign failed", "err", err)
		return nil, fmt.Errorf("%s: %w", op, ErrUnavailable)
	}

	return info, nil
}

// resolveAttachment подтверждает загруженный объект и возвращает дескриптор.
// Возвращает ошибку уровня сервиса без op-префикса.
func (s *Service) resolveAttachment(ctx context.Context, userID, key, filename string) (*models.Attachment, error) {
	if s.attachments == nil {
		return nil, fmt.Errorf("%w: attachments disabled", ErrValidation)
	}

	att, err := s.attachments.Resolve(ctx, userID, key, filename)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidAttachment), errors.Is(err, storage.ErrAttachmentNotFound):
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	return att, nil
}
