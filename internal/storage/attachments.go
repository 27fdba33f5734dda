package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pribylovaa/go-forum/internal/models"
)

var (
	// ErrInvalidAttachment — нарушены ограничения вложения (тип, размер, чужой ключ).
	ErrInvalidAttachment = errors.New("invalid attachment")
	// ErrAttachmentNotFound — объект по ключу не загружен.
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// UploadInfo — данные для presigned PUT загрузки.
//   - UploadURL: адрес PUT-запроса;
//   - Key: ключ будущего объекта, передаётся при создании сообщения;
//   - Expires: время жизни подписи;
//   - RequiredHeader: заголовки, которые клиент обязан передать при PUT.
type UploadInfo struct {
	UploadURL      string
	Key            string
	Expires        time.Duration
	RequiredHeader map[string]string
}

// Attachments — объектное хранилище вложений. Байты через сервис не проходят.
type Attachments interface {
	// UploadURL выдаёт presigned PUT для загрузки вложения пользователем userID.
	UploadURL(ctx context.Context, userID, contentType string, size int64) (*UploadInfo, error)
	// Resolve подтверждает загрузку по ключу (наличие, тип, размер)
	// и возвращает дескриптор с публичным URL.
	Resolve(ctx context.Context, userID, key, filename string) (*models.Attachment, error)
}
