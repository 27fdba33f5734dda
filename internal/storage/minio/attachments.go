package minio

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	mclient "github.com/minio/minio-go/v7"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/storage"
)

// UploadURL выдаёт presigned PUT. Ключ имеет вид "attachments/<userID>/<uuid><ext>".
func (s *AttachmentsStorage) UploadURL(ctx context.Context, userID, contentType string, size int64) (*storage.UploadInfo, error) {
	const op = "storage/minio/attachments/UploadURL"

	if userID == "" || size <= 0 || size > s.limits.MaxSizeBytes {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrInvalidAttachment)
	}

	if !isAllowedContentType(s.limits.AllowedContentTypes, contentType) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrInvalidAttachment)
	}

	key := path.Join("attachments", userID, uuid.NewString()+extension(contentType))

	u, err := s.client.PresignedPutObject(ctx, s.s3.Bucket, key, s.s3.PresignTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &storage.UploadInfo{
		UploadURL: u.String(),
		Key:       key,
		Expires:   s.s3.PresignTTL,
		RequiredHeader: map[string]string{
			"Content-Type":   contentType,
			"Content-Length": fmt.Sprintf("%d", size),
		},
	}, nil
}

// Resolve подтверждает загрузку: ключ принадлежит пользователю, объект
// существует, размер и тип в допустимых пределах.
func (s *AttachmentsStorage) Resolve(ctx context.Context, userID, key, filename string) (*models.Attachment, error) {
	const op = "storage/minio/attachments/Resolve"

	if !ownsKey(userID, key) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrInvalidAttachment)
	}

	info, err := s.client.StatObject(ctx, s.s3.Bucket, key, mclient.StatObjectOptions{})
	if err != nil {
		errResp := mclient.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.StatusCode == 404 {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrAttachmentNotFound)
		}

		return nil, fmt.Errorf("%s: %w: %v", op, storage.ErrUnavailable, err)
	}

	if info.Size <= 0 || info.Size > s.limits.MaxSizeBytes {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrInvalidAttachment)
	}

	if info.ContentType != "" && !isAllowedContentType(s.limits.AllowedContentTypes, info.ContentType) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrInvalidAttachment)
	}

	if filename == "" {
		filename = path.Base(key)
	}

	return &models.Attachment{
		Key:         key,
		Filename:    filename,
		ContentType: info.ContentType,
		Size:        info.Size,
		URL:         publicURL(s.s3.PublicBaseURL, key),
	}, nil
}

func ownsKey(userID, key string) bool {
	prefix := "attachments/" + userID + "/"
	return userID != "" && strings.HasPrefix(key, prefix) && !strings.Contains(key[len(prefix):], "/")
}

func publicURL(base, key string) string {
	if base == "" {
		return ""
	}

	return strings.TrimRight(base, "/") + "/" + key
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "application/pdf":
		return ".pdf"
	default:
		return ""
	}
}

// isAllowedContentType проверяет, что тип содержимого входит в allow-list.
func isAllowedContentType(allow []string, contentType string) bool {
	for _, a := range allow {
		if a == contentType {
			return true
		}
	}

	return false
}
