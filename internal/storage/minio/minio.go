// minio предоставляет реализацию storage.Attachments на базе MinIO/S3.
// minio.go — конструктор клиента: нормализует endpoint, настраивает Secure/creds
// и проверяет наличие бакета.
// attachments.go — presigned PUT и подтверждение загрузки.
package minio

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pribylovaa/go-forum/internal/config"
	"github.com/pribylovaa/go-forum/internal/storage"
)

// AttachmentsStorage — адаптер MinIO для вложений сообщений.
type AttachmentsStorage struct {
	s3     config.S3Config
	limits config.AttachmentsConfig
	client *mclient.Client
}

// Проверка выполнения контракта верхнего уровня.
var _ storage.Attachments = (*AttachmentsStorage)(nil)

// New создаёт клиент MinIO и выполняет fail-fast-проверку бакета.
func New(ctx context.Context, s3 config.S3Config, limits config.AttachmentsConfig) (*AttachmentsStorage, error) {
	const op = "storage/minio/New"

	endpoint := s3.Endpoint
	secure := s3.UseSSL

	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	endpoint = strings.TrimRight(endpoint, "/")

	client, err := mclient.New(endpoint, &mclient.Options{
		Creds:  credentials.NewStaticV4(s3.RootUser, s3.RootPassword, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exists, err := client.BucketExists(ctx, s3.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !exists {
		return nil, fmt.Errorf("%s: bucket %q does not exist", op, s3.Bucket)
	}

	return &AttachmentsStorage{s3: s3, limits: limits, client: client}, nil
}
