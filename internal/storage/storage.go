// Package storage описывает контракт документного хранилища сообщений и
// каналов. Хранилище — единственный источник истины; индексы и кэши выводятся
// из него и могут быть перестроены.
package storage

//go:generate mockgen -destination=../../mocks/storage_mock.go -package=mocks github.com/pribylovaa/go-forum/internal/storage Store,UserDirectory,Attachments

import (
	"context"
	"errors"
	"strings"

	"github.com/pribylovaa/go-forum/internal/models"
)

var (
	// ErrNotFound — сущность отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrRevisionConflict — ревизия документа изменилась с момента чтения.
	ErrRevisionConflict = errors.New("revision conflict")
	// ErrConflict — конфликт уникальности идентификатора.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable — хранилище недоступно (сеть, закрыто, таймаут).
	ErrUnavailable = errors.New("store unavailable")
)

// ScanFilter — фильтр полного сканирования. Пустые поля не фильтруют.
// Бэкенд может применить фильтр частично; вызывающий обязан перепроверить.
type ScanFilter struct {
	AuthorID string
	// Подстрока content без учёта регистра.
	Contains string
}

// Match — эталонная проверка фильтра, одинаковая для всех бэкендов.
func (f ScanFilter) Match(m models.Message) bool {
	if f.AuthorID != "" && m.AuthorID != f.AuthorID {
		return false
	}

	if f.Contains != "" && !strings.Contains(strings.ToLower(m.Content), strings.ToLower(f.Contains)) {
		return false
	}

	return true
}

// Messages — операции над сообщениями.
type Messages interface {
	// NewID выдаёт идентификатор для нового документа до вставки.
	NewID() string

	// InsertMessage сохраняет новое сообщение с уже назначенным ID.
	// Хранилище выставляет Rev (первая ревизия = 1). Повтор ID — ErrConflict.
	InsertMessage(ctx context.Context, m models.Message) (*models.Message, error)

	// MessageByID возвращает сообщение вместе с ревизией. Нет записи — ErrNotFound.
	MessageByID(ctx context.Context, id string) (*models.Message, error)

	// MessagesByIDs загружает пачку сообщений. Отсутствующие id пропускаются,
	// порядок результата не гарантирован.
	MessagesByIDs(ctx context.Context, ids []string) ([]models.Message, error)

	// ReplaceMessage заменяет документ целиком, если его ревизия всё ещё равна m.Rev.
	// Иначе — ErrRevisionConflict; удалённый документ — ErrNotFound.
	// Возвращает сохранённую версию с новой ревизией.
	ReplaceMessage(ctx context.Context, m models.Message) (*models.Message, error)

	// DeleteMessage удаляет документ. Нет записи — ErrNotFound.
	DeleteMessage(ctx context.Context, id string) error

	// DeleteMessagesByChannel удаляет все сообщения канала и возвращает
	// идентификаторы удалённых документов.
	DeleteMessagesByChannel(ctx context.Context, channelID string) ([]string, error)

	// ScanMessages обходит коллекцию, вызывая fn для каждого документа,
	// прошедшего фильтр. Ошибка из fn прерывает обход и возвращается как есть.
	// Обход может наблюдать конкурентные изменения.
	ScanMessages(ctx context.Context, f ScanFilter, fn func(models.Message) error) error
}

// Channels — операции над каналами.
type Channels interface {
	CreateChannel(ctx context.Context, c models.Channel) (*models.Channel, error)
	ChannelByID(ctx context.Context, id string) (*models.Channel, error)
	// ListChannels — все каналы, отсортированные по имени.
	ListChannels(ctx context.Context) ([]models.Channel, error)
	DeleteChannel(ctx context.Context, id string) error
}

// Change — событие потока изменений сообщения.
// Для удаления Message == nil, Deleted == true.
type Change struct {
	ID      string
	Rev     int64
	Message *models.Message
	Deleted bool
}

// Watcher — поток изменений коллекции сообщений.
type Watcher interface {
	// Watch блокируется, доставляя изменения в fn, до отмены ctx или ошибки.
	Watch(ctx context.Context, fn func(Change)) error
}

// Store — полный контракт документного хранилища.
type Store interface {
	Messages
	Channels
	Watcher

	// Ping проверяет доступность (readiness).
	Ping(ctx context.Context) error
	// Close закрывает соединения/ресурсы хранилища.
	Close()
}

// UserDirectory — каталог пользователей (только чтение).
type UserDirectory interface {
	// UsersByIDs возвращает найденных пользователей; отсутствующие id пропускаются.
	UsersByIDs(ctx context.Context, ids []string) (map[string]models.User, error)
}
