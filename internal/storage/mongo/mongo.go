package mongo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pribylovaa/go-forum/internal/storage"
)

const (
	messagesCollection = "messages"
	channelsCollection = "channels"
	defaultDBName      = "forum"
)

// Mongo — адаптер документного хранилища поверх MongoDB.
type Mongo struct {
	client   *mongodriver.Client
	db       *mongodriver.Database
	messages *mongodriver.Collection
	channels *mongodriver.Collection
}

var _ storage.Store = (*Mongo)(nil)

// New подключается к MongoDB, проверяет соединение, подготавливает коллекции и индексы.
func New(ctx context.Context, uri string) (*Mongo, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo: empty uri")
	}

	cli, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := cli.Database(databaseFromURI(uri))

	m := &Mongo{
		client:   cli,
		db:       db,
		messages: db.Collection(messagesCollection),
		channels: db.Collection(channelsCollection),
	}

	if err := m.ensureIndexes(ctx); err != nil {
		m.Close()
		return nil, err
	}

	return m, nil
}

// Ping проверяет доступность primary.
func (m *Mongo) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("storage/mongo/Ping: %w: %v", storage.ErrUnavailable, err)
	}

	return nil
}

// Close закрывает соединение.
func (m *Mongo) Close() {
	_ = m.client.Disconnect(context.Background())
}

// ensureIndexes создаёт индексы:
//   - channel_id + created_at: каскад по каналу и выборки канала;
//   - parent_id + created_at: ответы;
//   - root_id + depth: ветка;
//   - author_id: поиск и статистика по автору;
//   - channels.name: уникальное имя канала.
func (m *Mongo) ensureIndexes(ctx context.Context) error {
	msgModels := []mongodriver.IndexModel{
		{
			Keys:    bson.D{{Key: "channel_id", Value: 1}, {Key: "parent_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("channel_parent_created_asc"),
		},
		{
			Keys:    bson.D{{Key: "parent_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("parent_created_asc"),
		},
		{
			Keys:    bson.D{{Key: "root_id", Value: 1}, {Key: "depth", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("root_depth_created_asc"),
		},
		{
			Keys:    bson.D{{Key: "author_id", Value: 1}},
			Options: options.Index().SetName("author"),
		},
	}

	if _, err := m.messages.Indexes().CreateMany(ctx, msgModels); err != nil {
		return fmt.Errorf("mongo ensure message indexes: %w", err)
	}

	_, err := m.channels.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetName("name_unique").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo ensure channel indexes: %w", err)
	}

	return nil
}

// databaseFromURI извлекает имя базы данных из URI-пути mongodb.
// Если оно отсутствует, возвращает значение по умолчанию.
func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}

	return defaultDBName
}

// mapErr приводит ошибки драйвера к sentinel-ошибкам storage.
func mapErr(op string, err error) error {
	switch {
	case errors.Is(err, mongodriver.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	case mongodriver.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, storage.ErrConflict)
	case mongodriver.IsNetworkError(err), mongodriver.IsTimeout(err),
		errors.Is(err, mongodriver.ErrClientDisconnected):
		return fmt.Errorf("%s: %w: %v", op, storage.ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
