package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/storage"
)

type channelDoc struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	CreatedBy   string    `bson:"created_by"`
	CreatedAt   time.Time `bson:"created_at"`
}

func (d channelDoc) model() models.Channel {
	return models.Channel{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

// CreateChannel создаёт канал. Совпадение имени — storage.ErrConflict.
func (m *Mongo) CreateChannel(ctx context.Context, c models.Channel) (*models.Channel, error) {
	const op = "storage/mongo/CreateChannel"

	if c.ID == "" {
		c.ID = m.NewID()
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	c.CreatedAt = toMS(c.CreatedAt)

	doc := channelDoc{ID: c.ID, Name: c.Name, Description: c.Description, CreatedBy: c.CreatedBy, CreatedAt: c.CreatedAt}
	if _, err := m.channels.InsertOne(ctx, doc); err != nil {
		return nil, mapErr(op, err)
	}

	return &c, nil
}

// ChannelByID возвращает канал.
func (m *Mongo) ChannelByID(ctx context.Context, id string) (*models.Channel, error) {
	const op = "storage/mongo/ChannelByID"

	var d channelDoc
	if err := m.channels.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&d); err != nil {
		return nil, mapErr(op, err)
	}

	out := d.model()
	return &out, nil
}

// ListChannels — все каналы по имени.
func (m *Mongo) ListChannels(ctx context.Context) ([]models.Channel, error) {
	const op = "storage/mongo/ListChannels"

	cur, err := m.channels.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer cur.Close(ctx)

	out := make([]models.Channel, 0)
	for cur.Next(ctx) {
		var d channelDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}

		out = append(out, d.model())
	}

	if err := cur.Err(); err != nil {
		return nil, mapErr(op, err)
	}

	return out, nil
}

// DeleteChannel удаляет канал (сообщения удаляет каскад сервисного слоя).
func (m *Mongo) DeleteChannel(ctx context.Context, id string) error {
	const op = "storage/mongo/DeleteChannel"

	res, err := m.channels.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return mapErr(op, err)
	}

	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}
