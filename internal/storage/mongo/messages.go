package mongo

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/storage"
)

// attachmentDoc — bson-представление вложения.
type attachmentDoc struct {
	Key         string `bson:"key"`
	Filename    string `bson:"filename"`
	ContentType string `bson:"content_type"`
	Size        int64  `bson:"size"`
	URL         string `bson:"url"`
}

// messageDoc — bson-представление сообщения.
// user_ratings хранится как map user_id -> ±1.
type messageDoc struct {
	ID          string           `bson:"_id"`
	ChannelID   string           `bson:"channel_id"`
	AuthorID    string           `bson:"author_id"`
	Content     string           `bson:"content"`
	Attachment  *attachmentDoc   `bson:"attachment,omitempty"`
	ParentID    string           `bson:"parent_id"`
	RootID      string           `bson:"root_id"`
	Depth       int32            `bson:"depth"`
	Up          int64            `bson:"up"`
	Down        int64            `bson:"down"`
	UserRatings map[string]int32 `bson:"user_ratings,omitempty"`
	CreatedAt   time.Time        `bson:"created_at"`
	Rev         int64            `bson:"rev"`
}

func toDoc(m models.Message) messageDoc {
	d := messageDoc{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		AuthorID:  m.AuthorID,
		Content:   m.Content,
		ParentID:  m.ParentID,
		RootID:    m.RootID,
		Depth:     m.Depth,
		Up:        m.Ratings.Up,
		Down:      m.Ratings.Down,
		CreatedAt: m.CreatedAt.UTC(),
		Rev:       m.Rev,
	}

	if a := m.Attachment; a != nil {
		d.Attachment = &attachmentDoc{Key: a.Key, Filename: a.Filename, ContentType: a.ContentType, Size: a.Size, URL: a.URL}
	}

	if len(m.UserRatings) > 0 {
		d.UserRatings = make(map[string]int32, len(m.UserRatings))
		for u, v := range m.UserRatings {
			d.UserRatings[u] = int32(v)
		}
	}

	return d
}

func (d messageDoc) model() models.Message {
	m := models.Message{
		ID:        d.ID,
		ChannelID: d.ChannelID,
		AuthorID:  d.AuthorID,
		Content:   d.Content,
		ParentID:  d.ParentID,
		RootID:    d.RootID,
		Depth:     d.Depth,
		Ratings:   models.Ratings{Up: d.Up, Down: d.Down},
		CreatedAt: d.CreatedAt.UTC(),
		Rev:       d.Rev,
	}

	if a := d.Attachment; a != nil {
		m.Attachment = &models.Attachment{Key: a.Key, Filename: a.Filename, ContentType: a.ContentType, Size: a.Size, URL: a.URL}
	}

	if len(d.UserRatings) > 0 {
		m.UserRatings = make(map[string]models.Vote, len(d.UserRatings))
		for u, v := range d.UserRatings {
			m.UserRatings[u] = models.Vote(v)
		}
	}

	return m
}

// toMS — MongoDB DateTime хранит миллисекунды.
func toMS(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// NewID — hex ObjectID: уникален и монотонен во времени.
func (m *Mongo) NewID() string {
	return primitive.NewObjectID().Hex()
}

// InsertMessage вставляет новый документ с ревизией 1.
func (m *Mongo) InsertMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	const op = "storage/mongo/InsertMessage"

	if msg.ID == "" {
		msg.ID = m.NewID()
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	msg.CreatedAt = toMS(msg.CreatedAt)
	msg.Rev = 1

	if _, err := m.messages.InsertOne(ctx, toDoc(msg)); err != nil {
		return nil, mapErr(op, err)
	}

	return &msg, nil
}

// MessageByID возвращает документ по _id.
func (m *Mongo) MessageByID(ctx context.Context, id string) (*models.Message, error) {
	const op = "storage/mongo/MessageByID"

	var d messageDoc
	if err := m.messages.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&d); err != nil {
		return nil, mapErr(op, err)
	}

	out := d.model()
	return &out, nil
}

// MessagesByIDs загружает документы одним запросом $in.
func (m *Mongo) MessagesByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	const op = "storage/mongo/MessagesByIDs"

	if len(ids) == 0 {
		return nil, nil
	}

	cur, err := m.messages.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer cur.Close(ctx)

	out := make([]models.Message, 0, len(ids))
	for cur.Next(ctx) {
		var d messageDoc
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

// ReplaceMessage — условная замена по фильтру {_id, rev}.
// Если ничего не совпало, различаем «удалён» и «ревизия устарела».
func (m *Mongo) ReplaceMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	const op = "storage/mongo/ReplaceMessage"

	expected := msg.Rev
	msg.Rev = expected + 1

	res, err := m.messages.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: msg.ID}, {Key: "rev", Value: expected}},
		toDoc(msg),
	)
	if err != nil {
		return nil, mapErr(op, err)
	}

	if res.MatchedCount == 0 {
		n, err := m.messages.CountDocuments(ctx, bson.D{{Key: "_id", Value: msg.ID}}, options.Count().SetLimit(1))
		if err != nil {
			return nil, mapErr(op, err)
		}

		if n == 0 {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, storage.ErrRevisionConflict)
	}

	return &msg, nil
}

// DeleteMessage удаляет документ.
func (m *Mongo) DeleteMessage(ctx context.Context, id string) error {
	const op = "storage/mongo/DeleteMessage"

	res, err := m.messages.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return mapErr(op, err)
	}

	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// DeleteMessagesByChannel удаляет все сообщения канала. Сначала читаются
// идентификаторы, затем удаляются ровно они: вставленное между шагами
// останется и будет снято следующим проходом.
func (m *Mongo) DeleteMessagesByChannel(ctx context.Context, channelID string) ([]string, error) {
	const op = "storage/mongo/DeleteMessagesByChannel"

	cur, err := m.messages.Find(ctx,
		bson.D{{Key: "channel_id", Value: channelID}},
		options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var d struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}
		ids = append(ids, d.ID)
	}
	if err := cur.Err(); err != nil {
		return nil, mapErr(op, err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := m.messages.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}); err != nil {
		return nil, mapErr(op, err)
	}

	return ids, nil
}

// ScanMessages — курсор по коллекции с фильтром, вынесенным на сервер:
// точное совпадение author_id и $regex по экранированной подстроке (опция i).
// Результат перепроверяется ScanFilter.Match для единообразия с другими бэкендами.
func (m *Mongo) ScanMessages(ctx context.Context, f storage.ScanFilter, fn func(models.Message) error) error {
	const op = "storage/mongo/ScanMessages"

	filter := bson.D{}
	if f.AuthorID != "" {
		filter = append(filter, bson.E{Key: "author_id", Value: f.AuthorID})
	}

	if f.Contains != "" {
		filter = append(filter, bson.E{Key: "content", Value: primitive.Regex{
			Pattern: regexp.QuoteMeta(f.Contains),
			Options: "i",
		}})
	}

	cur, err := m.messages.Find(ctx, filter, options.Find().SetBatchSize(500))
	if err != nil {
		return mapErr(op, err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var d messageDoc
		if err := cur.Decode(&d); err != nil {
			return fmt.Errorf("%s: decode: %w", op, err)
		}

		msg := d.model()
		if !f.Match(msg) {
			continue
		}

		if err := fn(msg); err != nil {
			return err
		}
	}

	if err := cur.Err(); err != nil {
		return mapErr(op, err)
	}

	return nil
}
