package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pribylovaa/go-forum/internal/storage"
)

// changeEvent — нужная часть события change stream.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument *messageDoc `bson:"fullDocument"`
}

// Watch подписывается на change stream коллекции сообщений (нужен replica set).
// Для insert/replace/update доставляется полный документ (UpdateLookup),
// для delete — надгробие.
func (m *Mongo) Watch(ctx context.Context, fn func(storage.Change)) error {
	const op = "storage/mongo/Watch"

	pipeline := mongodriver.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{
			{Key: "$in", Value: bson.A{"insert", "replace", "update", "delete"}},
		}}}}},
	}

	cs, err := m.messages.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return mapErr(op, err)
	}
	defer cs.Close(context.Background())

	for cs.Next(ctx) {
		var ev changeEvent
		if err := cs.Decode(&ev); err != nil {
			return fmt.Errorf("%s: decode: %w", op, err)
		}

		switch {
		case ev.OperationType == "delete":
			fn(storage.Change{ID: ev.DocumentKey.ID, Deleted: true})
		case ev.FullDocument != nil:
			msg := ev.FullDocument.model()
			fn(storage.Change{ID: msg.ID, Rev: msg.Rev, Message: &msg})
		default:
			// update уже удалённого документа: UpdateLookup вернул null.
		}
	}

	if err := cs.Err(); err != nil {
		return mapErr(op, err)
	}

	return ctx.Err()
}
