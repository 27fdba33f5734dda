package pebble

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/storage"
)

type channelDoc struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (d channelDoc) model() models.Channel {
	return models.Channel{ID: d.ID, Name: d.Name, Description: d.Description, CreatedBy: d.CreatedBy, CreatedAt: d.CreatedAt.UTC()}
}

// CreateChannel создаёт канал; имя уникально (ключ chan-name/<name>).
func (s *Store) CreateChannel(_ context.Context, c models.Channel) (*models.Channel, error) {
	const op = "storage/pebble/CreateChannel"

	if err := s.check(op); err != nil {
		return nil, err
	}

	if c.ID == "" {
		c.ID = s.NewID()
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	c.CreatedAt = c.CreatedAt.UTC()

	unlock := s.lock(chanNamePrefix)
	defer unlock()

	taken, err := s.exists(chanNamePrefix + c.Name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	dup, err := s.exists(chanPrefix + c.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if taken || dup {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrConflict)
	}

	b, err := json.Marshal(channelDoc{ID: c.ID, Name: c.Name, Description: c.Description, CreatedBy: c.CreatedBy, CreatedAt: c.CreatedAt})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set([]byte(chanPrefix+c.ID), b, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := batch.Set([]byte(chanNamePrefix+c.Name), []byte(c.ID), nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &c, nil
}

// ChannelByID возвращает канал.
func (s *Store) ChannelByID(_ context.Context, id string) (*models.Channel, error) {
	const op = "storage/pebble/ChannelByID"

	if err := s.check(op); err != nil {
		return nil, err
	}

	var d channelDoc
	if err := s.get(chanPrefix+id, &d); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := d.model()
	return &out, nil
}

// ListChannels — все каналы по имени.
func (s *Store) ListChannels(ctx context.Context) ([]models.Channel, error) {
	const op = "storage/pebble/ListChannels"

	if err := s.check(op); err != nil {
		return nil, err
	}

	out := make([]models.Channel, 0)
	err := s.scanPrefix(ctx, chanPrefix, func(_, v []byte) error {
		var d channelDoc
		if err := json.Unmarshal(v, &d); err != nil {
			return err
		}

		out = append(out, d.model())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

// DeleteChannel удаляет канал и освобождает имя.
func (s *Store) DeleteChannel(_ context.Context, id string) error {
	const op = "storage/pebble/DeleteChannel"

	if err := s.check(op); err != nil {
		return err
	}

	unlock := s.lock(chanNamePrefix)
	defer unlock()

	var d channelDoc
	if err := s.get(chanPrefix+id, &d); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Delete([]byte(chanPrefix+id), nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := batch.Delete([]byte(chanNamePrefix+d.Name), nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
