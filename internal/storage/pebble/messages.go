package pebble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/storage"
)

type attachmentDoc struct {
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

type messageDoc struct {
	ID          string          `json:"id"`
	ChannelID   string          `json:"channel_id"`
	AuthorID    string          `json:"author_id"`
	Content     string          `json:"content"`
	Attachment  *attachmentDoc  `json:"attachment,omitempty"`
	ParentID    string          `json:"parent_id,omitempty"`
	RootID      string          `json:"root_id"`
	Depth       int32           `json:"depth"`
	Up          int64           `json:"up"`
	Down        int64           `json:"down"`
	UserRatings map[string]int8 `json:"user_ratings,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Rev         int64           `json:"rev"`
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
		d.UserRatings = make(map[string]int8, len(m.UserRatings))
		for u, v := range m.UserRatings {
			d.UserRatings[u] = int8(v)
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

func msgKey(id string) string { return msgPrefix + id }

// InsertMessage сохраняет новый документ с ревизией 1.
func (s *Store) InsertMessage(_ context.Context, m models.Message) (*models.Message, error) {
	const op = "storage/pebble/InsertMessage"

	if err := s.check(op); err != nil {
		return nil, err
	}

	if m.ID == "" {
		m.ID = s.NewID()
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	m.CreatedAt = m.CreatedAt.UTC()
	m.Rev = 1

	unlock := s.lock(m.ID)
	defer unlock()

	ok, err := s.exists(msgKey(m.ID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrConflict)
	}

	if err := s.put(msgKey(m.ID), toDoc(m)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(storage.Change{ID: m.ID, Rev: m.Rev, Message: cloneMsg(m)})

	return &m, nil
}

// MessageByID возвращает документ по id.
func (s *Store) MessageByID(_ context.Context, id string) (*models.Message, error) {
	const op = "storage/pebble/MessageByID"

	if err := s.check(op); err != nil {
		return nil, err
	}

	var d messageDoc
	if err := s.get(msgKey(id), &d); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := d.model()
	return &out, nil
}

// MessagesByIDs — точечные чтения; отсутствующие пропускаются.
func (s *Store) MessagesByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	const op = "storage/pebble/MessagesByIDs"

	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		m, err := s.MessageByID(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}

			return nil, err
		}

		out = append(out, *m)
	}

	return out, nil
}

// ReplaceMessage — сравнение ревизии и запись под блокировкой полосы id.
func (s *Store) ReplaceMessage(_ context.Context, m models.Message) (*models.Message, error) {
	const op = "storage/pebble/ReplaceMessage"

	if err := s.check(op); err != nil {
		return nil, err
	}

	unlock := s.lock(m.ID)
	defer unlock()

	var cur messageDoc
	if err := s.get(msgKey(m.ID), &cur); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cur.Rev != m.Rev {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrRevisionConflict)
	}

	m.Rev++
	if err := s.put(msgKey(m.ID), toDoc(m)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(storage.Change{ID: m.ID, Rev: m.Rev, Message: cloneMsg(m)})

	return &m, nil
}

// DeleteMessage удаляет документ.
func (s *Store) DeleteMessage(_ context.Context, id string) error {
	const op = "storage/pebble/DeleteMessage"

	if err := s.check(op); err != nil {
		return err
	}

	unlock := s.lock(id)
	defer unlock()

	ok, err := s.exists(msgKey(id))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if err := s.db.Delete([]byte(msgKey(id)), pebble.Sync); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.publish(storage.Change{ID: id, Deleted: true})

	return nil
}

// DeleteMessagesByChannel — сканирование и пакетное удаление.
func (s *Store) DeleteMessagesByChannel(ctx context.Context, channelID string) ([]string, error) {
	const op = "storage/pebble/DeleteMessagesByChannel"

	if err := s.check(op); err != nil {
		return nil, err
	}

	var ids []string
	err := s.scanPrefix(ctx, msgPrefix, func(_, v []byte) error {
		var d messageDoc
		if err := json.Unmarshal(v, &d); err != nil {
			return err
		}

		if d.ChannelID == channelID {
			ids = append(ids, d.ID)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	b := s.db.NewBatch()
	defer b.Close()

	for _, id := range ids {
		if err := b.Delete([]byte(msgKey(id)), nil); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, id := range ids {
		s.publish(storage.Change{ID: id, Deleted: true})
	}

	return ids, nil
}

// ScanMessages — обход по префиксу msg/ с фильтром ScanFilter.Match.
func (s *Store) ScanMessages(ctx context.Context, f storage.ScanFilter, fn func(models.Message) error) error {
	const op = "storage/pebble/ScanMessages"

	if err := s.check(op); err != nil {
		return err
	}

	var fnErr error
	err := s.scanPrefix(ctx, msgPrefix, func(_, v []byte) error {
		var d messageDoc
		if err := json.Unmarshal(v, &d); err != nil {
			return fmt.Errorf("decode: %w", err)
		}

		m := d.model()
		if !f.Match(m) {
			return nil
		}

		if err := fn(m); err != nil {
			fnErr = err
			return err
		}

		return nil
	})

	if fnErr != nil {
		return fnErr
	}

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func cloneMsg(m models.Message) *models.Message {
	c := m.Clone()
	return &c
}
