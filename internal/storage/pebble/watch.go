package pebble

import (
	"context"
	"fmt"

	"github.com/pribylovaa/go-forum/internal/storage"
)

// Watch подписывает fn на изменения, сделанные через этот Store.
// Блокируется до отмены ctx. Если подписчик отстал больше чем на буфер,
// подписка обрывается с ErrFeedOverflow.
func (s *Store) Watch(ctx context.Context, fn func(storage.Change)) error {
	const op = "storage/pebble/Watch"

	if err := s.check(op); err != nil {
		return err
	}

	sub := &subscriber{
		ch:       make(chan storage.Change, feedBuffer),
		overflow: make(chan struct{}),
	}

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.subMu.Unlock()

	defer func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-sub.ch:
			fn(c)
		case <-sub.overflow:
			// Дочитываем то, что успело попасть в буфер.
			for {
				select {
				case c := <-sub.ch:
					fn(c)
				default:
					return fmt.Errorf("%s: %w", op, ErrFeedOverflow)
				}
			}
		}
	}
}

// publish раздаёт изменение всем подписчикам без блокировки писателя.
func (s *Store) publish(c storage.Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, sub := range s.subs {
		select {
		case sub.ch <- c:
		default:
			sub.once.Do(func() { close(sub.overflow) })
		}
	}
}
