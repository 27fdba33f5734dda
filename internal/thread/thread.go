// Package thread описывает модель дерева сообщений: вычисление глубины и корня
// ветки для нового сообщения, проверку структурных инвариантов и сборку
// плоского списка в дерево для клиентов.
package thread

import (
	"errors"
	"fmt"

	"github.com/pribylovaa/go-forum/internal/models"
)

var (
	// ErrCrossChannel — родитель находится в другом канале.
	ErrCrossChannel = errors.New("parent belongs to another channel")
	// ErrMaxDepthExceeded — превышена допустимая глубина ветки.
	ErrMaxDepthExceeded = errors.New("max depth exceeded")
	// ErrInvariant — нарушен структурный инвариант сообщения.
	ErrInvariant = errors.New("thread invariant violated")
)

// Place проставляет ParentID/RootID/Depth нового сообщения.
//   - parent == nil: корень, Depth = 0, RootID = msg.ID (ID уже назначен);
//   - иначе: родитель обязан быть в том же канале, Depth = parent.Depth + 1,
//     RootID наследуется от родителя (или равен parent.ID, если родитель — корень).
//
// maxDepth <= 0 отключает ограничение глубины.
func Place(msg *models.Message, parent *models.Message, maxDepth int32) error {
	if msg.ID == "" {
		return fmt.Errorf("place: %w: empty id", ErrInvariant)
	}

	if parent == nil {
		msg.ParentID = ""
		msg.RootID = msg.ID
		msg.Depth = 0
		return nil
	}

	if parent.ChannelID != msg.ChannelID {
		return ErrCrossChannel
	}

	depth := parent.Depth + 1
	if maxDepth > 0 && depth > maxDepth {
		return ErrMaxDepthExceeded
	}

	msg.ParentID = parent.ID
	msg.RootID = parent.ThreadID()
	msg.Depth = depth

	return nil
}

// Validate проверяет инварианты одного сообщения без обращения к родителю.
func Validate(m models.Message) error {
	if m.IsRoot() {
		if m.Depth != 0 {
			return fmt.Errorf("%w: root %s has depth %d", ErrInvariant, m.ID, m.Depth)
		}

		if m.RootID != "" && m.RootID != m.ID {
			return fmt.Errorf("%w: root %s points to root %s", ErrInvariant, m.ID, m.RootID)
		}

		return nil
	}

	if m.ParentID == m.ID {
		return fmt.Errorf("%w: message %s is its own parent", ErrInvariant, m.ID)
	}

	if m.Depth < 1 {
		return fmt.Errorf("%w: reply %s has depth %d", ErrInvariant, m.ID, m.Depth)
	}

	if m.RootID == "" || m.RootID == m.ID {
		return fmt.Errorf("%w: reply %s has no root", ErrInvariant, m.ID)
	}

	return nil
}

// ValidateChild проверяет связь родитель -> ребёнок.
func ValidateChild(parent, child models.Message) error {
	if child.ParentID != parent.ID {
		return fmt.Errorf("%w: %s is not a child of %s", ErrInvariant, child.ID, parent.ID)
	}

	if child.ChannelID != parent.ChannelID {
		return ErrCrossChannel
	}

	if child.Depth != parent.Depth+1 {
		return fmt.Errorf("%w: depth %d under parent depth %d", ErrInvariant, child.Depth, parent.Depth)
	}

	if child.RootID != parent.ThreadID() {
		return fmt.Errorf("%w: root %s, parent root %s", ErrInvariant, child.RootID, parent.ThreadID())
	}

	return nil
}

// Less задаёт порядок выдачи канала: (depth, created_at, id) по возрастанию.
// Родители всегда идут раньше детей.
func Less(a, b models.Message) bool {
	if a.Depth != b.Depth {
		return a.Depth < b.Depth
	}

	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}

	return a.ID < b.ID
}
