package thread

import "github.com/pribylovaa/go-forum/internal/models"

// Node — узел собранного дерева.
type Node struct {
	Message models.MessageView
	Replies []*Node
}

// Nest группирует плоский список, отсортированный по Less, в лес по ParentID.
// Сообщения, родитель которых отсутствует в списке (удалён или ещё не
// проиндексирован), поднимаются на верхний уровень, а не теряются.
func Nest(list []models.MessageView) []*Node {
	byID := make(map[string]*Node, len(list))
	roots := make([]*Node, 0)

	for i := range list {
		n := &Node{Message: list[i]}
		byID[list[i].ID] = n

		if p, ok := byID[list[i].ParentID]; ok && list[i].ParentID != "" {
			p.Replies = append(p.Replies, n)
			continue
		}

		roots = append(roots, n)
	}

	return roots
}
