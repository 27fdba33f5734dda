// Package index поддерживает вторичные индексы (проекции) над коллекцией
// сообщений: byChannel, byParent, byRoot. Индексы производны от хранилища,
// живут в памяти и перестраиваются полным сканированием.
package index

import (
	"fmt"
	"strings"
	"time"

	"github.com/pribylovaa/go-forum/internal/models"
)

// Name — имя проекции.
type Name string

const (
	// ByChannel: (channel_id, parent_id|null, created_at, id) — все сообщения канала.
	ByChannel Name = "byChannel"
	// ByParent: (parent_id, created_at, id) — только ответы.
	ByParent Name = "byParent"
	// ByRoot: (root_id, depth, created_at, id) — вся ветка.
	ByRoot Name = "byRoot"
)

// Names — все проекции в фиксированном порядке.
var Names = []Name{ByChannel, ByParent, ByRoot}

// sep разделяет компоненты ключа. Меньше любого печатного символа,
// поэтому пустой компонент (null parent) сортируется первым.
const sep = "\x00"

// timeLayout — фиксированная ширина, лексикографический порядок совпадает с хронологическим.
const timeLayout = "20060102T150405.000000000"

// Entry — элемент проекции: ключ сортировки и ID документа.
type Entry struct {
	Key string
	ID  string
}

// Projection — чистая функция документ -> элемент индекса.
// ok == false: документ в эту проекцию не попадает.
type Projection func(m models.Message) (e Entry, ok bool)

// Projections — реестр проекций по имени.
var Projections = map[Name]Projection{
	ByChannel: byChannel,
	ByParent:  byParent,
	ByRoot:    byRoot,
}

func byChannel(m models.Message) (Entry, bool) {
	return Entry{Key: key(m.ChannelID, m.ParentID, stamp(m.CreatedAt), m.ID), ID: m.ID}, true
}

func byParent(m models.Message) (Entry, bool) {
	if m.IsRoot() {
		return Entry{}, false
	}

	return Entry{Key: key(m.ParentID, stamp(m.CreatedAt), m.ID), ID: m.ID}, true
}

func byRoot(m models.Message) (Entry, bool) {
	return Entry{Key: key(m.ThreadID(), fmt.Sprintf("%010d", m.Depth), stamp(m.CreatedAt), m.ID), ID: m.ID}, true
}

// Prefix строит префикс запроса по первым компонентам ключа.
func Prefix(parts ...string) string {
	return strings.Join(parts, sep) + sep
}

func key(parts ...string) string {
	return strings.Join(parts, sep)
}

func stamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
