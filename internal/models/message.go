// Package models содержит доменные сущности forum-сервиса.
// Типы не зависят от хранилища и транспорта: bson/json-представления
// описываются в соответствующих адаптерах.
package models

import "time"

// Vote — голос пользователя за сообщение. Допустимы только +1 и -1.
type Vote int8

const (
	VoteDown Vote = -1
	VoteUp   Vote = 1
)

// Valid сообщает, является ли значение допустимым голосом.
func (v Vote) Valid() bool {
	return v == VoteUp || v == VoteDown
}

// Ratings — агрегат голосов сообщения.
// Инвариант: Up/Down равны количеству записей +1/-1 в Message.UserRatings.
type Ratings struct {
	Up   int64
	Down int64
}

// Net — итоговый рейтинг (up - down), используется при сортировке поиска.
func (r Ratings) Net() int64 {
	return r.Up - r.Down
}

// Attachment — дескриптор вложения. Сами байты лежат в объектном хранилище,
// сервис хранит только ключ и метаданные.
type Attachment struct {
	Key         string
	Filename    string
	ContentType string
	Size        int64
	URL         string
}

// Message — сообщение канала (корневое или ответ).
//   - ID назначается хранилищем (Store.NewID) до вставки, чтобы корень мог
//     сохранить RootID == ID одной записью;
//   - ChannelID и CreatedAt неизменяемы;
//   - ParentID пуст у корня; RootID у корня равен ID; Depth у корня 0;
//   - Rev — токен ревизии для оптимистической блокировки, управляется хранилищем.
type Message struct {
	ID          string
	ChannelID   string
	AuthorID    string
	Content     string
	Attachment  *Attachment
	ParentID    string
	RootID      string
	Depth       int32
	Ratings     Ratings
	UserRatings map[string]Vote
	CreatedAt   time.Time
	Rev         int64
}

// IsRoot сообщает, является ли сообщение корнем ветки.
func (m Message) IsRoot() bool {
	return m.ParentID == ""
}

// ThreadID возвращает идентификатор ветки: RootID, а для корня без RootID — собственный ID.
func (m Message) ThreadID() string {
	if m.RootID != "" {
		return m.RootID
	}

	return m.ID
}

// Clone возвращает глубокую копию (карта голосов и вложение не разделяются).
func (m Message) Clone() Message {
	out := m
	if m.Attachment != nil {
		a := *m.Attachment
		out.Attachment = &a
	}

	if m.UserRatings != nil {
		out.UserRatings = make(map[string]Vote, len(m.UserRatings))
		for k, v := range m.UserRatings {
			out.UserRatings[k] = v
		}
	}

	return out
}

// Author — отображаемые данные автора, подтягиваемые из каталога пользователей.
type Author struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
}

// UnknownAuthor — подстановка для удалённого или недоступного автора.
func UnknownAuthor(id string) Author {
	return Author{ID: id, Username: "Unknown User", DisplayName: "Unknown User"}
}

// MessageView — сообщение, обогащённое данными автора.
type MessageView struct {
	Message
	Author Author
}
