package models

import "time"

// Role — роль пользователя.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User — запись каталога пользователей (владелец — users-коллаборатор).
type User struct {
	ID          string
	Username    string
	DisplayName string
	Role        Role
	AvatarURL   string
	CreatedAt   time.Time
}

// Author приводит пользователя к отображаемому автору.
func (u User) Author() Author {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}

	return Author{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: name,
		AvatarURL:   u.AvatarURL,
	}
}

// Principal — аутентифицированный субъект запроса. Сервис доверяет ему как есть.
type Principal struct {
	ID   string
	Role Role
}

// IsAdmin сообщает, есть ли у субъекта права администратора.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
