package models

import "time"

// Channel — именованный канал, в который публикуются сообщения.
type Channel struct {
	ID          string
	Name        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
}
