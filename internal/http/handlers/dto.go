package handlers

import (
	"time"

	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/storage"
	"github.com/pribylovaa/go-forum/internal/thread"
)

// Запросы.

type CreateMessageRequest struct {
	Content        string `json:"content"`
	ParentID       string `json:"parent_id,omitempty"`
	AttachmentKey  string `json:"attachment_key,omitempty"`
	AttachmentName string `json:"attachment_name,omitempty"`
}

// RateRequest — direction ∈ {1, -1}, поле обязательно.
// Снять голос — DELETE /messages/{id}/rating.
type RateRequest struct {
	Direction *int `json:"direction"`
}

type CreateChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type PresignRequest struct {
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Ответы.

type AuthorResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type AttachmentResponse struct {
	Key         string `json:"key"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

type RatingsResponse struct {
	Up   int64 `json:"up"`
	Down int64 `json:"down"`
	Net  int64 `json:"net"`
}

type MessageResponse struct {
	ID         string              `json:"id"`
	ChannelID  string              `json:"channel_id"`
	ParentID   string              `json:"parent_id,omitempty"`
	RootID     string              `json:"root_id"`
	Depth      int32               `json:"depth"`
	Content    string              `json:"content"`
	Attachment *AttachmentResponse `json:"attachment,omitempty"`
	Author     AuthorResponse      `json:"author"`
	Ratings    RatingsResponse     `json:"ratings"`
	UserRating int                 `json:"user_rating"`
	CreatedAt  time.Time           `json:"created_at"`
}

type NodeResponse struct {
	MessageResponse
	Replies []NodeResponse `json:"replies"`
}

type MessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

type ThreadResponse struct {
	Messages []NodeResponse `json:"messages"`
}

type RatingResponse struct {
	Up         int64 `json:"up"`
	Down       int64 `json:"down"`
	UserRating int   `json:"user_rating"`
}

type ChannelResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type ChannelsResponse struct {
	Channels []ChannelResponse `json:"channels"`
}

type UserStatsResponse struct {
	AuthorID    string `json:"author_id"`
	DisplayName string `json:"display_name"`
	TotalPosts  int64  `json:"total_posts"`
	RootPosts   int64  `json:"root_posts"`
	Replies     int64  `json:"replies"`
	Upvotes     int64  `json:"upvotes"`
	Downvotes   int64  `json:"downvotes"`
}

type UserStatsListResponse struct {
	Users []UserStatsResponse `json:"users"`
}

type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

type CascadeResponse struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

type PresignResponse struct {
	UploadURL        string            `json:"upload_url"`
	Key              string            `json:"key"`
	ExpiresInSeconds int64             `json:"expires_in_seconds"`
	RequiredHeaders  map[string]string `json:"required_headers,omitempty"`
}

// Конвертеры.

// messageFromModel — viewerID нужен для user_rating; пустой — без голоса.
func messageFromModel(m models.MessageView, viewerID string) MessageResponse {
	out := MessageResponse{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		ParentID:  m.ParentID,
		RootID:    m.ThreadID(),
		Depth:     m.Depth,
		Content:   m.Content,
		Author: AuthorResponse{
			ID:          m.Author.ID,
			Username:    m.Author.Username,
			DisplayName: m.Author.DisplayName,
			AvatarURL:   m.Author.AvatarURL,
		},
		Ratings: RatingsResponse{
			Up:   m.Ratings.Up,
			Down: m.Ratings.Down,
			Net:  m.Ratings.Net(),
		},
		CreatedAt: m.CreatedAt,
	}

	if viewerID != "" {
		out.UserRating = int(m.UserRatings[viewerID])
	}

	if a := m.Attachment; a != nil {
		out.Attachment = &AttachmentResponse{
			Key:         a.Key,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
			URL:         a.URL,
		}
	}

	return out
}

func messagesFromModel(list []models.MessageView, viewerID string) MessagesResponse {
	out := MessagesResponse{Messages: make([]MessageResponse, 0, len(list))}
	for _, m := range list {
		out.Messages = append(out.Messages, messageFromModel(m, viewerID))
	}
	return out
}

func nestedFromModel(list []models.MessageView, viewerID string) ThreadResponse {
	var conv func(nodes []*thread.Node) []NodeResponse
	conv = func(nodes []*thread.Node) []NodeResponse {
		out := make([]NodeResponse, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, NodeResponse{
				MessageResponse: messageFromModel(n.Message, viewerID),
				Replies:         conv(n.Replies),
			})
		}
		return out
	}

	return ThreadResponse{Messages: conv(thread.Nest(list))}
}

func ratingFromModel(r models.RatingResult) RatingResponse {
	return RatingResponse{Up: r.Ratings.Up, Down: r.Ratings.Down, UserRating: int(r.UserRating)}
}

func channelFromModel(c models.Channel) ChannelResponse {
	return ChannelResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedBy:   c.CreatedBy,
		CreatedAt:   c.CreatedAt,
	}
}

func statsFromModel(list []models.UserStats) UserStatsListResponse {
	out := UserStatsListResponse{Users: make([]UserStatsResponse, 0, len(list))}
	for _, s := range list {
		out.Users = append(out.Users, UserStatsResponse{
			AuthorID:    s.AuthorID,
			DisplayName: s.DisplayName,
			TotalPosts:  s.TotalPosts,
			RootPosts:   s.RootPosts,
			Replies:     s.Replies,
			Upvotes:     s.Upvotes,
			Downvotes:   s.Downvotes,
		})
	}
	return out
}

func presignFromModel(info storage.UploadInfo) PresignResponse {
	return PresignResponse{
		UploadURL:        info.UploadURL,
		Key:              info.Key,
		ExpiresInSeconds: int64(info.Expires.Seconds()),
		RequiredHeaders:  info.RequiredHeader,
	}
}
