package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pribylovaa/go-forum/internal/http/apierrors"
	"github.com/pribylovaa/go-forum/internal/http/middleware"
	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/service"
	"github.com/pribylovaa/go-forum/internal/storage"
)

// maxBody — предел тела JSON-запроса.
const maxBody = 1 << 20

// Forum — операции сервисного слоя, которые обслуживает HTTP.
type Forum interface {
	CreateMessage(ctx context.Context, in service.CreateMessageInput) (*models.MessageView, error)
	MessageByID(ctx context.Context, id string) (*models.MessageView, error)
	Rate(ctx context.Context, messageID, userID string, v models.Vote) (*models.RatingResult, error)
	ClearRating(ctx context.Context, messageID, userID string) (*models.RatingResult, error)

	ListChannelMessages(ctx context.Context, channelID string) ([]models.MessageView, error)
	ListReplies(ctx context.Context, messageID string) ([]models.MessageView, error)
	ListThread(ctx context.Context, messageID string) ([]models.MessageView, error)

	SearchMessages(ctx context.Context, q models.SearchQuery) ([]models.MessageView, error)
	Suggestions(ctx context.Context, query string) ([]string, error)
	UserStatistics(ctx context.Context) ([]models.UserStats, error)

	DeleteMessageCascade(ctx context.Context, p models.Principal, messageID string) (*models.CascadeResult, error)
	DeleteChannelCascade(ctx context.Context, p models.Principal, channelID string) (*models.CascadeResult, error)

	CreateChannel(ctx context.Context, p models.Principal, name, description string) (*models.Channel, error)
	ChannelByID(ctx context.Context, id string) (*models.Channel, error)
	ListChannels(ctx context.Context) ([]models.Channel, error)

	PresignAttachment(ctx context.Context, p models.Principal, contentType string, size int64) (*storage.UploadInfo, error)
}

// Handlers агрегирует зависимости HTTP-обработчиков.
type Handlers struct {
	Forum Forum
}

func New(f Forum) *Handlers {
	return &Handlers{Forum: f}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(value); err != nil {
		return apierrors.ErrBadRequest
	}
	return nil
}

// principal — субъект запроса; маршруты с записью закрыты RequireAuth,
// поэтому отсутствие субъекта здесь — 401.
func principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
	}
	return p, ok
}
