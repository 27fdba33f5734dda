package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-forum/internal/config"
	"github.com/pribylovaa/go-forum/internal/http/handlers"
	"github.com/pribylovaa/go-forum/internal/http/middleware"
	"github.com/pribylovaa/go-forum/internal/metrics"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger *slog.Logger
	// Timeout — дедлайн обычного запроса.
	Timeout time.Duration
	// ScanTimeout — дедлайн маршрутов /search (полный обход коллекции).
	ScanTimeout time.Duration
	// Например, "/api"; если пустой — роуты регистрируются на корне.
	BasePath  string
	Verifier  *middleware.Verifier
	Metrics   *metrics.Metrics
	RateLimit config.RateLimitConfig
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(f handlers.Forum, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),
		middleware.RequestID(),          // до логирования
		middleware.Logging(opts.Logger), // request-scoped логгер в контексте
		middleware.Metrics(opts.Metrics),
	)
	if opts.Verifier != nil {
		root.Use(middleware.Authenticate(opts.Verifier))
	}
	root.Use(middleware.RateLimit(opts.RateLimit, opts.Metrics))

	h := handlers.New(f)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, opts)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, opts)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
// Все маршруты требуют субъекта; /livez, /healthz и /metrics живут на
// отдельном сервере.
func registerRoutes(r chi.Router, h *handlers.Handlers, opts Options) {
	// search: полный обход, свой дедлайн
	r.Group(func(r chi.Router) {
		scan := opts.ScanTimeout
		if scan <= 0 {
			scan = opts.Timeout
		}
		r.Use(middleware.Timeout(scan), middleware.RequireAuth())

		r.Get("/search/messages", h.SearchMessages)
		r.Get("/search/suggestions", h.Suggestions)
		r.Get("/search/user-stats", h.UserStatistics)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(opts.Timeout), middleware.RequireAuth())

		// channels
		r.Get("/channels", h.ListChannels)
		r.Get("/channels/{id}", h.GetChannel)
		r.Get("/channels/{id}/messages", h.ListChannelMessages)

		// messages
		r.Get("/messages/{id}", h.GetMessage)
		r.Get("/messages/{id}/replies", h.ListReplies)
		r.Get("/messages/{id}/thread", h.ListThread)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(opts.Timeout), middleware.RequireAuth())

		r.Post("/channels", h.CreateChannel)
		r.Delete("/channels/{id}", h.DeleteChannel)
		r.Post("/channels/{id}/messages", h.CreateMessage)

		r.Post("/messages/{id}/rating", h.Rate)
		r.Delete("/messages/{id}/rating", h.ClearRating)
		r.Delete("/messages/{id}", h.DeleteMessage)

		r.Post("/attachments", h.PresignAttachment)
	})
}
