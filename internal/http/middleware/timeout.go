package middleware

import (
	"context"
	"net/http"
	"time"

	logctx "github.com/pribylovaa/go-forum/internal/pkg/log"
)

// Timeout навешивает deadline на запрос. Значение <=0 делает мидлвар no-op.
// Существующий более ранний deadline сохраняется: context.WithTimeout
// никогда не продлевает родительский срок.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))

			if ctx.Err() == context.DeadlineExceeded {
				logctx.From(r.Context()).Warn("request deadline exceeded",
					"path", r.URL.Path,
					"timeout", d,
				)
			}
		})
	}
}
