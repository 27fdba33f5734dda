package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pribylovaa/go-forum/internal/config"
	"github.com/pribylovaa/go-forum/internal/http/apierrors"
	"github.com/pribylovaa/go-forum/internal/models"
	logctx "github.com/pribylovaa/go-forum/internal/pkg/log"
	"github.com/pribylovaa/go-forum/internal/pkg/redact"
)

type principalKey struct{}

// ErrInvalidToken — подпись, срок, issuer/audience или claims не прошли проверку.
var ErrInvalidToken = errors.New("invalid token")

// accessClaims — claims access-токена, выпущенного внешним auth-сервисом.
type accessClaims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier проверяет bearer-токены HS256.
type Verifier struct {
	secret []byte
	opts   []jwt.ParserOption
}

// NewVerifier — проверка подписи, срока (с допуском 5s) и, если заданы,
// issuer и audience.
func NewVerifier(cfg config.AuthConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{secret: []byte(cfg.JWTSecret), opts: opts}
}

// Verify разбирает токен и возвращает субъекта.
func (v *Verifier) Verify(tokenStr string) (models.Principal, error) {
	const op = "http/middleware/Verify"

	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return v.secret, nil
		},
		v.opts...,
	)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return models.Principal{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	role := models.Role(claims.Role)
	if role != models.RoleAdmin {
		role = models.RoleUser
	}

	return models.Principal{ID: claims.UserID, Role: role}, nil
}

// Authenticate извлекает Bearer-токен из Authorization и кладёт субъекта
// в контекст. Запрос без заголовка проходит анонимно; битый токен — 401.
func Authenticate(v *Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				next.ServeHTTP(w, r)
				return
			}

			const prefix = "Bearer "
			token := ""
			if strings.HasPrefix(auth, prefix) {
				token = strings.TrimSpace(auth[len(prefix):])
			}
			if token == "" {
				apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
				return
			}

			p, err := v.Verify(token)
			if err != nil {
				logctx.From(r.Context()).Warn("bearer token rejected", "token", redact.Token(token), "err", err)
				apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
				return
			}

			ctx, _ := logctx.With(WithPrincipal(r.Context(), p), "principal_id", p.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth пропускает только запросы с субъектом в контексте.
func RequireAuth() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFrom(r.Context()); !ok {
				apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal кладёт субъекта в контекст.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom достаёт субъекта из контекста.
func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(models.Principal)
	return p, ok && p.ID != ""
}
