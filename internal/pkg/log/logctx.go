// Package log переносит логгер запроса через context.Context.
package log

import (
	"context"
	"log/slog"
)

type key int

const loggerKey key = 0

// Into возвращает контекст с логгером l. nil не сохраняется.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	if l == nil {
		return ctx
	}

	return context.WithValue(ctx, loggerKey, l)
}

// From — логгер запроса; если его нет, slog.Default().
func From(ctx context.Context) *slog.Logger {
	if l, _ := ctx.Value(loggerKey).(*slog.Logger); l != nil {
		return l
	}

	return slog.Default()
}

// With дополняет логгер запроса атрибутами и возвращает контекст с ним.
// Так principal_id попадает во все записи ниже по цепочке.
func With(ctx context.Context, args ...any) (context.Context, *slog.Logger) {
	l := From(ctx).With(args...)
	return Into(ctx, l), l
}
