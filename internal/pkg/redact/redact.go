// redact маскирует секреты перед записью в лог.
package redact

import (
	"net/url"
	"strings"
)

// URL скрывает пароль в строке подключения (postgres://, mongodb://, redis://).
// Строка, которую не удалось разобрать, целиком заменяется на "***".
func URL(s string) string {
	if s == "" {
		return ""
	}

	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return "***"
	}

	return u.Redacted()
}

// Token маскирует bearer-токен, оставляя префикс для корреляции.
func Token(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 8 {
		return "[REDACTED_TOKEN]"
	}

	return s[:6] + "…[REDACTED_TOKEN]"
}
