package redact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	require.Equal(t, "postgres://forum:xxxxx@db:5432/users", URL("postgres://forum:s3cret@db:5432/users"))
	require.Equal(t, "mongodb://mongo:27017/forum?replicaSet=rs0", URL("mongodb://mongo:27017/forum?replicaSet=rs0"))
	require.Equal(t, "", URL(""))
	require.Equal(t, "***", URL("not a url"))
	require.Equal(t, "***", URL("://bad"))
}

func TestToken(t *testing.T) {
	require.Equal(t, "[REDACTED_TOKEN]", Token("short"))
	require.Equal(t, "eyJhbG…[REDACTED_TOKEN]", Token("eyJhbGciOiJIUzI1NiJ9.payload.sig"))
}
