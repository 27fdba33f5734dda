package apierrors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pribylovaa/go-forum/internal/service"
	"github.com/stretchr/testify/require"
)

func TestToHTTP_Table(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("service/x: %w", err) }

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"nil", nil, http.StatusInternalServerError, "internal"},
		{"validation", wrap(service.ErrValidation), http.StatusBadRequest, "invalid_argument"},
		{"bad request", ErrBadRequest, http.StatusBadRequest, "invalid_argument"},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"permission", wrap(service.ErrPermissionDenied), http.StatusForbidden, "permission_denied"},
		{"not found", wrap(service.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", wrap(service.ErrConflict), http.StatusConflict, "conflict"},
		{"invalid reference", wrap(service.ErrInvalidReference), http.StatusUnprocessableEntity, "invalid_reference"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"unavailable", wrap(service.ErrUnavailable), http.StatusServiceUnavailable, "unavailable"},
		{"deadline over unavailable", fmt.Errorf("x: %w: %w", service.ErrUnavailable, context.DeadlineExceeded), http.StatusGatewayTimeout, "deadline_exceeded"},
		{"canceled", context.Canceled, StatusClientClosedRequest, "canceled"},
		{"internal", wrap(service.ErrInternal), http.StatusInternalServerError, "internal"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, resp := ToHTTP(tc.err)
			require.Equal(t, tc.status, status)
			require.Equal(t, tc.code, resp.Error.Code)
			require.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestWriteError_RequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "rid-1")
	rr := httptest.NewRecorder()

	WriteError(rr, req, service.ErrNotFound)

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, "not_found", body.Error.Code)
	require.Equal(t, "rid-1", body.Error.RequestID)
}
