package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/npezzotti/go-livechat/internal/database"
	"github.com/npezzotti/go-livechat/internal/server"
	"github.com/stretchr/testify/assert"
)

func TestApiError(t *testing.T) {
	cause := errors.New("boom")
	err := NewInternalServerError(cause)

	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
	assert.Equal(t, "internal server error: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "not found", NewNotFoundError().Error())
}

func TestErrorResponse(t *testing.T) {
	tcases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "session not found",
			err:     server.ErrSessionNotFound,
			status:  http.StatusNotFound,
			message: "not found",
		},
		{
			name:    "record not found",
			err:     fmt.Errorf("get user: %w", database.ErrNotFound),
			status:  http.StatusNotFound,
			message: "not found",
		},
		{
			name:    "invalid user",
			err:     server.ErrInvalidUser,
			status:  http.StatusBadRequest,
			message: "invalid user",
		},
		{
			name:    "admin required",
			err:     server.ErrAdminRequired,
			status:  http.StatusBadRequest,
			message: "admin access required",
		},
		{
			name:    "session closed",
			err:     server.ErrSessionClosed,
			status:  http.StatusConflict,
			message: "session closed",
		},
		{
			name:    "server stopped",
			err:     server.ErrServerStopped,
			status:  http.StatusServiceUnavailable,
			message: "service unavailable",
		},
		{
			name:    "deadline exceeded",
			err:     context.DeadlineExceeded,
			status:  http.StatusServiceUnavailable,
			message: "service unavailable",
		},
		{
			name:    "persistence failure",
			err:     server.ErrPersistence,
			status:  http.StatusInternalServerError,
			message: "internal server error",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			resp := errorResponse(tc.err)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.message, resp.Message)
		})
	}
}
