package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-livechat/internal/database"
	"github.com/npezzotti/go-livechat/internal/server"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

func NewConflictError(message string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusConflict,
		Message:    message,
	}
}

func NewServiceUnavailableError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    lower(http.StatusText(http.StatusServiceUnavailable)),
		Err:        err,
	}
}

// errorResponse maps chat server and repository errors onto HTTP errors.
func errorResponse(err error) *ApiError {
	switch {
	case errors.Is(err, server.ErrSessionNotFound), errors.Is(err, database.ErrNotFound):
		return NewNotFoundError()
	case errors.Is(err, server.ErrInvalidUser), errors.Is(err, server.ErrAdminRequired):
		errResp := NewBadRequestError()
		errResp.Message = err.Error()
		return errResp
	case errors.Is(err, server.ErrSessionClosed):
		return NewConflictError(err.Error())
	case errors.Is(err, server.ErrServerStopped), errors.Is(err, context.DeadlineExceeded):
		return NewServiceUnavailableError(err)
	default:
		return NewInternalServerError(err)
	}
}
