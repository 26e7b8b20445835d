package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/npezzotti/go-livechat/internal/database"
)

func (s *LiveChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Error().Err(panicError).Str("path", r.URL.Path).Msg("panic")
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *LiveChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId, err := s.userIdFromRequest(r)
		if err != nil {
			s.log.Debug().Err(err).Msg("failed to extract user id from token")
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithUserId(r.Context(), userId)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}

// adminMiddleware authenticates the request and requires the admin role.
func (s *LiveChatApp) adminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		userId, _ := UserId(r.Context())

		user, err := s.db.GetUser(r.Context(), userId)
		if err != nil {
			var errResp *ApiError
			if errors.Is(err, database.ErrNotFound) {
				errResp = NewUnauthorizedError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		if !user.IsAdmin() {
			errResp := NewForbiddenError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		next(w, r)
	})
}
