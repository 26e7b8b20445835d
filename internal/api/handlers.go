package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-livechat/internal/database"
	"github.com/npezzotti/go-livechat/internal/server"
	"github.com/npezzotti/go-livechat/internal/types"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AssignSessionRequest struct {
	AdminId int `json:"adminId"`
}

func (s *LiveChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

func (s *LiveChatApp) writeError(w http.ResponseWriter, err error) {
	errResp := errorResponse(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func pathInt(r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func (s *LiveChatApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Error().Err(err).Msg("health check")
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *LiveChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetUserByEmail(r.Context(), lr.Email)
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

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.createJwtForSession(dbUser.Id, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, types.UserFromDB(dbUser))
}

func (s *LiveChatApp) session(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	user, err := s.db.GetUser(r.Context(), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, types.UserFromDB(user))
}

func (s *LiveChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// overwrite the cookie with an already expired one
	http.SetCookie(w, createJwtCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

// sessionHistory returns a session's messages to its owner or to an admin.
func (s *LiveChatApp) sessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionId, ok := pathInt(r, "id")
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, _ := UserId(r.Context())
	user, err := s.db.GetUser(r.Context(), userId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		s.writeError(w, err)
		return
	}

	session, err := s.db.GetChatSession(r.Context(), sessionId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if session.UserId != user.Id && !user.IsAdmin() {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages, err := s.cs.SessionMessages(r.Context(), sessionId, false)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]types.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, types.ChatMessageFromDB(m.ChatMessage))
	}

	s.writeJson(w, http.StatusOK, out)
}

func (s *LiveChatApp) listActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.cs.ListActiveSessions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, types.ChatSessionsFromDB(sessions))
}

func (s *LiveChatApp) adminSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionId, ok := pathInt(r, "id")
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	withSenders := r.URL.Query().Get("with_senders") == "true"

	messages, err := s.cs.SessionMessages(r.Context(), sessionId, withSenders)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if withSenders {
		s.writeJson(w, http.StatusOK, types.ChatMessagesWithSendersFromDB(messages))
		return
	}

	out := make([]types.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, types.ChatMessageFromDB(m.ChatMessage))
	}
	s.writeJson(w, http.StatusOK, out)
}

func (s *LiveChatApp) assignSession(w http.ResponseWriter, r *http.Request) {
	sessionId, ok := pathInt(r, "id")
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req AssignSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AdminId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	session, err := s.cs.AssignSession(r.Context(), sessionId, req.AdminId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, types.ChatSessionFromDB(session))
}

func (s *LiveChatApp) endSession(w http.ResponseWriter, r *http.Request) {
	sessionId, ok := pathInt(r, "id")
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	session, err := s.cs.ForceEndSession(r.Context(), sessionId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, types.ChatSessionFromDB(session))
}

func (s *LiveChatApp) adminStats(w http.ResponseWriter, r *http.Request) {
	adminId, ok := pathInt(r, "adminId")
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	st, err := s.cs.AdminStats(r.Context(), adminId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, types.AdminStats{
		AdminId:        adminId,
		ActiveSessions: st.ActiveSessions,
		TotalMessages:  st.TotalMessages,
	})
}

func (s *LiveChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	// A valid session cookie pins the connection to that user. Without one
	// the connection identifies itself with its auth frame.
	boundUserId, err := s.userIdFromRequest(r)
	if err != nil {
		boundUserId = 0
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("error upgrading connection")
		return
	}

	client := server.NewClient(conn, s.cs, s.log)
	if boundUserId != 0 {
		client.BindUser(boundUserId)
	}

	if err := s.cs.RegisterClient(client); err != nil {
		s.log.Warn().Err(err).Str("conn_id", client.Id()).Msg("register client")
		conn.Close()
		return
	}
	s.log.Debug().
		Str("conn_id", client.Id()).
		Str("remote_addr", r.RemoteAddr).
		Int("bound_user_id", boundUserId).
		Msg("websocket connected")

	go client.Write()
	go client.Read()
}
