package server

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/npezzotti/go-livechat/internal/database"
	"github.com/npezzotti/go-livechat/internal/types"
)

// Inbound message types.
const (
	TypeAuth              = "auth"
	TypeStartSession      = "start_session"
	TypeSendMessage       = "send_message"
	TypeTyping            = "typing"
	TypeJoinSession       = "join_session"
	TypeEndSession        = "end_session"
	TypeAdminStatusUpdate = "admin_status_update"
	TypePing              = "ping"
	TypeDebugState        = "debug_state"
)

// Outbound event types.
const (
	EventAuthSuccess    = "auth_success"
	EventSessionResumed = "session_resumed"
	EventSessionStarted = "session_started"
	EventNewSession     = "new_session"
	EventMessage        = "message"
	EventTyping         = "typing"
	EventSessionJoined  = "session_joined"
	EventAdminJoined    = "admin_joined"
	EventSessionUpdate  = "session_update"
	EventSessionEnded   = "session_ended"
	EventStatusUpdated  = "status_updated"
	EventPong           = "pong"
	EventDebugComplete  = "debug_complete"
	EventError          = "error"
)

// ClientMessage is the raw inbound frame.
type ClientMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	SessionId int             `json:"sessionId,omitempty"`
	UserId    int             `json:"userId,omitempty"`
}

// Request is a decoded and validated inbound payload.
type Request interface {
	Type() string
	validate() error
}

// sessionScoped requests fall back to the frame-level sessionId.
type sessionScoped interface {
	defaultSession(id int)
}

type AuthRequest struct {
	UserId  int  `json:"userId"`
	IsAdmin bool `json:"isAdmin"`
}

func (r *AuthRequest) Type() string { return TypeAuth }

func (r *AuthRequest) validate() error {
	if r.UserId <= 0 {
		return invalidMessage("userId is required")
	}
	return nil
}

type StartSessionRequest struct {
	Subject    string `json:"subject"`
	Department string `json:"department"`
}

func (r *StartSessionRequest) Type() string { return TypeStartSession }

func (r *StartSessionRequest) validate() error {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Department = strings.TrimSpace(r.Department)
	if r.Department == "" {
		r.Department = database.DefaultDepartment
	}
	return nil
}

// maxChatMessageLength caps chat text in characters.
const maxChatMessageLength = 10000

type SendMessageRequest struct {
	Message   string `json:"message"`
	SessionId int    `json:"sessionId"`
}

func (r *SendMessageRequest) Type() string { return TypeSendMessage }

func (r *SendMessageRequest) validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return invalidMessage("message is required")
	}
	if utf8.RuneCountInString(r.Message) > maxChatMessageLength {
		return invalidMessage("message too long")
	}
	if r.SessionId <= 0 {
		return invalidMessage("sessionId is required")
	}
	return nil
}

func (r *SendMessageRequest) defaultSession(id int) {
	if r.SessionId == 0 {
		r.SessionId = id
	}
}

type TypingRequest struct {
	SessionId int  `json:"sessionId"`
	IsTyping  bool `json:"isTyping"`
}

func (r *TypingRequest) Type() string { return TypeTyping }

func (r *TypingRequest) validate() error {
	if r.SessionId < 0 {
		return invalidMessage("sessionId must be positive")
	}
	return nil
}

func (r *TypingRequest) defaultSession(id int) {
	if r.SessionId == 0 {
		r.SessionId = id
	}
}

type JoinSessionRequest struct {
	SessionId int `json:"sessionId"`
}

func (r *JoinSessionRequest) Type() string { return TypeJoinSession }

func (r *JoinSessionRequest) validate() error {
	if r.SessionId <= 0 {
		return invalidMessage("sessionId is required")
	}
	return nil
}

func (r *JoinSessionRequest) defaultSession(id int) {
	if r.SessionId == 0 {
		r.SessionId = id
	}
}

type EndSessionRequest struct {
	SessionId int `json:"sessionId"`
}

func (r *EndSessionRequest) Type() string { return TypeEndSession }

func (r *EndSessionRequest) validate() error {
	if r.SessionId < 0 {
		return invalidMessage("sessionId must be positive")
	}
	return nil
}

func (r *EndSessionRequest) defaultSession(id int) {
	if r.SessionId == 0 {
		r.SessionId = id
	}
}

type AdminStatusRequest struct {
	Status        string  `json:"status"`
	StatusMessage *string `json:"statusMessage"`
}

func (r *AdminStatusRequest) Type() string { return TypeAdminStatusUpdate }

func (r *AdminStatusRequest) validate() error {
	switch r.Status {
	case database.AdminStatusOnline, database.AdminStatusOffline,
		database.AdminStatusBusy, database.AdminStatusAway:
		return nil
	}
	return invalidMessage("status must be one of online, offline, busy, away")
}

type PingRequest struct{}

func (r *PingRequest) Type() string    { return TypePing }
func (r *PingRequest) validate() error { return nil }

type DebugStateRequest struct{}

func (r *DebugStateRequest) Type() string    { return TypeDebugState }
func (r *DebugStateRequest) validate() error { return nil }

func newRequest(msgType string) (Request, error) {
	switch msgType {
	case TypeAuth:
		return &AuthRequest{}, nil
	case TypeStartSession:
		return &StartSessionRequest{}, nil
	case TypeSendMessage:
		return &SendMessageRequest{}, nil
	case TypeTyping:
		return &TypingRequest{}, nil
	case TypeJoinSession:
		return &JoinSessionRequest{}, nil
	case TypeEndSession:
		return &EndSessionRequest{}, nil
	case TypeAdminStatusUpdate:
		return &AdminStatusRequest{}, nil
	case TypePing:
		return &PingRequest{}, nil
	case TypeDebugState:
		return &DebugStateRequest{}, nil
	case "":
		return nil, invalidMessage("type is required")
	default:
		return nil, ErrUnknownMessageType
	}
}

// parseRequest decodes a raw frame into its typed payload.
func parseRequest(raw []byte) (Request, error) {
	var frame ClientMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, ErrInvalidMessage
	}

	req, err := newRequest(frame.Type)
	if err != nil {
		return nil, err
	}

	if len(frame.Data) > 0 && string(frame.Data) != "null" {
		if err := json.Unmarshal(frame.Data, req); err != nil {
			return nil, ErrInvalidMessage
		}
	}

	if s, ok := req.(sessionScoped); ok && frame.SessionId > 0 {
		s.defaultSession(frame.SessionId)
	}
	if auth, ok := req.(*AuthRequest); ok && auth.UserId == 0 {
		auth.UserId = frame.UserId
	}

	if err := req.validate(); err != nil {
		return nil, err
	}

	return req, nil
}

type ServerMessage struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	SessionId int       `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type AuthSuccess struct {
	UserId  int  `json:"userId"`
	IsAdmin bool `json:"isAdmin"`
}

type NewSession struct {
	Session types.ChatSession `json:"session"`
	User    *types.User       `json:"user,omitempty"`
}

type TypingIndicator struct {
	UserId    int  `json:"userId"`
	SessionId int  `json:"sessionId"`
	IsTyping  bool `json:"isTyping"`
}

type AdminJoined struct {
	AdminId  int    `json:"adminId"`
	Username string `json:"username"`
}

type SessionUpdate struct {
	SessionId       int    `json:"sessionId"`
	Status          string `json:"status"`
	AssignedAdminId *int   `json:"assignedAdminId,omitempty"`
}

type SessionEnded struct {
	SessionId int       `json:"sessionId"`
	EndedAt   time.Time `json:"endedAt"`
}

type DebugState struct {
	Connections int              `json:"connections"`
	Users       map[int][]string `json:"users"`
	Admins      map[int][]string `json:"admins"`
	Sessions    map[int][]string `json:"sessions"`
	TypingKeys  int              `json:"typingKeys"`
}

func newServerMessage(msgType string, sessionId int, data any) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Data:      data,
		SessionId: sessionId,
		Timestamp: Now(),
	}
}

func AuthSuccessMessage(userId int, isAdmin bool) *ServerMessage {
	return newServerMessage(EventAuthSuccess, 0, AuthSuccess{UserId: userId, IsAdmin: isAdmin})
}

func SessionMessage(eventType string, s database.ChatSession) *ServerMessage {
	return newServerMessage(eventType, s.Id, types.ChatSessionFromDB(s))
}

func NewSessionMessage(s database.ChatSession, user *types.User) *ServerMessage {
	return newServerMessage(EventNewSession, s.Id, NewSession{Session: types.ChatSessionFromDB(s), User: user})
}

func ChatMessageEvent(msg types.ChatMessage) *ServerMessage {
	return newServerMessage(EventMessage, msg.SessionId, msg)
}

func TypingMessage(userId, sessionId int, isTyping bool) *ServerMessage {
	return newServerMessage(EventTyping, sessionId, TypingIndicator{
		UserId:    userId,
		SessionId: sessionId,
		IsTyping:  isTyping,
	})
}

func AdminJoinedMessage(sessionId, adminId int, username string) *ServerMessage {
	return newServerMessage(EventAdminJoined, sessionId, AdminJoined{AdminId: adminId, Username: username})
}

func SessionUpdateMessage(s database.ChatSession) *ServerMessage {
	return newServerMessage(EventSessionUpdate, s.Id, SessionUpdate{
		SessionId:       s.Id,
		Status:          s.Status,
		AssignedAdminId: s.AssignedAdminId,
	})
}

func SessionEndedMessage(sessionId int, endedAt time.Time) *ServerMessage {
	return newServerMessage(EventSessionEnded, sessionId, SessionEnded{SessionId: sessionId, EndedAt: endedAt})
}

func StatusUpdatedMessage(st database.AdminChatStatus) *ServerMessage {
	return newServerMessage(EventStatusUpdated, 0, types.AdminChatStatusFromDB(st))
}

func PongMessage() *ServerMessage {
	return newServerMessage(EventPong, 0, nil)
}

func DebugCompleteMessage(state DebugState) *ServerMessage {
	return newServerMessage(EventDebugComplete, 0, state)
}

func ErrorMessage(err error) *ServerMessage {
	return newServerMessage(EventError, 0, errorPayload(err))
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
