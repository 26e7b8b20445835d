package server

import (
	"context"
	"errors"
	"time"

	"github.com/npezzotti/go-livechat/internal/database"
	"github.com/npezzotti/go-livechat/internal/stats"
	"github.com/npezzotti/go-livechat/internal/types"
	"github.com/teris-io/shortid"
)

func (cs *ChatServer) dispatch(c *Client, req Request) {
	if _, ok := cs.clients[c.id]; !ok {
		cs.log.Debug().Str("conn_id", c.id).Str("type", req.Type()).Msg("dropping message from closed connection")
		return
	}

	ctx, cancel := cs.dbContext()
	defer cancel()

	var err error
	switch r := req.(type) {
	case *AuthRequest:
		err = cs.handleAuth(ctx, c, r)
	case *StartSessionRequest:
		err = cs.handleStartSession(ctx, c, r)
	case *SendMessageRequest:
		err = cs.handleSendMessage(ctx, c, r)
	case *TypingRequest:
		err = cs.handleTyping(c, r)
	case *JoinSessionRequest:
		err = cs.handleJoinSession(ctx, c, r)
	case *EndSessionRequest:
		err = cs.handleEndSession(ctx, c, r)
	case *AdminStatusRequest:
		err = cs.handleAdminStatus(ctx, c, r)
	case *PingRequest:
		c.queueMessage(PongMessage())
	case *DebugStateRequest:
		err = cs.handleDebugState(c)
	default:
		err = ErrUnknownMessageType
	}

	if err != nil {
		ev := cs.log.Warn()
		if errors.Is(err, ErrPersistence) {
			ev = cs.log.Error()
		}
		ev.Err(err).Str("conn_id", c.id).Int("user_id", c.userId).Str("type", req.Type()).Msg("request failed")
		c.queueMessage(ErrorMessage(err))
	}
}

func (cs *ChatServer) handleAuth(ctx context.Context, c *Client, req *AuthRequest) error {
	if c.authenticated() {
		cs.log.Info().Str("conn_id", c.id).Int("user_id", c.userId).Msg("connection already authenticated, ignoring auth")
		return nil
	}
	if c.boundUserId != 0 && c.boundUserId != req.UserId {
		return ErrInvalidUser
	}

	user, err := cs.db.GetUser(ctx, req.UserId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrInvalidUser
		}
		return persistenceError("get user", err)
	}

	c.userId = user.Id
	c.username = user.Username
	c.isAdmin = req.IsAdmin || user.IsAdmin()

	if c.isAdmin {
		if !cs.admins.Has(c.userId) {
			cs.stats.Incr(stats.NumOnlineAdmins)
		}
		cs.admins.Register(c.userId, c.id)
		if _, err := cs.presence.SetStatus(ctx, c.userId, database.AdminStatusOnline, nil); err != nil {
			cs.log.Error().Err(err).Int("admin_id", c.userId).Msg("failed to mark admin online")
		}
	} else {
		cs.users.Register(c.userId, c.id)
	}

	c.queueMessage(AuthSuccessMessage(c.userId, c.isAdmin))
	cs.log.Info().Str("conn_id", c.id).Int("user_id", c.userId).Bool("admin", c.isAdmin).Msg("connection authenticated")

	if c.isAdmin {
		cs.sendWaitingSessions(ctx, c)
	}

	return nil
}

// sendWaitingSessions lets a newly connected admin catch up on sessions
// that were opened while no admin was online.
func (cs *ChatServer) sendWaitingSessions(ctx context.Context, c *Client) {
	sessions, err := cs.db.ListActiveChatSessions(ctx)
	if err != nil {
		cs.log.Error().Err(err).Int("admin_id", c.userId).Msg("failed to list waiting sessions")
		return
	}

	for _, s := range sessions {
		if s.Status == database.SessionStatusWaiting && s.AssignedAdminId == nil {
			c.queueMessage(NewSessionMessage(s, nil))
		}
	}
}

func (cs *ChatServer) handleStartSession(ctx context.Context, c *Client, req *StartSessionRequest) error {
	if !c.authenticated() {
		return ErrNotAuthenticated
	}

	existing, err := cs.db.GetUserActiveChatSession(ctx, c.userId)
	if err != nil {
		return persistenceError("get active session", err)
	}
	if existing != nil {
		cs.attach(c, existing.Id)
		c.queueMessage(SessionMessage(EventSessionResumed, *existing))
		cs.log.Info().Int("session_id", existing.Id).Int("user_id", c.userId).Msg("session resumed")
		return nil
	}

	externalId, err := shortid.Generate()
	if err != nil {
		return persistenceError("generate session reference", err)
	}

	session, err := cs.db.CreateChatSession(ctx, database.CreateChatSessionParams{
		ExternalId: externalId,
		UserId:     c.userId,
		Subject:    req.Subject,
		Department: req.Department,
		Metadata: map[string]any{
			"source":  "websocket",
			"subject": req.Subject,
		},
	})
	if err != nil {
		return persistenceError("create session", err)
	}
	cs.stats.Incr(stats.NumSessionsOpened)

	cs.attach(c, session.Id)
	c.queueMessage(SessionMessage(EventSessionStarted, session))
	cs.log.Info().Int("session_id", session.Id).Str("external_id", session.ExternalId).Int("user_id", c.userId).Msg("session started")

	cs.notifyAdmins(ctx, session, &types.User{Id: c.userId, Username: c.username})

	return nil
}

// notifyAdmins fans new_session out to every connection of every available
// admin. Failures are logged per recipient.
func (cs *ChatServer) notifyAdmins(ctx context.Context, session database.ChatSession, user *types.User) {
	admins, err := cs.presence.AvailableAdmins(ctx)
	if err != nil {
		cs.log.Error().Err(err).Int("session_id", session.Id).Msg("failed to load available admins")
		return
	}

	msg := NewSessionMessage(session, user)
	ids := make([]int, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.UserId)
		conns := cs.admins.Lookup(a.UserId)
		if n := cs.deliver(conns, msg, ""); n < len(conns) {
			cs.log.Warn().Int("admin_id", a.UserId).Int("delivered", n).Int("connections", len(conns)).Msg("new_session not delivered to every admin connection")
		}
	}

	if len(ids) > 0 {
		cs.publish(Relay{Kind: RelayAdmins, AdminIds: ids, Message: msg})
	}
}

func (cs *ChatServer) handleSendMessage(ctx context.Context, c *Client, req *SendMessageRequest) error {
	if !c.authenticated() {
		return ErrNotAuthenticated
	}
	if c.sessionId != 0 && c.sessionId != req.SessionId {
		return ErrSessionMismatch
	}

	if _, err := cs.db.GetChatSession(ctx, req.SessionId); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrSessionNotFound
		}
		return persistenceError("get session", err)
	}

	if c.sessionId == 0 {
		cs.log.Info().Str("conn_id", c.id).Int("session_id", req.SessionId).Msg("attaching connection to session on send")
		cs.attach(c, req.SessionId)
	}

	msg, err := cs.db.CreateChatMessage(ctx, database.CreateChatMessageParams{
		SessionId:   req.SessionId,
		UserId:      c.userId,
		Message:     req.Message,
		IsFromAdmin: c.isAdmin,
		MessageType: database.MessageTypeText,
	})
	if err != nil {
		return persistenceError("create message", err)
	}

	lastActivity := msg.CreatedAt
	if _, err := cs.db.UpdateChatSession(ctx, req.SessionId, database.ChatSessionPatch{LastActivityAt: &lastActivity}); err != nil {
		cs.log.Error().Err(err).Int("session_id", req.SessionId).Msg("failed to update session activity")
	}

	sender := types.User{Id: c.userId, Username: c.username}
	if u, err := cs.db.GetUser(ctx, c.userId); err != nil {
		cs.log.Error().Err(err).Int("user_id", c.userId).Msg("failed to load sender profile")
	} else {
		sender = types.UserFromDB(u)
	}

	out := types.ChatMessageFromDB(msg)
	out.Sender = &sender
	cs.broadcastToSession(req.SessionId, ChatMessageEvent(out), "")
	cs.stats.Incr(stats.NumMessagesSent)

	return nil
}

func (cs *ChatServer) handleTyping(c *Client, req *TypingRequest) error {
	if !c.authenticated() {
		return ErrNotAuthenticated
	}
	if c.sessionId == 0 {
		return ErrNoActiveSession
	}

	sessionId := req.SessionId
	if sessionId == 0 {
		sessionId = c.sessionId
	}
	if sessionId != c.sessionId {
		return ErrSessionMismatch
	}

	key := typingKey{userId: c.userId, sessionId: sessionId}
	if req.IsTyping {
		cs.broadcastToSession(sessionId, TypingMessage(c.userId, sessionId, true), c.id)
		cs.typing.arm(key, c.id)
		return nil
	}

	cs.typing.cancel(key)
	cs.broadcastToSession(sessionId, TypingMessage(c.userId, sessionId, false), c.id)

	return nil
}

func (cs *ChatServer) handleJoinSession(ctx context.Context, c *Client, req *JoinSessionRequest) error {
	if !c.isAdmin {
		return ErrAdminRequired
	}

	session, err := cs.db.GetChatSession(ctx, req.SessionId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrSessionNotFound
		}
		return persistenceError("get session", err)
	}
	if !session.Open() {
		return ErrSessionClosed
	}

	status := database.SessionStatusActive
	patch := database.ChatSessionPatch{Status: &status}
	if session.AssignedAdminId == nil {
		adminId := c.userId
		patch.AssignedAdminId = &adminId
	}

	session, err = cs.db.UpdateChatSession(ctx, req.SessionId, patch)
	if err != nil {
		return persistenceError("update session", err)
	}

	cs.attach(c, session.Id)
	c.queueMessage(SessionMessage(EventSessionJoined, session))
	cs.broadcastToSession(session.Id, AdminJoinedMessage(session.Id, c.userId, c.username), c.id)
	cs.broadcastToSession(session.Id, SessionUpdateMessage(session), "")

	cs.log.Info().Int("session_id", session.Id).Int("admin_id", c.userId).Msg("admin joined session")

	return nil
}

func (cs *ChatServer) handleEndSession(ctx context.Context, c *Client, req *EndSessionRequest) error {
	if !c.authenticated() {
		return ErrNotAuthenticated
	}
	if c.sessionId == 0 {
		return ErrNoActiveSession
	}

	sessionId := req.SessionId
	if sessionId == 0 {
		sessionId = c.sessionId
	}
	if sessionId != c.sessionId {
		return ErrSessionMismatch
	}

	_, err := cs.endSession(ctx, sessionId)
	return err
}

// endSession closes the session, notifies its members and tears down its
// membership. A session already in a terminal state is not written again.
func (cs *ChatServer) endSession(ctx context.Context, sessionId int) (database.ChatSession, error) {
	session, err := cs.db.GetChatSession(ctx, sessionId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.ChatSession{}, ErrSessionNotFound
		}
		return database.ChatSession{}, persistenceError("get session", err)
	}

	if session.Open() {
		now := Now()
		status := database.SessionStatusClosed
		session, err = cs.db.UpdateChatSession(ctx, sessionId, database.ChatSessionPatch{
			Status:  &status,
			EndedAt: &now,
		})
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return database.ChatSession{}, ErrSessionNotFound
			}
			return database.ChatSession{}, persistenceError("close session", err)
		}
	}

	msg := SessionEndedMessage(sessionId, endedAt(session))
	cs.deliver(cs.sessions.Lookup(sessionId), msg, "")
	cs.publish(Relay{Kind: RelaySessionEnded, SessionId: sessionId, Message: msg})
	cs.teardownSession(sessionId)

	cs.log.Info().Int("session_id", sessionId).Str("status", session.Status).Msg("session ended")

	return session, nil
}

func endedAt(s database.ChatSession) time.Time {
	switch {
	case s.EndedAt != nil:
		return *s.EndedAt
	case s.ConvertedAt != nil:
		return *s.ConvertedAt
	default:
		return Now()
	}
}

func (cs *ChatServer) handleAdminStatus(ctx context.Context, c *Client, req *AdminStatusRequest) error {
	if !c.isAdmin {
		return ErrAdminRequired
	}

	st, err := cs.presence.SetStatus(ctx, c.userId, req.Status, req.StatusMessage)
	if err != nil {
		return persistenceError("update admin status", err)
	}

	c.queueMessage(StatusUpdatedMessage(st))
	return nil
}

func (cs *ChatServer) handleDebugState(c *Client) error {
	if !c.isAdmin {
		return ErrAdminRequired
	}

	state := cs.debugState()
	cs.log.Info().
		Int("connections", state.Connections).
		Interface("users", state.Users).
		Interface("admins", state.Admins).
		Interface("sessions", state.Sessions).
		Int("typing_timers", state.TypingKeys).
		Msg("debug state")

	c.queueMessage(DebugCompleteMessage(state))
	return nil
}
