package server

import (
	"context"
	"errors"

	"github.com/npezzotti/go-livechat/internal/database"
)

// The methods below serve the HTTP admin surface. They run on the event
// loop so that broadcasts observe the same registries as socket handlers.

func (cs *ChatServer) ListActiveSessions(ctx context.Context) ([]database.ChatSession, error) {
	var (
		sessions []database.ChatSession
		err      error
	)
	if execErr := cs.exec(ctx, func(ctx context.Context) {
		dbCtx, cancel := context.WithTimeout(ctx, cs.dbTimeout)
		defer cancel()
		sessions, err = cs.db.ListActiveChatSessions(dbCtx)
	}); execErr != nil {
		return nil, execErr
	}
	if err != nil {
		return nil, persistenceError("list active sessions", err)
	}

	return sessions, nil
}

// SessionMessages returns the session history, optionally with sender
// profiles attached.
func (cs *ChatServer) SessionMessages(ctx context.Context, sessionId int, withSenders bool) ([]database.ChatMessageWithSender, error) {
	var (
		messages []database.ChatMessageWithSender
		err      error
	)
	if execErr := cs.exec(ctx, func(ctx context.Context) {
		dbCtx, cancel := context.WithTimeout(ctx, cs.dbTimeout)
		defer cancel()

		if _, err = cs.db.GetChatSession(dbCtx, sessionId); err != nil {
			return
		}

		if withSenders {
			messages, err = cs.db.GetChatMessagesWithSenders(dbCtx, sessionId)
			return
		}

		var plain []database.ChatMessage
		plain, err = cs.db.GetChatMessages(dbCtx, sessionId)
		for _, m := range plain {
			messages = append(messages, database.ChatMessageWithSender{ChatMessage: m})
		}
	}); execErr != nil {
		return nil, execErr
	}

	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, persistenceError("get session messages", err)
	}

	return messages, nil
}

func (cs *ChatServer) AdminStats(ctx context.Context, adminId int) (database.AdminChatStats, error) {
	var (
		st  database.AdminChatStats
		err error
	)
	if execErr := cs.exec(ctx, func(ctx context.Context) {
		dbCtx, cancel := context.WithTimeout(ctx, cs.dbTimeout)
		defer cancel()
		st, err = cs.db.GetAdminChatStats(dbCtx, adminId)
	}); execErr != nil {
		return database.AdminChatStats{}, execErr
	}
	if err != nil {
		return database.AdminChatStats{}, persistenceError("get admin stats", err)
	}

	return st, nil
}

// AssignSession force-assigns a session to an admin, activates it and
// notifies its members.
func (cs *ChatServer) AssignSession(ctx context.Context, sessionId, adminId int) (database.ChatSession, error) {
	var (
		session database.ChatSession
		err     error
	)
	if execErr := cs.exec(ctx, func(ctx context.Context) {
		dbCtx, cancel := context.WithTimeout(ctx, cs.dbTimeout)
		defer cancel()
		session, err = cs.assignSession(dbCtx, sessionId, adminId)
	}); execErr != nil {
		return database.ChatSession{}, execErr
	}

	return session, err
}

func (cs *ChatServer) assignSession(ctx context.Context, sessionId, adminId int) (database.ChatSession, error) {
	admin, err := cs.db.GetUser(ctx, adminId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.ChatSession{}, ErrInvalidUser
		}
		return database.ChatSession{}, persistenceError("get user", err)
	}
	if !admin.IsAdmin() {
		return database.ChatSession{}, ErrAdminRequired
	}

	current, err := cs.db.GetChatSession(ctx, sessionId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.ChatSession{}, ErrSessionNotFound
		}
		return database.ChatSession{}, persistenceError("get session", err)
	}
	if !current.Open() {
		return database.ChatSession{}, ErrSessionClosed
	}

	status := database.SessionStatusActive
	session, err := cs.db.UpdateChatSession(ctx, sessionId, database.ChatSessionPatch{
		Status:          &status,
		AssignedAdminId: &admin.Id,
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.ChatSession{}, ErrSessionNotFound
		}
		return database.ChatSession{}, persistenceError("assign session", err)
	}

	cs.broadcastToSession(sessionId, SessionUpdateMessage(session), "")
	cs.log.Info().Int("session_id", sessionId).Int("admin_id", adminId).Msg("session assigned")

	return session, nil
}

// ForceEndSession closes a session on behalf of an admin with the same
// teardown as an end_session request.
func (cs *ChatServer) ForceEndSession(ctx context.Context, sessionId int) (database.ChatSession, error) {
	var (
		session database.ChatSession
		err     error
	)
	if execErr := cs.exec(ctx, func(ctx context.Context) {
		dbCtx, cancel := context.WithTimeout(ctx, cs.dbTimeout)
		defer cancel()
		session, err = cs.endSession(dbCtx, sessionId)
	}); execErr != nil {
		return database.ChatSession{}, execErr
	}

	return session, err
}
