package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = fmt.Errorf("record not found: %w", sql.ErrNoRows)

type ChatRepository interface {
	Ping() error
	GetUser(ctx context.Context, id int) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	CreateChatSession(ctx context.Context, params CreateChatSessionParams) (ChatSession, error)
	GetChatSession(ctx context.Context, id int) (ChatSession, error)
	UpdateChatSession(ctx context.Context, id int, patch ChatSessionPatch) (ChatSession, error)
	GetUserActiveChatSession(ctx context.Context, userId int) (*ChatSession, error)
	ListActiveChatSessions(ctx context.Context) ([]ChatSession, error)
	CreateChatMessage(ctx context.Context, params CreateChatMessageParams) (ChatMessage, error)
	GetChatMessages(ctx context.Context, sessionId int) ([]ChatMessage, error)
	GetChatMessagesWithSenders(ctx context.Context, sessionId int) ([]ChatMessageWithSender, error)
	GetAvailableAdmins(ctx context.Context) ([]AdminChatStatus, error)
	UpsertAdminChatStatus(ctx context.Context, userId int, patch AdminChatStatusPatch) (AdminChatStatus, error)
	GetAdminChatStats(ctx context.Context, adminId int) (AdminChatStats, error)
}

// notFound maps sql.ErrNoRows to ErrNotFound and leaves other errors alone.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
