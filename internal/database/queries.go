package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	sessionColumns = "id, external_id, user_id, assigned_admin_id, status, subject, department, " +
		"metadata, last_activity_at, ended_at, converted_at, created_at, updated_at"
	messageColumns     = "id, session_id, user_id, message, is_from_admin, message_type, created_at"
	adminStatusColumns = "user_id, status, status_message, max_concurrent_chats, auto_assign, last_seen_at, updated_at"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (ChatSession, error) {
	var (
		s               ChatSession
		assignedAdminId sql.NullInt64
		metadata        []byte
		endedAt         sql.NullTime
		convertedAt     sql.NullTime
	)

	err := row.Scan(
		&s.Id,
		&s.ExternalId,
		&s.UserId,
		&assignedAdminId,
		&s.Status,
		&s.Subject,
		&s.Department,
		&metadata,
		&s.LastActivityAt,
		&endedAt,
		&convertedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return ChatSession{}, err
	}

	if assignedAdminId.Valid {
		id := int(assignedAdminId.Int64)
		s.AssignedAdminId = &id
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	if convertedAt.Valid {
		s.ConvertedAt = &convertedAt.Time
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return ChatSession{}, fmt.Errorf("decode session metadata: %w", err)
		}
	}

	return s, nil
}

func scanMessage(row rowScanner) (ChatMessage, error) {
	var m ChatMessage
	err := row.Scan(
		&m.Id,
		&m.SessionId,
		&m.UserId,
		&m.Message,
		&m.IsFromAdmin,
		&m.MessageType,
		&m.CreatedAt,
	)
	return m, err
}

func scanAdminStatus(row rowScanner) (AdminChatStatus, error) {
	var s AdminChatStatus
	err := row.Scan(
		&s.UserId,
		&s.Status,
		&s.StatusMessage,
		&s.MaxConcurrentChats,
		&s.AutoAssign,
		&s.LastSeenAt,
		&s.UpdatedAt,
	)
	return s, err
}

func encodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return json.Marshal(metadata)
}

func (db *PgChatRepository) GetUser(ctx context.Context, id int) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, email, role, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, notFound(err)
}

func (db *PgChatRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, email, role, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.Role,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, notFound(err)
}

func (db *PgChatRepository) CreateChatSession(ctx context.Context, params CreateChatSessionParams) (ChatSession, error) {
	metadata, err := encodeMetadata(params.Metadata)
	if err != nil {
		return ChatSession{}, fmt.Errorf("encode session metadata: %w", err)
	}

	department := params.Department
	if department == "" {
		department = DefaultDepartment
	}

	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO chat_sessions (external_id, user_id, status, subject, department, metadata, "+
			"last_activity_at, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $7) RETURNING "+sessionColumns,
		params.ExternalId,
		params.UserId,
		SessionStatusWaiting,
		params.Subject,
		department,
		metadata,
		now,
	)

	return scanSession(row)
}

func (db *PgChatRepository) GetChatSession(ctx context.Context, id int) (ChatSession, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM chat_sessions WHERE id = $1 LIMIT 1",
		id,
	)

	s, err := scanSession(row)
	return s, notFound(err)
}

func (db *PgChatRepository) UpdateChatSession(ctx context.Context, id int, patch ChatSessionPatch) (ChatSession, error) {
	var (
		sets []string
		args []any
	)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.AssignedAdminId != nil {
		add("assigned_admin_id", *patch.AssignedAdminId)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.LastActivityAt != nil {
		add("last_activity_at", *patch.LastActivityAt)
	}
	if patch.EndedAt != nil {
		add("ended_at", *patch.EndedAt)
	}
	if patch.ConvertedAt != nil {
		add("converted_at", *patch.ConvertedAt)
	}
	if patch.Metadata != nil {
		metadata, err := encodeMetadata(patch.Metadata)
		if err != nil {
			return ChatSession{}, fmt.Errorf("encode session metadata: %w", err)
		}
		add("metadata", metadata)
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE chat_sessions SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "),
		len(args),
		sessionColumns,
	)

	s, err := scanSession(db.conn.QueryRowContext(ctx, query, args...))
	return s, notFound(err)
}

// GetUserActiveChatSession returns the user's most recent open session, or
// nil if there is none.
func (db *PgChatRepository) GetUserActiveChatSession(ctx context.Context, userId int) (*ChatSession, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM chat_sessions "+
			"WHERE user_id = $1 AND status IN ($2, $3) ORDER BY created_at DESC LIMIT 1",
		userId,
		SessionStatusWaiting,
		SessionStatusActive,
	)

	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &s, nil
}

func (db *PgChatRepository) ListActiveChatSessions(ctx context.Context) ([]ChatSession, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM chat_sessions "+
			"WHERE status IN ($1, $2) ORDER BY last_activity_at DESC",
		SessionStatusWaiting,
		SessionStatusActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]ChatSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return sessions, nil
}

func (db *PgChatRepository) CreateChatMessage(ctx context.Context, params CreateChatMessageParams) (ChatMessage, error) {
	messageType := params.MessageType
	if messageType == "" {
		messageType = MessageTypeText
	}

	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO chat_messages (session_id, user_id, message, is_from_admin, message_type, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+messageColumns,
		params.SessionId,
		params.UserId,
		params.Message,
		params.IsFromAdmin,
		messageType,
		time.Now().UTC(),
	)

	return scanMessage(row)
}

func (db *PgChatRepository) GetChatMessages(ctx context.Context, sessionId int) ([]ChatMessage, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM chat_messages WHERE session_id = $1 ORDER BY created_at ASC, id ASC",
		sessionId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]ChatMessage, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}

func (db *PgChatRepository) GetChatMessagesWithSenders(ctx context.Context, sessionId int) ([]ChatMessageWithSender, error) {
	query := `
		SELECT
				m.id,
				m.session_id,
				m.user_id,
				m.message,
				m.is_from_admin,
				m.message_type,
				m.created_at,
				a.username,
				a.email,
				a.role
		FROM chat_messages m
		JOIN accounts a ON a.id = m.user_id
		WHERE m.session_id = $1
		ORDER BY m.created_at ASC, m.id ASC;
`

	rows, err := db.conn.QueryContext(ctx, query, sessionId)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages with senders: %w", err)
	}
	defer rows.Close()

	messages := make([]ChatMessageWithSender, 0)
	for rows.Next() {
		var m ChatMessageWithSender
		err := rows.Scan(
			&m.Id,
			&m.SessionId,
			&m.UserId,
			&m.Message,
			&m.IsFromAdmin,
			&m.MessageType,
			&m.CreatedAt,
			&m.Sender.Username,
			&m.Sender.EmailAddress,
			&m.Sender.Role,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		m.Sender.Id = m.UserId
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}

func (db *PgChatRepository) GetAvailableAdmins(ctx context.Context) ([]AdminChatStatus, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT s.user_id, s.status, s.status_message, s.max_concurrent_chats, s.auto_assign, "+
			"s.last_seen_at, s.updated_at, a.username FROM admin_chat_status s "+
			"JOIN accounts a ON a.id = s.user_id WHERE s.status = $1",
		AdminStatusOnline,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	admins := make([]AdminChatStatus, 0)
	for rows.Next() {
		var s AdminChatStatus
		err := rows.Scan(
			&s.UserId,
			&s.Status,
			&s.StatusMessage,
			&s.MaxConcurrentChats,
			&s.AutoAssign,
			&s.LastSeenAt,
			&s.UpdatedAt,
			&s.Username,
		)
		if err != nil {
			return nil, fmt.Errorf("scan admin status: %w", err)
		}
		admins = append(admins, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return admins, nil
}

func (db *PgChatRepository) UpsertAdminChatStatus(ctx context.Context, userId int, patch AdminChatStatusPatch) (AdminChatStatus, error) {
	lastSeen := time.Now().UTC()
	if patch.LastSeenAt != nil {
		lastSeen = *patch.LastSeenAt
	}

	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO admin_chat_status ("+adminStatusColumns+") "+
			"VALUES ($1, COALESCE($2::text, 'offline'), COALESCE($3::text, ''), COALESCE($4::integer, $7::integer), "+
			"COALESCE($5::boolean, true), $6, $6) "+
			"ON CONFLICT (user_id) DO UPDATE SET "+
			"status = COALESCE($2::text, admin_chat_status.status), "+
			"status_message = COALESCE($3::text, admin_chat_status.status_message), "+
			"max_concurrent_chats = COALESCE($4::integer, admin_chat_status.max_concurrent_chats), "+
			"auto_assign = COALESCE($5::boolean, admin_chat_status.auto_assign), "+
			"last_seen_at = $6, updated_at = $6 "+
			"RETURNING "+adminStatusColumns,
		userId,
		patch.Status,
		patch.StatusMessage,
		patch.MaxConcurrentChats,
		patch.AutoAssign,
		lastSeen,
		DefaultMaxConcurrentChats,
	)

	return scanAdminStatus(row)
}

func (db *PgChatRepository) GetAdminChatStats(ctx context.Context, adminId int) (AdminChatStats, error) {
	stats := AdminChatStats{AdminId: adminId}

	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chat_sessions WHERE assigned_admin_id = $1 AND status IN ($2, $3)",
		adminId,
		SessionStatusWaiting,
		SessionStatusActive,
	).Scan(&stats.ActiveSessions)
	if err != nil {
		return AdminChatStats{}, fmt.Errorf("count active sessions: %w", err)
	}

	err = db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chat_messages WHERE user_id = $1 AND is_from_admin = true",
		adminId,
	).Scan(&stats.TotalMessages)
	if err != nil {
		return AdminChatStats{}, fmt.Errorf("count admin messages: %w", err)
	}

	return stats, nil
}
