package types

import (
	"time"

	"github.com/npezzotti/go-livechat/internal/database"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email,omitempty"`
	Role         string    `json:"role,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

type ChatSession struct {
	Id              int            `json:"id"`
	ExternalId      string         `json:"externalId"`
	UserId          int            `json:"userId"`
	AssignedAdminId *int           `json:"assignedAdminId"`
	Status          string         `json:"status"`
	Subject         string         `json:"subject"`
	Department      string         `json:"department"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	LastActivityAt  time.Time      `json:"lastActivityAt"`
	EndedAt         *time.Time     `json:"endedAt,omitempty"`
	ConvertedAt     *time.Time     `json:"convertedAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

type ChatMessage struct {
	Id          int       `json:"id"`
	SessionId   int       `json:"sessionId"`
	UserId      int       `json:"userId"`
	Message     string    `json:"message"`
	IsFromAdmin bool      `json:"isFromAdmin"`
	MessageType string    `json:"messageType"`
	Timestamp   time.Time `json:"timestamp"`
	Sender      *User     `json:"sender,omitempty"`
}

type AdminChatStatus struct {
	UserId             int       `json:"userId"`
	Status             string    `json:"status"`
	StatusMessage      string    `json:"statusMessage"`
	MaxConcurrentChats int       `json:"maxConcurrentChats"`
	AutoAssign         bool      `json:"autoAssign"`
	LastSeenAt         time.Time `json:"lastSeenAt"`
}

type AdminStats struct {
	AdminId        int `json:"adminId"`
	ActiveSessions int `json:"activeSessions"`
	TotalMessages  int `json:"totalMessages"`
}

func UserFromDB(u database.User) User {
	return User{
		Id:           u.Id,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		Role:         u.Role,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func ChatSessionFromDB(s database.ChatSession) ChatSession {
	return ChatSession{
		Id:              s.Id,
		ExternalId:      s.ExternalId,
		UserId:          s.UserId,
		AssignedAdminId: s.AssignedAdminId,
		Status:          s.Status,
		Subject:         s.Subject,
		Department:      s.Department,
		Metadata:        s.Metadata,
		LastActivityAt:  s.LastActivityAt,
		EndedAt:         s.EndedAt,
		ConvertedAt:     s.ConvertedAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func ChatSessionsFromDB(sessions []database.ChatSession) []ChatSession {
	out := make([]ChatSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, ChatSessionFromDB(s))
	}
	return out
}

func ChatMessageFromDB(m database.ChatMessage) ChatMessage {
	return ChatMessage{
		Id:          m.Id,
		SessionId:   m.SessionId,
		UserId:      m.UserId,
		Message:     m.Message,
		IsFromAdmin: m.IsFromAdmin,
		MessageType: m.MessageType,
		Timestamp:   m.CreatedAt,
	}
}

func ChatMessagesFromDB(messages []database.ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, ChatMessageFromDB(m))
	}
	return out
}

func ChatMessagesWithSendersFromDB(messages []database.ChatMessageWithSender) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		msg := ChatMessageFromDB(m.ChatMessage)
		sender := UserFromDB(m.Sender)
		msg.Sender = &sender
		out = append(out, msg)
	}
	return out
}

func AdminChatStatusFromDB(s database.AdminChatStatus) AdminChatStatus {
	return AdminChatStatus{
		UserId:             s.UserId,
		Status:             s.Status,
		StatusMessage:      s.StatusMessage,
		MaxConcurrentChats: s.MaxConcurrentChats,
		AutoAssign:         s.AutoAssign,
		LastSeenAt:         s.LastSeenAt,
	}
}
