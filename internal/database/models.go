package database

import "time"

const (
	SessionStatusWaiting           = "waiting"
	SessionStatusActive            = "active"
	SessionStatusClosed            = "closed"
	SessionStatusConvertedToTicket = "converted_to_ticket"

	AdminStatusOnline  = "online"
	AdminStatusOffline = "offline"
	AdminStatusBusy    = "busy"
	AdminStatusAway    = "away"

	RoleAdmin  = "admin"
	RoleClient = "client"

	MessageTypeText = "text"

	DefaultDepartment         = "general"
	DefaultMaxConcurrentChats = 5
)

type User struct {
	Id           int
	Username     string
	EmailAddress string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type ChatSession struct {
	Id              int
	ExternalId      string
	UserId          int
	AssignedAdminId *int
	Status          string
	Subject         string
	Department      string
	Metadata        map[string]any
	LastActivityAt  time.Time
	EndedAt         *time.Time
	ConvertedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Open reports whether the session is in a non-terminal state.
func (s ChatSession) Open() bool {
	return s.Status == SessionStatusWaiting || s.Status == SessionStatusActive
}

type ChatMessage struct {
	Id          int
	SessionId   int
	UserId      int
	Message     string
	IsFromAdmin bool
	MessageType string
	CreatedAt   time.Time
}

type ChatMessageWithSender struct {
	ChatMessage
	Sender User
}

type AdminChatStatus struct {
	UserId             int
	Username           string
	Status             string
	StatusMessage      string
	MaxConcurrentChats int
	AutoAssign         bool
	LastSeenAt         time.Time
	UpdatedAt          time.Time
}

type AdminChatStats struct {
	AdminId        int
	ActiveSessions int
	TotalMessages  int
}

type CreateChatSessionParams struct {
	ExternalId string
	UserId     int
	Subject    string
	Department string
	Metadata   map[string]any
}

// ChatSessionPatch holds the columns to change; nil fields are left as is.
type ChatSessionPatch struct {
	AssignedAdminId *int
	Status          *string
	LastActivityAt  *time.Time
	EndedAt         *time.Time
	ConvertedAt     *time.Time
	Metadata        map[string]any
}

type CreateChatMessageParams struct {
	SessionId   int
	UserId      int
	Message     string
	IsFromAdmin bool
	MessageType string
}

type AdminChatStatusPatch struct {
	Status             *string
	StatusMessage      *string
	MaxConcurrentChats *int
	AutoAssign         *bool
	LastSeenAt         *time.Time
}
