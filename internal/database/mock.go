package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) GetUser(ctx context.Context, id int) (User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) CreateChatSession(ctx context.Context, params CreateChatSessionParams) (ChatSession, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(ChatSession), args.Error(1)
}
func (m *MockChatRepository) GetChatSession(ctx context.Context, id int) (ChatSession, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(ChatSession), args.Error(1)
}
func (m *MockChatRepository) UpdateChatSession(ctx context.Context, id int, patch ChatSessionPatch) (ChatSession, error) {
	args := m.Called(ctx, id, patch)
	return args.Get(0).(ChatSession), args.Error(1)
}
func (m *MockChatRepository) GetUserActiveChatSession(ctx context.Context, userId int) (*ChatSession, error) {
	args := m.Called(ctx, userId)
	if s, ok := args.Get(0).(*ChatSession); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) ListActiveChatSessions(ctx context.Context) ([]ChatSession, error) {
	args := m.Called(ctx)
	return args.Get(0).([]ChatSession), args.Error(1)
}
func (m *MockChatRepository) CreateChatMessage(ctx context.Context, params CreateChatMessageParams) (ChatMessage, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(ChatMessage), args.Error(1)
}
func (m *MockChatRepository) GetChatMessages(ctx context.Context, sessionId int) ([]ChatMessage, error) {
	args := m.Called(ctx, sessionId)
	return args.Get(0).([]ChatMessage), args.Error(1)
}
func (m *MockChatRepository) GetChatMessagesWithSenders(ctx context.Context, sessionId int) ([]ChatMessageWithSender, error) {
	args := m.Called(ctx, sessionId)
	return args.Get(0).([]ChatMessageWithSender), args.Error(1)
}
func (m *MockChatRepository) GetAvailableAdmins(ctx context.Context) ([]AdminChatStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).([]AdminChatStatus), args.Error(1)
}
func (m *MockChatRepository) UpsertAdminChatStatus(ctx context.Context, userId int, patch AdminChatStatusPatch) (AdminChatStatus, error) {
	args := m.Called(ctx, userId, patch)
	return args.Get(0).(AdminChatStatus), args.Error(1)
}
func (m *MockChatRepository) GetAdminChatStats(ctx context.Context, adminId int) (AdminChatStats, error) {
	args := m.Called(ctx, adminId)
	return args.Get(0).(AdminChatStats), args.Error(1)
}
