package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/go-livechat/internal/database"
	"github.com/npezzotti/go-livechat/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// joinLoop registers an authenticated connection through the running loop.
func joinLoop(t *testing.T, cs *ChatServer, userId int, isAdmin bool, sessionId int) *Client {
	c := newTestClient(t, cs)
	require.NoError(t, cs.RegisterClient(c))
	inspect(t, cs, func() {
		c.userId, c.isAdmin = userId, isAdmin
		if isAdmin {
			cs.admins.Register(userId, c.id)
		} else {
			cs.users.Register(userId, c.id)
		}
		if sessionId != 0 {
			cs.attach(c, sessionId)
		}
	})
	return c
}

func TestChatServer_ListActiveSessions(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
	runChatServer(t, cs)

	sessions := []database.ChatSession{{Id: 1, Status: database.SessionStatusWaiting}, {Id: 2, Status: database.SessionStatusActive}}
	db.On("ListActiveChatSessions", mock.Anything).Return(sessions, nil).Once()
	db.On("ListActiveChatSessions", mock.Anything).Return([]database.ChatSession(nil), errors.New("timeout")).Once()

	got, err := cs.ListActiveSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sessions, got)

	_, err = cs.ListActiveSessions(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestChatServer_SessionMessages(t *testing.T) {
	now := Now()
	plain := []database.ChatMessage{{Id: 1, SessionId: 10, UserId: 1, Message: "hi", CreatedAt: now}}
	withSenders := []database.ChatMessageWithSender{{
		ChatMessage: plain[0],
		Sender:      database.User{Id: 1, Username: "alice"},
	}}

	tcases := []struct {
		name        string
		withSenders bool
		setup       func(db *database.MockChatRepository)
		expected    []database.ChatMessageWithSender
		err         error
	}{
		{
			name: "plain history",
			setup: func(db *database.MockChatRepository) {
				db.On("GetChatSession", mock.Anything, 10).Return(database.ChatSession{Id: 10}, nil).Once()
				db.On("GetChatMessages", mock.Anything, 10).Return(plain, nil).Once()
			},
			expected: []database.ChatMessageWithSender{{ChatMessage: plain[0]}},
		},
		{
			name:        "with senders",
			withSenders: true,
			setup: func(db *database.MockChatRepository) {
				db.On("GetChatSession", mock.Anything, 10).Return(database.ChatSession{Id: 10}, nil).Once()
				db.On("GetChatMessagesWithSenders", mock.Anything, 10).Return(withSenders, nil).Once()
			},
			expected: withSenders,
		},
		{
			name: "missing session",
			setup: func(db *database.MockChatRepository) {
				db.On("GetChatSession", mock.Anything, 10).Return(database.ChatSession{}, database.ErrNotFound).Once()
			},
			err: ErrSessionNotFound,
		},
		{
			name: "repository failure",
			setup: func(db *database.MockChatRepository) {
				db.On("GetChatSession", mock.Anything, 10).Return(database.ChatSession{Id: 10}, nil).Once()
				db.On("GetChatMessages", mock.Anything, 10).Return([]database.ChatMessage(nil), errors.New("timeout")).Once()
			},
			err: ErrPersistence,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			defer db.AssertExpectations(t)
			cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
			runChatServer(t, cs)
			tc.setup(db)

			got, err := cs.SessionMessages(context.Background(), 10, tc.withSenders)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestChatServer_AdminStats(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
	runChatServer(t, cs)

	db.On("GetAdminChatStats", mock.Anything, 5).
		Return(database.AdminChatStats{AdminId: 5, ActiveSessions: 2, TotalMessages: 40}, nil).Once()

	st, err := cs.AdminStats(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, st.ActiveSessions)
	assert.Equal(t, 40, st.TotalMessages)
}

func TestChatServer_AssignSession(t *testing.T) {
	t.Run("assigns and notifies members", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		runChatServer(t, cs)

		db.On("GetUser", mock.Anything, 5).Return(database.User{Id: 5, Role: database.RoleAdmin}, nil).Once()
		db.On("GetChatSession", mock.Anything, 10).Return(database.ChatSession{Id: 10, Status: database.SessionStatusWaiting}, nil).Once()
		db.On("UpdateChatSession", mock.Anything, 10, mock.MatchedBy(func(p database.ChatSessionPatch) bool {
			return *p.Status == database.SessionStatusActive && *p.AssignedAdminId == 5
		})).Return(database.ChatSession{Id: 10, Status: database.SessionStatusActive, AssignedAdminId: intPtr(5)}, nil).Once()

		user := joinLoop(t, cs, 1, false, 10)

		session, err := cs.AssignSession(context.Background(), 10, 5)
		require.NoError(t, err)
		assert.Equal(t, 5, *session.AssignedAdminId)

		msg := expectMessage(t, user, EventSessionUpdate)
		assert.Equal(t, SessionUpdate{SessionId: 10, Status: "active", AssignedAdminId: intPtr(5)}, msg.Data)
	})

	tcases := []struct {
		name  string
		setup func(db *database.MockChatRepository)
		err   error
	}{
		{
			name: "unknown admin",
			setup: func(db *database.MockChatRepository) {
				db.On("GetUser", mock.Anything, 5).Return(database.User{}, database.ErrNotFound).Once()
			},
			err: ErrInvalidUser,
		},
		{
			name: "target is not an admin",
			setup: func(db *database.MockChatRepository) {
				db.On("GetUser", mock.Anything, 5).Return(database.User{Id: 5, Role: database.RoleClient}, nil).Once()
			},
			err: ErrAdminRequired,
		},
		{
			name: "unknown session",
			setup: func(db *database.MockChatRepository) {
				db.On("GetUser", mock.Anything, 5).Return(database.User{Id: 5, Role: database.RoleAdmin}, nil).Once()
				db.On("GetChatSession", mock.Anything, 10).Return(database.ChatSession{}, database.ErrNotFound).Once()
			},
			err: ErrSessionNotFound,
		},
		{
			name: "closed session",
			setup: func(db *database.MockChatRepository) {
				db.On("GetUser", mock.Anything, 5).Return(database.User{Id: 5, Role: database.RoleAdmin}, nil).Once()
				db.On("GetChatSession", mock.Anything, 10).Return(database.ChatSession{Id: 10, Status: database.SessionStatusClosed}, nil).Once()
			},
			err: ErrSessionClosed,
		},
		{
			name: "converted session",
			setup: func(db *database.MockChatRepository) {
				db.On("GetUser", mock.Anything, 5).Return(database.User{Id: 5, Role: database.RoleAdmin}, nil).Once()
				db.On("GetChatSession", mock.Anything, 10).Return(database.ChatSession{Id: 10, Status: database.SessionStatusConvertedToTicket}, nil).Once()
			},
			err: ErrSessionClosed,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			defer db.AssertExpectations(t)
			cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
			runChatServer(t, cs)
			tc.setup(db)

			_, err := cs.AssignSession(context.Background(), 10, 5)
			assert.ErrorIs(t, err, tc.err)
			db.AssertNotCalled(t, "UpdateChatSession", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestChatServer_ForceEndSession(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
	runChatServer(t, cs)

	db.On("GetChatSession", mock.Anything, 10).Return(database.ChatSession{Id: 10, Status: database.SessionStatusActive}, nil).Once()
	db.On("UpdateChatSession", mock.Anything, 10, mock.MatchedBy(func(p database.ChatSessionPatch) bool {
		return *p.Status == database.SessionStatusClosed
	})).Return(database.ChatSession{Id: 10, Status: database.SessionStatusClosed}, nil).Once()

	user := joinLoop(t, cs, 1, false, 10)
	admin := joinLoop(t, cs, 5, true, 10)

	session, err := cs.ForceEndSession(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, database.SessionStatusClosed, session.Status)

	expectMessage(t, user, EventSessionEnded)
	expectMessage(t, admin, EventSessionEnded)

	var member bool
	var userSession int
	inspect(t, cs, func() {
		member = cs.sessions.Has(10)
		userSession = user.sessionId
	})
	assert.False(t, member, "expected session membership removed")
	assert.Zero(t, userSession)
}

func TestChatServer_ForceEndSession_converted(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
	runChatServer(t, cs)

	db.On("GetChatSession", mock.Anything, 10).
		Return(database.ChatSession{Id: 10, Status: database.SessionStatusConvertedToTicket}, nil).Once()

	user := joinLoop(t, cs, 1, false, 10)

	session, err := cs.ForceEndSession(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, database.SessionStatusConvertedToTicket, session.Status)
	db.AssertNotCalled(t, "UpdateChatSession", mock.Anything, mock.Anything, mock.Anything)

	expectMessage(t, user, EventSessionEnded)

	var member bool
	inspect(t, cs, func() {
		member = cs.sessions.Has(10)
	})
	assert.False(t, member, "expected session membership removed")
}

func TestChatServer_execHonorsContext(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cs.ListActiveSessions(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "expected a stalled loop to surface the context error")
}
