package server

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parseRequest(t *testing.T) {
	tcases := []struct {
		name     string
		raw      string
		expected Request
		err      error
	}{
		{
			name:     "auth",
			raw:      `{"type":"auth","data":{"userId":3,"isAdmin":true}}`,
			expected: &AuthRequest{UserId: 3, IsAdmin: true},
		},
		{
			name:     "auth with frame user id",
			raw:      `{"type":"auth","userId":4}`,
			expected: &AuthRequest{UserId: 4},
		},
		{
			name: "auth without user id",
			raw:  `{"type":"auth","data":{}}`,
			err:  ErrInvalidMessage,
		},
		{
			name:     "start session defaults department",
			raw:      `{"type":"start_session","data":{"subject":"  billing question "}}`,
			expected: &StartSessionRequest{Subject: "billing question", Department: "general"},
		},
		{
			name:     "start session without data",
			raw:      `{"type":"start_session"}`,
			expected: &StartSessionRequest{Department: "general"},
		},
		{
			name:     "send message",
			raw:      `{"type":"send_message","data":{"message":"hi","sessionId":9}}`,
			expected: &SendMessageRequest{Message: "hi", SessionId: 9},
		},
		{
			name:     "send message with frame session id",
			raw:      `{"type":"send_message","sessionId":9,"data":{"message":"hi"}}`,
			expected: &SendMessageRequest{Message: "hi", SessionId: 9},
		},
		{
			name:     "data session id wins over frame",
			raw:      `{"type":"send_message","sessionId":1,"data":{"message":"hi","sessionId":2}}`,
			expected: &SendMessageRequest{Message: "hi", SessionId: 2},
		},
		{
			name: "send message without text",
			raw:  `{"type":"send_message","data":{"message":"   ","sessionId":9}}`,
			err:  ErrInvalidMessage,
		},
		{
			name:     "send message at length limit",
			raw:      `{"type":"send_message","data":{"message":"` + strings.Repeat("é", maxChatMessageLength) + `","sessionId":9}}`,
			expected: &SendMessageRequest{Message: strings.Repeat("é", maxChatMessageLength), SessionId: 9},
		},
		{
			name: "send message over length limit",
			raw:  `{"type":"send_message","data":{"message":"` + strings.Repeat("a", maxChatMessageLength+1) + `","sessionId":9}}`,
			err:  ErrInvalidMessage,
		},
		{
			name: "send message without session",
			raw:  `{"type":"send_message","data":{"message":"hi"}}`,
			err:  ErrInvalidMessage,
		},
		{
			name:     "typing",
			raw:      `{"type":"typing","data":{"sessionId":5,"isTyping":true}}`,
			expected: &TypingRequest{SessionId: 5, IsTyping: true},
		},
		{
			name:     "join session",
			raw:      `{"type":"join_session","data":{"sessionId":5}}`,
			expected: &JoinSessionRequest{SessionId: 5},
		},
		{
			name: "join session without id",
			raw:  `{"type":"join_session","data":{}}`,
			err:  ErrInvalidMessage,
		},
		{
			name:     "end session",
			raw:      `{"type":"end_session","data":{"sessionId":5}}`,
			expected: &EndSessionRequest{SessionId: 5},
		},
		{
			name:     "admin status",
			raw:      `{"type":"admin_status_update","data":{"status":"away","statusMessage":"lunch"}}`,
			expected: &AdminStatusRequest{Status: "away", StatusMessage: strPtr("lunch")},
		},
		{
			name: "admin status unknown",
			raw:  `{"type":"admin_status_update","data":{"status":"sleeping"}}`,
			err:  ErrInvalidMessage,
		},
		{
			name:     "ping",
			raw:      `{"type":"ping","data":{}}`,
			expected: &PingRequest{},
		},
		{
			name:     "debug state",
			raw:      `{"type":"debug_state"}`,
			expected: &DebugStateRequest{},
		},
		{
			name: "unknown type",
			raw:  `{"type":"convert_to_ticket","data":{}}`,
			err:  ErrUnknownMessageType,
		},
		{
			name: "missing type",
			raw:  `{"data":{}}`,
			err:  ErrInvalidMessage,
		},
		{
			name: "malformed json",
			raw:  `{"type":`,
			err:  ErrInvalidMessage,
		},
		{
			name: "payload of wrong shape",
			raw:  `{"type":"typing","data":{"sessionId":"five"}}`,
			err:  ErrInvalidMessage,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := parseRequest([]byte(tc.raw))
			if tc.err != nil {
				assert.True(t, errors.Is(err, tc.err), "expected error %v, got %v", tc.err, err)
				assert.Nil(t, req, "expected no request on error")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, req)
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tcases := []struct {
		name    string
		err     error
		code    string
		message string
	}{
		{
			name:    "sentinel",
			err:     ErrSessionNotFound,
			code:    "session_not_found",
			message: "session not found",
		},
		{
			name:    "wrapped validation error keeps detail",
			err:     invalidMessage("sessionId is required"),
			code:    "invalid_message",
			message: "invalid message format: sessionId is required",
		},
		{
			name:    "persistence details are hidden",
			err:     persistenceError("create message", errors.New("pq: connection refused")),
			code:    "internal_error",
			message: "internal server error",
		},
		{
			name:    "unknown error",
			err:     errors.New("boom"),
			code:    "internal_error",
			message: "internal server error",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msg := ErrorMessage(tc.err)
			assert.Equal(t, EventError, msg.Type)

			payload, ok := msg.Data.(*ChatError)
			require.True(t, ok, "expected error payload")
			assert.Equal(t, tc.code, payload.Code)
			assert.Equal(t, tc.message, payload.Message)
		})
	}
}

func Test_serializeMessage(t *testing.T) {
	msg := TypingMessage(2, 9, true)

	bytes, err := serializeMessage(msg)
	require.NoError(t, err, "expected no error during serialization")

	expected := `{"type":"typing","data":{"userId":2,"sessionId":9,"isTyping":true},"sessionId":9,"timestamp":"` +
		msg.Timestamp.Format(time.RFC3339Nano) + `"}`
	assert.JSONEq(t, expected, string(bytes))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(bytes, &decoded))
	assert.Equal(t, "typing", decoded["type"])
}

func strPtr(s string) *string {
	return &s
}
