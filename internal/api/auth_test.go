package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   int
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), 42),
			userId:   42,
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId, "expected UserId to return %d", tc.userId)
		})
	}
}

func TestExtractUserIdFromToken(t *testing.T) {
	app := &LiveChatApp{signingKey: []byte("test-signing-key")}
	other := &LiveChatApp{signingKey: []byte("other-signing-key")}

	valid, err := app.createJwtForSession(7, defaultJwtExpiration)
	require.NoError(t, err)

	expired, err := app.createJwtForSession(7, -time.Minute)
	require.NoError(t, err)

	foreign, err := other.createJwtForSession(7, defaultJwtExpiration)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		userIdClaim: 7,
		expClaim:    time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		expClaim: time.Now().Add(time.Hour).Unix(),
	}).SignedString(app.signingKey)
	require.NoError(t, err)

	tcases := []struct {
		name   string
		token  string
		userId int
		err    bool
	}{
		{name: "valid token", token: valid, userId: 7},
		{name: "expired token", token: expired, err: true},
		{name: "signed with another key", token: foreign, err: true},
		{name: "unsigned token", token: unsigned, err: true},
		{name: "missing user claim", token: noUser, err: true},
		{name: "garbage", token: "not-a-token", err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, err := app.extractUserIdFromToken(tc.token)
			if tc.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.userId, userId)
		})
	}
}

func TestUserIdFromRequest(t *testing.T) {
	app := &LiveChatApp{signingKey: []byte("test-signing-key")}

	t.Run("no cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		_, err := app.userIdFromRequest(req)
		assert.Error(t, err)
	})

	t.Run("valid cookie", func(t *testing.T) {
		token, err := app.createJwtForSession(3, defaultJwtExpiration)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(createJwtCookie(token, defaultJwtExpiration))

		userId, err := app.userIdFromRequest(req)
		assert.NoError(t, err)
		assert.Equal(t, 3, userId)
	})
}

func TestCreateJwtCookie(t *testing.T) {
	cookie := createJwtCookie("abc", time.Hour)

	assert.Equal(t, tokenCookieKey, cookie.Name)
	assert.Equal(t, "abc", cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.WithinDuration(t, time.Now().Add(time.Hour), cookie.Expires, time.Minute)
}

func TestVerifyPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, "s3cret", string(hash))
	assert.True(t, verifyPassword(string(hash), "s3cret"))
	assert.False(t, verifyPassword(string(hash), "wrong"))
	assert.False(t, verifyPassword("not-a-hash", "s3cret"))
}
