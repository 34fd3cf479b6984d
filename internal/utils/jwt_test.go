package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("secret")

	token, err := m.GenerateToken("member-1", time.Minute)
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "member-1", claims.UserID)
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager("secret")

	other, err := NewTokenManager("other").GenerateToken("member-1", time.Minute)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := m.GenerateToken("member-1", time.Minute)
	require.NoError(t, err)
	m.now = time.Now

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong secret", token: other},
		{name: "expired", token: expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ParseToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestSessionSigner(t *testing.T) {
	s := NewSessionSigner("key")
	expiry := time.UnixMilli(1_700_000_000_000)

	sig := s.Sign("member-1", expiry)
	assert.True(t, s.Verify("member-1", expiry, sig))
	assert.False(t, s.Verify("member-2", expiry, sig))
	assert.False(t, s.Verify("member-1", expiry.Add(time.Millisecond), sig))
	assert.False(t, NewSessionSigner("other").Verify("member-1", expiry, sig))
}
