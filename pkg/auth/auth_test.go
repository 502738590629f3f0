package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTServiceRoundTrip(t *testing.T) {
	svc := NewJWTService(JWTConfig{Secret: "id-secret", RefreshSecret: "refresh-secret", Issuer: "telecare", TTL: time.Hour})
	userID := uuid.New()

	token, exp, err := svc.GenerateIDToken(userID, "doc@example.com", "doctor")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := svc.ValidateIDToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "doctor", claims.Role)
	assert.Equal(t, "doc@example.com", claims.Email)

	_, err = svc.ValidateRefreshToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTServiceRefreshToken(t *testing.T) {
	svc := NewJWTService(JWTConfig{Secret: "id-secret", RefreshSecret: "refresh-secret"})
	userID := uuid.New()

	refresh, err := svc.GenerateRefreshToken(userID)
	require.NoError(t, err)

	claims, err := svc.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)

	_, err = svc.ValidateIDToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTServiceRejectsExpiredAndTampered(t *testing.T) {
	svc := NewJWTService(JWTConfig{Secret: "id-secret", TTL: time.Minute}).(*jwtService)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	token, _, err := svc.GenerateIDToken(uuid.New(), "p@example.com", "patient")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateIDToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewJWTService(JWTConfig{Secret: "other-secret"})
	fresh, _, err := other.GenerateIDToken(uuid.New(), "p@example.com", "patient")
	require.NoError(t, err)
	_, err = svc.ValidateIDToken(fresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionSealer(t *testing.T) {
	_, err := NewSessionSealer("short")
	assert.ErrorIs(t, err, ErrBadSessionKey)

	key := strings.Repeat("k", 32)
	sealer, err := NewSessionSealer(key)
	require.NoError(t, err)

	sid, uid := uuid.New(), uuid.New()
	token, exp, err := sealer.Seal(sid, uid, "pharmacy", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "v2.local."))
	assert.True(t, exp.After(time.Now()))

	claims, err := sealer.Open(token)
	require.NoError(t, err)
	assert.Equal(t, sid.String(), claims.SessionID)
	assert.Equal(t, uid.String(), claims.UserID)
	assert.Equal(t, "pharmacy", claims.Role)

	_, err = sealer.Open(token + "x")
	assert.Error(t, err)

	sealer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = sealer.Open(token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}
