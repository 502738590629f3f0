package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/o1egl/paseto"
)

var (
	ErrSessionExpired = errors.New("session expired")
	ErrBadSessionKey  = errors.New("session key must be 32 bytes")
)

// SessionClaims is the encrypted payload of a session cookie.
type SessionClaims struct {
	SessionID string    `json:"sid"`
	UserID    string    `json:"uid"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"iat"`
	Expiry    time.Time `json:"exp"`
}

// SessionSealer encrypts and decrypts session cookies as PASETO v2 local
// tokens.
type SessionSealer struct {
	key []byte
	v2  *paseto.V2
	now func() time.Time
}

func NewSessionSealer(key string) (*SessionSealer, error) {
	if len(key) != 32 {
		return nil, ErrBadSessionKey
	}
	return &SessionSealer{key: []byte(key), v2: paseto.NewV2(), now: time.Now}, nil
}

func (s *SessionSealer) Seal(sessionID, userID uuid.UUID, role string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	claims := SessionClaims{
		SessionID: sessionID.String(),
		UserID:    userID.String(),
		Role:      role,
		IssuedAt:  now,
		Expiry:    now.Add(ttl),
	}
	token, err := s.v2.Encrypt(s.key, claims, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to seal session: %w", err)
	}
	return token, claims.Expiry, nil
}

func (s *SessionSealer) Open(token string) (*SessionClaims, error) {
	var claims SessionClaims
	if err := s.v2.Decrypt(token, s.key, &claims, nil); err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	if s.now().After(claims.Expiry) {
		return nil, ErrSessionExpired
	}
	return &claims, nil
}
