package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeID      = "id"
	tokenTypeRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried by ID and refresh tokens.
type Claims struct {
	UserID    string `json:"uid"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type JWTService interface {
	GenerateIDToken(userID uuid.UUID, email, role string) (string, time.Time, error)
	GenerateRefreshToken(userID uuid.UUID) (string, error)
	ValidateIDToken(token string) (*Claims, error)
	ValidateRefreshToken(token string) (*Claims, error)
}

type JWTConfig struct {
	Secret        string
	RefreshSecret string
	Issuer        string
	TTL           time.Duration
	RefreshTTL    time.Duration
}

type jwtService struct {
	cfg JWTConfig
	now func() time.Time
}

func NewJWTService(cfg JWTConfig) JWTService {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.Secret
	}
	return &jwtService{cfg: cfg, now: time.Now}
}

func (s *jwtService) GenerateIDToken(userID uuid.UUID, email, role string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.cfg.TTL)
	claims := Claims{
		UserID:    userID.String(),
		Email:     email,
		Role:      role,
		TokenType: tokenTypeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign id token: %w", err)
	}
	return signed, exp, nil
}

func (s *jwtService) GenerateRefreshToken(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:    userID.String(),
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.RefreshSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, nil
}

func (s *jwtService) ValidateIDToken(token string) (*Claims, error) {
	return s.parse(token, s.cfg.Secret, tokenTypeID)
}

func (s *jwtService) ValidateRefreshToken(token string) (*Claims, error) {
	return s.parse(token, s.cfg.RefreshSecret, tokenTypeRefresh)
}

func (s *jwtService) parse(token, secret, typ string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TokenType != typ {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.TokenType)
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("%w: bad user id", ErrInvalidToken)
	}
	return claims, nil
}
