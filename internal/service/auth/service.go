package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
	"github.com/jwalitptl/telecare-api/internal/service/audit"
	"github.com/jwalitptl/telecare-api/pkg/auth"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
	"github.com/jwalitptl/telecare-api/pkg/security"
)

const (
	userCacheTTL     = 30 * time.Second
	userCacheCleanup = 5 * time.Minute
)

type Config struct {
	SessionTTL time.Duration
}

type Service struct {
	users     repository.UserRepository
	sessions  repository.SessionStore
	jwtSvc    auth.JWTService
	sealer    *auth.SessionSealer
	hasher    security.PasswordHasher
	auditor   audit.Recorder
	userCache *cache.Cache
	cfg       Config
	now       func() time.Time
}

func NewService(users repository.UserRepository, sessions repository.SessionStore, jwtSvc auth.JWTService,
	sealer *auth.SessionSealer, hasher security.PasswordHasher, auditor audit.Recorder, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Service{
		users:     users,
		sessions:  sessions,
		jwtSvc:    jwtSvc,
		sealer:    sealer,
		hasher:    hasher,
		auditor:   auditor,
		userCache: cache.New(userCacheTTL, userCacheCleanup),
		cfg:       cfg,
		now:       model.Now,
	}
}

// Register creates a patient account. Other roles are created by admins.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.TokenResponse, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return nil, apperrors.NewBadRequest("password too short", err)
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         strings.TrimSpace(req.Name),
		Role:         model.RolePatient,
		PasswordHash: hash,
		Phone:        req.Phone,
		Status:       model.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry(user.ID, model.AuditActionCreate, model.AuditEntityUser, user.ID,
		map[string]string{"role": string(user.Role)}))

	return s.issueTokens(user)
}

func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if apperrors.StatusOf(err) == http.StatusNotFound {
			return nil, apperrors.NewUnauthorized("invalid credentials", model.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !s.hasher.Verify(user.PasswordHash, req.Password) {
		return nil, apperrors.NewUnauthorized("invalid credentials", model.ErrInvalidCredentials)
	}
	if !user.Active() {
		return nil, apperrors.NewForbidden("account is disabled")
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLoginAt = &now

	s.auditor.Record(ctx, audit.Entry(user.ID, model.AuditActionLogin, model.AuditEntityUser, user.ID, nil))

	return s.issueTokens(user)
}

// Refresh trades a refresh token for a new token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid refresh token", err)
	}
	user, err := s.activeUser(ctx, uuid.MustParse(claims.UserID), false)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(user)
}

func (s *Service) issueTokens(user *model.User) (*model.TokenResponse, error) {
	idToken, exp, err := s.jwtSvc.GenerateIDToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to generate id token: %w", err)
	}
	refresh, err := s.jwtSvc.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return &model.TokenResponse{
		IDToken:      idToken,
		RefreshToken: refresh,
		ExpiresAt:    exp,
		User:         user,
	}, nil
}

// CreateSession verifies an ID token and opens a server-side session. The
// returned string is the sealed cookie value.
func (s *Service) CreateSession(ctx context.Context, idToken, ipAddress, userAgent string) (string, *model.Session, error) {
	principal, err := s.PrincipalFromIDToken(ctx, idToken)
	if err != nil {
		return "", nil, err
	}

	session := &model.Session{
		ID:        uuid.New(),
		UserID:    principal.UserID,
		Role:      principal.Role,
		CreatedAt: s.now(),
		UserAgent: userAgent,
		IPAddress: ipAddress,
	}
	cookie, exp, err := s.sealer.Seal(session.ID, session.UserID, string(session.Role), s.cfg.SessionTTL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to seal session: %w", err)
	}
	session.ExpiresAt = exp

	if err := s.sessions.Save(ctx, session); err != nil {
		return "", nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry(session.UserID, model.AuditActionLogin, model.AuditEntitySession, session.ID, nil))
	return cookie, session, nil
}

// Logout revokes the session behind the principal, if any.
func (s *Service) Logout(ctx context.Context, principal *model.Principal) error {
	if principal.SessionID == nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, *principal.SessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.auditor.Record(ctx, audit.Entry(principal.UserID, model.AuditActionLogout, model.AuditEntitySession, *principal.SessionID, nil))
	return nil
}

// PrincipalFromIDToken resolves a bearer ID token.
func (s *Service) PrincipalFromIDToken(ctx context.Context, token string) (*model.Principal, error) {
	claims, err := s.jwtSvc.ValidateIDToken(token)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid or expired token", err)
	}
	user, err := s.activeUser(ctx, uuid.MustParse(claims.UserID), true)
	if err != nil {
		return nil, err
	}
	return &model.Principal{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// PrincipalFromSession resolves a session cookie. Cookie problems are
// reported as SessionError.
func (s *Service) PrincipalFromSession(ctx context.Context, cookie string) (*model.Principal, error) {
	claims, err := s.sealer.Open(cookie)
	if err != nil {
		if errors.Is(err, auth.ErrSessionExpired) {
			return nil, apperrors.NewSessionError("session expired", err)
		}
		return nil, apperrors.NewSessionError("invalid session cookie", err)
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, apperrors.NewSessionError("invalid session cookie", err)
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, apperrors.NewSessionError("session revoked", err)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session.UserID.String() != claims.UserID {
		return nil, apperrors.NewSessionError("session does not match cookie", nil)
	}

	user, err := s.activeUser(ctx, session.UserID, true)
	if err != nil {
		return nil, err
	}
	return &model.Principal{UserID: user.ID, Email: user.Email, Role: user.Role, SessionID: &session.ID}, nil
}

// InvalidateUser drops a cached user so status and role changes apply on the
// next request.
func (s *Service) InvalidateUser(id uuid.UUID) {
	s.userCache.Delete(id.String())
}

func (s *Service) activeUser(ctx context.Context, id uuid.UUID, cached bool) (*model.User, error) {
	if cached {
		if v, ok := s.userCache.Get(id.String()); ok {
			user := v.(*model.User)
			if !user.Active() {
				return nil, apperrors.NewForbidden("account is disabled")
			}
			return user, nil
		}
	}

	user, err := s.users.Get(ctx, id)
	if err != nil {
		if apperrors.StatusOf(err) == http.StatusNotFound {
			return nil, apperrors.NewUnauthorized("user no longer exists", err)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	s.userCache.SetDefault(id.String(), user)

	if !user.Active() {
		return nil, apperrors.NewForbidden("account is disabled")
	}
	return user, nil
}
