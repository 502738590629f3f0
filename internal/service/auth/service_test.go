package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository/mocks"
	"github.com/jwalitptl/telecare-api/internal/service/audit"
	"github.com/jwalitptl/telecare-api/pkg/auth"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
	"github.com/jwalitptl/telecare-api/pkg/security"
)

type fixture struct {
	svc      *Service
	users    *mocks.UserRepository
	sessions *mocks.SessionStore
	hasher   security.PasswordHasher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sealer, err := auth.NewSessionSealer("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	f := &fixture{
		users:    &mocks.UserRepository{},
		sessions: &mocks.SessionStore{},
		hasher:   security.NewBcryptHasher(4),
	}
	jwtSvc := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "telecare", TTL: time.Hour})
	f.svc = NewService(f.users, f.sessions, jwtSvc, sealer, f.hasher, audit.Nop{}, Config{SessionTTL: time.Hour})
	return f
}

func (f *fixture) user(t *testing.T, role model.Role, status string) *model.User {
	hash, err := f.hasher.Hash("correct-horse")
	require.NoError(t, err)
	u := &model.User{Email: "pat@example.com", Name: "Pat", Role: role, PasswordHash: hash, Status: status}
	u.ID = uuid.New()
	return u
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, model.RolePatient, model.UserStatusActive)
	f.users.On("GetByEmail", mock.Anything, "pat@example.com").Return(user, nil)
	f.users.On("UpdateLastLogin", mock.Anything, user.ID, mock.Anything).Return(nil)

	resp, err := f.svc.Login(context.Background(), &model.LoginRequest{Email: " Pat@Example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.IDToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.NotNil(t, resp.User.LastLoginAt)

	f.users.On("Get", mock.Anything, user.ID).Return(user, nil)
	principal, err := f.svc.PrincipalFromIDToken(context.Background(), resp.IDToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.UserID)
	assert.Equal(t, model.RolePatient, principal.Role)
	assert.Nil(t, principal.SessionID)
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	active := f.user(t, model.RoleDoctor, model.UserStatusActive)
	disabled := f.user(t, model.RoleDoctor, model.UserStatusDisabled)
	disabled.Email = "off@example.com"

	f.users.On("GetByEmail", mock.Anything, "pat@example.com").Return(active, nil)
	f.users.On("GetByEmail", mock.Anything, "off@example.com").Return(disabled, nil)
	f.users.On("GetByEmail", mock.Anything, "nobody@example.com").Return(nil, apperrors.NewNotFound("user", nil))

	tests := []struct {
		name   string
		req    model.LoginRequest
		status int
	}{
		{"wrong password", model.LoginRequest{Email: "pat@example.com", Password: "wrong-horse"}, http.StatusUnauthorized},
		{"unknown email", model.LoginRequest{Email: "nobody@example.com", Password: "correct-horse"}, http.StatusUnauthorized},
		{"disabled", model.LoginRequest{Email: "off@example.com", Password: "correct-horse"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(context.Background(), &tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.status, apperrors.StatusOf(err))
		})
	}
	f.users.AssertNotCalled(t, "UpdateLastLogin", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterCreatesPatient(t *testing.T) {
	f := newFixture(t)
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		return u.Role == model.RolePatient && u.Email == "new@example.com" && u.PasswordHash != "secret-pass"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*model.User).ID = uuid.New()
	}).Return(nil)

	resp, err := f.svc.Register(context.Background(), &model.RegisterRequest{
		Email: "New@example.com", Password: "secret-pass", Name: "New",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, resp.User.Role)
	f.users.AssertExpectations(t)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.users.On("Create", mock.Anything, mock.Anything).Return(apperrors.NewConflict("email already registered", nil))

	_, err := f.svc.Register(context.Background(), &model.RegisterRequest{
		Email: "dup@example.com", Password: "secret-pass", Name: "Dup",
	})
	assert.Equal(t, http.StatusConflict, apperrors.StatusOf(err))
}

func TestSessionRoundTrip(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, model.RoleDoctor, model.UserStatusActive)
	f.users.On("Get", mock.Anything, user.ID).Return(user, nil)

	var saved *model.Session
	f.sessions.On("Save", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*model.Session)
	}).Return(nil)

	idToken, _, err := f.svc.jwtSvc.GenerateIDToken(user.ID, user.Email, string(user.Role))
	require.NoError(t, err)

	cookie, session, err := f.svc.CreateSession(context.Background(), idToken, "10.0.0.1", "test")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, session.ID, saved.ID)
	assert.Equal(t, model.RoleDoctor, saved.Role)
	assert.Equal(t, "10.0.0.1", saved.IPAddress)

	f.sessions.On("Get", mock.Anything, session.ID).Return(saved, nil)
	principal, err := f.svc.PrincipalFromSession(context.Background(), cookie)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.UserID)
	require.NotNil(t, principal.SessionID)
	assert.Equal(t, session.ID, *principal.SessionID)

	f.sessions.On("Delete", mock.Anything, session.ID).Return(nil)
	require.NoError(t, f.svc.Logout(context.Background(), principal))
	f.sessions.AssertCalled(t, "Delete", mock.Anything, session.ID)
}

func TestPrincipalFromSessionErrors(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	_, err := f.svc.PrincipalFromSession(context.Background(), "not-a-cookie")
	var sessErr *apperrors.SessionError
	require.ErrorAs(t, err, &sessErr)
	assert.Equal(t, http.StatusUnauthorized, apperrors.StatusOf(err))

	sessionID := uuid.New()
	cookie, _, err := f.svc.sealer.Seal(sessionID, userID, string(model.RolePatient), time.Hour)
	require.NoError(t, err)
	f.sessions.On("Get", mock.Anything, sessionID).Return(nil, model.ErrSessionNotFound)

	_, err = f.svc.PrincipalFromSession(context.Background(), cookie)
	require.ErrorAs(t, err, &sessErr)
	assert.Equal(t, "session revoked", sessErr.Message)
}

func TestDisabledUserIsForbidden(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, model.RolePatient, model.UserStatusDisabled)
	f.users.On("Get", mock.Anything, user.ID).Return(user, nil).Once()

	token, _, err := f.svc.jwtSvc.GenerateIDToken(user.ID, user.Email, string(user.Role))
	require.NoError(t, err)

	_, err = f.svc.PrincipalFromIDToken(context.Background(), token)
	assert.Equal(t, http.StatusForbidden, apperrors.StatusOf(err))

	// served from cache the second time
	_, err = f.svc.PrincipalFromIDToken(context.Background(), token)
	assert.Equal(t, http.StatusForbidden, apperrors.StatusOf(err))
	f.users.AssertNumberOfCalls(t, "Get", 1)
}

func TestInvalidateUserReloads(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, model.RolePatient, model.UserStatusActive)
	f.users.On("Get", mock.Anything, user.ID).Return(user, nil)

	token, _, err := f.svc.jwtSvc.GenerateIDToken(user.ID, user.Email, string(user.Role))
	require.NoError(t, err)

	_, err = f.svc.PrincipalFromIDToken(context.Background(), token)
	require.NoError(t, err)
	f.svc.InvalidateUser(user.ID)
	_, err = f.svc.PrincipalFromIDToken(context.Background(), token)
	require.NoError(t, err)
	f.users.AssertNumberOfCalls(t, "Get", 2)
}

func TestRefreshRejectsIDToken(t *testing.T) {
	f := newFixture(t)
	token, _, err := f.svc.jwtSvc.GenerateIDToken(uuid.New(), "a@b.c", "patient")
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), token)
	assert.Equal(t, http.StatusUnauthorized, apperrors.StatusOf(err))
}
