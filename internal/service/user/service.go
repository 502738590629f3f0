package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
	"github.com/jwalitptl/telecare-api/internal/service/audit"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
	"github.com/jwalitptl/telecare-api/pkg/security"
)

// UserInvalidator drops cached copies of a user after a change.
type UserInvalidator interface {
	InvalidateUser(id uuid.UUID)
}

type Service struct {
	repo     repository.UserRepository
	sessions repository.SessionStore
	hasher   security.PasswordHasher
	auditor  audit.Recorder
	cache    UserInvalidator
}

func NewService(repo repository.UserRepository, sessions repository.SessionStore, hasher security.PasswordHasher,
	auditor audit.Recorder, cache UserInvalidator) *Service {
	return &Service{
		repo:     repo,
		sessions: sessions,
		hasher:   hasher,
		auditor:  auditor,
		cache:    cache,
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateProfile applies self-service changes.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, req *model.UpdateProfileRequest) (*model.User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if req.Specialty != nil && user.Role != model.RoleDoctor {
		return nil, apperrors.NewBadRequest("only doctors have a specialty", nil)
	}
	if req.Address != nil && !user.Role.Bookable() && user.Role != model.RolePharmacy {
		return nil, apperrors.NewBadRequest("only doctors, clinics and pharmacies have an address", nil)
	}
	if req.FeeCents != nil && !user.Role.Bookable() {
		return nil, apperrors.NewBadRequest("only doctors and clinics set a fee", nil)
	}

	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		user.Phone = req.Phone
	}
	if req.Specialty != nil {
		user.Specialty = req.Specialty
	}
	if req.Address != nil {
		user.Address = req.Address
	}
	if req.FeeCents != nil {
		user.FeeCents = *req.FeeCents
	}
	user.UpdatedAt = model.Now()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	s.cache.InvalidateUser(user.ID)

	s.auditor.Record(ctx, audit.Entry(user.ID, model.AuditActionUpdate, model.AuditEntityUser, user.ID, req))
	return user, nil
}

// Directory lists active doctors, clinics or pharmacies.
func (s *Service) Directory(ctx context.Context, role model.Role, page model.Pagination) ([]*model.UserSummary, error) {
	switch role {
	case model.RoleDoctor, model.RoleClinic, model.RolePharmacy:
	default:
		return nil, apperrors.NewBadRequest("directory is only available for doctors, clinics and pharmacies", nil)
	}
	users, err := s.repo.ListDirectory(ctx, role, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list %ss: %w", role, err)
	}
	return users, nil
}

func (s *Service) List(ctx context.Context, filters *model.UserFilters) ([]*model.User, int64, error) {
	if filters.Role != "" && !filters.Role.Valid() {
		return nil, 0, apperrors.NewBadRequest("unknown role", nil)
	}
	users, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// Create is the admin path for accounts of any role.
func (s *Service) Create(ctx context.Context, actor uuid.UUID, req *model.CreateUserRequest) (*model.User, error) {
	if !req.Role.Valid() {
		return nil, apperrors.NewBadRequest("unknown role", nil)
	}
	if req.FeeCents > 0 && !req.Role.Bookable() {
		return nil, apperrors.NewBadRequest("only doctors and clinics set a fee", nil)
	}

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
		Role:         req.Role,
		PasswordHash: hash,
		Phone:        req.Phone,
		Specialty:    req.Specialty,
		Address:      req.Address,
		FeeCents:     req.FeeCents,
		Status:       model.UserStatusActive,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry(actor, model.AuditActionCreate, model.AuditEntityUser, user.ID,
		map[string]string{"role": string(user.Role), "email": user.Email}))
	return user, nil
}

// SetStatus enables or disables an account. Disabling revokes all sessions.
func (s *Service) SetStatus(ctx context.Context, actor, id uuid.UUID, status string) error {
	if status != model.UserStatusActive && status != model.UserStatusDisabled {
		return apperrors.NewBadRequest("status must be active or disabled", nil)
	}
	if actor == id && status == model.UserStatusDisabled {
		return apperrors.NewBadRequest("cannot disable your own account", nil)
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	s.cache.InvalidateUser(id)

	if status == model.UserStatusDisabled {
		if err := s.sessions.DeleteForUser(ctx, id); err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
	}

	s.auditor.Record(ctx, audit.Entry(actor, model.AuditActionUpdate, model.AuditEntityUser, id,
		map[string]string{"status": status}))
	return nil
}
