package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

const userColumns = `id, email, name, role, password_hash, phone, specialty, address,
	fee_cents, status, last_login_at, created_at, updated_at`

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			id, email, name, role, password_hash, phone, specialty,
			address, fee_cents, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	user.ID = uuid.New()
	user.CreatedAt = model.Now()
	user.UpdatedAt = user.CreatedAt
	if user.Status == "" {
		user.Status = model.UserStatusActive
	}

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.Role,
		user.PasswordHash,
		user.Phone,
		user.Specialty,
		user.Address,
		user.FeeCents,
		user.Status,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperrors.NewConflict("email already registered", err)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, notFound("user", err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, notFound("user", err)
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users SET
			name = $1,
			phone = $2,
			specialty = $3,
			address = $4,
			fee_cents = $5,
			updated_at = $6
		WHERE id = $7
	`

	user.UpdatedAt = model.Now()
	result, err := r.db.ExecContext(ctx, query,
		user.Name,
		user.Phone,
		user.Specialty,
		user.Address,
		user.FeeCents,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return affectedOne(result, "user")
}

func (r *userRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `UPDATE users SET status = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, status, model.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	return affectedOne(result, "user")
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET last_login_at = $1 WHERE id = $2`

	if _, err := r.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (r *userRepository) List(ctx context.Context, filters *model.UserFilters) ([]*model.User, int64, error) {
	var c conditions
	if filters.Role != "" {
		c.add("role = $%d", filters.Role)
	}
	if filters.Status != "" {
		c.add("status = $%d", filters.Status)
	}
	if term := strings.TrimSpace(filters.SearchTerm); term != "" {
		c.add("(name ILIKE $%[1]d OR email ILIKE $%[1]d)", "%"+term+"%")
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+c.where(), c.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	suffix, args := c.page(filters.Limit(), filters.Offset())
	query := `SELECT ` + userColumns + ` FROM users` + c.where() + ` ORDER BY created_at DESC` + suffix

	users := []*model.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

func (r *userRepository) ListDirectory(ctx context.Context, role model.Role, page model.Pagination) ([]*model.UserSummary, error) {
	query := `
		SELECT id, name, role, specialty, address, fee_cents
		FROM users
		WHERE role = $1 AND status = 'active'
		ORDER BY name
		LIMIT $2 OFFSET $3
	`

	entries := []*model.UserSummary{}
	if err := r.db.SelectContext(ctx, &entries, query, role, page.Limit(), page.Offset()); err != nil {
		return nil, fmt.Errorf("failed to list %s directory: %w", role, err)
	}
	return entries, nil
}

func (r *userRepository) CountByRole(ctx context.Context) (map[model.Role]int64, error) {
	query := `SELECT role AS status, COUNT(*) AS count FROM users GROUP BY role`

	var rows []model.StatusCount
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count users by role: %w", err)
	}

	counts := make(map[model.Role]int64, len(rows))
	for _, row := range rows {
		counts[model.Role(row.Status)] = row.Count
	}
	return counts, nil
}
