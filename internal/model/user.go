package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient  Role = "patient"
	RoleDoctor   Role = "doctor"
	RoleClinic   Role = "clinic"
	RolePharmacy Role = "pharmacy"
	RoleAdmin    Role = "admin"
)

var AllRoles = []Role{RolePatient, RoleDoctor, RoleClinic, RolePharmacy, RoleAdmin}

func (r Role) Valid() bool {
	for _, v := range AllRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Bookable roles receive appointments or clinic bookings and set a fee.
func (r Role) Bookable() bool {
	return r == RoleDoctor || r == RoleClinic
}

// User status constants
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User represents a system user
type User struct {
	Base
	Email        string     `json:"email" db:"email"`
	Name         string     `json:"name" db:"name"`
	Role         Role       `json:"role" db:"role"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Phone        *string    `json:"phone,omitempty" db:"phone"`
	Specialty    *string    `json:"specialty,omitempty" db:"specialty"`
	Address      *string    `json:"address,omitempty" db:"address"`
	FeeCents     int64      `json:"fee_cents" db:"fee_cents"`
	Status       string     `json:"status" db:"status"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

func (u *User) Active() bool {
	return u.Status == UserStatusActive
}

// Directory entry shown to other users.
type UserSummary struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Role      Role      `json:"role" db:"role"`
	Specialty *string   `json:"specialty,omitempty" db:"specialty"`
	Address   *string   `json:"address,omitempty" db:"address"`
	FeeCents  int64     `json:"fee_cents" db:"fee_cents"`
}

// UserFilters represents user search parameters
type UserFilters struct {
	Role       Role   `form:"role"`
	Status     string `form:"status"`
	SearchTerm string `form:"q"`
	Pagination
}

// CreateUserRequest is used by admins to create accounts of any role.
type CreateUserRequest struct {
	Email     string  `json:"email" binding:"required,email"`
	Name      string  `json:"name" binding:"required,max=200"`
	Password  string  `json:"password" binding:"required,min=8"`
	Role      Role    `json:"role" binding:"required,role"`
	Phone     *string `json:"phone" binding:"omitempty,max=32"`
	Specialty *string `json:"specialty" binding:"omitempty,max=200"`
	Address   *string `json:"address" binding:"omitempty,max=500"`
	FeeCents  int64   `json:"fee_cents" binding:"gte=0"`
}

// UpdateProfileRequest represents self-service profile updates
type UpdateProfileRequest struct {
	Name      *string `json:"name" binding:"omitempty,min=1,max=200"`
	Phone     *string `json:"phone" binding:"omitempty,max=32"`
	Specialty *string `json:"specialty" binding:"omitempty,max=200"`
	Address   *string `json:"address" binding:"omitempty,max=500"`
	FeeCents  *int64  `json:"fee_cents" binding:"omitempty,gte=0"`
}

type UpdateUserStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active disabled"`
}
