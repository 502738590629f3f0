package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   *uuid.UUID      `json:"entity_id,omitempty" db:"entity_id"`
	Changes    json.RawMessage `json:"changes,omitempty" db:"changes"`
	IPAddress  string          `json:"ip_address" db:"ip_address"`
	UserAgent  string          `json:"user_agent" db:"user_agent"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate   = "create"
	AuditActionUpdate   = "update"
	AuditActionLogin    = "login"
	AuditActionLogout   = "logout"
	AuditActionAccept   = "accept"
	AuditActionReject   = "reject"
	AuditActionCancel   = "cancel"
	AuditActionComplete = "complete"
	AuditActionPay      = "pay"
	AuditActionDispense = "dispense"
	AuditActionUpload   = "upload"

	// Entity types
	AuditEntityUser          = "user"
	AuditEntityAppointment   = "appointment"
	AuditEntityClinicBooking = "clinic_booking"
	AuditEntityPrescription  = "prescription"
	AuditEntityPayment       = "payment"
	AuditEntitySession       = "session"
)

type AuditLogFilters struct {
	UserID     *uuid.UUID `form:"user_id"`
	EntityType string     `form:"entity_type"`
	Action     string     `form:"action"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Pagination
}

// AuditEntry is what services hand to the audit service.
type AuditEntry struct {
	UserID     *uuid.UUID
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	Changes    interface{}
	IPAddress  string
	UserAgent  string
}
