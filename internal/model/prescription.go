package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

type PrescriptionStatus string

const (
	PrescriptionStatusIssued    PrescriptionStatus = "issued"
	PrescriptionStatusDispensed PrescriptionStatus = "dispensed"
	PrescriptionStatusCancelled PrescriptionStatus = "cancelled"
)

type Medication struct {
	Name         string `json:"name" binding:"required,max=200"`
	Dosage       string `json:"dosage" binding:"required,max=200"`
	Frequency    string `json:"frequency" binding:"required,max=200"`
	DurationDays int    `json:"duration_days" binding:"gte=0,lte=365"`
	Instructions string `json:"instructions,omitempty" binding:"max=1000"`
}

// Medications is stored as a JSONB array.
type Medications []Medication

func (m Medications) Value() (driver.Value, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m)
}

func (m *Medications) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*m = nil
		return nil
	default:
		return errors.New("medications: unsupported scan type")
	}
	return json.Unmarshal(data, m)
}

// Prescription is a doctor-issued record for a patient, optionally routed to
// a pharmacy.
type Prescription struct {
	Base
	DoctorID      uuid.UUID          `json:"doctor_id" db:"doctor_id"`
	PatientID     uuid.UUID          `json:"patient_id" db:"patient_id"`
	AppointmentID *uuid.UUID         `json:"appointment_id,omitempty" db:"appointment_id"`
	PharmacyID    *uuid.UUID         `json:"pharmacy_id,omitempty" db:"pharmacy_id"`
	Medications   Medications        `json:"medications" db:"medications"`
	Notes         string             `json:"notes,omitempty" db:"notes"`
	Status        PrescriptionStatus `json:"status" db:"status"`
	AttachmentKey *string            `json:"attachment_key,omitempty" db:"attachment_key"`
	IssuedAt      time.Time          `json:"issued_at" db:"issued_at"`
	DispensedAt   *time.Time         `json:"dispensed_at,omitempty" db:"dispensed_at"`
}

// Transition moves an issued prescription to dispensed or cancelled.
func (p *Prescription) Transition(to PrescriptionStatus, now time.Time) error {
	if p.Status != PrescriptionStatusIssued || (to != PrescriptionStatusDispensed && to != PrescriptionStatusCancelled) {
		return apperrors.NewConflict(fmt.Sprintf("prescription is %s and cannot become %s", p.Status, to), nil)
	}
	if to == PrescriptionStatusDispensed {
		t := now
		p.DispensedAt = &t
	}
	p.Status = to
	p.UpdatedAt = now
	return nil
}

// CanView reports whether userID may read the prescription.
func (p *Prescription) CanView(userID uuid.UUID, role Role) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleDoctor:
		return p.DoctorID == userID
	case RolePatient:
		return p.PatientID == userID
	case RolePharmacy:
		return p.PharmacyID != nil && *p.PharmacyID == userID
	}
	return false
}

type CreatePrescriptionRequest struct {
	PatientID     uuid.UUID    `json:"patient_id" binding:"required"`
	AppointmentID *uuid.UUID   `json:"appointment_id"`
	PharmacyID    *uuid.UUID   `json:"pharmacy_id"`
	Medications   []Medication `json:"medications" binding:"required,min=1,max=50,dive"`
	Notes         string       `json:"notes" binding:"max=2000"`
}

type PrescriptionFilters struct {
	DoctorID   uuid.UUID
	PatientID  uuid.UUID
	PharmacyID uuid.UUID
	Status     PrescriptionStatus `form:"status" binding:"omitempty,oneof=issued dispensed cancelled"`
	Pagination
}

// AttachmentURL is a time-limited download link.
type AttachmentURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
