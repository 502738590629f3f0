package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
	OutboxStatusRetry     OutboxStatus = "retry"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}

// Event types published through the outbox.
const (
	EventAppointmentCreated   = "appointment.created"
	EventAppointmentAccepted  = "appointment.accepted"
	EventAppointmentRejected  = "appointment.rejected"
	EventAppointmentCancelled = "appointment.cancelled"
	EventAppointmentPaid      = "appointment.paid"
	EventAppointmentCompleted = "appointment.completed"

	EventClinicBookingCreated   = "clinic_booking.created"
	EventClinicBookingAccepted  = "clinic_booking.accepted"
	EventClinicBookingRejected  = "clinic_booking.rejected"
	EventClinicBookingCancelled = "clinic_booking.cancelled"
	EventClinicBookingPaid      = "clinic_booking.paid"
	EventClinicBookingCompleted = "clinic_booking.completed"

	EventPrescriptionIssued    = "prescription.issued"
	EventPrescriptionDispensed = "prescription.dispensed"
)

// BookingEventType builds "<kind>.<status>" for a booking transition.
func BookingEventType(kind BookingKind, status BookingStatus) string {
	s := string(status)
	if status == BookingStatusPending {
		s = "created"
	}
	return string(kind) + "." + s
}

// BookingEvent is the payload of appointment and clinic booking events.
type BookingEvent struct {
	Kind          BookingKind   `json:"kind"`
	BookingID     uuid.UUID     `json:"booking_id"`
	PatientID     uuid.UUID     `json:"patient_id"`
	ProviderID    uuid.UUID     `json:"provider_id"`
	Status        BookingStatus `json:"status"`
	PreferredDate string        `json:"preferred_date"`
	PreferredTime string        `json:"preferred_time"`
	Reason        string        `json:"reason,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

type PrescriptionEvent struct {
	PrescriptionID uuid.UUID          `json:"prescription_id"`
	DoctorID       uuid.UUID          `json:"doctor_id"`
	PatientID      uuid.UUID          `json:"patient_id"`
	PharmacyID     *uuid.UUID         `json:"pharmacy_id,omitempty"`
	Status         PrescriptionStatus `json:"status"`
	OccurredAt     time.Time          `json:"occurred_at"`
}
