package model

import (
	"github.com/google/uuid"
)

// ClinicBooking is a patient visit booked at a clinic.
type ClinicBooking struct {
	Booking
	ClinicID uuid.UUID `json:"clinic_id" db:"clinic_id"`
	Service  string    `json:"service" db:"service"`
}

func (b *ClinicBooking) HasParticipant(userID uuid.UUID) bool {
	return b.PatientID == userID || b.ClinicID == userID
}

type CreateClinicBookingRequest struct {
	ClinicID      uuid.UUID `json:"clinic_id" binding:"required"`
	Service       string    `json:"service" binding:"required,max=200"`
	PreferredDate string    `json:"preferred_date" binding:"required,date"`
	PreferredTime string    `json:"preferred_time" binding:"required,clock"`
	Reason        string    `json:"reason" binding:"max=1000"`
	Notes         string    `json:"notes" binding:"max=2000"`
}

type ClinicBookingFilters struct {
	PatientID uuid.UUID
	ClinicID  uuid.UUID
	BookingFilters
}

func (b *ClinicBooking) Core() *Booking { return &b.Booking }

// ProviderID is the clinic hosting the visit.
func (b *ClinicBooking) ProviderID() uuid.UUID { return b.ClinicID }
