package model

import (
	"time"

	"github.com/google/uuid"
)

// Appointment is a patient-doctor booking.
type Appointment struct {
	Booking
	DoctorID    uuid.UUID `json:"doctor_id" db:"doctor_id"`
	VideoRoomID *string   `json:"video_room_id,omitempty" db:"video_room_id"`
}

// HasParticipant reports whether userID is the patient or the doctor.
func (a *Appointment) HasParticipant(userID uuid.UUID) bool {
	return a.PatientID == userID || a.DoctorID == userID
}

type CreateAppointmentRequest struct {
	DoctorID      uuid.UUID `json:"doctor_id" binding:"required"`
	PreferredDate string    `json:"preferred_date" binding:"required,date"`
	PreferredTime string    `json:"preferred_time" binding:"required,clock"`
	Reason        string    `json:"reason" binding:"required,max=1000"`
	Notes         string    `json:"notes" binding:"max=2000"`
}

type AppointmentFilters struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	BookingFilters
}

// VideoToken lets a participant join the appointment's video room.
type VideoToken struct {
	Provider  string    `json:"provider"`
	Token     string    `json:"token"`
	RoomID    string    `json:"room_id"`
	Role      string    `json:"role"`
	AppID     string    `json:"app_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *Appointment) Core() *Booking { return &a.Booking }

// ProviderID is the doctor who runs the appointment.
func (a *Appointment) ProviderID() uuid.UUID { return a.DoctorID }
