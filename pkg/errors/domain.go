package errors

import (
	"fmt"
	"net/http"
)

// AppointmentErrorKind classifies booking failures.
type AppointmentErrorKind string

const (
	AppointmentInvalid           AppointmentErrorKind = "invalid"
	AppointmentNotFound          AppointmentErrorKind = "not_found"
	AppointmentSlotTaken         AppointmentErrorKind = "slot_taken"
	AppointmentInvalidTransition AppointmentErrorKind = "invalid_transition"
	AppointmentConcurrentUpdate  AppointmentErrorKind = "concurrent_update"
	AppointmentNotPayable        AppointmentErrorKind = "not_payable"
)

// AppointmentError is returned for booking and status-transition failures of
// appointments and clinic bookings.
type AppointmentError struct {
	Kind    AppointmentErrorKind `json:"kind"`
	Message string               `json:"message"`
}

func (e *AppointmentError) Error() string {
	return fmt.Sprintf("appointment %s: %s", e.Kind, e.Message)
}

func (e *AppointmentError) StatusCode() int {
	switch e.Kind {
	case AppointmentNotFound:
		return http.StatusNotFound
	case AppointmentSlotTaken, AppointmentInvalidTransition, AppointmentConcurrentUpdate, AppointmentNotPayable:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func NewAppointmentError(kind AppointmentErrorKind, format string, args ...any) *AppointmentError {
	return &AppointmentError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// SessionError is returned when a session cookie is missing, malformed,
// expired or revoked.
type SessionError struct {
	Message string
	Err     error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session: %s: %v", e.Message, e.Err)
	}
	return "session: " + e.Message
}

func (e *SessionError) Unwrap() error { return e.Err }

func (e *SessionError) StatusCode() int { return http.StatusUnauthorized }

func NewSessionError(message string, err error) *SessionError {
	return &SessionError{Message: message, Err: err}
}
