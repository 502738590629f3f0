// Package booking holds the rules shared by appointments and clinic bookings.
package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/service/event"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

const MaxAdvanceBooking = 90 * 24 * time.Hour

type Config struct {
	PaymentTimeout time.Duration
	Currency       string
}

func (c Config) WithDefaults() Config {
	if c.PaymentTimeout <= 0 {
		c.PaymentTimeout = model.DefaultPaymentTimeout
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	return c
}

// ValidateSlot checks that date and clock parse and fall between now and the
// booking horizon.
func ValidateSlot(date, clock string, now time.Time) error {
	slot, err := model.ParseSlot(date, clock)
	if err != nil {
		return apperrors.NewAppointmentError(apperrors.AppointmentInvalid,
			"preferred date and time must be YYYY-MM-DD and HH:MM")
	}
	if !slot.After(now) {
		return apperrors.NewAppointmentError(apperrors.AppointmentInvalid,
			"preferred date and time must be in the future")
	}
	if slot.After(now.Add(MaxAdvanceBooking)) {
		return apperrors.NewAppointmentError(apperrors.AppointmentInvalid,
			"bookings can be made at most %d days ahead", int(MaxAdvanceBooking.Hours()/24))
	}
	return nil
}

// CheckProvider verifies the doctor or clinic a booking is made with.
func CheckProvider(user *model.User, role model.Role) error {
	if user.Role != role {
		return apperrors.NewAppointmentError(apperrors.AppointmentInvalid, "selected user is not a %s", role)
	}
	if !user.Active() {
		return apperrors.NewAppointmentError(apperrors.AppointmentInvalid, "%s is not accepting bookings", role)
	}
	return nil
}

func Event(kind model.BookingKind, b *model.Booking, providerID uuid.UUID) model.BookingEvent {
	reason := b.Reason
	switch {
	case b.Status == model.BookingStatusRejected && b.RejectionReason != nil:
		reason = *b.RejectionReason
	case b.Status == model.BookingStatusCancelled && b.CancelReason != nil:
		reason = *b.CancelReason
	}
	return model.BookingEvent{
		Kind:          kind,
		BookingID:     b.ID,
		PatientID:     b.PatientID,
		ProviderID:    providerID,
		Status:        b.Status,
		PreferredDate: b.PreferredDate,
		PreferredTime: b.PreferredTime,
		Reason:        reason,
		OccurredAt:    b.UpdatedAt,
	}
}

// Emit queues the event for the booking's current status. The booking write
// has already committed, so a failed outbox write is logged, not returned.
func Emit(ctx context.Context, events event.Emitter, kind model.BookingKind, b *model.Booking, providerID uuid.UUID) {
	eventType := model.BookingEventType(kind, b.Status)
	if err := events.Emit(ctx, eventType, Event(kind, b, providerID)); err != nil {
		log.Error().Err(err).
			Str("event_type", eventType).
			Str("booking_id", b.ID.String()).
			Msg("failed to queue booking event")
	}
}

// AuditAction maps a target status to the audit action recorded for it.
func AuditAction(to model.BookingStatus) string {
	switch to {
	case model.BookingStatusPending:
		return model.AuditActionCreate
	case model.BookingStatusAccepted:
		return model.AuditActionAccept
	case model.BookingStatusRejected:
		return model.AuditActionReject
	case model.BookingStatusCancelled:
		return model.AuditActionCancel
	case model.BookingStatusCompleted:
		return model.AuditActionComplete
	case model.BookingStatusPaid, model.BookingStatusProcessing:
		return model.AuditActionPay
	}
	return model.AuditActionUpdate
}

func Changes(from, to model.BookingStatus) map[string]string {
	return map[string]string{"from": string(from), "to": string(to)}
}
