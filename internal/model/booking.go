package model

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusAccepted   BookingStatus = "accepted"
	BookingStatusRejected   BookingStatus = "rejected"
	BookingStatusProcessing BookingStatus = "processing"
	BookingStatusPaid       BookingStatus = "paid"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

// DefaultPaymentTimeout bounds how long a booking may sit in processing
// before another checkout is allowed.
const DefaultPaymentTimeout = 15 * time.Minute

var transitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:    {BookingStatusAccepted, BookingStatusRejected, BookingStatusCancelled},
	BookingStatusAccepted:   {BookingStatusProcessing, BookingStatusCancelled},
	BookingStatusProcessing: {BookingStatusPaid, BookingStatusAccepted},
	BookingStatusPaid:       {BookingStatusCompleted},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusAccepted, BookingStatusRejected,
		BookingStatusProcessing, BookingStatusPaid, BookingStatusCompleted,
		BookingStatusCancelled:
		return true
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Active bookings hold their slot.
func (s BookingStatus) Active() bool {
	switch s {
	case BookingStatusPending, BookingStatusAccepted, BookingStatusProcessing, BookingStatusPaid:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ActiveStatuses lists the statuses that occupy a slot.
func ActiveStatuses() []string {
	return []string{
		string(BookingStatusPending),
		string(BookingStatusAccepted),
		string(BookingStatusProcessing),
		string(BookingStatusPaid),
	}
}

// BookingKind distinguishes the two bookable record types.
type BookingKind string

const (
	BookingKindAppointment   BookingKind = "appointment"
	BookingKindClinicBooking BookingKind = "clinic_booking"
)

func (k BookingKind) Valid() bool {
	return k == BookingKindAppointment || k == BookingKindClinicBooking
}

// Booking holds the fields and payment lifecycle shared by appointments and
// clinic bookings.
type Booking struct {
	Base
	PatientID           uuid.UUID     `json:"patient_id" db:"patient_id"`
	Status              BookingStatus `json:"status" db:"status"`
	IsPaid              bool          `json:"is_paid" db:"is_paid"`
	PreferredDate       string        `json:"preferred_date" db:"preferred_date"`
	PreferredTime       string        `json:"preferred_time" db:"preferred_time"`
	Reason              string        `json:"reason" db:"reason"`
	Notes               string        `json:"notes,omitempty" db:"notes"`
	AmountCents         int64         `json:"amount_cents" db:"amount_cents"`
	Currency            string        `json:"currency" db:"currency"`
	PaymentProvider     *string       `json:"payment_provider,omitempty" db:"payment_provider"`
	PaymentReference    *string       `json:"payment_reference,omitempty" db:"payment_reference"`
	ProcessingStartedAt *time.Time    `json:"processing_started_at,omitempty" db:"processing_started_at"`
	PaidAt              *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	RejectionReason     *string       `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CancelReason        *string       `json:"cancel_reason,omitempty" db:"cancel_reason"`
}

// Transition moves the booking to the given status and stamps the fields
// that go with it. Illegal moves leave the booking untouched.
func (b *Booking) Transition(to BookingStatus, now time.Time) error {
	if !CanTransition(b.Status, to) {
		return apperrors.NewAppointmentError(apperrors.AppointmentInvalidTransition,
			"cannot move booking from %s to %s", b.Status, to)
	}

	switch to {
	case BookingStatusProcessing:
		t := now
		b.ProcessingStartedAt = &t
	case BookingStatusPaid:
		t := now
		b.IsPaid = true
		b.PaidAt = &t
	case BookingStatusAccepted:
		// payment attempt abandoned
		b.ProcessingStartedAt = nil
		b.PaymentProvider = nil
		b.PaymentReference = nil
	}
	b.Status = to
	b.UpdatedAt = now
	return nil
}

// PaymentExpired reports whether a processing payment attempt ran past the
// timeout.
func (b *Booking) PaymentExpired(now time.Time, timeout time.Duration) bool {
	if b.Status != BookingStatusProcessing {
		return false
	}
	if b.ProcessingStartedAt == nil {
		return true
	}
	return b.ProcessingStartedAt.Add(timeout).Before(now)
}

// EffectiveStatus is the status callers should see: an expired processing
// attempt reads as accepted.
func (b *Booking) EffectiveStatus(now time.Time, timeout time.Duration) BookingStatus {
	if b.PaymentExpired(now, timeout) {
		return BookingStatusAccepted
	}
	return b.Status
}

func (b *Booking) IsPayable(now time.Time, timeout time.Duration) bool {
	return !b.IsPaid && b.EffectiveStatus(now, timeout) == BookingStatusAccepted
}

// StartPayment moves a payable booking into processing. An expired attempt
// is rolled back to accepted first.
func (b *Booking) StartPayment(now time.Time, timeout time.Duration) error {
	if !b.IsPayable(now, timeout) {
		return apperrors.NewAppointmentError(apperrors.AppointmentNotPayable,
			"booking is %s and cannot be paid", b.EffectiveStatus(now, timeout))
	}
	if b.Status == BookingStatusProcessing {
		if err := b.Transition(BookingStatusAccepted, now); err != nil {
			return err
		}
	}
	return b.Transition(BookingStatusProcessing, now)
}

// ExpirePayment rolls an expired processing attempt back to accepted.
func (b *Booking) ExpirePayment(now time.Time, timeout time.Duration) error {
	if !b.PaymentExpired(now, timeout) {
		return apperrors.NewAppointmentError(apperrors.AppointmentInvalidTransition,
			"booking payment has not expired")
	}
	return b.Transition(BookingStatusAccepted, now)
}

// Apply moves the booking from its effective status to the given status and
// returns the stored status and version the write must compare against. On
// error the booking is left unchanged.
func (b *Booking) Apply(to BookingStatus, now time.Time, timeout time.Duration) (BookingStatus, time.Time, error) {
	from, version := b.Status, b.UpdatedAt
	next := *b
	if next.PaymentExpired(now, timeout) && to != BookingStatusPaid {
		if err := next.Transition(BookingStatusAccepted, now); err != nil {
			return "", time.Time{}, err
		}
	}
	if err := next.Transition(to, now); err != nil {
		return "", time.Time{}, err
	}
	*b = next
	return from, version, nil
}

// View returns a copy with the effective status applied.
func (b Booking) View(now time.Time, timeout time.Duration) Booking {
	if b.PaymentExpired(now, timeout) {
		b.Status = BookingStatusAccepted
		b.ProcessingStartedAt = nil
	}
	return b
}

// Slot parses the preferred date and time in UTC.
func (b *Booking) Slot() (time.Time, error) {
	return ParseSlot(b.PreferredDate, b.PreferredTime)
}

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

func ParseSlot(date, clock string) (time.Time, error) {
	return time.Parse(DateLayout+" "+ClockLayout, date+" "+clock)
}

// BookingFilters narrows list queries for both booking kinds.
type BookingFilters struct {
	Status   BookingStatus `form:"status" binding:"omitempty,booking_status"`
	DateFrom string        `form:"date_from" binding:"omitempty,date"`
	DateTo   string        `form:"date_to" binding:"omitempty,date"`
	Pagination
}

// RejectRequest carries an optional reason for rejecting a booking.
type RejectRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}
