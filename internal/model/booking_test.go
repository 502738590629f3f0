package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		want     bool
	}{
		{BookingStatusPending, BookingStatusAccepted, true},
		{BookingStatusPending, BookingStatusRejected, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusPending, BookingStatusProcessing, false},
		{BookingStatusPending, BookingStatusPaid, false},
		{BookingStatusAccepted, BookingStatusProcessing, true},
		{BookingStatusAccepted, BookingStatusCancelled, true},
		{BookingStatusAccepted, BookingStatusPending, false},
		{BookingStatusAccepted, BookingStatusPaid, false},
		{BookingStatusProcessing, BookingStatusPaid, true},
		{BookingStatusProcessing, BookingStatusAccepted, true},
		{BookingStatusProcessing, BookingStatusCancelled, false},
		{BookingStatusPaid, BookingStatusCompleted, true},
		{BookingStatusPaid, BookingStatusAccepted, false},
		{BookingStatusPaid, BookingStatusCancelled, false},
		{BookingStatusRejected, BookingStatusAccepted, false},
		{BookingStatusCancelled, BookingStatusPending, false},
		{BookingStatusCompleted, BookingStatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, BookingStatusRejected.Terminal())
	assert.True(t, BookingStatusCancelled.Terminal())
	assert.True(t, BookingStatusCompleted.Terminal())
	assert.False(t, BookingStatusPending.Terminal())
	assert.False(t, BookingStatusProcessing.Terminal())
}

func TestTransitionHappyPath(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := &Booking{Status: BookingStatusPending}

	require.NoError(t, b.Transition(BookingStatusAccepted, now))
	require.NoError(t, b.StartPayment(now, DefaultPaymentTimeout))
	assert.Equal(t, BookingStatusProcessing, b.Status)
	require.NotNil(t, b.ProcessingStartedAt)
	assert.Equal(t, now, *b.ProcessingStartedAt)

	paidAt := now.Add(2 * time.Minute)
	require.NoError(t, b.Transition(BookingStatusPaid, paidAt))
	assert.True(t, b.IsPaid)
	require.NotNil(t, b.PaidAt)
	assert.Equal(t, paidAt, *b.PaidAt)

	require.NoError(t, b.Transition(BookingStatusCompleted, paidAt))
	assert.Equal(t, BookingStatusCompleted, b.Status)
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	b := &Booking{Status: BookingStatusPending}
	err := b.Transition(BookingStatusPaid, time.Now())

	var aptErr *apperrors.AppointmentError
	require.ErrorAs(t, err, &aptErr)
	assert.Equal(t, apperrors.AppointmentInvalidTransition, aptErr.Kind)
	assert.Equal(t, 409, apperrors.StatusOf(err))
	assert.Equal(t, BookingStatusPending, b.Status)
	assert.False(t, b.IsPaid)
}

func TestPaymentTimeout(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	timeout := 15 * time.Minute
	b := &Booking{Status: BookingStatusAccepted}
	require.NoError(t, b.StartPayment(start, timeout))

	within := start.Add(10 * time.Minute)
	assert.False(t, b.PaymentExpired(within, timeout))
	assert.Equal(t, BookingStatusProcessing, b.EffectiveStatus(within, timeout))
	assert.False(t, b.IsPayable(within, timeout))

	err := b.StartPayment(within, timeout)
	var aptErr *apperrors.AppointmentError
	require.ErrorAs(t, err, &aptErr)
	assert.Equal(t, apperrors.AppointmentNotPayable, aptErr.Kind)

	after := start.Add(16 * time.Minute)
	assert.True(t, b.PaymentExpired(after, timeout))
	assert.Equal(t, BookingStatusAccepted, b.EffectiveStatus(after, timeout))
	assert.True(t, b.IsPayable(after, timeout))

	view := b.View(after, timeout)
	assert.Equal(t, BookingStatusAccepted, view.Status)
	assert.Equal(t, BookingStatusProcessing, b.Status)

	require.NoError(t, b.StartPayment(after, timeout))
	assert.Equal(t, BookingStatusProcessing, b.Status)
	assert.Equal(t, after, *b.ProcessingStartedAt)
}

func TestExpirePayment(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	provider, ref := "stripe", "cs_123"
	b := &Booking{Status: BookingStatusAccepted}
	require.NoError(t, b.StartPayment(start, time.Minute))
	b.PaymentProvider, b.PaymentReference = &provider, &ref

	assert.Error(t, b.ExpirePayment(start.Add(30*time.Second), time.Minute))

	require.NoError(t, b.ExpirePayment(start.Add(2*time.Minute), time.Minute))
	assert.Equal(t, BookingStatusAccepted, b.Status)
	assert.Nil(t, b.ProcessingStartedAt)
	assert.Nil(t, b.PaymentReference)
}

func TestPaidBookingIsNotPayable(t *testing.T) {
	b := &Booking{Status: BookingStatusPaid, IsPaid: true}
	assert.False(t, b.IsPayable(time.Now(), DefaultPaymentTimeout))
	assert.False(t, b.PaymentExpired(time.Now(), DefaultPaymentTimeout))
}

func TestActiveStatuses(t *testing.T) {
	for _, s := range ActiveStatuses() {
		assert.True(t, BookingStatus(s).Active())
	}
	assert.False(t, BookingStatusCancelled.Active())
	assert.False(t, BookingStatusRejected.Active())
	assert.False(t, BookingStatusCompleted.Active())
}

func TestBookingEventType(t *testing.T) {
	assert.Equal(t, EventAppointmentCreated, BookingEventType(BookingKindAppointment, BookingStatusPending))
	assert.Equal(t, EventClinicBookingPaid, BookingEventType(BookingKindClinicBooking, BookingStatusPaid))
}

func TestParseSlot(t *testing.T) {
	slot, err := ParseSlot("2026-04-02", "09:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC), slot)

	_, err = ParseSlot("2026-02-30", "09:30")
	assert.Error(t, err)
}

func TestApplyNormalizesExpiredPayment(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := &Booking{Status: BookingStatusAccepted}
	b.UpdatedAt = start
	require.NoError(t, b.StartPayment(start, time.Minute))

	later := start.Add(5 * time.Minute)
	from, version, err := b.Apply(BookingStatusCancelled, later, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, BookingStatusProcessing, from)
	assert.Equal(t, start, version)
	assert.Equal(t, BookingStatusCancelled, b.Status)
	assert.Equal(t, later, b.UpdatedAt)
}

func TestApplyLeavesBookingOnError(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := &Booking{Status: BookingStatusPending}
	b.UpdatedAt = now

	_, _, err := b.Apply(BookingStatusCompleted, now.Add(time.Minute), time.Minute)
	require.Error(t, err)
	assert.Equal(t, BookingStatusPending, b.Status)
	assert.Equal(t, now, b.UpdatedAt)
}
