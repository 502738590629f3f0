package booking

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository/mocks"
	"github.com/jwalitptl/telecare-api/internal/service/audit"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type recordedEvents []string

func (r *recordedEvents) Emit(_ context.Context, eventType string, _ interface{}) error {
	*r = append(*r, eventType)
	return nil
}

func newClinicLifecycle(repo *mocks.ClinicBookingRepository, events *recordedEvents) *Lifecycle[*model.ClinicBooking] {
	return &Lifecycle[*model.ClinicBooking]{
		Kind:     model.BookingKindClinicBooking,
		Entity:   model.AuditEntityClinicBooking,
		Noun:     "clinic booking",
		Provider: "clinic",
		Store:    repo,
		Events:   events,
		Auditor:  audit.Nop{},
		Config:   Config{PaymentTimeout: 15 * time.Minute}.WithDefaults(),
		Now:      func() time.Time { return now },
	}
}

func clinicBooking(status model.BookingStatus) *model.ClinicBooking {
	b := &model.ClinicBooking{
		Booking:  model.Booking{PatientID: uuid.New(), Status: status},
		ClinicID: uuid.New(),
		Service:  "x-ray",
	}
	b.ID = uuid.New()
	b.UpdatedAt = now.Add(-time.Hour)
	return b
}

func TestLifecycleAcceptIsProviderOnly(t *testing.T) {
	repo := &mocks.ClinicBookingRepository{}
	events := &recordedEvents{}
	l := newClinicLifecycle(repo, events)
	b := clinicBooking(model.BookingStatusPending)
	repo.On("Get", mock.Anything, b.ID).Return(b, nil)

	_, err := l.Accept(context.Background(), &model.Principal{UserID: b.PatientID, Role: model.RolePatient}, b.ID)
	assert.Equal(t, http.StatusForbidden, apperrors.StatusOf(err))
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	repo.On("UpdateStatus", mock.Anything, b, model.BookingStatusPending, now.Add(-time.Hour)).Return(nil)
	got, err := l.Accept(context.Background(), &model.Principal{UserID: b.ClinicID, Role: model.RoleClinic}, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusAccepted, got.Status)
	assert.Equal(t, []string{"clinic_booking.accepted"}, []string(*events))
}

func TestLifecycleLostRaceIsConflict(t *testing.T) {
	repo := &mocks.ClinicBookingRepository{}
	events := &recordedEvents{}
	l := newClinicLifecycle(repo, events)
	b := clinicBooking(model.BookingStatusPending)

	repo.On("Get", mock.Anything, b.ID).Return(b, nil)
	repo.On("UpdateStatus", mock.Anything, b, model.BookingStatusPending, mock.Anything).
		Return(apperrors.NewAppointmentError(apperrors.AppointmentConcurrentUpdate, "booking changed"))

	_, err := l.Cancel(context.Background(), &model.Principal{UserID: b.PatientID, Role: model.RolePatient}, b.ID, "")
	assert.Equal(t, http.StatusConflict, apperrors.StatusOf(err))
	assert.Empty(t, *events)
}

func TestLifecycleCancelKeepsReasonAndOutsidersAreRejected(t *testing.T) {
	repo := &mocks.ClinicBookingRepository{}
	l := newClinicLifecycle(repo, &recordedEvents{})
	b := clinicBooking(model.BookingStatusAccepted)

	repo.On("Get", mock.Anything, b.ID).Return(b, nil)
	repo.On("UpdateStatus", mock.Anything, b, model.BookingStatusAccepted, mock.Anything).Return(nil)

	_, err := l.Cancel(context.Background(), &model.Principal{UserID: uuid.New(), Role: model.RolePatient}, b.ID, "nope")
	assert.Equal(t, http.StatusForbidden, apperrors.StatusOf(err))

	got, err := l.Cancel(context.Background(), &model.Principal{UserID: b.ClinicID, Role: model.RoleClinic}, b.ID, "  closed today ")
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, got.Status)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, "closed today", *got.CancelReason)
}

func TestLifecycleGetShowsExpiredPaymentAsAccepted(t *testing.T) {
	repo := &mocks.ClinicBookingRepository{}
	l := newClinicLifecycle(repo, &recordedEvents{})
	b := clinicBooking(model.BookingStatusProcessing)
	started := now.Add(-time.Hour)
	b.ProcessingStartedAt = &started
	repo.On("Get", mock.Anything, b.ID).Return(b, nil)

	got, err := l.Get(context.Background(), &model.Principal{UserID: b.PatientID, Role: model.RolePatient}, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusAccepted, got.Status)
}
