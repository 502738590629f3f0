package appointment

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
	"github.com/jwalitptl/telecare-api/internal/service/booking"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type recordedEvents []string

func (r *recordedEvents) Emit(_ context.Context, eventType string, _ interface{}) error {
	*r = append(*r, eventType)
	return nil
}

type fixture struct {
	svc    *Service
	repo   *mocks.AppointmentRepository
	users  *mocks.UserRepository
	events *recordedEvents
}

func newFixture() *fixture {
	f := &fixture{
		repo:   &mocks.AppointmentRepository{},
		users:  &mocks.UserRepository{},
		events: &recordedEvents{},
	}
	f.svc = NewService(f.repo, f.users, f.events, audit.Nop{}, booking.Config{PaymentTimeout: 15 * time.Minute, Currency: "usd"})
	f.svc.now = func() time.Time { return now }
	return f
}

func principal(role model.Role) *model.Principal {
	return &model.Principal{UserID: uuid.New(), Role: role}
}

func doctor() *model.User {
	u := &model.User{Name: "Dr. Who", Role: model.RoleDoctor, Status: model.UserStatusActive, FeeCents: 5000}
	u.ID = uuid.New()
	return u
}

func appointment(patient, doc uuid.UUID, status model.BookingStatus) *model.Appointment {
	a := &model.Appointment{
		Booking: model.Booking{
			PatientID:     patient,
			Status:        status,
			PreferredDate: "2026-06-10",
			PreferredTime: "10:30",
			AmountCents:   5000,
			Currency:      "usd",
		},
		DoctorID: doc,
	}
	a.ID = uuid.New()
	a.UpdatedAt = now.Add(-time.Hour)
	return a
}

func request(doctorID uuid.UUID) *model.CreateAppointmentRequest {
	return &model.CreateAppointmentRequest{
		DoctorID:      doctorID,
		PreferredDate: "2026-06-10",
		PreferredTime: "10:30",
		Reason:        "rash",
	}
}

func TestCreate(t *testing.T) {
	f := newFixture()
	doc := doctor()
	patient := principal(model.RolePatient)

	f.users.On("Get", mock.Anything, doc.ID).Return(doc, nil)
	f.repo.On("SlotTaken", mock.Anything, doc.ID, "2026-06-10", "10:30").Return(false, nil)
	f.repo.On("Create", mock.Anything, mock.MatchedBy(func(a *model.Appointment) bool {
		return a.PatientID == patient.UserID &&
			a.Status == model.BookingStatusPending &&
			a.AmountCents == 5000 &&
			a.Currency == "usd"
	})).Return(nil)

	apt, err := f.svc.Create(context.Background(), patient, request(doc.ID))
	require.NoError(t, err)
	assert.Equal(t, doc.ID, apt.DoctorID)
	assert.Equal(t, recordedEvents{model.EventAppointmentCreated}, *f.events)
}

func TestCreateValidation(t *testing.T) {
	doc := doctor()
	clinic := doctor()
	clinic.Role = model.RoleClinic
	disabled := doctor()
	disabled.Status = model.UserStatusDisabled

	tests := []struct {
		name   string
		role   model.Role
		mutate func(*model.CreateAppointmentRequest)
		status int
	}{
		{"doctor cannot book", model.RoleDoctor, nil, http.StatusForbidden},
		{"past slot", model.RolePatient, func(r *model.CreateAppointmentRequest) { r.PreferredDate = "2026-05-31" }, http.StatusBadRequest},
		{"beyond horizon", model.RolePatient, func(r *model.CreateAppointmentRequest) { r.PreferredDate = "2027-06-10" }, http.StatusBadRequest},
		{"bad clock", model.RolePatient, func(r *model.CreateAppointmentRequest) { r.PreferredTime = "25:00" }, http.StatusBadRequest},
		{"not a doctor", model.RolePatient, func(r *model.CreateAppointmentRequest) { r.DoctorID = clinic.ID }, http.StatusBadRequest},
		{"inactive doctor", model.RolePatient, func(r *model.CreateAppointmentRequest) { r.DoctorID = disabled.ID }, http.StatusBadRequest},
		{"unknown doctor", model.RolePatient, func(r *model.CreateAppointmentRequest) { r.DoctorID = uuid.Nil }, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.users.On("Get", mock.Anything, doc.ID).Return(doc, nil)
			f.users.On("Get", mock.Anything, clinic.ID).Return(clinic, nil)
			f.users.On("Get", mock.Anything, disabled.ID).Return(disabled, nil)
			f.users.On("Get", mock.Anything, uuid.Nil).Return(nil, apperrors.NewNotFound("user", nil))

			req := request(doc.ID)
			if tt.mutate != nil {
				tt.mutate(req)
			}
			_, err := f.svc.Create(context.Background(), principal(tt.role), req)
			require.Error(t, err)
			assert.Equal(t, tt.status, apperrors.StatusOf(err))
			f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateSlotTaken(t *testing.T) {
	f := newFixture()
	doc := doctor()
	f.users.On("Get", mock.Anything, doc.ID).Return(doc, nil)
	f.repo.On("SlotTaken", mock.Anything, doc.ID, "2026-06-10", "10:30").Return(true, nil)

	_, err := f.svc.Create(context.Background(), principal(model.RolePatient), request(doc.ID))
	var aptErr *apperrors.AppointmentError
	require.ErrorAs(t, err, &aptErr)
	assert.Equal(t, apperrors.AppointmentSlotTaken, aptErr.Kind)
	assert.Equal(t, http.StatusConflict, apperrors.StatusOf(err))
	assert.Empty(t, *f.events)
}

func TestListScopesToCaller(t *testing.T) {
	f := newFixture()
	patient := principal(model.RolePatient)
	doc := principal(model.RoleDoctor)

	f.repo.On("List", mock.Anything, mock.MatchedBy(func(fl *model.AppointmentFilters) bool {
		return fl.PatientID == patient.UserID && fl.DoctorID == uuid.Nil
	})).Return([]*model.Appointment{}, int64(0), nil).Once()
	f.repo.On("List", mock.Anything, mock.MatchedBy(func(fl *model.AppointmentFilters) bool {
		return fl.DoctorID == doc.UserID && fl.PatientID == uuid.Nil
	})).Return([]*model.Appointment{}, int64(0), nil).Once()

	_, _, err := f.svc.List(context.Background(), patient, &model.AppointmentFilters{})
	require.NoError(t, err)
	_, _, err = f.svc.List(context.Background(), doc, &model.AppointmentFilters{})
	require.NoError(t, err)

	_, _, err = f.svc.List(context.Background(), principal(model.RolePharmacy), &model.AppointmentFilters{})
	assert.Equal(t, http.StatusForbidden, apperrors.StatusOf(err))
	f.repo.AssertExpectations(t)
}

func TestGetShowsExpiredPaymentAsAccepted(t *testing.T) {
	f := newFixture()
	patient := principal(model.RolePatient)
	apt := appointment(patient.UserID, uuid.New(), model.BookingStatusProcessing)
	started := now.Add(-20 * time.Minute)
	apt.ProcessingStartedAt = &started
	f.repo.On("Get", mock.Anything, apt.ID).Return(apt, nil)

	got, err := f.svc.Get(context.Background(), patient, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusAccepted, got.Status)
}

func TestGetRequiresParticipant(t *testing.T) {
	f := newFixture()
	apt := appointment(uuid.New(), uuid.New(), model.BookingStatusPending)
	f.repo.On("Get", mock.Anything, apt.ID).Return(apt, nil)

	_, err := f.svc.Get(context.Background(), principal(model.RolePatient), apt.ID)
	assert.Equal(t, http.StatusForbidden, apperrors.StatusOf(err))

	_, err = f.svc.Get(context.Background(), principal(model.RoleAdmin), apt.ID)
	assert.NoError(t, err)
}

func TestAccept(t *testing.T) {
	f := newFixture()
	doc := principal(model.RoleDoctor)
	apt := appointment(uuid.New(), doc.UserID, model.BookingStatusPending)
	version := apt.UpdatedAt
	f.repo.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.repo.On("UpdateStatus", mock.Anything, apt, model.BookingStatusPending, version).Return(nil)

	got, err := f.svc.Accept(context.Background(), doc, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusAccepted, got.Status)
	assert.Equal(t, now, got.UpdatedAt)
	assert.Equal(t, recordedEvents{model.EventAppointmentAccepted}, *f.events)
}

func TestAcceptByOtherDoctor(t *testing.T) {
	f := newFixture()
	apt := appointment(uuid.New(), uuid.New(), model.BookingStatusPending)
	f.repo.On("Get", mock.Anything, apt.ID).Return(apt, nil)

	// the patient is a participant but not the doctor
	_, err := f.svc.Accept(context.Background(), &model.Principal{UserID: apt.PatientID, Role: model.RolePatient}, apt.ID)
	assert.Equal(t, http.StatusForbidden, apperrors.StatusOf(err))
}

func TestRejectStoresReason(t *testing.T) {
	f := newFixture()
	doc := principal(model.RoleDoctor)
	apt := appointment(uuid.New(), doc.UserID, model.BookingStatusPending)
	f.repo.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.repo.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(a *model.Appointment) bool {
		return a.RejectionReason != nil && *a.RejectionReason == "fully booked"
	}), model.BookingStatusPending, mock.Anything).Return(nil)

	got, err := f.svc.Reject(context.Background(), doc, apt.ID, " fully booked ")
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusRejected, got.Status)
}

func TestIllegalTransitions(t *testing.T) {
	tests := []struct {
		name   string
		status model.BookingStatus
		call   func(*Service, *model.Principal, uuid.UUID) error
	}{
		{"accept accepted", model.BookingStatusAccepted, func(s *Service, p *model.Principal, id uuid.UUID) error {
			_, err := s.Accept(context.Background(), p, id)
			return err
		}},
		{"complete unpaid", model.BookingStatusAccepted, func(s *Service, p *model.Principal, id uuid.UUID) error {
			_, err := s.Complete(context.Background(), p, id)
			return err
		}},
		{"cancel paid", model.BookingStatusPaid, func(s *Service, p *model.Principal, id uuid.UUID) error {
			_, err := s.Cancel(context.Background(), p, id, "")
			return err
		}},
		{"reject completed", model.BookingStatusCompleted, func(s *Service, p *model.Principal, id uuid.UUID) error {
			_, err := s.Reject(context.Background(), p, id, "")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			doc := principal(model.RoleDoctor)
			apt := appointment(uuid.New(), doc.UserID, tt.status)
			f.repo.On("Get", mock.Anything, apt.ID).Return(apt, nil)

			err := tt.call(f.svc, doc, apt.ID)
			var aptErr *apperrors.AppointmentError
			require.ErrorAs(t, err, &aptErr)
			assert.Equal(t, apperrors.AppointmentInvalidTransition, aptErr.Kind)
			assert.Equal(t, http.StatusConflict, apperrors.StatusOf(err))
			f.repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCancelAfterExpiredPayment(t *testing.T) {
	f := newFixture()
	patient := principal(model.RolePatient)
	apt := appointment(patient.UserID, uuid.New(), model.BookingStatusProcessing)
	started := now.Add(-time.Hour)
	apt.ProcessingStartedAt = &started
	f.repo.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.repo.On("UpdateStatus", mock.Anything, apt, model.BookingStatusProcessing, mock.Anything).Return(nil)

	got, err := f.svc.Cancel(context.Background(), patient, apt.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, got.Status)
	assert.Equal(t, "changed my mind", *got.CancelReason)
	assert.Equal(t, recordedEvents{model.EventAppointmentCancelled}, *f.events)
}

func TestLostRaceIsConflict(t *testing.T) {
	f := newFixture()
	doc := principal(model.RoleDoctor)
	apt := appointment(uuid.New(), doc.UserID, model.BookingStatusPaid)
	f.repo.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.repo.On("UpdateStatus", mock.Anything, apt, model.BookingStatusPaid, mock.Anything).
		Return(apperrors.NewAppointmentError(apperrors.AppointmentConcurrentUpdate, "gone"))

	_, err := f.svc.Complete(context.Background(), doc, apt.ID)
	assert.Equal(t, http.StatusConflict, apperrors.StatusOf(err))
	assert.Empty(t, *f.events)
}
