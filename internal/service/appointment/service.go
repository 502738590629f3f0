package appointment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
	"github.com/jwalitptl/telecare-api/internal/service/audit"
	"github.com/jwalitptl/telecare-api/internal/service/booking"
	"github.com/jwalitptl/telecare-api/internal/service/event"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

type Service struct {
	repo      repository.AppointmentRepository
	users     repository.UserRepository
	events    event.Emitter
	auditor   audit.Recorder
	cfg       booking.Config
	now       func() time.Time
	lifecycle *booking.Lifecycle[*model.Appointment]
}

func NewService(repo repository.AppointmentRepository, users repository.UserRepository, events event.Emitter,
	auditor audit.Recorder, cfg booking.Config) *Service {
	s := &Service{
		repo:    repo,
		users:   users,
		events:  events,
		auditor: auditor,
		cfg:     cfg.WithDefaults(),
		now:     model.Now,
	}
	s.lifecycle = &booking.Lifecycle[*model.Appointment]{
		Kind:     model.BookingKindAppointment,
		Entity:   model.AuditEntityAppointment,
		Noun:     "appointment",
		Provider: "doctor",
		Store:    repo,
		Events:   events,
		Auditor:  auditor,
		Config:   s.cfg,
		Now:      func() time.Time { return s.now() },
	}
	return s
}

// Create books a slot with a doctor for the calling patient.
func (s *Service) Create(ctx context.Context, p *model.Principal, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if p.Role != model.RolePatient {
		return nil, apperrors.NewForbidden("only patients can book appointments")
	}
	now := s.now()
	if err := booking.ValidateSlot(req.PreferredDate, req.PreferredTime, now); err != nil {
		return nil, err
	}

	doctor, err := s.users.Get(ctx, req.DoctorID)
	if err != nil {
		if apperrors.StatusOf(err) == http.StatusNotFound {
			return nil, apperrors.NewAppointmentError(apperrors.AppointmentInvalid, "doctor not found")
		}
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}
	if err := booking.CheckProvider(doctor, model.RoleDoctor); err != nil {
		return nil, err
	}

	taken, err := s.repo.SlotTaken(ctx, doctor.ID, req.PreferredDate, req.PreferredTime)
	if err != nil {
		return nil, fmt.Errorf("failed to check slot: %w", err)
	}
	if taken {
		return nil, apperrors.NewAppointmentError(apperrors.AppointmentSlotTaken,
			"doctor already has a booking on %s at %s", req.PreferredDate, req.PreferredTime)
	}

	apt := &model.Appointment{
		Booking: model.Booking{
			PatientID:     p.UserID,
			Status:        model.BookingStatusPending,
			PreferredDate: req.PreferredDate,
			PreferredTime: req.PreferredTime,
			Reason:        strings.TrimSpace(req.Reason),
			Notes:         strings.TrimSpace(req.Notes),
			AmountCents:   doctor.FeeCents,
			Currency:      s.cfg.Currency,
		},
		DoctorID: doctor.ID,
	}
	// the unique index catches races SlotTaken misses
	if err := s.repo.Create(ctx, apt); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}

	booking.Emit(ctx, s.events, model.BookingKindAppointment, &apt.Booking, apt.DoctorID)
	s.auditor.Record(ctx, audit.Entry(p.UserID, model.AuditActionCreate, model.AuditEntityAppointment, apt.ID,
		map[string]string{"doctor_id": apt.DoctorID.String(), "date": apt.PreferredDate, "time": apt.PreferredTime}))
	return apt, nil
}

// List scopes results to the caller: patients and doctors see their own,
// admins see everything.
func (s *Service) List(ctx context.Context, p *model.Principal, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error) {
	switch p.Role {
	case model.RolePatient:
		filters.PatientID = p.UserID
	case model.RoleDoctor:
		filters.DoctorID = p.UserID
	case model.RoleAdmin:
	default:
		return nil, 0, apperrors.NewForbidden("role cannot list appointments")
	}

	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	for _, a := range items {
		s.lifecycle.View(a)
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Appointment, error) {
	return s.lifecycle.Get(ctx, p, id)
}

func (s *Service) Accept(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Appointment, error) {
	return s.lifecycle.Accept(ctx, p, id)
}

func (s *Service) Reject(ctx context.Context, p *model.Principal, id uuid.UUID, reason string) (*model.Appointment, error) {
	return s.lifecycle.Reject(ctx, p, id, reason)
}

func (s *Service) Complete(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Appointment, error) {
	return s.lifecycle.Complete(ctx, p, id)
}

// Cancel is open to the patient, the doctor and admins.
func (s *Service) Cancel(ctx context.Context, p *model.Principal, id uuid.UUID, reason string) (*model.Appointment, error) {
	return s.lifecycle.Cancel(ctx, p, id, reason)
}
