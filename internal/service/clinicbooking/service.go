package clinicbooking

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
	repo      repository.ClinicBookingRepository
	users     repository.UserRepository
	events    event.Emitter
	auditor   audit.Recorder
	cfg       booking.Config
	now       func() time.Time
	lifecycle *booking.Lifecycle[*model.ClinicBooking]
}

func NewService(repo repository.ClinicBookingRepository, users repository.UserRepository, events event.Emitter,
	auditor audit.Recorder, cfg booking.Config) *Service {
	s := &Service{
		repo:    repo,
		users:   users,
		events:  events,
		auditor: auditor,
		cfg:     cfg.WithDefaults(),
		now:     model.Now,
	}
	s.lifecycle = &booking.Lifecycle[*model.ClinicBooking]{
		Kind:     model.BookingKindClinicBooking,
		Entity:   model.AuditEntityClinicBooking,
		Noun:     "clinic booking",
		Provider: "clinic",
		Store:    repo,
		Events:   events,
		Auditor:  auditor,
		Config:   s.cfg,
		Now:      func() time.Time { return s.now() },
	}
	return s
}

func (s *Service) Create(ctx context.Context, p *model.Principal, req *model.CreateClinicBookingRequest) (*model.ClinicBooking, error) {
	if p.Role != model.RolePatient {
		return nil, apperrors.NewForbidden("only patients can book clinic visits")
	}
	service := strings.TrimSpace(req.Service)
	if service == "" {
		return nil, apperrors.NewAppointmentError(apperrors.AppointmentInvalid, "service is required")
	}
	if err := booking.ValidateSlot(req.PreferredDate, req.PreferredTime, s.now()); err != nil {
		return nil, err
	}

	clinic, err := s.users.Get(ctx, req.ClinicID)
	if err != nil {
		if apperrors.StatusOf(err) == http.StatusNotFound {
			return nil, apperrors.NewAppointmentError(apperrors.AppointmentInvalid, "clinic not found")
		}
		return nil, fmt.Errorf("failed to get clinic: %w", err)
	}
	if err := booking.CheckProvider(clinic, model.RoleClinic); err != nil {
		return nil, err
	}

	taken, err := s.repo.SlotTaken(ctx, clinic.ID, service, req.PreferredDate, req.PreferredTime)
	if err != nil {
		return nil, fmt.Errorf("failed to check slot: %w", err)
	}
	if taken {
		return nil, apperrors.NewAppointmentError(apperrors.AppointmentSlotTaken,
			"%s is already booked on %s at %s", service, req.PreferredDate, req.PreferredTime)
	}

	b := &model.ClinicBooking{
		Booking: model.Booking{
			PatientID:     p.UserID,
			Status:        model.BookingStatusPending,
			PreferredDate: req.PreferredDate,
			PreferredTime: req.PreferredTime,
			Reason:        strings.TrimSpace(req.Reason),
			Notes:         strings.TrimSpace(req.Notes),
			AmountCents:   clinic.FeeCents,
			Currency:      s.cfg.Currency,
		},
		ClinicID: clinic.ID,
		Service:  service,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create clinic booking: %w", err)
	}

	booking.Emit(ctx, s.events, model.BookingKindClinicBooking, &b.Booking, b.ClinicID)
	s.auditor.Record(ctx, audit.Entry(p.UserID, model.AuditActionCreate, model.AuditEntityClinicBooking, b.ID,
		map[string]string{"clinic_id": b.ClinicID.String(), "service": b.Service, "date": b.PreferredDate, "time": b.PreferredTime}))
	return b, nil
}

func (s *Service) List(ctx context.Context, p *model.Principal, filters *model.ClinicBookingFilters) ([]*model.ClinicBooking, int64, error) {
	switch p.Role {
	case model.RolePatient:
		filters.PatientID = p.UserID
	case model.RoleClinic:
		filters.ClinicID = p.UserID
	case model.RoleAdmin:
	default:
		return nil, 0, apperrors.NewForbidden("role cannot list clinic bookings")
	}

	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list clinic bookings: %w", err)
	}
	for _, b := range items {
		s.lifecycle.View(b)
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.ClinicBooking, error) {
	return s.lifecycle.Get(ctx, p, id)
}

func (s *Service) Accept(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.ClinicBooking, error) {
	return s.lifecycle.Accept(ctx, p, id)
}

func (s *Service) Reject(ctx context.Context, p *model.Principal, id uuid.UUID, reason string) (*model.ClinicBooking, error) {
	return s.lifecycle.Reject(ctx, p, id, reason)
}

func (s *Service) Complete(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.ClinicBooking, error) {
	return s.lifecycle.Complete(ctx, p, id)
}

func (s *Service) Cancel(ctx context.Context, p *model.Principal, id uuid.UUID, reason string) (*model.ClinicBooking, error) {
	return s.lifecycle.Cancel(ctx, p, id, reason)
}
