package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

const (
	scopePlatform = "platform"
	scopeDoctor   = "doctor"
	scopeClinic   = "clinic"
)

type Service struct {
	users          repository.UserRepository
	appointments   repository.AppointmentRepository
	clinicBookings repository.ClinicBookingRepository
	prescriptions  repository.PrescriptionRepository
	cache          *cache.Cache
}

func NewService(users repository.UserRepository, appointments repository.AppointmentRepository,
	clinicBookings repository.ClinicBookingRepository, prescriptions repository.PrescriptionRepository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{
		users:          users,
		appointments:   appointments,
		clinicBookings: clinicBookings,
		prescriptions:  prescriptions,
		cache:          cache.New(ttl, 2*ttl),
	}
}

// Get returns the dashboard for the caller's role. Results are cached per
// owner for the configured TTL.
func (s *Service) Get(ctx context.Context, p *model.Principal) (*model.Stats, error) {
	var key string
	var load func(context.Context, uuid.UUID) (*model.Stats, error)
	switch p.Role {
	case model.RoleAdmin:
		key, load = scopePlatform, func(ctx context.Context, _ uuid.UUID) (*model.Stats, error) { return s.platform(ctx) }
	case model.RoleDoctor:
		key, load = scopeDoctor+":"+p.UserID.String(), s.doctor
	case model.RoleClinic:
		key, load = scopeClinic+":"+p.UserID.String(), s.clinic
	default:
		return nil, apperrors.NewForbidden("stats are not available for this role")
	}

	if v, ok := s.cache.Get(key); ok {
		return v.(*model.Stats), nil
	}
	st, err := load(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, st)
	return st, nil
}

func (s *Service) platform(ctx context.Context) (*model.Stats, error) {
	byRole, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	appointments, err := s.appointments.CountByStatus(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count appointments: %w", err)
	}
	clinicBookings, err := s.clinicBookings.CountByStatus(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count clinic bookings: %w", err)
	}
	prescriptions, err := s.prescriptions.CountByStatus(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count prescriptions: %w", err)
	}
	aptRevenue, err := s.appointments.SumPaid(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to sum appointment revenue: %w", err)
	}
	cbRevenue, err := s.clinicBookings.SumPaid(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to sum clinic booking revenue: %w", err)
	}

	return &model.Stats{
		Scope:          scopePlatform,
		UsersByRole:    byRole,
		Appointments:   appointments,
		ClinicBookings: clinicBookings,
		Prescriptions:  prescriptions,
		RevenueCents:   aptRevenue + cbRevenue,
	}, nil
}

func (s *Service) doctor(ctx context.Context, id uuid.UUID) (*model.Stats, error) {
	appointments, err := s.appointments.CountByStatus(ctx, &id)
	if err != nil {
		return nil, fmt.Errorf("failed to count appointments: %w", err)
	}
	prescriptions, err := s.prescriptions.CountByStatus(ctx, &id)
	if err != nil {
		return nil, fmt.Errorf("failed to count prescriptions: %w", err)
	}
	revenue, err := s.appointments.SumPaid(ctx, &id)
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return &model.Stats{
		Scope:          scopeDoctor,
		OwnerID:        &id,
		Appointments:   appointments,
		ClinicBookings: map[model.BookingStatus]int64{},
		Prescriptions:  prescriptions,
		RevenueCents:   revenue,
	}, nil
}

func (s *Service) clinic(ctx context.Context, id uuid.UUID) (*model.Stats, error) {
	bookings, err := s.clinicBookings.CountByStatus(ctx, &id)
	if err != nil {
		return nil, fmt.Errorf("failed to count clinic bookings: %w", err)
	}
	revenue, err := s.clinicBookings.SumPaid(ctx, &id)
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return &model.Stats{
		Scope:          scopeClinic,
		OwnerID:        &id,
		Appointments:   map[model.BookingStatus]int64{},
		ClinicBookings: bookings,
		RevenueCents:   revenue,
	}, nil
}
