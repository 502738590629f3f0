package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

const clinicBookingColumns = bookingColumns + `, clinic_id, service`

type clinicBookingRepository struct {
	BaseRepository
}

func NewClinicBookingRepository(base BaseRepository) repository.ClinicBookingRepository {
	return &clinicBookingRepository{base}
}

func (r *clinicBookingRepository) Create(ctx context.Context, booking *model.ClinicBooking) error {
	query := `
		INSERT INTO clinic_bookings (
			id, patient_id, clinic_id, service, status, is_paid, preferred_date,
			preferred_time, reason, notes, amount_cents, currency, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	booking.ID = uuid.New()
	booking.CreatedAt = model.Now()
	booking.UpdatedAt = booking.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		booking.ID,
		booking.PatientID,
		booking.ClinicID,
		booking.Service,
		booking.Status,
		booking.IsPaid,
		booking.PreferredDate,
		booking.PreferredTime,
		booking.Reason,
		booking.Notes,
		booking.AmountCents,
		booking.Currency,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperrors.NewAppointmentError(apperrors.AppointmentSlotTaken,
			"clinic already has a %s booking on %s at %s", booking.Service, booking.PreferredDate, booking.PreferredTime)
	}
	if err != nil {
		return fmt.Errorf("failed to create clinic booking: %w", err)
	}
	return nil
}

func (r *clinicBookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.ClinicBooking, error) {
	query := `SELECT ` + clinicBookingColumns + ` FROM clinic_bookings WHERE id = $1`

	var booking model.ClinicBooking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, notFound("clinic booking", err)
	}
	return &booking, nil
}

func (r *clinicBookingRepository) List(ctx context.Context, filters *model.ClinicBookingFilters) ([]*model.ClinicBooking, int64, error) {
	var c conditions
	if filters.PatientID != uuid.Nil {
		c.add("patient_id = $%d", filters.PatientID)
	}
	if filters.ClinicID != uuid.Nil {
		c.add("clinic_id = $%d", filters.ClinicID)
	}
	addBookingFilters(&c, filters.BookingFilters)

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM clinic_bookings`+c.where(), c.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count clinic bookings: %w", err)
	}

	suffix, args := c.page(filters.Limit(), filters.Offset())
	query := `SELECT ` + clinicBookingColumns + ` FROM clinic_bookings` + c.where() +
		` ORDER BY preferred_date DESC, preferred_time DESC` + suffix

	bookings := []*model.ClinicBooking{}
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list clinic bookings: %w", err)
	}
	return bookings, total, nil
}

func (r *clinicBookingRepository) SlotTaken(ctx context.Context, clinicID uuid.UUID, service, date, clock string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM clinic_bookings
			WHERE clinic_id = $1 AND service = $2 AND preferred_date = $3 AND preferred_time = $4
			AND status = ANY($5)
		)
	`
	var taken bool
	if err := r.db.GetContext(ctx, &taken, query, clinicID, service, date, clock, activeStatuses()); err != nil {
		return false, fmt.Errorf("failed to check clinic slot: %w", err)
	}
	return taken, nil
}

func (r *clinicBookingRepository) UpdateStatus(ctx context.Context, booking *model.ClinicBooking, from model.BookingStatus, version time.Time) error {
	return updateBookingStatus(ctx, r.db, "clinic_bookings", &booking.Booking, from, version)
}

func (r *clinicBookingRepository) ListExpiredProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]*model.ClinicBooking, error) {
	query := `
		SELECT ` + clinicBookingColumns + `
		FROM clinic_bookings
		WHERE status = 'processing' AND (processing_started_at IS NULL OR processing_started_at < $1)
		ORDER BY processing_started_at NULLS FIRST
		LIMIT $2
	`
	bookings := []*model.ClinicBooking{}
	if err := r.db.SelectContext(ctx, &bookings, query, startedBefore, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired clinic bookings: %w", err)
	}
	return bookings, nil
}

func (r *clinicBookingRepository) CountByStatus(ctx context.Context, clinicID *uuid.UUID) (map[model.BookingStatus]int64, error) {
	return countByStatus(ctx, r.db, "clinic_bookings", "clinic_id", optionalID(clinicID))
}

func (r *clinicBookingRepository) SumPaid(ctx context.Context, clinicID *uuid.UUID) (int64, error) {
	return sumPaid(ctx, r.db, "clinic_bookings", "clinic_id", optionalID(clinicID))
}
