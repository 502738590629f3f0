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

const appointmentColumns = bookingColumns + `, doctor_id, video_room_id`

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_id, status, is_paid, preferred_date, preferred_time,
			reason, notes, amount_cents, currency, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	appointment.ID = uuid.New()
	appointment.CreatedAt = model.Now()
	appointment.UpdatedAt = appointment.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientID,
		appointment.DoctorID,
		appointment.Status,
		appointment.IsPaid,
		appointment.PreferredDate,
		appointment.PreferredTime,
		appointment.Reason,
		appointment.Notes,
		appointment.AmountCents,
		appointment.Currency,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperrors.NewAppointmentError(apperrors.AppointmentSlotTaken,
			"doctor already has a booking on %s at %s", appointment.PreferredDate, appointment.PreferredTime)
	}
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, notFound("appointment", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error) {
	var c conditions
	if filters.PatientID != uuid.Nil {
		c.add("patient_id = $%d", filters.PatientID)
	}
	if filters.DoctorID != uuid.Nil {
		c.add("doctor_id = $%d", filters.DoctorID)
	}
	addBookingFilters(&c, filters.BookingFilters)

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM appointments`+c.where(), c.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count appointments: %w", err)
	}

	suffix, args := c.page(filters.Limit(), filters.Offset())
	query := `SELECT ` + appointmentColumns + ` FROM appointments` + c.where() +
		` ORDER BY preferred_date DESC, preferred_time DESC` + suffix

	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, total, nil
}

func (r *appointmentRepository) SlotTaken(ctx context.Context, doctorID uuid.UUID, date, clock string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND preferred_date = $2 AND preferred_time = $3
			AND status = ANY($4)
		)
	`
	var taken bool
	if err := r.db.GetContext(ctx, &taken, query, doctorID, date, clock, activeStatuses()); err != nil {
		return false, fmt.Errorf("failed to check appointment slot: %w", err)
	}
	return taken, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, appointment *model.Appointment, from model.BookingStatus, version time.Time) error {
	return updateBookingStatus(ctx, r.db, "appointments", &appointment.Booking, from, version)
}

func (r *appointmentRepository) SetVideoRoom(ctx context.Context, id uuid.UUID, roomID string) error {
	query := `UPDATE appointments SET video_room_id = $1 WHERE id = $2 AND video_room_id IS NULL`

	if _, err := r.db.ExecContext(ctx, query, roomID, id); err != nil {
		return fmt.Errorf("failed to set video room: %w", err)
	}
	return nil
}

func (r *appointmentRepository) ListExpiredProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status = 'processing' AND (processing_started_at IS NULL OR processing_started_at < $1)
		ORDER BY processing_started_at NULLS FIRST
		LIMIT $2
	`
	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, startedBefore, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) CountByStatus(ctx context.Context, doctorID *uuid.UUID) (map[model.BookingStatus]int64, error) {
	return countByStatus(ctx, r.db, "appointments", "doctor_id", optionalID(doctorID))
}

func (r *appointmentRepository) SumPaid(ctx context.Context, doctorID *uuid.UUID) (int64, error) {
	return sumPaid(ctx, r.db, "appointments", "doctor_id", optionalID(doctorID))
}

func optionalID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
