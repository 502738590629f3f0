package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

const prescriptionColumns = `id, doctor_id, patient_id, appointment_id, pharmacy_id, medications,
	notes, status, attachment_key, issued_at, dispensed_at, created_at, updated_at`

type prescriptionRepository struct {
	BaseRepository
}

func NewPrescriptionRepository(base BaseRepository) repository.PrescriptionRepository {
	return &prescriptionRepository{base}
}

func (r *prescriptionRepository) Create(ctx context.Context, p *model.Prescription) error {
	query := `
		INSERT INTO prescriptions (
			id, doctor_id, patient_id, appointment_id, pharmacy_id, medications,
			notes, status, issued_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	p.ID = uuid.New()
	p.CreatedAt = model.Now()
	p.UpdatedAt = p.CreatedAt
	p.IssuedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.DoctorID,
		p.PatientID,
		p.AppointmentID,
		p.PharmacyID,
		p.Medications,
		p.Notes,
		p.Status,
		p.IssuedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE id = $1`

	var p model.Prescription
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound("prescription", err)
	}
	return &p, nil
}

func (r *prescriptionRepository) List(ctx context.Context, filters *model.PrescriptionFilters) ([]*model.Prescription, int64, error) {
	var c conditions
	if filters.DoctorID != uuid.Nil {
		c.add("doctor_id = $%d", filters.DoctorID)
	}
	if filters.PatientID != uuid.Nil {
		c.add("patient_id = $%d", filters.PatientID)
	}
	if filters.PharmacyID != uuid.Nil {
		c.add("pharmacy_id = $%d", filters.PharmacyID)
	}
	if filters.Status != "" {
		c.add("status = $%d", filters.Status)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM prescriptions`+c.where(), c.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count prescriptions: %w", err)
	}

	suffix, args := c.page(filters.Limit(), filters.Offset())
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions` + c.where() + ` ORDER BY issued_at DESC` + suffix

	prescriptions := []*model.Prescription{}
	if err := r.db.SelectContext(ctx, &prescriptions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return prescriptions, total, nil
}

// UpdateStatus moves a prescription out of status from.
func (r *prescriptionRepository) UpdateStatus(ctx context.Context, p *model.Prescription, from model.PrescriptionStatus) error {
	query := `
		UPDATE prescriptions
		SET status = $1, dispensed_at = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	p.UpdatedAt = model.Now()

	result, err := r.db.ExecContext(ctx, query, p.Status, p.DispensedAt, p.UpdatedAt, p.ID, from)
	if err != nil {
		return fmt.Errorf("failed to update prescription status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewConflict(fmt.Sprintf("prescription is no longer %s", from), nil)
	}
	return nil
}

func (r *prescriptionRepository) SetAttachment(ctx context.Context, id uuid.UUID, key string) error {
	query := `UPDATE prescriptions SET attachment_key = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, key, model.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set prescription attachment: %w", err)
	}
	return affectedOne(result, "prescription")
}

func (r *prescriptionRepository) CountByStatus(ctx context.Context, doctorID *uuid.UUID) (map[model.PrescriptionStatus]int64, error) {
	var c conditions
	if doctorID != nil {
		c.add("doctor_id = $%d", *doctorID)
	}
	query := `SELECT status, COUNT(*) AS count FROM prescriptions` + c.where() + ` GROUP BY status`

	var rows []model.StatusCount
	if err := r.db.SelectContext(ctx, &rows, query, c.args...); err != nil {
		return nil, fmt.Errorf("failed to count prescriptions: %w", err)
	}
	counts := make(map[model.PrescriptionStatus]int64, len(rows))
	for _, row := range rows {
		counts[model.PrescriptionStatus(row.Status)] = row.Count
	}
	return counts, nil
}
