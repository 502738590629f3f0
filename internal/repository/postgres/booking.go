package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/telecare-api/internal/model"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

// Columns shared by appointments and clinic_bookings.
const bookingColumns = `id, patient_id, status, is_paid, preferred_date, preferred_time,
	reason, notes, amount_cents, currency, payment_provider, payment_reference,
	processing_started_at, paid_at, rejection_reason, cancel_reason, created_at, updated_at`

// updateBookingStatus writes the lifecycle fields of b only if the row is
// still in status from at the given version.
func updateBookingStatus(ctx context.Context, db sqlx.ExecerContext, table string, b *model.Booking, from model.BookingStatus, version time.Time) error {
	query := `
		UPDATE ` + table + ` SET
			status = $1,
			is_paid = $2,
			processing_started_at = $3,
			paid_at = $4,
			payment_provider = $5,
			payment_reference = $6,
			rejection_reason = $7,
			cancel_reason = $8,
			updated_at = $9
		WHERE id = $10 AND status = $11 AND updated_at = $12
	`

	result, err := db.ExecContext(ctx, query,
		b.Status,
		b.IsPaid,
		b.ProcessingStartedAt,
		b.PaidAt,
		b.PaymentProvider,
		b.PaymentReference,
		b.RejectionReason,
		b.CancelReason,
		b.UpdatedAt,
		b.ID,
		from,
		version,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s status: %w", table, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewAppointmentError(apperrors.AppointmentConcurrentUpdate,
			"booking %s is no longer %s", b.ID, from)
	}
	return nil
}

func addBookingFilters(c *conditions, f model.BookingFilters) {
	if f.Status != "" {
		c.add("status = $%d", f.Status)
	}
	if f.DateFrom != "" {
		c.add("preferred_date >= $%d", f.DateFrom)
	}
	if f.DateTo != "" {
		c.add("preferred_date <= $%d", f.DateTo)
	}
}

func activeStatuses() interface{} {
	return pq.Array(model.ActiveStatuses())
}

func countByStatus(ctx context.Context, db sqlx.QueryerContext, table, ownerColumn string, ownerID interface{}) (map[model.BookingStatus]int64, error) {
	var c conditions
	if ownerID != nil {
		c.add(ownerColumn+" = $%d", ownerID)
	}
	query := `SELECT status, COUNT(*) AS count FROM ` + table + c.where() + ` GROUP BY status`

	var rows []model.StatusCount
	if err := sqlx.SelectContext(ctx, db, &rows, query, c.args...); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", table, err)
	}

	counts := make(map[model.BookingStatus]int64, len(rows))
	for _, row := range rows {
		counts[model.BookingStatus(row.Status)] = row.Count
	}
	return counts, nil
}

func sumPaid(ctx context.Context, db sqlx.QueryerContext, table, ownerColumn string, ownerID interface{}) (int64, error) {
	var c conditions
	c.clauses = append(c.clauses, "is_paid")
	if ownerID != nil {
		c.add(ownerColumn+" = $%d", ownerID)
	}
	query := `SELECT COALESCE(SUM(amount_cents), 0) FROM ` + table + c.where()

	var total int64
	if err := sqlx.GetContext(ctx, db, &total, query, c.args...); err != nil {
		return 0, fmt.Errorf("failed to sum %s revenue: %w", table, err)
	}
	return total, nil
}
