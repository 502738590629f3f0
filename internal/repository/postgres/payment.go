package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

const paymentColumns = `id, booking_kind, booking_id, patient_id, provider, provider_ref,
	amount_cents, currency, status, checkout_url, created_at, updated_at`

type paymentRepository struct {
	BaseRepository
}

func NewPaymentRepository(base BaseRepository) repository.PaymentRepository {
	return &paymentRepository{base}
}

func (r *paymentRepository) Create(ctx context.Context, p *model.Payment) error {
	query := `
		INSERT INTO payments (
			id, booking_kind, booking_id, patient_id, provider, provider_ref,
			amount_cents, currency, status, checkout_url, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = model.Now()
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.BookingKind,
		p.BookingID,
		p.PatientID,
		p.Provider,
		p.ProviderRef,
		p.AmountCents,
		p.Currency,
		p.Status,
		p.CheckoutURL,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperrors.NewConflict("payment reference already recorded", err)
	}
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	var p model.Payment
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound("payment", err)
	}
	return &p, nil
}

func (r *paymentRepository) GetByProviderRef(ctx context.Context, provider model.PaymentProvider, ref string) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider = $1 AND provider_ref = $2`

	var p model.Payment
	if err := r.db.GetContext(ctx, &p, query, provider, ref); err != nil {
		return nil, notFound("payment", err)
	}
	return &p, nil
}

func (r *paymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus) error {
	query := `UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, to, model.Now(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewConflict(fmt.Sprintf("payment is no longer %s", from), nil)
	}
	return nil
}

// ExpireOpen marks every still-created payment of a booking as expired.
func (r *paymentRepository) ExpireOpen(ctx context.Context, kind model.BookingKind, bookingID uuid.UUID) (int64, error) {
	query := `
		UPDATE payments SET status = 'expired', updated_at = $1
		WHERE booking_kind = $2 AND booking_id = $3 AND status = 'created'
	`
	result, err := r.db.ExecContext(ctx, query, model.Now(), kind, bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to expire payments: %w", err)
	}
	return result.RowsAffected()
}

type processedEventRepository struct {
	BaseRepository
}

func NewProcessedEventRepository(base BaseRepository) repository.ProcessedEventRepository {
	return &processedEventRepository{base}
}

func (r *processedEventRepository) IsProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, provider, eventID); err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return exists, nil
}

// MarkProcessed returns false when the event was already recorded.
func (r *processedEventRepository) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (provider, event_id, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, event_id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, provider, eventID, model.Now())
	if err != nil {
		return false, fmt.Errorf("failed to record processed event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}
