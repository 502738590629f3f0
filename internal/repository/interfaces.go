package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/telecare-api/internal/model"
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
		UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
		UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
		List(ctx context.Context, filters *model.UserFilters) ([]*model.User, int64, error)
		ListDirectory(ctx context.Context, role model.Role, page model.Pagination) ([]*model.UserSummary, error)
		CountByRole(ctx context.Context) (map[model.Role]int64, error)
	}

	// AppointmentRepository persists appointments. UpdateStatus is a
	// compare-and-set on (status, updated_at).
	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error)
		SlotTaken(ctx context.Context, doctorID uuid.UUID, date, clock string) (bool, error)
		UpdateStatus(ctx context.Context, appointment *model.Appointment, from model.BookingStatus, version time.Time) error
		SetVideoRoom(ctx context.Context, id uuid.UUID, roomID string) error
		ListExpiredProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]*model.Appointment, error)
		CountByStatus(ctx context.Context, doctorID *uuid.UUID) (map[model.BookingStatus]int64, error)
		SumPaid(ctx context.Context, doctorID *uuid.UUID) (int64, error)
	}

	ClinicBookingRepository interface {
		Create(ctx context.Context, booking *model.ClinicBooking) error
		Get(ctx context.Context, id uuid.UUID) (*model.ClinicBooking, error)
		List(ctx context.Context, filters *model.ClinicBookingFilters) ([]*model.ClinicBooking, int64, error)
		SlotTaken(ctx context.Context, clinicID uuid.UUID, service, date, clock string) (bool, error)
		UpdateStatus(ctx context.Context, booking *model.ClinicBooking, from model.BookingStatus, version time.Time) error
		ListExpiredProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]*model.ClinicBooking, error)
		CountByStatus(ctx context.Context, clinicID *uuid.UUID) (map[model.BookingStatus]int64, error)
		SumPaid(ctx context.Context, clinicID *uuid.UUID) (int64, error)
	}

	PrescriptionRepository interface {
		Create(ctx context.Context, prescription *model.Prescription) error
		Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		List(ctx context.Context, filters *model.PrescriptionFilters) ([]*model.Prescription, int64, error)
		UpdateStatus(ctx context.Context, prescription *model.Prescription, from model.PrescriptionStatus) error
		SetAttachment(ctx context.Context, id uuid.UUID, key string) error
		CountByStatus(ctx context.Context, doctorID *uuid.UUID) (map[model.PrescriptionStatus]int64, error)
	}

	PaymentRepository interface {
		Create(ctx context.Context, payment *model.Payment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Payment, error)
		GetByProviderRef(ctx context.Context, provider model.PaymentProvider, ref string) (*model.Payment, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus) error
		ExpireOpen(ctx context.Context, kind model.BookingKind, bookingID uuid.UUID) (int64, error)
	}

	// ProcessedEventRepository records handled webhook deliveries.
	ProcessedEventRepository interface {
		IsProcessed(ctx context.Context, provider, eventID string) (bool, error)
		MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filters *model.AuditLogFilters) ([]*model.AuditLog, int64, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		BeginTx(ctx context.Context) (*sqlx.Tx, error)
		GetPendingEventsTx(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.OutboxEvent, error)
		UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// SessionStore keeps server-side session records for cookie auth.
	SessionStore interface {
		Save(ctx context.Context, session *model.Session) error
		Get(ctx context.Context, id uuid.UUID) (*model.Session, error)
		Delete(ctx context.Context, id uuid.UUID) error
		DeleteForUser(ctx context.Context, userID uuid.UUID) error
	}
)
