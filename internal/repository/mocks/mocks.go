// Package mocks holds testify mocks of the repository interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/jwalitptl/telecare-api/internal/model"
)

type UserRepository struct{ mock.Mock }

func (m *UserRepository) Create(ctx context.Context, user *model.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *UserRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepository) Update(ctx context.Context, user *model.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *UserRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *UserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *UserRepository) List(ctx context.Context, filters *model.UserFilters) ([]*model.User, int64, error) {
	args := m.Called(ctx, filters)
	users, _ := args.Get(0).([]*model.User)
	return users, args.Get(1).(int64), args.Error(2)
}

func (m *UserRepository) ListDirectory(ctx context.Context, role model.Role, page model.Pagination) ([]*model.UserSummary, error) {
	args := m.Called(ctx, role, page)
	users, _ := args.Get(0).([]*model.UserSummary)
	return users, args.Error(1)
}

func (m *UserRepository) CountByRole(ctx context.Context) (map[model.Role]int64, error) {
	args := m.Called(ctx)
	counts, _ := args.Get(0).(map[model.Role]int64)
	return counts, args.Error(1)
}

type AppointmentRepository struct{ mock.Mock }

func (m *AppointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	return m.Called(ctx, a).Error(0)
}

func (m *AppointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*model.Appointment)
	return a, args.Error(1)
}

func (m *AppointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error) {
	args := m.Called(ctx, filters)
	items, _ := args.Get(0).([]*model.Appointment)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *AppointmentRepository) SlotTaken(ctx context.Context, doctorID uuid.UUID, date, clock string) (bool, error) {
	args := m.Called(ctx, doctorID, date, clock)
	return args.Bool(0), args.Error(1)
}

func (m *AppointmentRepository) UpdateStatus(ctx context.Context, a *model.Appointment, from model.BookingStatus, version time.Time) error {
	return m.Called(ctx, a, from, version).Error(0)
}

func (m *AppointmentRepository) SetVideoRoom(ctx context.Context, id uuid.UUID, roomID string) error {
	return m.Called(ctx, id, roomID).Error(0)
}

func (m *AppointmentRepository) ListExpiredProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]*model.Appointment, error) {
	args := m.Called(ctx, startedBefore, limit)
	items, _ := args.Get(0).([]*model.Appointment)
	return items, args.Error(1)
}

func (m *AppointmentRepository) CountByStatus(ctx context.Context, doctorID *uuid.UUID) (map[model.BookingStatus]int64, error) {
	args := m.Called(ctx, doctorID)
	counts, _ := args.Get(0).(map[model.BookingStatus]int64)
	return counts, args.Error(1)
}

func (m *AppointmentRepository) SumPaid(ctx context.Context, doctorID *uuid.UUID) (int64, error) {
	args := m.Called(ctx, doctorID)
	return args.Get(0).(int64), args.Error(1)
}

type ClinicBookingRepository struct{ mock.Mock }

func (m *ClinicBookingRepository) Create(ctx context.Context, b *model.ClinicBooking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *ClinicBookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.ClinicBooking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*model.ClinicBooking)
	return b, args.Error(1)
}

func (m *ClinicBookingRepository) List(ctx context.Context, filters *model.ClinicBookingFilters) ([]*model.ClinicBooking, int64, error) {
	args := m.Called(ctx, filters)
	items, _ := args.Get(0).([]*model.ClinicBooking)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *ClinicBookingRepository) SlotTaken(ctx context.Context, clinicID uuid.UUID, service, date, clock string) (bool, error) {
	args := m.Called(ctx, clinicID, service, date, clock)
	return args.Bool(0), args.Error(1)
}

func (m *ClinicBookingRepository) UpdateStatus(ctx context.Context, b *model.ClinicBooking, from model.BookingStatus, version time.Time) error {
	return m.Called(ctx, b, from, version).Error(0)
}

func (m *ClinicBookingRepository) ListExpiredProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]*model.ClinicBooking, error) {
	args := m.Called(ctx, startedBefore, limit)
	items, _ := args.Get(0).([]*model.ClinicBooking)
	return items, args.Error(1)
}

func (m *ClinicBookingRepository) CountByStatus(ctx context.Context, clinicID *uuid.UUID) (map[model.BookingStatus]int64, error) {
	args := m.Called(ctx, clinicID)
	counts, _ := args.Get(0).(map[model.BookingStatus]int64)
	return counts, args.Error(1)
}

func (m *ClinicBookingRepository) SumPaid(ctx context.Context, clinicID *uuid.UUID) (int64, error) {
	args := m.Called(ctx, clinicID)
	return args.Get(0).(int64), args.Error(1)
}

type PrescriptionRepository struct{ mock.Mock }

func (m *PrescriptionRepository) Create(ctx context.Context, p *model.Prescription) error {
	return m.Called(ctx, p).Error(0)
}

func (m *PrescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*model.Prescription)
	return p, args.Error(1)
}

func (m *PrescriptionRepository) List(ctx context.Context, filters *model.PrescriptionFilters) ([]*model.Prescription, int64, error) {
	args := m.Called(ctx, filters)
	items, _ := args.Get(0).([]*model.Prescription)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *PrescriptionRepository) UpdateStatus(ctx context.Context, p *model.Prescription, from model.PrescriptionStatus) error {
	return m.Called(ctx, p, from).Error(0)
}

func (m *PrescriptionRepository) SetAttachment(ctx context.Context, id uuid.UUID, key string) error {
	return m.Called(ctx, id, key).Error(0)
}

func (m *PrescriptionRepository) CountByStatus(ctx context.Context, doctorID *uuid.UUID) (map[model.PrescriptionStatus]int64, error) {
	args := m.Called(ctx, doctorID)
	counts, _ := args.Get(0).(map[model.PrescriptionStatus]int64)
	return counts, args.Error(1)
}

type PaymentRepository struct{ mock.Mock }

func (m *PaymentRepository) Create(ctx context.Context, p *model.Payment) error {
	return m.Called(ctx, p).Error(0)
}

func (m *PaymentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*model.Payment)
	return p, args.Error(1)
}

func (m *PaymentRepository) GetByProviderRef(ctx context.Context, provider model.PaymentProvider, ref string) (*model.Payment, error) {
	args := m.Called(ctx, provider, ref)
	p, _ := args.Get(0).(*model.Payment)
	return p, args.Error(1)
}

func (m *PaymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus) error {
	return m.Called(ctx, id, from, to).Error(0)
}

func (m *PaymentRepository) ExpireOpen(ctx context.Context, kind model.BookingKind, bookingID uuid.UUID) (int64, error) {
	args := m.Called(ctx, kind, bookingID)
	return args.Get(0).(int64), args.Error(1)
}

type ProcessedEventRepository struct{ mock.Mock }

func (m *ProcessedEventRepository) IsProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	args := m.Called(ctx, provider, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *ProcessedEventRepository) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	args := m.Called(ctx, provider, eventID)
	return args.Bool(0), args.Error(1)
}

type AuditRepository struct{ mock.Mock }

func (m *AuditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *AuditRepository) List(ctx context.Context, filters *model.AuditLogFilters) ([]*model.AuditLog, int64, error) {
	args := m.Called(ctx, filters)
	logs, _ := args.Get(0).([]*model.AuditLog)
	return logs, args.Get(1).(int64), args.Error(2)
}

func (m *AuditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type OutboxRepository struct{ mock.Mock }

func (m *OutboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *OutboxRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	args := m.Called(ctx)
	tx, _ := args.Get(0).(*sqlx.Tx)
	return tx, args.Error(1)
}

func (m *OutboxRepository) GetPendingEventsTx(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.OutboxEvent, error) {
	args := m.Called(ctx, tx, limit)
	events, _ := args.Get(0).([]*model.OutboxEvent)
	return events, args.Error(1)
}

func (m *OutboxRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	return m.Called(ctx, tx, id, status, errorMessage, retryAt).Error(0)
}

func (m *OutboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type SessionStore struct{ mock.Mock }

func (m *SessionStore) Save(ctx context.Context, session *model.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *SessionStore) Get(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*model.Session)
	return s, args.Error(1)
}

func (m *SessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *SessionStore) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}
