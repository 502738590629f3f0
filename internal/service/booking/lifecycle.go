package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/service/audit"
	"github.com/jwalitptl/telecare-api/internal/service/event"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

// Record is a stored booking: an appointment or a clinic booking.
type Record interface {
	Core() *model.Booking
	ProviderID() uuid.UUID
	HasParticipant(userID uuid.UUID) bool
}

// Store is the part of a booking repository the lifecycle needs.
type Store[T Record] interface {
	Get(ctx context.Context, id uuid.UUID) (T, error)
	UpdateStatus(ctx context.Context, rec T, from model.BookingStatus, version time.Time) error
}

// Lifecycle runs the status changes shared by both booking kinds. Every
// change is a compare-and-set on the row version, emits an outbox event and
// records an audit entry.
type Lifecycle[T Record] struct {
	Kind     model.BookingKind
	Entity   string
	Noun     string
	Provider string
	Store    Store[T]
	Events   event.Emitter
	Auditor  audit.Recorder
	Config   Config
	Now      func() time.Time
}

// Load fetches a booking the caller takes part in.
func (l *Lifecycle[T]) Load(ctx context.Context, p *model.Principal, id uuid.UUID) (T, error) {
	var zero T
	rec, err := l.Store.Get(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("failed to get %s: %w", l.Noun, err)
	}
	if !rec.HasParticipant(p.UserID) && !p.IsAdmin() {
		return zero, apperrors.NewForbidden("not a participant of this " + l.Noun)
	}
	return rec, nil
}

// Get loads a booking and shows an expired payment attempt as accepted.
func (l *Lifecycle[T]) Get(ctx context.Context, p *model.Principal, id uuid.UUID) (T, error) {
	rec, err := l.Load(ctx, p, id)
	if err != nil {
		return rec, err
	}
	l.View(rec)
	return rec, nil
}

func (l *Lifecycle[T]) View(rec T) {
	b := rec.Core()
	*b = b.View(l.Now(), l.Config.PaymentTimeout)
}

func (l *Lifecycle[T]) Accept(ctx context.Context, p *model.Principal, id uuid.UUID) (T, error) {
	return l.ProviderTransition(ctx, p, id, model.BookingStatusAccepted, nil)
}

func (l *Lifecycle[T]) Reject(ctx context.Context, p *model.Principal, id uuid.UUID, reason string) (T, error) {
	return l.ProviderTransition(ctx, p, id, model.BookingStatusRejected, func(b *model.Booking) {
		if r := strings.TrimSpace(reason); r != "" {
			b.RejectionReason = &r
		}
	})
}

func (l *Lifecycle[T]) Complete(ctx context.Context, p *model.Principal, id uuid.UUID) (T, error) {
	return l.ProviderTransition(ctx, p, id, model.BookingStatusCompleted, nil)
}

// Cancel is open to both participants and admins.
func (l *Lifecycle[T]) Cancel(ctx context.Context, p *model.Principal, id uuid.UUID, reason string) (T, error) {
	rec, err := l.Load(ctx, p, id)
	if err != nil {
		return rec, err
	}
	err = l.Transition(ctx, p, rec, model.BookingStatusCancelled, func(b *model.Booking) {
		if r := strings.TrimSpace(reason); r != "" {
			b.CancelReason = &r
		}
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return rec, nil
}

// ProviderTransition is a status change only the doctor or clinic may make.
func (l *Lifecycle[T]) ProviderTransition(ctx context.Context, p *model.Principal, id uuid.UUID, to model.BookingStatus, mutate func(*model.Booking)) (T, error) {
	var zero T
	rec, err := l.Load(ctx, p, id)
	if err != nil {
		return zero, err
	}
	if rec.ProviderID() != p.UserID {
		return zero, apperrors.NewForbidden(fmt.Sprintf("only the assigned %s can do this", l.Provider))
	}
	if err := l.Transition(ctx, p, rec, to, mutate); err != nil {
		return zero, err
	}
	return rec, nil
}

func (l *Lifecycle[T]) Transition(ctx context.Context, p *model.Principal, rec T, to model.BookingStatus, mutate func(*model.Booking)) error {
	b := rec.Core()
	from, version, err := b.Apply(to, l.Now(), l.Config.PaymentTimeout)
	if err != nil {
		return err
	}
	if mutate != nil {
		mutate(b)
	}
	if err := l.Store.UpdateStatus(ctx, rec, from, version); err != nil {
		return fmt.Errorf("failed to update %s: %w", l.Noun, err)
	}

	Emit(ctx, l.Events, l.Kind, b, rec.ProviderID())
	l.Auditor.Record(ctx, audit.Entry(p.UserID, AuditAction(to), l.Entity, b.ID, Changes(from, to)))
	return nil
}
