// Package payment runs checkouts against the configured processors and
// settles bookings from their webhooks.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
	"github.com/jwalitptl/telecare-api/internal/service/audit"
	"github.com/jwalitptl/telecare-api/internal/service/booking"
	"github.com/jwalitptl/telecare-api/internal/service/event"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
	"github.com/jwalitptl/telecare-api/pkg/metrics"
)

const sweepBatchSize = 100

type Config struct {
	PaymentTimeout      time.Duration
	SuccessURL          string
	CancelURL           string
	StripeWebhookSecret string
	PaddleWebhookSecret string
}

type Service struct {
	appointments   repository.AppointmentRepository
	clinicBookings repository.ClinicBookingRepository
	payments       repository.PaymentRepository
	processed      repository.ProcessedEventRepository
	providers      map[model.PaymentProvider]Provider
	events         event.Emitter
	auditor        audit.Recorder
	metrics        *metrics.Metrics
	cfg            Config
	now            func() time.Time
}

func NewService(
	appointments repository.AppointmentRepository,
	clinicBookings repository.ClinicBookingRepository,
	payments repository.PaymentRepository,
	processed repository.ProcessedEventRepository,
	providers []Provider,
	events event.Emitter,
	auditor audit.Recorder,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = model.DefaultPaymentTimeout
	}
	byName := make(map[model.PaymentProvider]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Service{
		appointments:   appointments,
		clinicBookings: clinicBookings,
		payments:       payments,
		processed:      processed,
		providers:      byName,
		events:         events,
		auditor:        auditor,
		metrics:        m,
		cfg:            cfg,
		now:            model.Now,
	}
}

// target is a booking of either kind together with its conditional write.
type target struct {
	kind       model.BookingKind
	booking    *model.Booking
	providerID uuid.UUID
	save       func(ctx context.Context, from model.BookingStatus, version time.Time) error
}

func (s *Service) appointmentTarget(apt *model.Appointment) *target {
	return &target{
		kind:       model.BookingKindAppointment,
		booking:    &apt.Booking,
		providerID: apt.DoctorID,
		save: func(ctx context.Context, from model.BookingStatus, version time.Time) error {
			return s.appointments.UpdateStatus(ctx, apt, from, version)
		},
	}
}

func (s *Service) clinicBookingTarget(cb *model.ClinicBooking) *target {
	return &target{
		kind:       model.BookingKindClinicBooking,
		booking:    &cb.Booking,
		providerID: cb.ClinicID,
		save: func(ctx context.Context, from model.BookingStatus, version time.Time) error {
			return s.clinicBookings.UpdateStatus(ctx, cb, from, version)
		},
	}
}

func (s *Service) load(ctx context.Context, kind model.BookingKind, id uuid.UUID) (*target, error) {
	switch kind {
	case model.BookingKindAppointment:
		apt, err := s.appointments.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get appointment: %w", err)
		}
		return s.appointmentTarget(apt), nil
	case model.BookingKindClinicBooking:
		cb, err := s.clinicBookings.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get clinic booking: %w", err)
		}
		return s.clinicBookingTarget(cb), nil
	}
	return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown booking kind %q", kind), nil)
}

// Checkout moves an accepted booking into processing and opens a hosted
// checkout with the chosen provider.
func (s *Service) Checkout(ctx context.Context, p *model.Principal, req *model.CheckoutRequest) (*model.CheckoutResponse, error) {
	if p.Role != model.RolePatient {
		return nil, apperrors.NewForbidden("only patients can pay for bookings")
	}
	provider, ok := s.providers[req.Provider]
	if !ok {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("payment provider %s is not available", req.Provider), nil)
	}

	t, err := s.load(ctx, req.BookingKind, req.BookingID)
	if err != nil {
		return nil, err
	}
	b := t.booking
	if b.PatientID != p.UserID {
		return nil, apperrors.NewForbidden("booking belongs to another patient")
	}
	if b.AmountCents <= 0 {
		return nil, apperrors.NewAppointmentError(apperrors.AppointmentNotPayable, "booking has no fee to pay")
	}

	now := s.now()
	from, version := b.Status, b.UpdatedAt
	retry := b.PaymentExpired(now, s.cfg.PaymentTimeout)
	if err := b.StartPayment(now, s.cfg.PaymentTimeout); err != nil {
		return nil, err
	}
	if err := t.save(ctx, from, version); err != nil {
		return nil, fmt.Errorf("failed to start payment: %w", err)
	}
	if retry {
		if _, err := s.payments.ExpireOpen(ctx, t.kind, b.ID); err != nil {
			log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("failed to expire previous payment")
		}
	}

	paymentID := uuid.New()
	checkout, err := provider.CreateCheckout(ctx, CheckoutRequest{
		PaymentID:   paymentID,
		BookingKind: t.kind,
		BookingID:   b.ID,
		AmountCents: b.AmountCents,
		Currency:    b.Currency,
		Description: description(t),
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
	})
	if err != nil {
		s.abandon(ctx, t)
		return nil, fmt.Errorf("failed to create %s checkout: %w", req.Provider, err)
	}

	// the payment row goes first so a webhook always has something to settle
	name, ref := string(req.Provider), checkout.Reference
	payment := &model.Payment{
		Base:        model.Base{ID: paymentID},
		BookingKind: t.kind,
		BookingID:   b.ID,
		PatientID:   b.PatientID,
		Provider:    req.Provider,
		ProviderRef: ref,
		AmountCents: b.AmountCents,
		Currency:    b.Currency,
		Status:      model.PaymentStatusCreated,
		CheckoutURL: checkout.URL,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		s.abandon(ctx, t)
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	version = b.UpdatedAt
	b.PaymentProvider = &name
	b.PaymentReference = &ref
	b.UpdatedAt = s.now()
	if err := t.save(ctx, model.BookingStatusProcessing, version); err != nil {
		return nil, fmt.Errorf("failed to record payment reference: %w", err)
	}

	s.metrics.PaymentsStarted.WithLabelValues(name).Inc()
	s.auditor.Record(ctx, audit.Entry(p.UserID, model.AuditActionCreate, model.AuditEntityPayment, payment.ID,
		map[string]string{"booking_id": b.ID.String(), "provider": name}))

	return &model.CheckoutResponse{
		PaymentID:   payment.ID,
		Provider:    req.Provider,
		CheckoutURL: checkout.URL,
		Reference:   ref,
		ExpiresAt:   b.ProcessingStartedAt.Add(s.cfg.PaymentTimeout),
	}, nil
}

// abandon rolls a booking back to accepted after the provider refused the
// checkout.
func (s *Service) abandon(ctx context.Context, t *target) {
	from, version := t.booking.Status, t.booking.UpdatedAt
	if err := t.booking.Transition(model.BookingStatusAccepted, s.now()); err != nil {
		return
	}
	if err := t.save(ctx, from, version); err != nil {
		log.Error().Err(err).Str("booking_id", t.booking.ID.String()).Msg("failed to roll back payment attempt")
	}
}

func description(t *target) string {
	label := "Appointment"
	if t.kind == model.BookingKindClinicBooking {
		label = "Clinic visit"
	}
	return fmt.Sprintf("%s on %s at %s", label, t.booking.PreferredDate, t.booking.PreferredTime)
}

// Get returns a payment to its patient or an admin.
func (s *Service) Get(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Payment, error) {
	payment, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment.PatientID != p.UserID && !p.IsAdmin() {
		return nil, apperrors.NewForbidden("payment belongs to another patient")
	}
	return payment, nil
}

// CapturePayPal captures an order the payer approved and settles the booking.
func (s *Service) CapturePayPal(ctx context.Context, p *model.Principal, orderID string) (*model.Payment, error) {
	payment, err := s.payments.GetByProviderRef(ctx, model.ProviderPayPal, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment.PatientID != p.UserID && !p.IsAdmin() {
		return nil, apperrors.NewForbidden("payment belongs to another patient")
	}
	if payment.Status == model.PaymentStatusSucceeded {
		return payment, nil
	}

	capturer, ok := s.providers[model.ProviderPayPal].(Capturer)
	if !ok {
		return nil, apperrors.NewBadRequest("paypal capture is not available", nil)
	}
	completed, err := capturer.Capture(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to capture order: %w", err)
	}
	if !completed {
		return nil, apperrors.NewAppointmentError(apperrors.AppointmentNotPayable, "paypal order %s was not completed", orderID)
	}

	if err := s.markPaid(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// HandleStripeWebhook verifies and applies a Stripe event. Redelivered
// events are acknowledged without side effects.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	if err := VerifyStripeSignature(s.cfg.StripeWebhookSecret, payload, signature, s.now()); err != nil {
		return apperrors.NewBadRequest("invalid webhook signature", err)
	}

	var evt StripeEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return apperrors.NewBadRequest("invalid webhook payload", err)
	}
	if evt.ID == "" {
		return apperrors.NewBadRequest("webhook event has no id", nil)
	}

	return s.once(ctx, model.ProviderStripe, evt.ID, func() error {
		obj := evt.Data.Object
		switch evt.Type {
		case "checkout.session.completed", "checkout.session.async_payment_succeeded":
			if obj.PaymentStatus != "paid" {
				return nil
			}
			return s.settle(ctx, model.ProviderStripe, obj.ID, true)
		case "checkout.session.expired", "checkout.session.async_payment_failed":
			return s.settle(ctx, model.ProviderStripe, obj.ID, false)
		}
		log.Debug().Str("type", evt.Type).Msg("ignoring stripe event")
		return nil
	})
}

func (s *Service) HandlePaddleWebhook(ctx context.Context, payload []byte, signature string) error {
	if err := VerifyPaddleSignature(s.cfg.PaddleWebhookSecret, payload, signature, s.now()); err != nil {
		return apperrors.NewBadRequest("invalid webhook signature", err)
	}

	var evt PaddleEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return apperrors.NewBadRequest("invalid webhook payload", err)
	}
	if evt.EventID == "" {
		return apperrors.NewBadRequest("webhook event has no id", nil)
	}

	return s.once(ctx, model.ProviderPaddle, evt.EventID, func() error {
		switch evt.EventType {
		case "transaction.completed", "transaction.paid":
			return s.settle(ctx, model.ProviderPaddle, evt.Data.ID, true)
		case "transaction.payment_failed", "transaction.canceled":
			return s.settle(ctx, model.ProviderPaddle, evt.Data.ID, false)
		}
		log.Debug().Str("type", evt.EventType).Msg("ignoring paddle event")
		return nil
	})
}

// once runs handle for an event id that has not been seen before and records
// it afterwards. A failed handle leaves the event unrecorded so the provider's
// retry gets another go.
func (s *Service) once(ctx context.Context, provider model.PaymentProvider, eventID string, handle func() error) error {
	seen, err := s.processed.IsProcessed(ctx, string(provider), eventID)
	if err != nil {
		return fmt.Errorf("failed to check webhook event: %w", err)
	}
	if seen {
		log.Info().Str("provider", string(provider)).Str("event_id", eventID).Msg("duplicate webhook event")
		return nil
	}

	if err := handle(); err != nil {
		return err
	}

	if _, err := s.processed.MarkProcessed(ctx, string(provider), eventID); err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

func (s *Service) settle(ctx context.Context, provider model.PaymentProvider, ref string, paid bool) error {
	payment, err := s.payments.GetByProviderRef(ctx, provider, ref)
	if err != nil {
		if apperrors.StatusOf(err) == http.StatusNotFound {
			log.Warn().Str("provider", string(provider)).Str("reference", ref).Msg("webhook for unknown payment")
			return nil
		}
		return fmt.Errorf("failed to get payment: %w", err)
	}
	if paid {
		return s.markPaid(ctx, payment)
	}
	return s.markFailed(ctx, payment)
}

// markPaid settles the booking behind a captured payment. Running it twice
// for the same payment is a no-op.
func (s *Service) markPaid(ctx context.Context, payment *model.Payment) error {
	if payment.Status == model.PaymentStatusSucceeded {
		return nil
	}

	t, err := s.load(ctx, payment.BookingKind, payment.BookingID)
	if err != nil {
		return err
	}
	b := t.booking
	now := s.now()

	switch b.Status {
	case model.BookingStatusProcessing, model.BookingStatusAccepted:
		from, version := b.Status, b.UpdatedAt
		// funds can land after the attempt was expired back to accepted
		if b.Status == model.BookingStatusAccepted {
			if err := b.Transition(model.BookingStatusProcessing, now); err != nil {
				return err
			}
		}
		if err := b.Transition(model.BookingStatusPaid, now); err != nil {
			return err
		}
		name, ref := string(payment.Provider), payment.ProviderRef
		b.PaymentProvider = &name
		b.PaymentReference = &ref
		if err := t.save(ctx, from, version); err != nil {
			return fmt.Errorf("failed to mark booking paid: %w", err)
		}

		booking.Emit(ctx, s.events, t.kind, b, t.providerID)
		s.metrics.PaymentsCompleted.WithLabelValues(name).Inc()
		s.auditor.Record(ctx, model.AuditEntry{
			UserID:     &payment.PatientID,
			Action:     model.AuditActionPay,
			EntityType: string(t.kind),
			EntityID:   &b.ID,
			Changes:    booking.Changes(from, model.BookingStatusPaid),
		})
	default:
		log.Warn().
			Str("payment_id", payment.ID.String()).
			Str("booking_id", b.ID.String()).
			Str("booking_status", string(b.Status)).
			Msg("payment captured for a booking that cannot take it, refund required")
	}

	if err := s.payments.UpdateStatus(ctx, payment.ID, payment.Status, model.PaymentStatusSucceeded); err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	payment.Status = model.PaymentStatusSucceeded
	return nil
}

// markFailed closes a payment the provider gave up on and releases the
// booking if this payment still holds it.
func (s *Service) markFailed(ctx context.Context, payment *model.Payment) error {
	if payment.Status != model.PaymentStatusCreated {
		return nil
	}
	if err := s.payments.UpdateStatus(ctx, payment.ID, payment.Status, model.PaymentStatusFailed); err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	payment.Status = model.PaymentStatusFailed

	t, err := s.load(ctx, payment.BookingKind, payment.BookingID)
	if err != nil {
		return err
	}
	b := t.booking
	if b.Status != model.BookingStatusProcessing || b.PaymentReference == nil || *b.PaymentReference != payment.ProviderRef {
		return nil
	}

	from, version := b.Status, b.UpdatedAt
	if err := b.Transition(model.BookingStatusAccepted, s.now()); err != nil {
		return err
	}
	if err := t.save(ctx, from, version); err != nil && !isConcurrentUpdate(err) {
		return fmt.Errorf("failed to release booking: %w", err)
	}
	return nil
}

// ExpireStalePayments rolls back bookings whose payment attempt outlived the
// timeout and returns how many were released.
func (s *Service) ExpireStalePayments(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.cfg.PaymentTimeout)

	var targets []*target
	apts, err := s.appointments.ListExpiredProcessing(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	for _, a := range apts {
		targets = append(targets, s.appointmentTarget(a))
	}
	cbs, err := s.clinicBookings.ListExpiredProcessing(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	for _, cb := range cbs {
		targets = append(targets, s.clinicBookingTarget(cb))
	}

	expired := 0
	for _, t := range targets {
		ok, err := s.expire(ctx, t, now)
		if err != nil {
			log.Error().Err(err).Str("booking_id", t.booking.ID.String()).Msg("failed to expire payment")
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) expire(ctx context.Context, t *target, now time.Time) (bool, error) {
	b := t.booking
	from, version := b.Status, b.UpdatedAt
	if err := b.ExpirePayment(now, s.cfg.PaymentTimeout); err != nil {
		return false, nil
	}
	if err := t.save(ctx, from, version); err != nil {
		if isConcurrentUpdate(err) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.payments.ExpireOpen(ctx, t.kind, b.ID); err != nil {
		return true, err
	}

	s.metrics.PaymentsExpired.Inc()
	s.auditor.Record(ctx, model.AuditEntry{
		Action:     model.AuditActionUpdate,
		EntityType: string(t.kind),
		EntityID:   &b.ID,
		Changes:    booking.Changes(from, model.BookingStatusAccepted),
	})
	return true, nil
}

func isConcurrentUpdate(err error) bool {
	var appErr *apperrors.AppointmentError
	return errors.As(err, &appErr) && appErr.Kind == apperrors.AppointmentConcurrentUpdate
}
