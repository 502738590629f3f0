// Package notification turns published domain events into emails for the
// people involved.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/telecare-api/internal/email"
	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
	"github.com/jwalitptl/telecare-api/pkg/messaging"
	"github.com/jwalitptl/telecare-api/pkg/metrics"
)

type Service struct {
	users   repository.UserRepository
	sender  email.Sender
	metrics *metrics.Metrics
}

func NewService(users repository.UserRepository, sender email.Sender, m *metrics.Metrics) *Service {
	return &Service{users: users, sender: sender, metrics: m}
}

// Run consumes channel until ctx is cancelled.
func (s *Service) Run(ctx context.Context, broker messaging.Broker, channel string) error {
	log.Info().Str("channel", channel).Msg("notification consumer started")
	err := messaging.Consume(ctx, broker, channel, s.Handle, func(err error) {
		log.Error().Err(err).Msg("failed to handle notification")
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle sends the emails for one event. Unknown event types are ignored.
func (s *Service) Handle(ctx context.Context, msg messaging.Message) error {
	kind, _, _ := strings.Cut(msg.Type, ".")
	switch kind {
	case string(model.BookingKindAppointment), string(model.BookingKindClinicBooking):
		var evt model.BookingEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		return s.booking(ctx, msg.Type, evt)
	case "prescription":
		var evt model.PrescriptionEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		return s.prescription(ctx, msg.Type, evt)
	}
	return nil
}

type delivery struct {
	to    uuid.UUID
	other uuid.UUID
}

func (s *Service) booking(ctx context.Context, eventType string, evt model.BookingEvent) error {
	var deliveries []delivery
	toPatient := delivery{to: evt.PatientID, other: evt.ProviderID}
	toProvider := delivery{to: evt.ProviderID, other: evt.PatientID}

	template := email.TemplateBookingCreated
	switch evt.Status {
	case model.BookingStatusPending:
		deliveries = []delivery{toProvider}
	case model.BookingStatusAccepted:
		template = email.TemplateBookingAccepted
		deliveries = []delivery{toPatient}
	case model.BookingStatusRejected:
		template = email.TemplateBookingRejected
		deliveries = []delivery{toPatient}
	case model.BookingStatusCancelled:
		template = email.TemplateBookingCancelled
		deliveries = []delivery{toPatient, toProvider}
	case model.BookingStatusPaid:
		template = email.TemplateBookingPaid
		deliveries = []delivery{toPatient, toProvider}
	case model.BookingStatusCompleted:
		template = email.TemplateBookingCompleted
		deliveries = []delivery{toPatient}
	default:
		log.Debug().Str("event_type", eventType).Msg("no notification for booking status")
		return nil
	}

	label := "appointment"
	if evt.Kind == model.BookingKindClinicBooking {
		label = "clinic visit"
	}
	data := email.TemplateData{
		BookingLabel: label,
		Date:         evt.PreferredDate,
		Time:         evt.PreferredTime,
		Reason:       evt.Reason,
		Reference:    evt.BookingID.String(),
	}
	return s.deliver(ctx, template, data, deliveries)
}

func (s *Service) prescription(ctx context.Context, eventType string, evt model.PrescriptionEvent) error {
	var template string
	var deliveries []delivery
	switch evt.Status {
	case model.PrescriptionStatusIssued:
		template = email.TemplatePrescriptionIssued
		deliveries = []delivery{{to: evt.PatientID, other: evt.DoctorID}}
		if evt.PharmacyID != nil {
			deliveries = append(deliveries, delivery{to: *evt.PharmacyID, other: evt.DoctorID})
		}
	case model.PrescriptionStatusDispensed:
		if evt.PharmacyID == nil {
			return nil
		}
		template = email.TemplatePrescriptionDispensed
		deliveries = []delivery{
			{to: evt.PatientID, other: *evt.PharmacyID},
			{to: evt.DoctorID, other: *evt.PharmacyID},
		}
	default:
		log.Debug().Str("event_type", eventType).Msg("no notification for prescription status")
		return nil
	}

	data := email.TemplateData{Reference: evt.PrescriptionID.String()}
	return s.deliver(ctx, template, data, deliveries)
}

func (s *Service) deliver(ctx context.Context, template string, data email.TemplateData, deliveries []delivery) error {
	var errs []error
	for _, d := range deliveries {
		if err := s.send(ctx, template, data, d); err != nil {
			s.metrics.EmailsSent.WithLabelValues("failed").Inc()
			errs = append(errs, err)
			continue
		}
		s.metrics.EmailsSent.WithLabelValues("sent").Inc()
	}
	return errors.Join(errs...)
}

func (s *Service) send(ctx context.Context, template string, data email.TemplateData, d delivery) error {
	recipient, err := s.users.Get(ctx, d.to)
	if err != nil {
		return fmt.Errorf("failed to get recipient: %w", err)
	}
	other, err := s.users.Get(ctx, d.other)
	if err != nil {
		return fmt.Errorf("failed to get counterpart: %w", err)
	}

	data.RecipientName = recipient.Name
	data.OtherParty = other.Name
	msg, err := email.Render(template, data)
	if err != nil {
		return err
	}
	msg.To = recipient.Email
	msg.ToName = recipient.Name

	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", template, recipient.ID, err)
	}
	return nil
}
