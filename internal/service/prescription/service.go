package prescription

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
	"github.com/jwalitptl/telecare-api/internal/service/audit"
	"github.com/jwalitptl/telecare-api/internal/service/event"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

const (
	defaultPresignTTL     = 15 * time.Minute
	defaultMaxUploadBytes = 10 << 20
)

var allowedAttachmentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// AttachmentStore is the object storage behind prescription attachments.
type AttachmentStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Config struct {
	PresignTTL     time.Duration
	MaxUploadBytes int64
}

type Service struct {
	repo         repository.PrescriptionRepository
	appointments repository.AppointmentRepository
	users        repository.UserRepository
	store        AttachmentStore
	events       event.Emitter
	auditor      audit.Recorder
	cfg          Config
	now          func() time.Time
}

func NewService(repo repository.PrescriptionRepository, appointments repository.AppointmentRepository,
	users repository.UserRepository, store AttachmentStore, events event.Emitter, auditor audit.Recorder, cfg Config) *Service {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = defaultPresignTTL
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Service{
		repo:         repo,
		appointments: appointments,
		users:        users,
		store:        store,
		events:       events,
		auditor:      auditor,
		cfg:          cfg,
		now:          model.Now,
	}
}

// Issue creates a prescription from the calling doctor.
func (s *Service) Issue(ctx context.Context, p *model.Principal, req *model.CreatePrescriptionRequest) (*model.Prescription, error) {
	if p.Role != model.RoleDoctor {
		return nil, apperrors.NewForbidden("only doctors can issue prescriptions")
	}
	if len(req.Medications) == 0 {
		return nil, apperrors.NewBadRequest("at least one medication is required", nil)
	}
	if err := s.checkUser(ctx, req.PatientID, model.RolePatient); err != nil {
		return nil, err
	}
	if req.PharmacyID != nil {
		if err := s.checkUser(ctx, *req.PharmacyID, model.RolePharmacy); err != nil {
			return nil, err
		}
	}
	if req.AppointmentID != nil {
		apt, err := s.appointments.Get(ctx, *req.AppointmentID)
		if err != nil {
			return nil, fmt.Errorf("failed to get appointment: %w", err)
		}
		if apt.DoctorID != p.UserID || apt.PatientID != req.PatientID {
			return nil, apperrors.NewBadRequest("appointment does not belong to this doctor and patient", nil)
		}
	}

	now := s.now()
	rx := &model.Prescription{
		DoctorID:      p.UserID,
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		PharmacyID:    req.PharmacyID,
		Medications:   model.Medications(req.Medications),
		Notes:         strings.TrimSpace(req.Notes),
		Status:        model.PrescriptionStatusIssued,
		IssuedAt:      now,
	}
	if err := s.repo.Create(ctx, rx); err != nil {
		return nil, fmt.Errorf("failed to create prescription: %w", err)
	}

	s.emit(ctx, model.EventPrescriptionIssued, rx)
	s.auditor.Record(ctx, audit.Entry(p.UserID, model.AuditActionCreate, model.AuditEntityPrescription, rx.ID,
		map[string]interface{}{"patient_id": rx.PatientID, "medications": len(rx.Medications)}))
	return rx, nil
}

func (s *Service) List(ctx context.Context, p *model.Principal, filters *model.PrescriptionFilters) ([]*model.Prescription, int64, error) {
	switch p.Role {
	case model.RoleDoctor:
		filters.DoctorID = p.UserID
	case model.RolePatient:
		filters.PatientID = p.UserID
	case model.RolePharmacy:
		filters.PharmacyID = p.UserID
	case model.RoleAdmin:
	default:
		return nil, 0, apperrors.NewForbidden("role cannot list prescriptions")
	}

	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Prescription, error) {
	rx, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}
	if !rx.CanView(p.UserID, p.Role) {
		return nil, apperrors.NewForbidden("not allowed to view this prescription")
	}
	return rx, nil
}

// Dispense is done by the pharmacy the prescription was sent to.
func (s *Service) Dispense(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Prescription, error) {
	rx, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if p.Role != model.RolePharmacy {
		return nil, apperrors.NewForbidden("only the assigned pharmacy can dispense")
	}
	if err := s.transition(ctx, p, rx, model.PrescriptionStatusDispensed); err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventPrescriptionDispensed, rx)
	return rx, nil
}

func (s *Service) Cancel(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Prescription, error) {
	rx, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if rx.DoctorID != p.UserID {
		return nil, apperrors.NewForbidden("only the issuing doctor can cancel")
	}
	if err := s.transition(ctx, p, rx, model.PrescriptionStatusCancelled); err != nil {
		return nil, err
	}
	return rx, nil
}

func (s *Service) transition(ctx context.Context, p *model.Principal, rx *model.Prescription, to model.PrescriptionStatus) error {
	from := rx.Status
	if err := rx.Transition(to, s.now()); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, rx, from); err != nil {
		return fmt.Errorf("failed to update prescription: %w", err)
	}

	action := model.AuditActionCancel
	if to == model.PrescriptionStatusDispensed {
		action = model.AuditActionDispense
	}
	s.auditor.Record(ctx, audit.Entry(p.UserID, action, model.AuditEntityPrescription, rx.ID,
		map[string]string{"from": string(from), "to": string(to)}))
	return nil
}

// UploadAttachment stores a scanned prescription or supporting image and
// replaces any previous attachment.
func (s *Service) UploadAttachment(ctx context.Context, p *model.Principal, id uuid.UUID, filename string, data []byte) (*model.Prescription, error) {
	rx, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if rx.DoctorID != p.UserID {
		return nil, apperrors.NewForbidden("only the issuing doctor can attach files")
	}
	if rx.Status == model.PrescriptionStatusCancelled {
		return nil, apperrors.NewConflict("prescription is cancelled", nil)
	}
	if len(data) == 0 {
		return nil, apperrors.NewBadRequest("file is empty", nil)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxUploadBytes), nil)
	}

	contentType := http.DetectContentType(data)
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	ext, ok := allowedAttachmentTypes[contentType]
	if !ok {
		return nil, apperrors.NewBadRequest("only PDF, PNG and JPEG files are accepted", nil)
	}

	key := path.Join("prescriptions", rx.ID.String(), uuid.NewString()+ext)
	if err := s.store.Put(ctx, key, contentType, data); err != nil {
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}
	if err := s.repo.SetAttachment(ctx, rx.ID, key); err != nil {
		return nil, fmt.Errorf("failed to save attachment key: %w", err)
	}

	if old := rx.AttachmentKey; old != nil && *old != key {
		if err := s.store.Delete(ctx, *old); err != nil {
			log.Warn().Err(err).Str("key", *old).Msg("failed to delete replaced attachment")
		}
	}
	rx.AttachmentKey = &key

	s.auditor.Record(ctx, audit.Entry(p.UserID, model.AuditActionUpload, model.AuditEntityPrescription, rx.ID,
		map[string]string{"key": key, "filename": filename, "content_type": contentType}))
	return rx, nil
}

// AttachmentURL returns a short-lived download link.
func (s *Service) AttachmentURL(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.AttachmentURL, error) {
	rx, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if rx.AttachmentKey == nil {
		return nil, apperrors.NewNotFound("attachment", nil)
	}
	url, err := s.store.PresignGet(ctx, *rx.AttachmentKey, s.cfg.PresignTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign attachment url: %w", err)
	}
	return &model.AttachmentURL{URL: url, ExpiresAt: s.now().Add(s.cfg.PresignTTL)}, nil
}

func (s *Service) checkUser(ctx context.Context, id uuid.UUID, role model.Role) error {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		if apperrors.StatusOf(err) == http.StatusNotFound {
			return apperrors.NewBadRequest(fmt.Sprintf("%s not found", role), err)
		}
		return fmt.Errorf("failed to get %s: %w", role, err)
	}
	if user.Role != role || !user.Active() {
		return apperrors.NewBadRequest(fmt.Sprintf("user %s is not an active %s", id, role), nil)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, eventType string, rx *model.Prescription) {
	payload := model.PrescriptionEvent{
		PrescriptionID: rx.ID,
		DoctorID:       rx.DoctorID,
		PatientID:      rx.PatientID,
		PharmacyID:     rx.PharmacyID,
		Status:         rx.Status,
		OccurredAt:     rx.UpdatedAt,
	}
	if err := s.events.Emit(ctx, eventType, payload); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Str("prescription_id", rx.ID.String()).
			Msg("failed to queue prescription event")
	}
}
