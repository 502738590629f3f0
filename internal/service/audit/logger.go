package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/telecare-api/internal/model"
)

// Recorder is what domain services use to write audit entries. A failed
// audit write never fails the operation being audited.
type Recorder interface {
	Record(ctx context.Context, entry model.AuditEntry)
}

type AuditLogger struct {
	service *Service
}

func NewAuditLogger(service *Service) *AuditLogger {
	return &AuditLogger{service: service}
}

func (l *AuditLogger) Record(ctx context.Context, entry model.AuditEntry) {
	if err := l.service.Log(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("action", entry.Action).
			Str("entity_type", entry.EntityType).
			Msg("audit write failed")
	}
}

// Entry is a shorthand for the common actor/action/entity triple.
func Entry(actor uuid.UUID, action, entityType string, entityID uuid.UUID, changes interface{}) model.AuditEntry {
	return model.AuditEntry{
		UserID:     &actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   &entityID,
		Changes:    changes,
	}
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, model.AuditEntry) {}
