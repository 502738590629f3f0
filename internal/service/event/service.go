package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
)

// EventService writes events to the outbox; the worker publishes them.
type EventService struct {
	outboxRepo repository.OutboxRepository
}

func NewEventService(outboxRepo repository.OutboxRepository) *EventService {
	return &EventService{outboxRepo: outboxRepo}
}

func (s *EventService) Emit(ctx context.Context, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &model.OutboxEvent{
		EventType: eventType,
		Payload:   payloadJSON,
	}
	if err := s.outboxRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}
