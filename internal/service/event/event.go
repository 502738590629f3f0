package event

import (
	"context"
)

// Emitter queues a domain event for asynchronous delivery.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload interface{}) error
}

// Nop drops events.
type Nop struct{}

func (Nop) Emit(context.Context, string, interface{}) error { return nil }
