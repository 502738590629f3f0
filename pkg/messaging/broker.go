package messaging

import (
	"context"
	"encoding/json"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Message is the envelope published for every domain event.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Consume subscribes to channel and hands each decoded message to handle
// until ctx is done. Handler errors are passed to onError and do not stop
// consumption.
func Consume(ctx context.Context, b Broker, channel string, handle func(context.Context, Message) error, onError func(error)) error {
	msgs, err := b.Subscribe(ctx, channel)
	if err != nil {
		return err
	}
	for raw := range msgs {
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}
		if err := handle(ctx, msg); err != nil && onError != nil {
			onError(err)
		}
	}
	return ctx.Err()
}
