package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
	"github.com/jwalitptl/telecare-api/pkg/logger"
	"github.com/jwalitptl/telecare-api/pkg/messaging"
	"github.com/jwalitptl/telecare-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// RetryAttempts is the number of publish attempts per poll.
	RetryAttempts int
	RetryDelay    time.Duration
	// MaxRetries is the number of polls an event may fail before it is
	// marked failed for good.
	MaxRetries int
	Channel    string
}

type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.Channel == "" {
		panic("Channel must be set")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "channel", p.config.Channel)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch publishes one batch of due events. The rows stay locked until
// the batch commits, so concurrent workers never publish the same event.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("begin_tx", "error").Inc()
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	events, err := p.repo.GetPendingEventsTx(ctx, tx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

	published := 0
	for _, event := range events {
		status, errMsg, retryAt := p.publish(ctx, event)
		if err := p.repo.UpdateStatusTx(ctx, tx, event.ID, status, errMsg, retryAt); err != nil {
			p.metrics.DatabaseOperations.WithLabelValues("update_event_status", "error").Inc()
			return published, err
		}
		if status == model.OutboxStatusProcessed {
			published++
		}
	}

	if err := tx.Commit(); err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("commit", "error").Inc()
		return 0, fmt.Errorf("failed to commit outbox batch: %w", err)
	}
	if len(events) > 0 {
		p.logger.Debug("Outbox batch processed", "events", len(events), "published", published)
	}
	return published, nil
}

// publish returns the status the event should be stored with.
func (p *OutboxProcessor) publish(ctx context.Context, event *model.OutboxEvent) (model.OutboxStatus, *string, *time.Time) {
	msg := messaging.Message{Type: event.EventType, Payload: event.Payload}
	err := retry(ctx, p.config.RetryAttempts, p.config.RetryDelay, func() error {
		return p.broker.Publish(ctx, p.config.Channel, msg)
	})
	if err == nil {
		p.metrics.OutboxEventsProcessed.Inc()
		return model.OutboxStatusProcessed, nil, nil
	}

	errStr := err.Error()
	if event.RetryCount+1 >= p.config.MaxRetries {
		p.metrics.OutboxEventsFailed.Inc()
		p.logger.Error(err, "Giving up on event",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"retries", event.RetryCount+1)
		return model.OutboxStatusFailed, &errStr, nil
	}

	p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	retryAt := p.now().Add(backoff(p.config.PollInterval, event.RetryCount))
	p.logger.Warn("Event publish failed, will retry",
		"event_id", event.ID.String(),
		"event_type", event.EventType,
		"retry_at", retryAt,
		"error", errStr)
	return model.OutboxStatusRetry, &errStr, &retryAt
}

// backoff doubles base per previous retry, capped at an hour.
func backoff(base time.Duration, retries int) time.Duration {
	d := base
	for i := 0; i < retries && d < time.Hour; i++ {
		d *= 2
	}
	if d > time.Hour {
		d = time.Hour
	}
	return d
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
