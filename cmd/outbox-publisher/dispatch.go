package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	"github.com/angelmondragon/commerce-core/pkg/outbox/registry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// outcome is what happened to one outbox row during a batch. The value doubles
// as the metrics result label.
type outcome string

const (
	outcomePublished    outcome = "published"
	outcomeRetry        outcome = "retry"
	outcomeDeadLettered outcome = "dead_lettered"
	// outcomeDeferred rows stay untouched because an earlier event for the same
	// aggregate failed in this batch; consumers rely on per-order ordering.
	outcomeDeferred outcome = "deferred"
)

// dispatch carries the state of a single row through the batch.
type dispatch struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	topic    string
	err      error
	reason   enums.OutboxDLQErrorReason
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var processed bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublished(ctx, tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0

		blocked := map[uuid.UUID]bool{}
		for _, event := range events {
			if blocked[event.AggregateID] {
				s.record(event, outcomeDeferred)
				continue
			}
			d := &dispatch{event: event}
			result := s.dispatchOne(ctx, d)
			if err := s.settle(ctx, tx, d, result); err != nil {
				return err
			}
			if result != outcomePublished {
				blocked[event.AggregateID] = true
			}
		}
		return nil
	})
	return processed, err
}

// dispatchOne resolves and publishes a row and classifies the result.
func (s *Service) dispatchOne(ctx context.Context, d *dispatch) outcome {
	resolved, err := s.registry.Resolve(d.event)
	if err != nil {
		d.err = err
		d.reason = enums.OutboxDLQReasonNonRetryable
		if errors.Is(err, registry.ErrUnroutable) {
			d.reason = enums.OutboxDLQReasonUnroutable
		}
		return outcomeDeadLettered
	}
	d.resolved = resolved
	d.topic = resolved.Descriptor.Topic

	err = s.publish(ctx, d)
	if err == nil {
		return outcomePublished
	}
	d.err = err

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		d.reason = enums.OutboxDLQReasonNonRetryable
		return outcomeDeadLettered
	}
	if d.event.AttemptCount+1 >= s.maxAttempts {
		d.err = fmt.Errorf("max publish attempts reached: %w", err)
		d.reason = enums.OutboxDLQReasonMaxAttempts
		return outcomeDeadLettered
	}
	return outcomeRetry
}

func (s *Service) publish(ctx context.Context, d *dispatch) error {
	pub := s.publisherFactory(d.topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", d.topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, s.message(d))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", d.topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func (s *Service) message(d *dispatch) *gcppubsub.Message {
	env := d.resolved.Envelope
	attrs := map[string]string{
		"event_id":       env.EventID,
		"event_type":     string(d.event.EventType),
		"aggregate_type": string(d.event.AggregateType),
		"aggregate_id":   d.event.AggregateID.String(),
		"created_at":     d.event.CreatedAt.Format(time.RFC3339Nano),
	}
	if env.RequestID != "" {
		attrs["request_id"] = env.RequestID
	}
	return &gcppubsub.Message{
		Data:        d.event.Payload,
		Attributes:  attrs,
		OrderingKey: d.event.AggregateID.String(),
	}
}

// settle persists the outcome of a dispatched row inside the batch transaction.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, d *dispatch, result outcome) error {
	logCtx := s.logg.WithFields(ctx, s.fields(d))
	switch result {
	case outcomePublished:
		if err := s.repo.MarkPublished(ctx, tx, d.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", d.event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
	case outcomeRetry:
		s.logg.Warn(s.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed")
		if err := s.repo.MarkFailed(ctx, tx, d.event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", d.event.ID, err)
		}
	case outcomeDeadLettered:
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"error":        d.err.Error(),
			"error_reason": d.reason,
		}), "outbox event dead-lettered")
		if err := s.deadLetter(ctx, tx, d); err != nil {
			return err
		}
	}
	s.record(d.event, result)
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, d *dispatch) error {
	msg := d.err.Error()
	entry := models.OutboxDLQ{
		EventID:       d.event.ID,
		EventType:     d.event.EventType,
		AggregateType: d.event.AggregateType,
		AggregateID:   d.event.AggregateID,
		Payload:       d.event.Payload,
		ErrorReason:   d.reason,
		ErrorMessage:  &msg,
		AttemptCount:  d.event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", d.event.ID, err)
	}
	if err := s.repo.MarkTerminal(ctx, tx, d.event.ID, d.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", d.event.ID, err)
	}
	return nil
}

func (s *Service) fields(d *dispatch) map[string]any {
	fields := map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID.String(),
		"attempt_count":  d.event.AttemptCount + 1,
	}
	if d.topic != "" {
		fields["topic"] = d.topic
	}
	if d.resolved != nil && d.resolved.Envelope.EventID != "" {
		fields["event_id"] = d.resolved.Envelope.EventID
	}
	return fields
}

func (s *Service) record(event models.OutboxEvent, result outcome) {
	if s.metrics != nil {
		s.metrics.OutboxPublish(string(event.EventType), string(result))
	}
}
