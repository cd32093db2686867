// Package registry maps outbox event types to the Pub/Sub topic they ship on
// and the payload schema consumers decode.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/commerce-core/pkg/config"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	"github.com/angelmondragon/commerce-core/pkg/outbox"
	"github.com/angelmondragon/commerce-core/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	// decode parses envelope data into the typed payload for this event.
	decode func(json.RawMessage) (any, error)
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry wires order and refund events to the domain topic and
// transfer events to the inventory topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.DomainTopic == "":
		return nil, errors.New("domain topic is required")
	case cfg.InventoryTopic == "":
		return nil, errors.New("inventory topic is required")
	}

	reg := &EventRegistry{entries: map[enums.OutboxEventType]EventDescriptor{}}
	route[payloads.OrderStatusEvent](reg, cfg.DomainTopic, enums.AggregateOrder,
		enums.EventOrderCreated,
		enums.EventOrderConfirmed,
		enums.EventOrderPaymentFailed,
		enums.EventOrderProcessing,
		enums.EventOrderShipped,
		enums.EventOrderDelivered,
	)
	route[payloads.OrderCancelledEvent](reg, cfg.DomainTopic, enums.AggregateOrder, enums.EventOrderCancelled)
	route[payloads.OrderStockConflictEvent](reg, cfg.DomainTopic, enums.AggregateOrder, enums.EventOrderStockConflict)
	route[payloads.RefundEvent](reg, cfg.DomainTopic, enums.AggregateRefund,
		enums.EventRefundScheduled,
		enums.EventRefundCompleted,
		enums.EventRefundFailed,
	)
	route[payloads.TransferEvent](reg, cfg.InventoryTopic, enums.AggregateStockTransfer,
		enums.EventTransferRequested,
		enums.EventTransferApproved,
		enums.EventTransferCompleted,
		enums.EventTransferCancelled,
	)
	return reg, nil
}

// route registers every type in eventTypes with payload schema T.
func route[T any](reg *EventRegistry, topic string, aggregate enums.OutboxAggregateType, eventTypes ...enums.OutboxEventType) {
	decode := func(data json.RawMessage) (any, error) {
		payload := new(T)
		if err := json.Unmarshal(data, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
	for _, eventType := range eventTypes {
		reg.entries[eventType] = EventDescriptor{
			EventType:     eventType,
			AggregateType: aggregate,
			Topic:         topic,
			decode:        decode,
		}
	}
}

// Topics lists the distinct topics in sorted order.
func (r *EventRegistry) Topics() []string {
	set := map[string]struct{}{}
	for _, desc := range r.entries {
		set[desc.Topic] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable: the same row would fail the same way.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, reject("%w: %s", ErrUnroutable, event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, reject("aggregate mismatch: %s is registered on %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, reject("%s row has no aggregate id", event.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, reject("decode envelope: %w", err)
	}
	if envelope.Version > outbox.EnvelopeVersion {
		return nil, reject("envelope version %d is newer than %d", envelope.Version, outbox.EnvelopeVersion)
	}
	if envelope.EventType != "" && envelope.EventType != event.EventType {
		return nil, reject("envelope says %s, row says %s", envelope.EventType, event.EventType)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, reject("payload missing for %s", event.EventType)
	}

	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, reject("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
