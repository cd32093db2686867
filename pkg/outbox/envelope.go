package outbox

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/commerce-core/pkg/enums"
)

// EnvelopeVersion is bumped whenever a consumer-visible field changes meaning.
const EnvelopeVersion = 2

// ActorRef identifies who caused the state change. Background jobs and
// provider webhooks use the system role.
type ActorRef struct {
	Ref  string `json:"ref"`
	Role string `json:"role,omitempty"`
}

// NewActorRef returns nil for an anonymous actor so the field is omitted.
func NewActorRef(ref string, role enums.ActorRole) *ActorRef {
	ref = strings.TrimSpace(ref)
	if ref == "" && role == "" {
		return nil
	}
	return &ActorRef{Ref: ref, Role: string(role)}
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published
// verbatim. EventID doubles as the consumer dedup key.
type PayloadEnvelope struct {
	Version       int                       `json:"version"`
	EventID       string                    `json:"eventId"`
	EventType     enums.OutboxEventType     `json:"eventType,omitempty"`
	AggregateType enums.OutboxAggregateType `json:"aggregateType,omitempty"`
	AggregateID   string                    `json:"aggregateId,omitempty"`
	OccurredAt    time.Time                 `json:"occurredAt"`
	RequestID     string                    `json:"requestId,omitempty"`
	Actor         *ActorRef                 `json:"actor,omitempty"`
	Data          json.RawMessage           `json:"data"`
}
