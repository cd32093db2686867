package enums

// WebhookEventType is the provider-neutral payment event kind.
type WebhookEventType string

const (
	WebhookEventSucceeded WebhookEventType = "succeeded"
	WebhookEventFailed    WebhookEventType = "failed"
	WebhookEventCanceled  WebhookEventType = "canceled"
	WebhookEventRefunded  WebhookEventType = "refunded"
)

var webhookEventTypes = newSet("webhook event type",
	WebhookEventSucceeded,
	WebhookEventFailed,
	WebhookEventCanceled,
	WebhookEventRefunded,
)

func (t WebhookEventType) String() string {
	return string(t)
}

// IsValid reports whether the reconciler knows how to map the type.
func (t WebhookEventType) IsValid() bool {
	return webhookEventTypes.has(t)
}

func ParseWebhookEventType(value string) (WebhookEventType, error) {
	return webhookEventTypes.parse(value)
}

// WebhookOutcome records what processing a webhook row actually did.
type WebhookOutcome string

const (
	WebhookOutcomeApplied       WebhookOutcome = "applied"
	WebhookOutcomeNoop          WebhookOutcome = "noop"
	WebhookOutcomeStockConflict WebhookOutcome = "stock_conflict"
	WebhookOutcomeIgnored       WebhookOutcome = "ignored"
	WebhookOutcomeDuplicate     WebhookOutcome = "duplicate"
)

func (o WebhookOutcome) String() string {
	return string(o)
}
