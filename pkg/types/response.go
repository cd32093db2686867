// Package types holds the JSON envelopes shared by every HTTP response.
package types

// SuccessEnvelope wraps every 2xx body. Meta is present on list responses.
type SuccessEnvelope struct {
	Data any       `json:"data"`
	Meta *PageMeta `json:"meta,omitempty"`
}

// PageMeta describes a cursor page. Pass NextCursor back as ?cursor= to
// continue.
type PageMeta struct {
	Count      int    `json:"count"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// APIError is the public error body. Retryable tells clients a repeat with the
// same idempotency key may succeed.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
