// Package service holds the message pipelines: inbound ingestion, outbound
// dispatch, delivery-status reconciliation, and the tenant reconciliation
// sweep. Pipelines coordinate only through the store; each store call is its
// own transaction, so a crash mid-pipeline leaves resumable state that heals
// on the next event for the same conversation.
package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
)

// WebhookResult is the outcome reported for one webhook delivery. Processed
// and Duplicate are never both true; a not-processed, not-duplicate result
// means "safe for the provider to retry".
type WebhookResult struct {
	Processed bool  `json:"processed"`
	Duplicate bool  `json:"duplicate"`
	MessageID int64 `json:"id,omitempty"`
}

// InboundPayload is one verified inbound SMS webhook.
type InboundPayload struct {
	MessageSID string
	From       string
	To         string
	Body       string
	Raw        map[string]string
}

// StatusPayload is one verified delivery-status callback.
type StatusPayload struct {
	MessageSID    string
	MessageStatus string
	ErrorCode     string
	Raw           map[string]string
}

// InboundPayloadFromForm maps a flattened Twilio form onto the pipeline
// payload, keeping the full form for audit storage.
func InboundPayloadFromForm(form map[string]string) InboundPayload {
	return InboundPayload{
		MessageSID: form["MessageSid"],
		From:       form["From"],
		To:         form["To"],
		Body:       form["Body"],
		Raw:        form,
	}
}

// StatusPayloadFromForm maps a flattened Twilio status callback form.
func StatusPayloadFromForm(form map[string]string) StatusPayload {
	return StatusPayload{
		MessageSID:    form["MessageSid"],
		MessageStatus: form["MessageStatus"],
		ErrorCode:     form["ErrorCode"],
		Raw:           form,
	}
}

// Validation failures surfaced by the outbound pipeline before any row is
// written or any provider call is made.
var (
	ErrInvalidBody        = errors.New("body must not be empty")
	ErrInvalidDestination = errors.New("destination is not a valid phone number")
)

// EventHash digests one status callback for idempotent history recording:
// status, error code, and the canonical JSON of the payload. Identical
// callbacks hash identically; anything else produces a new history row.
func EventHash(status, errorCode string, payload map[string]string) string {
	h := sha256.New()
	h.Write([]byte(status))
	if errorCode != "" {
		h.Write([]byte(errorCode))
	}
	if payload != nil {
		// json.Marshal sorts map keys, making the digest stable.
		b, err := json.Marshal(payload)
		if err == nil {
			h.Write(b)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func marshalRaw(raw map[string]string) []byte {
	if raw == nil {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	return b
}
