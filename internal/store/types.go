// Package store defines the persistent entities and the parameter structs
// passed to the Postgres layer. All mutation goes through the store; each
// operation commits its own transaction, and concurrent writers coordinate
// through the schema's unique constraints rather than application locks.
package store

import (
	"strings"
	"time"
)

// Delivery statuses form a closed alphabet. Terminal statuses accept no
// further transitions; later callbacks are recorded as history only.
const (
	StatusPending     = "pending"
	StatusQueued      = "queued"
	StatusSending     = "sending"
	StatusSent        = "sent"
	StatusDelivered   = "delivered"
	StatusUndelivered = "undelivered"
	StatusFailed      = "failed"
	StatusReceiving   = "receiving"
	StatusReceived    = "received"
	StatusUnknown     = "unknown"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// LanguageUnknown is the zero value for conversation language evidence.
const LanguageUnknown = "unknown"

// Conversation is keyed by canonical phone number; at most one row per
// canonical form.
type Conversation struct {
	ID                 int64
	PhoneCanonical     string
	PhoneOriginal      string
	TenantID           string
	Language           string
	LanguageConfidence float64
	LastMessageAt      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Message is one inbound or outbound SMS. ProviderSID is globally unique
// once set; outbound rows may not have one until the provider accepts the
// send. ConversationID stays nil when the sender phone could not be
// normalized.
type Message struct {
	ID             int64
	ConversationID *int64
	ProviderSID    string
	Direction      string
	FromNumber     string
	ToNumber       string
	Body           string
	RawPayload     []byte
	DeliveryStatus string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StatusEvent is one provider status callback, stored append-only. The
// (MessageID, EventHash) pair is unique so replays never duplicate history.
type StatusEvent struct {
	ID         int64
	MessageID  int64
	Status     string
	ErrorCode  string
	EventHash  string
	RawPayload []byte
	CreatedAt  time.Time
}

// InboundMessageInsert carries everything for one inbound row.
type InboundMessageInsert struct {
	ConversationID *int64
	ProviderSID    string
	FromNumber     string
	ToNumber       string
	Body           string
	RawPayload     []byte
}

// StatusEventInsert carries one history event. EventHash must already be
// computed by the caller (see service.EventHash).
type StatusEventInsert struct {
	MessageID  int64
	Status     string
	ErrorCode  string
	EventHash  string
	RawPayload []byte
}

// IsTerminalStatus reports whether a delivery status accepts no further
// transitions.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusDelivered, StatusUndelivered, StatusFailed:
		return true
	}
	return false
}

// NormalizeStatus maps a raw provider status onto the closed alphabet,
// defaulting to unknown.
func NormalizeStatus(raw string) string {
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case StatusQueued, StatusSending, StatusSent, StatusDelivered,
		StatusUndelivered, StatusFailed, StatusReceiving, StatusReceived:
		return v
	default:
		return StatusUnknown
	}
}
