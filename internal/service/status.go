package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/StantonManagement/sms-foundation-agent/internal/observability"
	"github.com/StantonManagement/sms-foundation-agent/internal/store"
)

type StatusStore interface {
	GetMessageBySID(ctx context.Context, sid string) (store.Message, bool, error)
	SetDeliveryStatus(ctx context.Context, messageID int64, status string) error
	AppendStatusEvent(ctx context.Context, in store.StatusEventInsert) (bool, error)
	TouchLastMessageAt(ctx context.Context, conversationID int64, ts time.Time) error
}

// Status reconciles delivery-status callbacks against the message state
// machine and keeps an idempotent history of every distinct callback.
type Status struct {
	Store StatusStore
	Now   func() time.Time
}

// Process applies one status callback. History is appended whenever the
// event hash is new, independent of whether the state transition happens;
// terminal statuses never transition again.
func (s *Status) Process(ctx context.Context, p StatusPayload) (WebhookResult, error) {
	log := slog.With("route", "/webhook/twilio/status", "provider_sid", p.MessageSID)

	if p.MessageSID == "" {
		log.Warn("status callback missing provider sid")
		return WebhookResult{}, nil
	}

	newStatus := store.NormalizeStatus(p.MessageStatus)
	observability.StatusCallbacks.WithLabelValues(newStatus).Inc()

	msg, found, err := s.Store.GetMessageBySID(ctx, p.MessageSID)
	if err != nil {
		log.Warn("status callback store unavailable", "err", err)
		return WebhookResult{}, err
	}
	if !found {
		log.Info("status callback for unknown message")
		return WebhookResult{}, nil
	}

	prevStatus := msg.DeliveryStatus
	if prevStatus == "" {
		prevStatus = store.StatusUnknown
	}

	// History first: the append is hash-idempotent, so recording before the
	// transition keeps the audit trail complete even if the update below is
	// lost to a crash.
	if _, err := s.Store.AppendStatusEvent(ctx, store.StatusEventInsert{
		MessageID:  msg.ID,
		Status:     newStatus,
		ErrorCode:  p.ErrorCode,
		EventHash:  EventHash(newStatus, p.ErrorCode, p.Raw),
		RawPayload: marshalRaw(p.Raw),
	}); err != nil {
		log.Warn("status event append failed", "err", err)
	}

	duplicate := newStatus == prevStatus || newStatus == store.StatusUnknown
	transition := !duplicate && !store.IsTerminalStatus(prevStatus)

	if transition {
		if err := s.Store.SetDeliveryStatus(ctx, msg.ID, newStatus); err != nil {
			log.Warn("status callback store unavailable", "err", err)
			return WebhookResult{}, err
		}
	}

	if newStatus == store.StatusDelivered && msg.ConversationID != nil {
		now := time.Now().UTC()
		if s.Now != nil {
			now = s.Now()
		}
		if err := s.Store.TouchLastMessageAt(ctx, *msg.ConversationID, now); err != nil {
			log.Warn("status callback touch activity failed", "err", err)
		}
	}

	log.Info("status callback processed",
		"previous_status", prevStatus,
		"new_status", newStatus,
		"transitioned", transition,
	)
	return WebhookResult{Processed: transition, Duplicate: duplicate}, nil
}
