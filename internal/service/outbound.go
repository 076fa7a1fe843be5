package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/StantonManagement/sms-foundation-agent/internal/observability"
	"github.com/StantonManagement/sms-foundation-agent/internal/phone"
	"github.com/StantonManagement/sms-foundation-agent/internal/providers/twilio"
	"github.com/StantonManagement/sms-foundation-agent/internal/retry"
	"github.com/StantonManagement/sms-foundation-agent/internal/store"
)

type OutboundStore interface {
	GetOrCreateConversation(ctx context.Context, original, canonical string) (store.Conversation, bool, error)
	InsertOutboundPending(ctx context.Context, conversationID int64, to, body string) (store.Message, error)
	SetSendResult(ctx context.Context, messageID int64, providerSID, status string) error
	SetDeliveryStatus(ctx context.Context, messageID int64, status string) error
}

type ProviderSender interface {
	SendSMS(ctx context.Context, to, body string) (sid string, err error)
}

// SendRequest is one outbound dispatch request.
type SendRequest struct {
	To             string `json:"to"`
	Body           string `json:"body"`
	ConversationID *int64 `json:"conversationId,omitempty"`
}

// SendResult reports a dispatched (or at least persisted) message.
type SendResult struct {
	ID             int64  `json:"id"`
	ProviderSID    string `json:"providerMessageId,omitempty"`
	ConversationID *int64 `json:"conversationId,omitempty"`
}

// Outbound persists and dispatches send requests. The row is written before
// the provider call so an exhausted send stays visible as pending.
type Outbound struct {
	Store   OutboundStore
	Sender  ProviderSender
	Policy  retry.Policy
	Limiter *rate.Limiter
}

// Send validates, persists a pending row, and drives the provider call
// through the retry engine. Permanent provider failures mark the row failed;
// exhausted transient failures leave it pending for later reconciliation.
// Both re-surface the provider's error to the caller.
func (s *Outbound) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	log := slog.With("route", "/sms/send")

	body := strings.TrimSpace(req.Body)
	if body == "" {
		observability.OutboundSends.WithLabelValues("invalid_body").Inc()
		return SendResult{}, ErrInvalidBody
	}

	_, canonical := phone.Normalize(req.To)
	if canonical == "" || len(phone.DigitsOnly(canonical)) < 10 {
		observability.OutboundSends.WithLabelValues("invalid_destination").Inc()
		return SendResult{}, ErrInvalidDestination
	}

	conv, _, err := s.Store.GetOrCreateConversation(ctx, req.To, canonical)
	if err != nil {
		return SendResult{}, err
	}

	msg, err := s.Store.InsertOutboundPending(ctx, conv.ID, canonical, body)
	if err != nil {
		return SendResult{}, err
	}
	log = log.With("message_id", msg.ID, "conversation_id", conv.ID, "to", canonical)
	log.Info("outbound sms requested")

	start := time.Now()
	sid, sendErr := retry.Do(ctx, s.Policy, twilio.IsTransient, func(ctx context.Context) (string, error) {
		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		return s.Sender.SendSMS(ctx, canonical, body)
	})
	observability.ProviderSendLatency.Observe(time.Since(start).Seconds())

	if sendErr != nil {
		if twilio.IsTransient(sendErr) {
			// Retries exhausted; the pending row stays eligible for
			// later reconciliation.
			observability.OutboundSends.WithLabelValues("exhausted").Inc()
			log.Error("outbound sms send exhausted", "err", sendErr)
			return SendResult{}, sendErr
		}
		observability.OutboundSends.WithLabelValues("permanent").Inc()
		log.Error("outbound sms send failed", "err", sendErr)
		if err := s.Store.SetDeliveryStatus(ctx, msg.ID, store.StatusFailed); err != nil {
			log.Warn("mark failed write lost", "err", err)
		}
		return SendResult{}, sendErr
	}

	if err := s.Store.SetSendResult(ctx, msg.ID, sid, store.StatusQueued); err != nil {
		log.Warn("send result write lost", "err", err, "provider_sid", sid)
	}
	observability.OutboundSends.WithLabelValues("sent").Inc()
	log.Info("outbound sms sent", "provider_sid", sid)

	convID := conv.ID
	return SendResult{ID: msg.ID, ProviderSID: sid, ConversationID: &convID}, nil
}
