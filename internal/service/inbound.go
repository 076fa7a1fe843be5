package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/StantonManagement/sms-foundation-agent/internal/observability"
	"github.com/StantonManagement/sms-foundation-agent/internal/phone"
	"github.com/StantonManagement/sms-foundation-agent/internal/store"
	"github.com/StantonManagement/sms-foundation-agent/internal/tenantdir"
)

type InboundStore interface {
	GetMessageBySID(ctx context.Context, sid string) (store.Message, bool, error)
	GetOrCreateConversation(ctx context.Context, original, canonical string) (store.Conversation, bool, error)
	InsertInboundMessage(ctx context.Context, in store.InboundMessageInsert) (store.Message, bool, error)
	TouchLastMessageAt(ctx context.Context, conversationID int64, ts time.Time) error
	UpdateLanguage(ctx context.Context, conversationID int64, lang string, confidence float64) error
	SetTenant(ctx context.Context, conversationID int64, tenantID string) error
	TrackTenantPhone(ctx context.Context, tenantID, canonical string) error
	FindLastKnownLanguage(ctx context.Context, tenantID string) (string, float64, bool, error)
}

// TenantDirectory is the lookup/update RPC pair consumed by the pipelines.
// Implementations carry their own retry wrapper (see tenantdir.Client).
type TenantDirectory interface {
	Lookup(ctx context.Context, variants []string) (tenantID string, found bool, err error)
	UpdateLanguage(ctx context.Context, tenantID, lang string) (tenantdir.UpdateResult, error)
}

// Inbound ingests one verified inbound SMS webhook, exactly once per
// provider message sid.
type Inbound struct {
	Store     InboundStore
	Directory TenantDirectory
	Detect    func(text string) (lang string, confidence float64)
}

// Process runs the ingestion pipeline. A store outage surfaces as an error
// so the caller can make the provider or the queue redeliver; every write is
// idempotent, so redelivery is safe.
func (s *Inbound) Process(ctx context.Context, p InboundPayload) (WebhookResult, error) {
	log := slog.With("route", "/webhook/twilio/sms", "provider_sid", p.MessageSID)

	if p.MessageSID == "" {
		log.Warn("inbound sms missing provider sid")
		observability.InboundMessages.WithLabelValues("missing_sid").Inc()
		return WebhookResult{}, nil
	}

	if _, found, err := s.Store.GetMessageBySID(ctx, p.MessageSID); err != nil {
		log.Warn("inbound sms store unavailable", "err", err)
		return WebhookResult{}, err
	} else if found {
		log.Info("inbound sms duplicate")
		observability.InboundMessages.WithLabelValues("duplicate").Inc()
		return WebhookResult{Duplicate: true}, nil
	}

	// A sender phone that cannot be normalized still gets its message
	// stored, just without a conversation.
	_, canonical := phone.Normalize(p.From)
	var conv store.Conversation
	var convID *int64
	var convCreated, haveConv bool
	if canonical != "" {
		var err error
		conv, convCreated, err = s.Store.GetOrCreateConversation(ctx, p.From, canonical)
		if err != nil {
			log.Warn("inbound sms store unavailable", "err", err)
			return WebhookResult{}, err
		}
		haveConv = true
		convID = &conv.ID
	}

	tenantID := conv.TenantID
	if haveConv && tenantID == "" {
		tenantID = s.resolveTenant(ctx, log, conv.ID, p.From, canonical)
	}

	msg, created, err := s.Store.InsertInboundMessage(ctx, store.InboundMessageInsert{
		ConversationID: convID,
		ProviderSID:    p.MessageSID,
		FromNumber:     p.From,
		ToNumber:       p.To,
		Body:           p.Body,
		RawPayload:     marshalRaw(p.Raw),
	})
	if err != nil {
		log.Warn("inbound sms store unavailable", "err", err)
		return WebhookResult{}, err
	}
	if !created {
		// Lost the insert race to a concurrent duplicate delivery.
		log.Info("inbound sms duplicate")
		observability.InboundMessages.WithLabelValues("duplicate").Inc()
		return WebhookResult{Duplicate: true}, nil
	}

	if haveConv {
		if err := s.Store.TouchLastMessageAt(ctx, conv.ID, msg.CreatedAt); err != nil {
			log.Warn("inbound sms touch activity failed", "err", err)
		}
		s.mergeAndPersistLanguage(ctx, log, conv, tenantID, p.Body)
	}

	if convCreated && tenantID == "" {
		observability.UnknownConversations.Inc()
		log.Info("unknown conversation created", "phone", canonical)
	}

	log.Info("inbound sms processed", "message_id", msg.ID, "conversation_created", convCreated)
	observability.InboundMessages.WithLabelValues("processed").Inc()
	return WebhookResult{Processed: true, MessageID: msg.ID}, nil
}

// resolveTenant tries the directory with the ordered phone variants and
// applies the first match. Directory failures never block ingestion.
func (s *Inbound) resolveTenant(ctx context.Context, log *slog.Logger, conversationID int64, raw, canonical string) string {
	if s.Directory == nil {
		return ""
	}
	variants := phone.Variants(raw)
	if len(variants) == 0 {
		variants = phone.Variants(canonical)
	}

	tenantID, found, err := s.Directory.Lookup(ctx, variants)
	if err != nil {
		log.Warn("tenant lookup failed", "err", err)
		observability.TenantLookups.WithLabelValues("error").Inc()
		return ""
	}
	if !found {
		observability.TenantLookups.WithLabelValues("no_match").Inc()
		return ""
	}
	observability.TenantLookups.WithLabelValues("match").Inc()

	if err := s.Store.SetTenant(ctx, conversationID, tenantID); err != nil {
		log.Warn("set tenant failed", "err", err, "tenant_id", tenantID)
		return ""
	}
	if err := s.Store.TrackTenantPhone(ctx, tenantID, canonical); err != nil {
		log.Warn("track tenant phone failed", "err", err, "tenant_id", tenantID)
	}
	return tenantID
}

// mergeAndPersistLanguage applies the evidence-merge policy and writes the
// chosen language unconditionally, keeping the store the single source of
// truth even when nothing changed.
func (s *Inbound) mergeAndPersistLanguage(ctx context.Context, log *slog.Logger, conv store.Conversation, tenantID, body string) {
	detect := s.Detect
	if detect == nil {
		detect = func(string) (string, float64) { return store.LanguageUnknown, 0 }
	}
	lang, conf := detect(body)
	detected := languageEvidence{Lang: lang, Confidence: conf}
	prev := languageEvidence{Lang: conv.Language, Confidence: conv.LanguageConfidence}

	var lastKnown *languageEvidence
	if tenantID != "" {
		if l, c, found, err := s.Store.FindLastKnownLanguage(ctx, tenantID); err != nil {
			log.Warn("last known language lookup failed", "err", err, "tenant_id", tenantID)
		} else if found {
			lastKnown = &languageEvidence{Lang: l, Confidence: c}
		}
	}

	merged := mergeLanguage(detected, prev, lastKnown)
	if err := s.Store.UpdateLanguage(ctx, conv.ID, merged.Lang, merged.Confidence); err != nil {
		log.Warn("language update failed", "err", err)
		return
	}

	if tenantID != "" && merged.known() && s.Directory != nil {
		if res, err := s.Directory.UpdateLanguage(ctx, tenantID, merged.Lang); err != nil {
			log.Warn("tenant language push failed", "err", err, "tenant_id", tenantID)
		} else if res == tenantdir.UpdateOK {
			log.Info("tenant language updated", "tenant_id", tenantID, "language", merged.Lang)
		}
	}
}
