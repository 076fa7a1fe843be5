package service

import (
	"context"
	"log/slog"

	"github.com/StantonManagement/sms-foundation-agent/internal/observability"
	"github.com/StantonManagement/sms-foundation-agent/internal/phone"
	"github.com/StantonManagement/sms-foundation-agent/internal/store"
)

type ReconcileStore interface {
	ListConversationsMissingTenant(ctx context.Context, limit, offset int) ([]store.Conversation, error)
	SetTenant(ctx context.Context, conversationID int64, tenantID string) error
	TrackTenantPhone(ctx context.Context, tenantID, canonical string) error
}

// ReconcileSummary reports one sweep. A second sweep over an unchanged set
// processes zero items because resolved conversations leave the listing.
type ReconcileSummary struct {
	Processed int `json:"processed"`
	Matched   int `json:"matched"`
	NoMatch   int `json:"noMatch"`
}

// Reconciler periodically reattempts tenant resolution for conversations
// that still have none, most recently active first.
type Reconciler struct {
	Store     ReconcileStore
	Directory TenantDirectory
	BatchSize int
}

// Sweep runs one reconciliation pass over at most BatchSize conversations.
func (r *Reconciler) Sweep(ctx context.Context) (ReconcileSummary, error) {
	batch := r.BatchSize
	if batch <= 0 {
		batch = 100
	}

	items, err := r.Store.ListConversationsMissingTenant(ctx, batch, 0)
	if err != nil {
		return ReconcileSummary{}, err
	}

	var sum ReconcileSummary
	for _, conv := range items {
		sum.Processed++

		raw := conv.PhoneOriginal
		if raw == "" {
			raw = conv.PhoneCanonical
		}

		tenantID, found, err := r.Directory.Lookup(ctx, phone.Variants(raw))
		if err != nil {
			slog.Warn("reconciliation lookup failed", "err", err, "conversation_id", conv.ID)
			found = false
		}
		if !found {
			observability.ReconcileNoMatch.Inc()
			slog.Info("reconciliation no match", "conversation_id", conv.ID, "phone", raw)
			sum.NoMatch++
			continue
		}

		if err := r.Store.SetTenant(ctx, conv.ID, tenantID); err != nil {
			slog.Warn("reconciliation set tenant failed", "err", err, "conversation_id", conv.ID)
			sum.NoMatch++
			continue
		}
		if err := r.Store.TrackTenantPhone(ctx, tenantID, conv.PhoneCanonical); err != nil {
			slog.Warn("reconciliation track phone failed", "err", err, "conversation_id", conv.ID)
		}
		slog.Info("reconciliation matched", "conversation_id", conv.ID, "tenant_id", tenantID)
		sum.Matched++
	}
	return sum, nil
}
