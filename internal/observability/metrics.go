package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sms_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	InboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sms_inbound_messages_total", Help: "Inbound webhook outcomes"},
		[]string{"result"},
	)
	UnknownConversations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sms_unknown_conversations_created_total", Help: "Conversations created without a tenant match"},
	)
	OutboundSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sms_outbound_sends_total", Help: "Outbound send outcomes"},
		[]string{"result"},
	)
	ProviderSendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "sms_provider_send_latency_seconds", Help: "Provider send latency"},
	)
	StatusCallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sms_status_callbacks_total", Help: "Delivery status callbacks"},
		[]string{"status"},
	)
	TenantLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sms_tenant_lookups_total", Help: "Tenant directory lookup outcomes"},
		[]string{"result"},
	)
	ReconcileNoMatch = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sms_reconciliation_no_match_total", Help: "Reconciliation sweeps that found no tenant"},
	)
	WebhookQueue = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sms_webhook_queue_total", Help: "Webhook event enqueue/consume results"},
		[]string{"result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		APIRequests,
		InboundMessages,
		UnknownConversations,
		OutboundSends,
		ProviderSendLatency,
		StatusCallbacks,
		TenantLookups,
		ReconcileNoMatch,
		WebhookQueue,
	)
}
