package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/StantonManagement/sms-foundation-agent/internal/observability"
	sqsqueue "github.com/StantonManagement/sms-foundation-agent/internal/queue/sqs"
	"github.com/StantonManagement/sms-foundation-agent/internal/service"
)

// Enqueuer hands a raw webhook event to the async intake queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev sqsqueue.WebhookEvent) error
}

// Webhook terminates the Twilio callback routes. With a Queue configured the
// verified form is enqueued and processed by the webhook-processor; without
// one the pipelines run on the request path.
type Webhook struct {
	Inbound *service.Inbound
	Status  *service.Status
	Queue   Enqueuer

	VerifySignature func(authToken, fullURL, provided string, form url.Values) bool
	AuthToken       string
	PublicBaseURL   string
}

func (h *Webhook) Register(mux *mux.Router) {
	mux.HandleFunc("/webhook/twilio/sms", h.handleInboundSMS).Methods(http.MethodPost)
	mux.HandleFunc("/webhook/twilio/status", h.handleStatus).Methods(http.MethodPost)
}

func (h *Webhook) handleInboundSMS(w http.ResponseWriter, r *http.Request) {
	form, ok := h.verifiedForm(w, r)
	if !ok {
		return
	}
	if h.Queue != nil {
		h.enqueue(w, r, sqsqueue.WebhookEvent{Kind: sqsqueue.KindInbound, Form: flattenForm(form)})
		return
	}
	res, err := h.Inbound.Process(r.Context(), service.InboundPayloadFromForm(flattenForm(form)))
	if err != nil {
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Webhook) handleStatus(w http.ResponseWriter, r *http.Request) {
	form, ok := h.verifiedForm(w, r)
	if !ok {
		return
	}
	if h.Queue != nil {
		h.enqueue(w, r, sqsqueue.WebhookEvent{Kind: sqsqueue.KindStatus, Form: flattenForm(form)})
		return
	}
	res, err := h.Status.Process(r.Context(), service.StatusPayloadFromForm(flattenForm(form)))
	if err != nil {
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Webhook) verifiedForm(w http.ResponseWriter, r *http.Request) (url.Values, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrBadForm, http.StatusBadRequest)
		return nil, false
	}
	if h.VerifySignature != nil {
		fullURL := h.PublicBaseURL + r.URL.RequestURI()
		if !h.VerifySignature(h.AuthToken, fullURL, r.Header.Get("X-Twilio-Signature"), r.PostForm) {
			slog.Warn("webhook signature rejected", "path", r.URL.Path)
			http.Error(w, ErrInvalidSignature, http.StatusUnauthorized)
			return nil, false
		}
	}
	return r.PostForm, true
}

func (h *Webhook) enqueue(w http.ResponseWriter, r *http.Request, ev sqsqueue.WebhookEvent) {
	if err := h.Queue.Enqueue(r.Context(), ev); err != nil {
		slog.Error("webhook enqueue failed", "err", err, "kind", ev.Kind)
		observability.WebhookQueue.WithLabelValues("enqueue_error").Inc()
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	observability.WebhookQueue.WithLabelValues("enqueued").Inc()
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

func flattenForm(form url.Values) map[string]string {
	out := make(map[string]string, len(form))
	for k := range form {
		out[k] = form.Get(k)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
