package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/StantonManagement/sms-foundation-agent/internal/phone"
	"github.com/StantonManagement/sms-foundation-agent/internal/providers/twilio"
	"github.com/StantonManagement/sms-foundation-agent/internal/service"
	"github.com/StantonManagement/sms-foundation-agent/internal/store"
)

// ConversationReader is the read side used by the conversation endpoints.
type ConversationReader interface {
	GetConversationByPhone(ctx context.Context, canonical string) (store.Conversation, bool, error)
	ListMessagesByConversation(ctx context.Context, conversationID int64, limit, offset int) ([]store.Message, int, error)
}

type API struct {
	Outbound *service.Outbound
	Reader   ConversationReader
}

func (a *API) Register(mux *mux.Router) {
	mux.HandleFunc("/sms/send", a.handleSend).Methods(http.MethodPost)
	mux.HandleFunc("/conversations/{phone}", a.handleGetConversation).Methods(http.MethodGet)
}

func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	var req service.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	res, err := a.Outbound.Send(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidBody), errors.Is(err, service.ErrInvalidDestination):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case twilio.IsTransient(err):
			http.Error(w, ErrSendFailed, http.StatusGatewayTimeout)
		default:
			var se *twilio.SendError
			if errors.As(err, &se) {
				http.Error(w, ErrSendFailed, http.StatusBadGateway)
				return
			}
			slog.Error("send sms failed", "err", err, "to", req.To)
			http.Error(w, ErrDependency, http.StatusBadGateway)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(res)
}

type conversationResponse struct {
	Conversation conversationView `json:"conversation"`
	Messages     []messageView    `json:"messages"`
	Total        int              `json:"total"`
}

type conversationView struct {
	ID                 int64   `json:"id"`
	PhoneNumber        string  `json:"phoneNumber"`
	TenantID           string  `json:"tenantId,omitempty"`
	Language           string  `json:"language"`
	LanguageConfidence float64 `json:"languageConfidence"`
	LastMessageAt      string  `json:"lastMessageAt,omitempty"`
}

type messageView struct {
	ID             int64  `json:"id"`
	Direction      string `json:"direction"`
	Body           string `json:"body"`
	DeliveryStatus string `json:"deliveryStatus"`
	ProviderSID    string `json:"providerMessageId,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

func (a *API) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["phone"]
	_, canonical := phone.Normalize(raw)
	if canonical == "" {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}

	conv, found, err := a.Reader.GetConversationByPhone(r.Context(), canonical)
	if err != nil {
		slog.Error("get conversation failed", "err", err, "phone", canonical)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	if !found {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}

	limit := queryInt(r, "limit", 50, 200)
	offset := queryInt(r, "offset", 0, 1<<30)
	msgs, total, err := a.Reader.ListMessagesByConversation(r.Context(), conv.ID, limit, offset)
	if err != nil {
		slog.Error("list messages failed", "err", err, "conversation_id", conv.ID)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}

	resp := conversationResponse{
		Conversation: conversationView{
			ID:                 conv.ID,
			PhoneNumber:        conv.PhoneCanonical,
			TenantID:           conv.TenantID,
			Language:           conv.Language,
			LanguageConfidence: conv.LanguageConfidence,
		},
		Messages: make([]messageView, 0, len(msgs)),
		Total:    total,
	}
	if conv.LastMessageAt != nil {
		resp.Conversation.LastMessageAt = conv.LastMessageAt.UTC().Format(time.RFC3339)
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, messageView{
			ID:             m.ID,
			Direction:      m.Direction,
			Body:           m.Body,
			DeliveryStatus: m.DeliveryStatus,
			ProviderSID:    m.ProviderSID,
			CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func queryInt(r *http.Request, key string, def, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
