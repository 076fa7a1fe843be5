package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/StantonManagement/sms-foundation-agent/internal/store"
	"github.com/StantonManagement/sms-foundation-agent/internal/tenantdir"
)

// fakeStore is an in-memory stand-in for the pg store, shared by every
// pipeline test in the package.
type fakeStore struct {
	nextConvID int64
	nextMsgID  int64

	convs       map[int64]*store.Conversation
	convByPhone map[string]int64
	msgs        map[int64]*store.Message
	msgBySID    map[string]int64
	events      map[int64][]store.StatusEvent
	tenantPhone map[string]string

	lastKnownLang map[string]languageEvidence

	failNext map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		convs:         map[int64]*store.Conversation{},
		convByPhone:   map[string]int64{},
		msgs:          map[int64]*store.Message{},
		msgBySID:      map[string]int64{},
		events:        map[int64][]store.StatusEvent{},
		tenantPhone:   map[string]string{},
		lastKnownLang: map[string]languageEvidence{},
		failNext:      map[string]error{},
	}
}

func (f *fakeStore) fail(method string) error {
	if err, ok := f.failNext[method]; ok {
		delete(f.failNext, method)
		return err
	}
	return nil
}

func (f *fakeStore) GetMessageBySID(_ context.Context, sid string) (store.Message, bool, error) {
	if err := f.fail("GetMessageBySID"); err != nil {
		return store.Message{}, false, err
	}
	id, ok := f.msgBySID[sid]
	if !ok {
		return store.Message{}, false, nil
	}
	return *f.msgs[id], true, nil
}

func (f *fakeStore) GetOrCreateConversation(_ context.Context, original, canonical string) (store.Conversation, bool, error) {
	if err := f.fail("GetOrCreateConversation"); err != nil {
		return store.Conversation{}, false, err
	}
	if id, ok := f.convByPhone[canonical]; ok {
		return *f.convs[id], false, nil
	}
	f.nextConvID++
	conv := &store.Conversation{
		ID:             f.nextConvID,
		PhoneCanonical: canonical,
		PhoneOriginal:  original,
		Language:       store.LanguageUnknown,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	f.convs[conv.ID] = conv
	f.convByPhone[canonical] = conv.ID
	return *conv, true, nil
}

func (f *fakeStore) InsertInboundMessage(_ context.Context, in store.InboundMessageInsert) (store.Message, bool, error) {
	if err := f.fail("InsertInboundMessage"); err != nil {
		return store.Message{}, false, err
	}
	if _, ok := f.msgBySID[in.ProviderSID]; ok {
		return store.Message{}, false, nil
	}
	f.nextMsgID++
	msg := &store.Message{
		ID:             f.nextMsgID,
		ConversationID: in.ConversationID,
		ProviderSID:    in.ProviderSID,
		Direction:      store.DirectionInbound,
		FromNumber:     in.FromNumber,
		ToNumber:       in.ToNumber,
		Body:           in.Body,
		RawPayload:     in.RawPayload,
		DeliveryStatus: store.StatusReceived,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	f.msgs[msg.ID] = msg
	f.msgBySID[in.ProviderSID] = msg.ID
	return *msg, true, nil
}

func (f *fakeStore) TouchLastMessageAt(_ context.Context, conversationID int64, ts time.Time) error {
	if err := f.fail("TouchLastMessageAt"); err != nil {
		return err
	}
	conv, ok := f.convs[conversationID]
	if !ok {
		return fmt.Errorf("conversation %d not found", conversationID)
	}
	conv.LastMessageAt = &ts
	return nil
}

func (f *fakeStore) UpdateLanguage(_ context.Context, conversationID int64, lang string, confidence float64) error {
	if err := f.fail("UpdateLanguage"); err != nil {
		return err
	}
	conv, ok := f.convs[conversationID]
	if !ok {
		return fmt.Errorf("conversation %d not found", conversationID)
	}
	conv.Language = lang
	conv.LanguageConfidence = confidence
	return nil
}

func (f *fakeStore) SetTenant(_ context.Context, conversationID int64, tenantID string) error {
	if err := f.fail("SetTenant"); err != nil {
		return err
	}
	conv, ok := f.convs[conversationID]
	if !ok {
		return fmt.Errorf("conversation %d not found", conversationID)
	}
	conv.TenantID = tenantID
	return nil
}

func (f *fakeStore) TrackTenantPhone(_ context.Context, tenantID, canonical string) error {
	if err := f.fail("TrackTenantPhone"); err != nil {
		return err
	}
	f.tenantPhone[canonical] = tenantID
	return nil
}

func (f *fakeStore) FindLastKnownLanguage(_ context.Context, tenantID string) (string, float64, bool, error) {
	if err := f.fail("FindLastKnownLanguage"); err != nil {
		return "", 0, false, err
	}
	ev, ok := f.lastKnownLang[tenantID]
	if !ok {
		return "", 0, false, nil
	}
	return ev.Lang, ev.Confidence, true, nil
}

func (f *fakeStore) InsertOutboundPending(_ context.Context, conversationID int64, to, body string) (store.Message, error) {
	if err := f.fail("InsertOutboundPending"); err != nil {
		return store.Message{}, err
	}
	f.nextMsgID++
	msg := &store.Message{
		ID:             f.nextMsgID,
		ConversationID: &conversationID,
		Direction:      store.DirectionOutbound,
		ToNumber:       to,
		Body:           body,
		DeliveryStatus: store.StatusPending,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	f.msgs[msg.ID] = msg
	return *msg, nil
}

func (f *fakeStore) SetSendResult(_ context.Context, messageID int64, providerSID, status string) error {
	if err := f.fail("SetSendResult"); err != nil {
		return err
	}
	msg, ok := f.msgs[messageID]
	if !ok {
		return fmt.Errorf("message %d not found", messageID)
	}
	msg.ProviderSID = providerSID
	msg.DeliveryStatus = status
	f.msgBySID[providerSID] = messageID
	return nil
}

func (f *fakeStore) SetDeliveryStatus(_ context.Context, messageID int64, status string) error {
	if err := f.fail("SetDeliveryStatus"); err != nil {
		return err
	}
	msg, ok := f.msgs[messageID]
	if !ok {
		return fmt.Errorf("message %d not found", messageID)
	}
	msg.DeliveryStatus = status
	return nil
}

func (f *fakeStore) AppendStatusEvent(_ context.Context, in store.StatusEventInsert) (bool, error) {
	if err := f.fail("AppendStatusEvent"); err != nil {
		return false, err
	}
	for _, ev := range f.events[in.MessageID] {
		if ev.EventHash == in.EventHash {
			return false, nil
		}
	}
	f.events[in.MessageID] = append(f.events[in.MessageID], store.StatusEvent{
		MessageID:  in.MessageID,
		Status:     in.Status,
		ErrorCode:  in.ErrorCode,
		EventHash:  in.EventHash,
		RawPayload: in.RawPayload,
		CreatedAt:  time.Now().UTC(),
	})
	return true, nil
}

func (f *fakeStore) ListConversationsMissingTenant(_ context.Context, limit, offset int) ([]store.Conversation, error) {
	if err := f.fail("ListConversationsMissingTenant"); err != nil {
		return nil, err
	}
	var out []store.Conversation
	for _, conv := range f.convs {
		if conv.TenantID == "" {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) mustMessageBySID(sid string) store.Message {
	id, ok := f.msgBySID[sid]
	if !ok {
		panic("no message with sid " + sid)
	}
	return *f.msgs[id]
}

// fakeDirectory is a canned tenant-directory client.
type fakeDirectory struct {
	tenants map[string]string

	lookupErr    error
	updateErr    error
	updateResult tenantdir.UpdateResult

	lookups [][]string
	updates []string
}

func (d *fakeDirectory) Lookup(_ context.Context, variants []string) (string, bool, error) {
	d.lookups = append(d.lookups, variants)
	if d.lookupErr != nil {
		return "", false, d.lookupErr
	}
	for _, v := range variants {
		if tenant, ok := d.tenants[v]; ok {
			return tenant, true, nil
		}
	}
	return "", false, nil
}

func (d *fakeDirectory) UpdateLanguage(_ context.Context, tenantID, lang string) (tenantdir.UpdateResult, error) {
	d.updates = append(d.updates, tenantID+":"+lang)
	if d.updateErr != nil {
		return "", d.updateErr
	}
	if d.updateResult != "" {
		return d.updateResult, nil
	}
	return tenantdir.UpdateOK, nil
}

// fakeSender returns the queued errors one per call, then succeeds.
type fakeSender struct {
	sid   string
	errs  []error
	calls int
}

func (s *fakeSender) SendSMS(_ context.Context, _, _ string) (string, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	if s.sid == "" {
		return "SM_fake", nil
	}
	return s.sid, nil
}

var errStoreDown = errors.New("store down")
