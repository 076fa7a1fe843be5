package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/StantonManagement/sms-foundation-agent/internal/providers/twilio"
	"github.com/StantonManagement/sms-foundation-agent/internal/retry"
	"github.com/StantonManagement/sms-foundation-agent/internal/store"
)

func newOutbound(fs *fakeStore, sender *fakeSender) *Outbound {
	return &Outbound{
		Store:  fs,
		Sender: sender,
		Policy: retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}
}

func transientSendErr() error {
	return &twilio.SendError{Category: twilio.CategoryTransient, StatusCode: 503, Message: "service unavailable"}
}

func permanentSendErr() error {
	return &twilio.SendError{Category: twilio.CategoryPermanent, StatusCode: 400, Message: "invalid 'To' number"}
}

func TestSendRejectsEmptyBody(t *testing.T) {
	fs := newFakeStore()
	sender := &fakeSender{}
	out := newOutbound(fs, sender)

	_, err := out.Send(context.Background(), SendRequest{To: "+14155551212", Body: "   "})
	if !errors.Is(err, ErrInvalidBody) {
		t.Fatalf("err = %v, want ErrInvalidBody", err)
	}
	if len(fs.msgs) != 0 || len(fs.convs) != 0 || sender.calls != 0 {
		t.Error("validation failure must precede any write or provider call")
	}
}

func TestSendRejectsInvalidDestination(t *testing.T) {
	fs := newFakeStore()
	sender := &fakeSender{}
	out := newOutbound(fs, sender)

	for _, to := range []string{"", "12345", "not a number"} {
		if _, err := out.Send(context.Background(), SendRequest{To: to, Body: "hi"}); !errors.Is(err, ErrInvalidDestination) {
			t.Errorf("Send(to=%q) err = %v, want ErrInvalidDestination", to, err)
		}
	}
	if len(fs.msgs) != 0 || sender.calls != 0 {
		t.Error("validation failure must precede any write or provider call")
	}
}

func TestSendSuccess(t *testing.T) {
	fs := newFakeStore()
	sender := &fakeSender{sid: "SM900"}
	out := newOutbound(fs, sender)

	res, err := out.Send(context.Background(), SendRequest{To: "+14155551212", Body: "hi there"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.ProviderSID != "SM900" || res.ConversationID == nil {
		t.Fatalf("result = %+v", res)
	}

	msg := fs.mustMessageBySID("SM900")
	if msg.DeliveryStatus != store.StatusQueued {
		t.Errorf("status = %q, want queued", msg.DeliveryStatus)
	}
	if msg.Direction != store.DirectionOutbound {
		t.Errorf("direction = %q", msg.Direction)
	}
	if sender.calls != 1 {
		t.Errorf("provider calls = %d, want 1", sender.calls)
	}
}

func TestSendTransientThenSuccess(t *testing.T) {
	fs := newFakeStore()
	sender := &fakeSender{sid: "SM901", errs: []error{transientSendErr()}}
	out := newOutbound(fs, sender)

	if _, err := out.Send(context.Background(), SendRequest{To: "+14155551212", Body: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sender.calls != 2 {
		t.Errorf("provider calls = %d, want 2", sender.calls)
	}
	if got := fs.mustMessageBySID("SM901").DeliveryStatus; got != store.StatusQueued {
		t.Errorf("status = %q, want queued", got)
	}
}

func TestSendPermanentFailureMarksFailed(t *testing.T) {
	fs := newFakeStore()
	sender := &fakeSender{errs: []error{permanentSendErr()}}
	out := newOutbound(fs, sender)

	_, err := out.Send(context.Background(), SendRequest{To: "+14155551212", Body: "hi"})
	var se *twilio.SendError
	if !errors.As(err, &se) || se.Category != twilio.CategoryPermanent {
		t.Fatalf("err = %v, want permanent SendError", err)
	}
	if sender.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry on permanent)", sender.calls)
	}
	if got := fs.msgs[1].DeliveryStatus; got != store.StatusFailed {
		t.Errorf("status = %q, want failed", got)
	}
}

func TestSendExhaustedLeavesPending(t *testing.T) {
	fs := newFakeStore()
	sender := &fakeSender{errs: []error{transientSendErr(), transientSendErr(), transientSendErr()}}
	out := newOutbound(fs, sender)

	_, err := out.Send(context.Background(), SendRequest{To: "+14155551212", Body: "hi"})
	if !twilio.IsTransient(err) {
		t.Fatalf("err = %v, want the transient provider error", err)
	}
	if sender.calls != 3 {
		t.Errorf("provider calls = %d, want 3", sender.calls)
	}
	if got := fs.msgs[1].DeliveryStatus; got != store.StatusPending {
		t.Errorf("status = %q, want pending for later reconciliation", got)
	}
}

func TestSendReusesConversation(t *testing.T) {
	fs := newFakeStore()
	out := newOutbound(fs, &fakeSender{sid: "SM902"})

	if _, _, err := fs.GetOrCreateConversation(context.Background(), "+14155551212", "+14155551212"); err != nil {
		t.Fatal(err)
	}
	res, err := out.Send(context.Background(), SendRequest{To: "(415) 555-1212", Body: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.ConversationID == nil || *res.ConversationID != 1 {
		t.Fatalf("conversation = %v, want the existing one", res.ConversationID)
	}
	if len(fs.convs) != 1 {
		t.Errorf("conversations = %d, want 1", len(fs.convs))
	}
}
