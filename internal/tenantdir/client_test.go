package tenantdir

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/StantonManagement/sms-foundation-agent/internal/retry"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestLookupFirstMatchingVariantWins(t *testing.T) {
	var queried []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		phone := r.URL.Query().Get("phone")
		queried = append(queried, phone)
		if phone == "4155551212" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"tenant_id":"tenant-42"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, testPolicy())
	tenantID, found, err := c.Lookup(context.Background(), []string{"+14155551212", "4155551212", "14155551212"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || tenantID != "tenant-42" {
		t.Fatalf("got (%q, %v)", tenantID, found)
	}
	// Stops at first match; third variant never queried.
	if len(queried) != 2 {
		t.Fatalf("queried %v", queried)
	}
}

func TestLookupNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, testPolicy())
	_, found, err := c.Lookup(context.Background(), []string{"+14155551212"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected no match")
	}
}

func TestLookupRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"tenant_id":"tenant-7"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, testPolicy())
	tenantID, found, err := c.Lookup(context.Background(), []string{"+14155551212"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || tenantID != "tenant-7" {
		t.Fatalf("got (%q, %v)", tenantID, found)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestLookupExhaustedSurfacesUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, testPolicy())
	_, found, err := c.Lookup(context.Background(), []string{"+14155551212"})
	if found {
		t.Fatal("expected no match")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLookupUnconfiguredIsNoMatch(t *testing.T) {
	c := New("", time.Second, testPolicy())
	_, found, err := c.Lookup(context.Background(), []string{"+14155551212"})
	if err != nil || found {
		t.Fatalf("got (%v, %v)", found, err)
	}
}

func TestUpdateLanguageResults(t *testing.T) {
	var gotPath, gotBody string
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, testPolicy())

	res, err := c.UpdateLanguage(context.Background(), "tenant-42", "es")
	if err != nil || res != UpdateOK {
		t.Fatalf("got (%v, %v)", res, err)
	}
	if gotPath != "/tenants/tenant-42/language" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody != `{"language":"es"}` {
		t.Fatalf("body = %q", gotBody)
	}

	status = http.StatusNotFound
	res, err = c.UpdateLanguage(context.Background(), "tenant-42", "es")
	if err != nil || res != UpdateNoop {
		t.Fatalf("got (%v, %v)", res, err)
	}
}

func TestUpdateLanguageSkipsUnknownAndUnconfigured(t *testing.T) {
	c := New("", time.Second, testPolicy())
	if res, err := c.UpdateLanguage(context.Background(), "tenant-42", "es"); res != UpdateSkipped || err != nil {
		t.Fatalf("got (%v, %v)", res, err)
	}

	c = New("http://localhost:1", time.Second, testPolicy())
	if res, err := c.UpdateLanguage(context.Background(), "tenant-42", "unknown"); res != UpdateSkipped || err != nil {
		t.Fatalf("got (%v, %v)", res, err)
	}
	if res, err := c.UpdateLanguage(context.Background(), "", "es"); res != UpdateSkipped || err != nil {
		t.Fatalf("got (%v, %v)", res, err)
	}
}

func TestBreakerOpenReadsAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, retry.Policy{MaxAttempts: 1})
	// Trip the breaker with consecutive failures.
	for i := 0; i < 6; i++ {
		_, _, _ = c.Lookup(context.Background(), []string{"+14155551212"})
	}

	srv.Close() // even with the server gone, the open breaker answers first
	_, found, err := c.Lookup(context.Background(), []string{"+14155551212"})
	if found {
		t.Fatal("expected no match")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
