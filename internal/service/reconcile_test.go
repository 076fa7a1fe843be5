package service

import (
	"context"
	"testing"
)

func TestReconcileSweep(t *testing.T) {
	fs := newFakeStore()
	for _, raw := range []string{"+14155551212", "+16175550000", "+12125557777"} {
		if _, _, err := fs.GetOrCreateConversation(context.Background(), raw, raw); err != nil {
			t.Fatal(err)
		}
	}
	dir := &fakeDirectory{tenants: map[string]string{
		"+14155551212": "tenant-1",
		"+12125557777": "tenant-3",
	}}
	r := &Reconciler{Store: fs, Directory: dir, BatchSize: 10}

	sum, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 3 || sum.Matched != 2 || sum.NoMatch != 1 {
		t.Fatalf("summary = %+v, want 3/2/1", sum)
	}
	if fs.convs[1].TenantID != "tenant-1" || fs.convs[3].TenantID != "tenant-3" {
		t.Errorf("tenants = %q, %q", fs.convs[1].TenantID, fs.convs[3].TenantID)
	}
	if fs.convs[2].TenantID != "" {
		t.Errorf("unmatched conversation got tenant %q", fs.convs[2].TenantID)
	}
	if got := fs.tenantPhone["+14155551212"]; got != "tenant-1" {
		t.Errorf("tracked phone tenant = %q", got)
	}
}

func TestReconcileSweepSkipsResolved(t *testing.T) {
	fs := newFakeStore()
	if _, _, err := fs.GetOrCreateConversation(context.Background(), "+14155551212", "+14155551212"); err != nil {
		t.Fatal(err)
	}
	dir := &fakeDirectory{tenants: map[string]string{"+14155551212": "tenant-1"}}
	r := &Reconciler{Store: fs, Directory: dir}

	if _, err := r.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	sum, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 0 {
		t.Fatalf("second sweep processed %d, want 0", sum.Processed)
	}
	if len(dir.lookups) != 1 {
		t.Errorf("lookup calls = %d, want 1", len(dir.lookups))
	}
}

func TestReconcileSweepLookupFailureCountsNoMatch(t *testing.T) {
	fs := newFakeStore()
	if _, _, err := fs.GetOrCreateConversation(context.Background(), "+14155551212", "+14155551212"); err != nil {
		t.Fatal(err)
	}
	r := &Reconciler{Store: fs, Directory: &fakeDirectory{lookupErr: errStoreDown}}

	sum, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.NoMatch != 1 || sum.Matched != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if fs.convs[1].TenantID != "" {
		t.Errorf("tenant = %q, want empty", fs.convs[1].TenantID)
	}
}
