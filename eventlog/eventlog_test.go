package eventlog

import (
	"context"
	"testing"

	"github.com/emar-delivery/backoffice"
	"github.com/emar-delivery/backoffice/store"
)

func TestLogAndRecent(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(ctx, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	l := New(s, "")

	if !l.LogCreate(ctx, "driver", "D1", backoffice.Record{"driver_name": "Ahmed"}) {
		t.Fatalf("log create failed")
	}
	if !l.LogUpdate(ctx, "driver", "D1", nil) {
		t.Fatalf("log update failed")
	}
	if !l.LogDelete(ctx, "vehicle", "V1", nil) {
		t.Fatalf("log delete failed")
	}

	events := l.Recent(ctx, 0)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	first := events[0]
	if first.GetString("action") != "create" || first.GetString("entity_type") != "driver" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if first.GetString("user") != "admin" {
		t.Fatalf("default user not applied: %+v", first)
	}
	if first.GetString("timestamp") == "" {
		t.Fatalf("missing timestamp: %+v", first)
	}

	recent := l.Recent(ctx, 2)
	if len(recent) != 2 || recent[1].GetString("action") != "delete" {
		t.Fatalf("recent window wrong: %+v", recent)
	}
}
