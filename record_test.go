package backoffice

import (
	"testing"
	"time"
)

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		"id":      "a1b2c3d4",
		"name":    "Ahmed",
		"salary":  300.5,
		"count":   3,
		"amount":  "12.5",
		"bad":     "not-a-number",
		"active":  true,
		"untyped": nil,
	}

	if rec.ID() != "a1b2c3d4" {
		t.Fatalf("id: %q", rec.ID())
	}
	if rec.GetString("name") != "Ahmed" || rec.GetString("missing") != "" {
		t.Fatalf("string accessor")
	}

	floatCases := []struct {
		key  string
		def  float64
		want float64
	}{
		{"salary", 0, 300.5},
		{"count", 0, 3},
		{"amount", 0, 12.5},
		{"bad", 7, 7},
		{"missing", 9, 9},
		{"untyped", 2, 2},
	}
	for _, c := range floatCases {
		if got := rec.GetFloat(c.key, c.def); got != c.want {
			t.Fatalf("GetFloat(%q) = %v, want %v", c.key, got, c.want)
		}
	}

	if rec.GetInt("count", 0) != 3 {
		t.Fatalf("int accessor")
	}
	if !rec.GetBool("active", false) || rec.GetBool("missing", true) != true {
		t.Fatalf("bool accessor")
	}
}

func TestRecordClone(t *testing.T) {
	rec := Record{"a": 1}
	c := rec.Clone()
	c["a"] = 2
	if rec["a"] != 1 {
		t.Fatalf("clone shares top-level storage")
	}
}

func TestNewRecordID(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id := NewRecordID()
		if len(id) != 8 {
			t.Fatalf("id length: %q", id)
		}
		seen[id] = struct{}{}
	}
	if len(seen) < 100 {
		t.Fatalf("ids not unique across 100 draws: %d distinct", len(seen))
	}
}

func TestTimestampNowIsParseable(t *testing.T) {
	ts := TimestampNow()
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		t.Fatalf("timestamp %q not ISO-8601: %v", ts, err)
	}
}
