package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emar-delivery/backoffice"
)

// TestJSONArrayReadDegrades verifies that reading a missing, empty or
// corrupt array file returns an empty slice and no error.
func TestJSONArrayReadDegrades(t *testing.T) {
	ctx := context.Background()
	j := NewJSONArrayIO(nil, nil)
	base := t.TempDir()

	cases := []struct {
		name    string
		prepare func(path string) error
	}{
		{name: "missing_file", prepare: func(string) error { return nil }},
		{name: "empty_file", prepare: func(path string) error {
			return os.WriteFile(path, nil, 0o644)
		}},
		{name: "invalid_json", prepare: func(path string) error {
			return os.WriteFile(path, []byte("{not json["), 0o644)
		}},
		{name: "not_an_array", prepare: func(path string) error {
			return os.WriteFile(path, []byte(`{"a":1}`), 0o644)
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(base, c.name+".json")
			if err := c.prepare(path); err != nil {
				t.Fatalf("prepare: %v", err)
			}
			records, err := j.Read(ctx, path)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if len(records) != 0 {
				t.Fatalf("expected empty, got %d records", len(records))
			}
		})
	}
}

func TestJSONArrayWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	j := NewJSONArrayIO(nil, nil)
	path := filepath.Join(t.TempDir(), "drivers.json")

	in := []backoffice.Record{
		{"id": "a1b2c3d4", "full_name": "سائق التوصيل", "base_salary": 300.0},
		{"id": "e5f6a7b8", "full_name": "Second Driver", "is_active": true},
	}
	if err := j.Write(ctx, path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := j.Read(ctx, path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if out[0].GetString("full_name") != "سائق التوصيل" {
		t.Fatalf("arabic text mangled: %q", out[0].GetString("full_name"))
	}
	if out[1].ID() != "e5f6a7b8" {
		t.Fatalf("order not preserved, got %q first", out[1].ID())
	}

	// On-disk shape: indented, non-ASCII kept literal, no escapes.
	ba, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("raw read: %v", err)
	}
	raw := string(ba)
	if !strings.Contains(raw, "سائق التوصيل") {
		t.Fatalf("expected literal UTF-8 in file, got: %s", raw)
	}
	if !strings.Contains(raw, "\n  ") {
		t.Fatalf("expected indented output, got: %s", raw)
	}
}

func TestJSONArrayMutate(t *testing.T) {
	ctx := context.Background()
	j := NewJSONArrayIO(nil, nil)
	path := filepath.Join(t.TempDir(), "orders.json")

	err := j.Mutate(ctx, path, func(records []backoffice.Record) ([]backoffice.Record, bool, error) {
		if len(records) != 0 {
			t.Fatalf("expected empty start, got %d", len(records))
		}
		return append(records, backoffice.Record{"id": "x1"}), true, nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	// write=false must leave the file untouched.
	err = j.Mutate(ctx, path, func(records []backoffice.Record) ([]backoffice.Record, bool, error) {
		return nil, false, nil
	})
	if err != nil {
		t.Fatalf("mutate noop: %v", err)
	}

	out, err := j.Read(ctx, path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out) != 1 || out[0].ID() != "x1" {
		t.Fatalf("unexpected contents: %+v", out)
	}
}

// TestJSONArrayConcurrentMutates issues N concurrent appends and asserts no
// update is lost: all N records must be present afterwards.
func TestJSONArrayConcurrentMutates(t *testing.T) {
	ctx := context.Background()
	j := NewJSONArrayIO(nil, nil)
	path := filepath.Join(t.TempDir(), "advances.json")

	const n = 10
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			done <- j.Mutate(ctx, path, func(records []backoffice.Record) ([]backoffice.Record, bool, error) {
				return append(records, backoffice.Record{"id": backoffice.NewRecordID(), "n": i}), true, nil
			})
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent mutate: %v", err)
		}
	}

	out, err := j.Read(ctx, path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out) != n {
		t.Fatalf("lost update: expected %d records, got %d", n, len(out))
	}
}
