// Package store implements the collection-oriented record store: CRUD with
// ID generation and timestamping over JSON array files, one lock
// acquisition per operation, with a daily snapshot taken before every
// mutation.
//
// Construct one Store at process startup and pass it into every
// collaborator; route handlers and calculators never touch the collection
// files directly.
package store

import (
	"context"
	log "log/slog"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/emar-delivery/backoffice"
	"github.com/emar-delivery/backoffice/backup"
	"github.com/emar-delivery/backoffice/cel"
	"github.com/emar-delivery/backoffice/encoding"
	"github.com/emar-delivery/backoffice/fs"
)

// Store owns the physical JSON collection files in one data directory.
type Store struct {
	dataDir string
	arrays  *fs.JSONArrayIO
	backups *backup.Manager
}

// New constructs a Store over dataDir, creating the directory if needed.
// backups may be nil, in which case mutations are not snapshotted (useful
// for throwaway test stores).
func New(ctx context.Context, dataDir string, backups *backup.Manager) (*Store, error) {
	fileIO := fs.NewFileIO()
	if err := fileIO.MkdirAll(ctx, dataDir, 0o755); err != nil {
		return nil, err
	}
	return &Store{
		dataDir: dataDir,
		arrays:  fs.NewJSONArrayIO(fileIO, encoding.DefaultMarshaler),
		backups: backups,
	}, nil
}

// DataDir returns the directory holding the collection files.
func (s *Store) DataDir() string {
	return s.dataDir
}

// FilePath returns the full path of a collection's array file.
func (s *Store) FilePath(collection string) string {
	if !strings.HasSuffix(collection, ".json") {
		collection += ".json"
	}
	return filepath.Join(s.dataDir, collection)
}

func (s *Store) snapshot(ctx context.Context, collection string) {
	if s.backups != nil {
		s.backups.SnapshotIfNeeded(ctx, s.FilePath(collection))
	}
}

// ReadAll returns every record of the collection in physical array order,
// which reflects creation order unless mutated. It never fails: a missing
// or unreadable collection degrades to an empty slice so list views stay
// alive.
func (s *Store) ReadAll(ctx context.Context, collection string) []backoffice.Record {
	records, err := s.arrays.Read(ctx, s.FilePath(collection))
	if err != nil {
		log.Warn("collection read degraded to empty", "collection", collection, "error", err.Error())
		return []backoffice.Record{}
	}
	return records
}

// FindByID returns the record with the given id, or nil when no such record
// exists. Absent is a valid, non-error outcome.
func (s *Store) FindByID(ctx context.Context, collection, id string) backoffice.Record {
	for _, rec := range s.ReadAll(ctx, collection) {
		if rec.ID() == id {
			return rec
		}
	}
	return nil
}

// Create appends the record to the collection and persists the whole array
// in one locked read-modify-write cycle. A missing id is assigned
// (8-character token, regenerated on collision with an existing id);
// created_at and updated_at are stamped. The returned record includes the
// generated fields and is only returned once durable.
func (s *Store) Create(ctx context.Context, collection string, record backoffice.Record) (backoffice.Record, error) {
	s.snapshot(ctx, collection)

	err := s.arrays.Mutate(ctx, s.FilePath(collection), func(records []backoffice.Record) ([]backoffice.Record, bool, error) {
		if record.ID() == "" {
			taken := make(map[string]struct{}, len(records))
			for _, r := range records {
				taken[r.ID()] = struct{}{}
			}
			id := backoffice.NewRecordID()
			for _, exists := taken[id]; exists; _, exists = taken[id] {
				id = backoffice.NewRecordID()
			}
			record[backoffice.FieldID] = id
		}

		now := backoffice.TimestampNow()
		record[backoffice.FieldCreatedAt] = now
		record[backoffice.FieldUpdatedAt] = now

		return append(records, record), true, nil
	})
	if err != nil {
		return nil, persistenceFault(collection, err)
	}
	return record, nil
}

// Update shallow-merges updates into the record with the given id: keys in
// updates overwrite, other fields are untouched, updated_at is refreshed.
// Returns nil (and no error) when no record with that id exists; the caller
// decides how to surface "not found".
func (s *Store) Update(ctx context.Context, collection, id string, updates backoffice.Record) (backoffice.Record, error) {
	s.snapshot(ctx, collection)

	var updated backoffice.Record
	err := s.arrays.Mutate(ctx, s.FilePath(collection), func(records []backoffice.Record) ([]backoffice.Record, bool, error) {
		for i, rec := range records {
			if rec.ID() != id {
				continue
			}
			for k, v := range updates {
				rec[k] = v
			}
			rec[backoffice.FieldUpdatedAt] = backoffice.TimestampNow()
			records[i] = rec
			updated = rec
			return records, true, nil
		}
		return records, false, nil
	})
	if err != nil {
		return nil, persistenceFault(collection, err)
	}
	return updated, nil
}

// Delete rebuilds the array without the record carrying the given id and
// persists it. Returns false when no record matched (nothing removed, no
// write issued).
func (s *Store) Delete(ctx context.Context, collection, id string) (bool, error) {
	s.snapshot(ctx, collection)

	removed := false
	err := s.arrays.Mutate(ctx, s.FilePath(collection), func(records []backoffice.Record) ([]backoffice.Record, bool, error) {
		kept := make([]backoffice.Record, 0, len(records))
		for _, rec := range records {
			if rec.ID() != id {
				kept = append(kept, rec)
			}
		}
		if len(kept) == len(records) {
			return records, false, nil
		}
		removed = true
		return kept, true, nil
	})
	if err != nil {
		return false, persistenceFault(collection, err)
	}
	return removed, nil
}

// Filter returns the records whose fields equal every entry of filters
// exactly. No partial matching and no type coercion: a numeric filter value
// must carry the same type the record field decoded to.
func (s *Store) Filter(ctx context.Context, collection string, filters map[string]any) []backoffice.Record {
	matched := []backoffice.Record{}
	for _, rec := range s.ReadAll(ctx, collection) {
		match := true
		for k, v := range filters {
			fv, ok := rec[k]
			if !ok || !reflect.DeepEqual(fv, v) {
				match = false
				break
			}
		}
		if match {
			matched = append(matched, rec)
		}
	}
	return matched
}

// Count returns the number of records matching filters, or the collection
// size when filters is nil or empty.
func (s *Store) Count(ctx context.Context, collection string, filters map[string]any) int {
	if len(filters) == 0 {
		return len(s.ReadAll(ctx, collection))
	}
	return len(s.Filter(ctx, collection, filters))
}

// Query returns the records satisfying the CEL predicate expression, with
// each record bound to the variable "rec". The expression is compiled once
// per call; callers issuing the same query repeatedly should keep their own
// cel.Evaluator and filter ReadAll themselves.
func (s *Store) Query(ctx context.Context, collection, expression string) ([]backoffice.Record, error) {
	ev, err := cel.NewEvaluator(expression)
	if err != nil {
		return nil, err
	}
	matched := []backoffice.Record{}
	for _, rec := range s.ReadAll(ctx, collection) {
		ok, err := ev.Evaluate(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

func persistenceFault(collection string, err error) error {
	return backoffice.Error{
		Code:     backoffice.PersistenceFailure,
		Err:      err,
		UserData: collection,
	}
}
