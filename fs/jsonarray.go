package fs

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"path/filepath"

	"github.com/emar-delivery/backoffice"
	"github.com/emar-delivery/backoffice/encoding"
)

// JSONArrayIO reads and writes whole-collection JSON array files under the
// advisory file lock. Every write replaces the entire file through a
// temp-file-then-rename, so a reader can never observe a half-written
// array, and a read-modify-write cycle runs under one exclusive lock
// acquisition, never two.
type JSONArrayIO struct {
	fileIO    FileIO
	marshaler encoding.Marshaler
}

// NewJSONArrayIO constructs a JSONArrayIO. Nil arguments select the
// defaults.
func NewJSONArrayIO(fileIO FileIO, marshaler encoding.Marshaler) *JSONArrayIO {
	if fileIO == nil {
		fileIO = NewFileIO()
	}
	if marshaler == nil {
		marshaler = encoding.DefaultMarshaler
	}
	return &JSONArrayIO{
		fileIO:    fileIO,
		marshaler: marshaler,
	}
}

// Read returns the records of the array file at path under a shared lock.
// A missing file and malformed content both degrade to an empty slice, not
// an error; only lock exhaustion or an unreadable existing file surface as
// errors so the record store can decide how to degrade.
func (j *JSONArrayIO) Read(ctx context.Context, path string) ([]backoffice.Record, error) {
	if !j.fileIO.Exists(ctx, path) {
		return []backoffice.Record{}, nil
	}

	l, err := lockFile(ctx, path, false)
	if err != nil {
		return nil, err
	}
	defer l.Unlock()

	return j.readLocked(ctx, path)
}

// Write serializes records and atomically replaces the file at path under
// an exclusive lock. The data is fsynced before the rename, so a successful
// return means the array is durable.
func (j *JSONArrayIO) Write(ctx context.Context, path string, records []backoffice.Record) error {
	if err := j.fileIO.MkdirAll(ctx, filepath.Dir(path), permission); err != nil {
		return err
	}

	l, err := lockFile(ctx, path, true)
	if err != nil {
		return err
	}
	defer l.Unlock()

	return j.writeLocked(ctx, path, records)
}

// MutateFunc transforms the current records of a collection into the state
// to persist. Returning write=false skips the write (nothing changed);
// returning an error aborts the cycle without writing.
type MutateFunc func(records []backoffice.Record) (out []backoffice.Record, write bool, err error)

// Mutate runs one atomic read-modify-write cycle: the exclusive lock is
// acquired once and held across the read, fn, and the replacing write.
// Concurrent mutators of the same file serialize here.
func (j *JSONArrayIO) Mutate(ctx context.Context, path string, fn MutateFunc) error {
	if err := j.fileIO.MkdirAll(ctx, filepath.Dir(path), permission); err != nil {
		return err
	}

	l, err := lockFile(ctx, path, true)
	if err != nil {
		return err
	}
	defer l.Unlock()

	records, err := j.readLocked(ctx, path)
	if err != nil {
		return err
	}
	out, write, err := fn(records)
	if err != nil {
		return err
	}
	if !write {
		return nil
	}
	return j.writeLocked(ctx, path, out)
}

// readLocked parses the array file; the caller holds the lock. Absent and
// malformed content both degrade to empty.
func (j *JSONArrayIO) readLocked(ctx context.Context, path string) ([]backoffice.Record, error) {
	if !j.fileIO.Exists(ctx, path) {
		return []backoffice.Record{}, nil
	}
	ba, err := j.fileIO.ReadFile(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []backoffice.Record{}, nil
		}
		return nil, backoffice.Error{Code: backoffice.FileIOError, Err: err, UserData: path}
	}

	var records []backoffice.Record
	if err := j.marshaler.Unmarshal(ba, &records); err != nil {
		// Liveness over strictness: corrupt content reads as empty. The
		// daily snapshot taken before the next write is the recovery path.
		log.Warn("malformed JSON array, treating as empty", "path", path, "error", err.Error())
		return []backoffice.Record{}, nil
	}
	if records == nil {
		records = []backoffice.Record{}
	}
	return records, nil
}

// writeLocked replaces the file contents via temp file, fsync and rename;
// the caller holds the exclusive lock. Writers serialize on that lock, so
// the fixed temp sidecar name cannot collide.
func (j *JSONArrayIO) writeLocked(ctx context.Context, path string, records []backoffice.Record) error {
	ba, err := j.marshaler.Marshal(records)
	if err != nil {
		return backoffice.Error{Code: backoffice.FileIOError, Err: err, UserData: path}
	}

	tmpName := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	cleanup := func(cause error) error {
		j.fileIO.Remove(ctx, tmpName)
		return backoffice.Error{Code: backoffice.FileIOError, Err: cause, UserData: path}
	}

	if err := j.fileIO.WriteFile(ctx, tmpName, ba, 0o644); err != nil {
		return cleanup(err)
	}
	if err := syncFile(tmpName); err != nil {
		return cleanup(err)
	}
	if err := j.fileIO.Rename(ctx, tmpName, path); err != nil {
		return cleanup(err)
	}
	return nil
}

// syncFile flushes the file's data to stable storage before the rename
// publishes it.
func syncFile(name string) error {
	f, err := os.OpenFile(name, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
