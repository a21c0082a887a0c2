// Package fs implements the locked file I/O layer of the storage core:
// retry-wrapped filesystem primitives, advisory file locking with bounded
// backoff, and atomic whole-file JSON array read/write.
package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	retry "github.com/sethvargo/go-retry"

	"github.com/emar-delivery/backoffice"
)

// FileIO defines the filesystem operations used by the storage core. The
// default implementation delegates to the standard library's os package with
// retry semantics for transient errors.
type FileIO interface {
	WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error
	ReadFile(ctx context.Context, name string) ([]byte, error)
	Remove(ctx context.Context, name string) error
	Rename(ctx context.Context, oldName, newName string) error
	Exists(ctx context.Context, path string) bool
	// Copy duplicates source into dest, creating dest's directory if needed.
	Copy(ctx context.Context, source, dest string) error

	// Directory API.
	RemoveAll(ctx context.Context, path string) error
	MkdirAll(ctx context.Context, path string, perm os.FileMode) error
	ReadDir(ctx context.Context, sourceDir string) ([]os.DirEntry, error)
}

// Directory/File permission.
const permission os.FileMode = 0o755

type defaultFileIO struct {
}

// NewFileIO returns a FileIO that performs I/O via the os package with basic
// retry handling for transient errors.
func NewFileIO() FileIO {
	return &defaultFileIO{}
}

func (dio defaultFileIO) WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(name, data, perm); err != nil {
		dirPath := filepath.Dir(name)
		if derr := dio.MkdirAll(ctx, dirPath, permission); derr == nil {
			return backoffice.Retry(ctx, func(context.Context) error {
				err := os.WriteFile(name, data, perm)
				if backoffice.ShouldRetry(err) {
					return retry.RetryableError(
						backoffice.Error{
							Code: backoffice.FileIOError,
							Err:  err,
						})
				}
				return err
			}, nil)
		}
		return err
	}
	return nil
}

func (dio defaultFileIO) ReadFile(ctx context.Context, name string) ([]byte, error) {
	var ba []byte
	err := backoffice.Retry(ctx, func(context.Context) error {
		var err error
		ba, err = os.ReadFile(name)
		if backoffice.ShouldRetry(err) {
			return retry.RetryableError(
				backoffice.Error{
					Code: backoffice.FileIOError,
					Err:  err,
				})
		}
		return err
	}, nil)
	return ba, err
}

func (dio defaultFileIO) Remove(ctx context.Context, name string) error {
	return backoffice.Retry(ctx, func(context.Context) error {
		err := os.Remove(name)
		if backoffice.ShouldRetry(err) {
			return retry.RetryableError(
				backoffice.Error{
					Code: backoffice.FileIOError,
					Err:  err,
				})
		}
		return err
	}, nil)
}

func (dio defaultFileIO) Rename(ctx context.Context, oldName, newName string) error {
	return backoffice.Retry(ctx, func(context.Context) error {
		err := os.Rename(oldName, newName)
		if backoffice.ShouldRetry(err) {
			return retry.RetryableError(
				backoffice.Error{
					Code: backoffice.FileIOError,
					Err:  err,
				})
		}
		return err
	}, nil)
}

func (dio defaultFileIO) MkdirAll(ctx context.Context, path string, perm os.FileMode) error {
	return backoffice.Retry(ctx, func(context.Context) error {
		err := os.MkdirAll(path, perm)
		if backoffice.ShouldRetry(err) {
			return retry.RetryableError(
				backoffice.Error{
					Code: backoffice.FileIOError,
					Err:  err,
				})
		}
		return err
	}, nil)
}

func (dio defaultFileIO) RemoveAll(ctx context.Context, path string) error {
	return backoffice.Retry(ctx, func(context.Context) error {
		err := os.RemoveAll(path)
		if backoffice.ShouldRetry(err) {
			return retry.RetryableError(
				backoffice.Error{
					Code: backoffice.FileIOError,
					Err:  err,
				})
		}
		return err
	}, nil)
}

func (dio defaultFileIO) Exists(ctx context.Context, path string) bool {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return true
	}
	return false
}

func (dio defaultFileIO) ReadDir(ctx context.Context, sourceDir string) ([]os.DirEntry, error) {
	var r []os.DirEntry
	err := backoffice.Retry(ctx, func(context.Context) error {
		var err error
		r, err = os.ReadDir(sourceDir)
		if backoffice.ShouldRetry(err) {
			return retry.RetryableError(backoffice.Error{
				Code: backoffice.FileIOError,
				Err:  err,
			})
		}
		return err
	}, nil)
	return r, err
}

func (dio defaultFileIO) Copy(ctx context.Context, source, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return backoffice.Error{Code: backoffice.FileIOError, Err: err, UserData: source}
	}
	defer in.Close()

	if err := dio.MkdirAll(ctx, filepath.Dir(dest), permission); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return backoffice.Error{Code: backoffice.FileIOError, Err: err, UserData: dest}
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return backoffice.Error{Code: backoffice.FileIOError, Err: err, UserData: dest}
	}
	return out.Close()
}
