package fs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
	retry "github.com/sethvargo/go-retry"

	"github.com/emar-delivery/backoffice"
)

// Lock acquisition retries with exponential backoff, base delay doubling
// each attempt, bounded so a wedged peer process surfaces as a failure
// instead of a hang.
const (
	lockMaxAttempts   = 5
	lockRetryBaseWait = 50 * time.Millisecond
)

// perPathMutexes serializes goroutines of this process per data file.
// flock coordinates between processes; within one process the OS lock is
// held on separate descriptors, so an in-process mutex is both cheaper and
// the correctness guarantee for platforms where flock is a no-op.
var perPathMutexes sync.Map

func pathMutex(path string) *sync.RWMutex {
	m, _ := perPathMutexes.LoadOrStore(path, &sync.RWMutex{})
	return m.(*sync.RWMutex)
}

// fileLock couples the in-process mutex with the OS advisory lock for one
// data file. The advisory lock is taken on a ".lock" sidecar so the data
// file itself can be atomically replaced while locked.
type fileLock struct {
	mu        *sync.RWMutex
	fl        *flock.Flock
	exclusive bool
}

// lockFile acquires the lock for path, shared for reads or exclusive for
// writes, retrying with exponential backoff up to lockMaxAttempts before
// returning a LockAcquisitionFailure.
func lockFile(ctx context.Context, path string, exclusive bool) (*fileLock, error) {
	l := &fileLock{
		mu:        pathMutex(path),
		fl:        flock.New(path + ".lock"),
		exclusive: exclusive,
	}
	if exclusive {
		l.mu.Lock()
	} else {
		l.mu.RLock()
	}

	b := retry.WithMaxRetries(lockMaxAttempts-1, retry.NewExponential(lockRetryBaseWait))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var ok bool
		var err error
		if exclusive {
			ok, err = l.fl.TryLock()
		} else {
			ok, err = l.fl.TryRLock()
		}
		if err != nil {
			// Locking primitive unavailable (e.g. exotic filesystems):
			// the in-process mutex already guards the single-process case.
			return nil
		}
		if !ok {
			return retry.RetryableError(fmt.Errorf("file %s is locked by another process", path))
		}
		return nil
	})
	if err != nil {
		l.unlockMutex()
		return nil, backoffice.Error{
			Code:     backoffice.LockAcquisitionFailure,
			Err:      err,
			UserData: path,
		}
	}
	return l, nil
}

func (l *fileLock) unlockMutex() {
	if l.exclusive {
		l.mu.Unlock()
	} else {
		l.mu.RUnlock()
	}
}

// Unlocker releases a lock obtained through SharedLock.
type Unlocker interface {
	Unlock()
}

// SharedLock acquires the shared advisory lock for path. Used by the backup
// manager so a snapshot copy cannot observe a write in progress.
func SharedLock(ctx context.Context, path string) (Unlocker, error) {
	return lockFile(ctx, path, false)
}

// Unlock releases the advisory lock and the in-process mutex. Safe to call
// exactly once; always called, including on read parse failures.
func (l *fileLock) Unlock() {
	// flock Unlock also closes the sidecar handle. Errors here are not
	// actionable for the caller, the OS drops the lock at close anyway.
	_ = l.fl.Unlock()
	l.unlockMutex()
}
