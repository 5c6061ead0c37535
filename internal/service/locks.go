package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/temirov/reposcope/internal/failure"
)

const (
	lockFileSuffix     = ".lock"
	lockDirectoryMode  = 0o755
	sharedLockInterval = 25 * time.Millisecond

	errorPrepareLocks   = "preparing lock directory"
	errorSharedLock     = "locking repository for reading"
	errorHandleBusy     = "repository %s is in use"
	errorExclusiveLock  = "locking repository for removal"
	errorWaitSharedLock = "waiting for repository lock"
)

// handleLocks hands out advisory file locks keyed by repository handle.
// Readers share a lock; removal needs it exclusively.
type handleLocks struct {
	directory string
}

func newHandleLocks(directory string) (*handleLocks, error) {
	if mkdirError := os.MkdirAll(directory, lockDirectoryMode); mkdirError != nil {
		return nil, failure.New(failure.KindInternal, errorPrepareLocks, mkdirError)
	}
	return &handleLocks{directory: directory}, nil
}

func (locks *handleLocks) path(handle string) string {
	return filepath.Join(locks.directory, handle+lockFileSuffix)
}

// acquireShared blocks until a shared lock is held or ctx ends.
// The returned function releases it.
func (locks *handleLocks) acquireShared(ctx context.Context, handle string) (func(), error) {
	fileLock := flock.New(locks.path(handle))
	locked, lockError := fileLock.TryRLockContext(ctx, sharedLockInterval)
	if lockError != nil {
		if errors.Is(lockError, context.Canceled) || errors.Is(lockError, context.DeadlineExceeded) {
			return nil, failure.New(failure.KindCanceled, errorWaitSharedLock, lockError)
		}
		return nil, failure.New(failure.KindInternal, errorSharedLock, lockError)
	}
	if !locked {
		return nil, failure.Newf(failure.KindHandleBusy, errorHandleBusy, handle)
	}
	return func() { _ = fileLock.Unlock() }, nil
}

// tryExclusive takes the exclusive lock without waiting. A held lock is
// reported as HandleBusy.
func (locks *handleLocks) tryExclusive(handle string) (*flock.Flock, error) {
	fileLock := flock.New(locks.path(handle))
	locked, lockError := fileLock.TryLock()
	if lockError != nil {
		return nil, failure.New(failure.KindInternal, errorExclusiveLock, lockError)
	}
	if !locked {
		return nil, failure.Newf(failure.KindHandleBusy, errorHandleBusy, handle)
	}
	return fileLock, nil
}

// releaseAndForget removes the lock file of a deleted repository and unlocks it.
func (locks *handleLocks) releaseAndForget(fileLock *flock.Flock) {
	_ = os.Remove(fileLock.Path())
	_ = fileLock.Unlock()
}
