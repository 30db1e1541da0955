package dlock

import (
	"context"
	"time"

	"github.com/gofrs/flock"

	"github.com/rockowitz/ddcutil-sub002/ddcerr"
)

// FileLock is the optional cross-process exclusion layer: an advisory
// whole-file lock on the bus device path, built on github.com/gofrs/flock
// (attested across the retrieval pack's majorcontext-moat, gravwell, k3s,
// gvisor and aistore/syncthing manifests).
type FileLock struct {
	fl *flock.Flock
}

// NewFileLock opens (lazily, on first Acquire) an independent file handle
// on path for advisory locking. Using a separate handle from the bus I/O
// fd is correct: flock(2) exclusion is per open-file-description, not per
// path, but every process locking the same path still contends for the
// same kernel lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{fl: flock.New(path)}
}

// Acquire loops: try non-blocking, and on would-block sleep pollInterval
// and retry until maxWait elapses. It returns
// ddcerr.Flocked if the budget is exhausted.
func (f *FileLock) Acquire(busno int, pollInterval, maxWait time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), maxWait)
	defer cancel()
	ok, err := f.fl.TryLockContext(ctx, pollInterval)
	if err != nil {
		return ddcerr.Wrap("flock.acquire", busno, ddcerr.Flocked, err)
	}
	if !ok {
		return ddcerr.New("flock.acquire", ddcerr.Flocked)
	}
	return nil
}

// Release is unconditional and ignores errors: close
// failures on the lock fd must never surface as a close/stop failure.
func (f *FileLock) Release() {
	_ = f.fl.Unlock()
}
