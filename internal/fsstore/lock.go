package fsstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const lockRetryWait = 25 * time.Millisecond

// SnapshotLock serializes writers of one snapshot file across processes.
// While held, the lock file records the holder so a writer that gives up
// can say who it was waiting on.
type SnapshotLock struct {
	target string
	path   string
	wait   time.Duration
}

// LockOwner is the holder record stored in a lock file.
type LockOwner struct {
	Target     string    `json:"target"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func (o LockOwner) String() string {
	return fmt.Sprintf("pid %d on %s since %s", o.PID, o.Hostname, o.AcquiredAt.Format(time.RFC3339))
}

// LockFor returns the lock guarding the snapshot at target. wait bounds how
// long Do waits for another holder; zero leaves only ctx as the bound.
func LockFor(target string, wait time.Duration) (SnapshotLock, error) {
	normalized, err := normalizePath(target)
	if err != nil {
		return SnapshotLock{}, err
	}
	path, err := lockPathFor(normalized)
	if err != nil {
		return SnapshotLock{}, err
	}
	if wait < 0 {
		wait = 0
	}
	return SnapshotLock{target: normalized, path: path, wait: wait}, nil
}

func (l SnapshotLock) Path() string { return l.path }

func (l SnapshotLock) Target() string { return l.target }

// Do runs fn while holding the lock.
func (l SnapshotLock) Do(ctx context.Context, fn func() error) error {
	if l.path == "" {
		return fmt.Errorf("%w: zero SnapshotLock", ErrInvalidPath)
	}
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}
	if err := EnsureDir(filepath.Dir(l.path), defaultDirPerm); err != nil {
		return err
	}
	return withLockFile(ctx, l, fn)
}

// Owner reports the current holder. ok is false when the lock is free or
// the record is unreadable.
func (l SnapshotLock) Owner() (owner LockOwner, ok bool) {
	data, err := os.ReadFile(l.path)
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return LockOwner{}, false
	}
	if err := json.Unmarshal(data, &owner); err != nil {
		return LockOwner{}, false
	}
	return owner, true
}

func (l SnapshotLock) recordOwner(file *os.File) {
	host, _ := os.Hostname()
	data, err := json.Marshal(LockOwner{
		Target:     l.target,
		PID:        os.Getpid(),
		Hostname:   host,
		AcquiredAt: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	_ = file.Truncate(0)
	_, _ = file.Seek(0, 0)
	_, _ = file.Write(append(data, '\n'))
}

func (l SnapshotLock) waitRetry(ctx context.Context) error {
	timer := time.NewTimer(lockRetryWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		if owner, ok := l.Owner(); ok {
			return fmt.Errorf("%w: %s held by %s: %v", ErrLockTimeout, l.target, owner, ctx.Err())
		}
		return fmt.Errorf("%w: %s: %v", ErrLockTimeout, l.target, ctx.Err())
	case <-timer.C:
		return nil
	}
}
