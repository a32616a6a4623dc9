//go:build !windows

package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// withLockFile holds an flock on the lock file. The file stays on disk;
// its holder record is cleared on release.
func withLockFile(ctx context.Context, l SnapshotLock, fn func() error) error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, defaultFilePerm)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrLockUnavailable, l.path, err)
	}
	defer file.Close()

	fd := int(file.Fd())
	for {
		err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) {
			return fmt.Errorf("%w: flock %s: %v", ErrLockUnavailable, l.path, err)
		}
		if waitErr := l.waitRetry(ctx); waitErr != nil {
			return waitErr
		}
	}
	defer func() {
		_ = file.Truncate(0)
		_ = unix.Flock(fd, unix.LOCK_UN)
	}()

	l.recordOwner(file)
	return fn()
}
