//go:build windows

package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// withLockFile treats the lock file's existence as the lock and removes it
// on release.
func withLockFile(ctx context.Context, l SnapshotLock, fn func() error) error {
	for {
		file, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, defaultFilePerm)
		if err == nil {
			defer func() {
				_ = file.Close()
				_ = os.Remove(l.path)
			}()
			l.recordOwner(file)
			return fn()
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: open %s: %v", ErrLockUnavailable, l.path, err)
		}
		if waitErr := l.waitRetry(ctx); waitErr != nil {
			return waitErr
		}
	}
}
