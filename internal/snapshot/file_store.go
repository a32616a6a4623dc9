package snapshot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quailyquaily/telegramdock/internal/fsstore"
)

// FileStore keeps the snapshot as a JSON file. Writes hold both an
// in-process mutex and a lock file so separate processes sharing the data
// directory cannot interleave overwrites. Waiting on another process's
// lock is bounded by the lock timeout.
type FileStore[T any] struct {
	path     string
	opts     fsstore.FileOptions
	lockWait time.Duration
	mu       sync.Mutex
}

func NewFileStore[T any](path string, opts fsstore.FileOptions, options ...Option) *FileStore[T] {
	o := applyOptions(options)
	return &FileStore[T]{path: strings.TrimSpace(path), opts: opts, lockWait: o.lockTimeout}
}

func (s *FileStore[T]) Path() string { return s.path }

func (s *FileStore[T]) Load(ctx context.Context) (T, bool, error) {
	var out T
	if err := ctxErr(ctx); err != nil {
		return out, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := fsstore.ReadJSON(s.path, &out)
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	return out, ok, nil
}

func (s *FileStore[T]) Save(ctx context.Context, v T) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, err := fsstore.LockFor(s.path, s.lockWait)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	err = lock.Do(ctx, func() error {
		return fsstore.WriteJSONAtomic(s.path, v, s.opts)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	return nil
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
