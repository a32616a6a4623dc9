// Package snapshot persists whole collections as a single value that is
// overwritten on every mutation.
package snapshot

import (
	"context"
	"errors"
	"time"
)

var (
	ErrLoad = errors.New("snapshot: load failed")
	ErrSave = errors.New("snapshot: save failed")
)

// DefaultLockTimeout bounds how long a Save waits for a writer in another
// process.
const DefaultLockTimeout = 5 * time.Second

type Option func(*options)

type options struct {
	lockTimeout time.Duration
}

// WithLockTimeout sets the cross-process lock wait for Save. Non-positive
// values keep DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{lockTimeout: DefaultLockTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Persister stores one snapshot of T. Save replaces the previous snapshot
// entirely; implementations serialize concurrent Saves to the same target.
type Persister[T any] interface {
	Load(ctx context.Context) (T, bool, error)
	Save(ctx context.Context, v T) error
}

// Memory keeps the snapshot in process. Useful when persistence is not
// wanted and in tests.
type Memory[T any] struct {
	ch    chan struct{}
	value T
	ok    bool
	saves int
	err   error
}

func NewMemory[T any]() *Memory[T] {
	m := &Memory[T]{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}

func (m *Memory[T]) Load(ctx context.Context) (T, bool, error) {
	if err := m.acquire(ctx); err != nil {
		var zero T
		return zero, false, err
	}
	defer m.release()
	return m.value, m.ok, nil
}

func (m *Memory[T]) Save(ctx context.Context, v T) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	if m.err != nil {
		return m.err
	}
	m.value = v
	m.ok = true
	m.saves++
	return nil
}

// FailWith makes subsequent Saves return err. Pass nil to clear.
func (m *Memory[T]) FailWith(err error) {
	<-m.ch
	m.err = err
	m.ch <- struct{}{}
}

// Saves reports how many Saves succeeded.
func (m *Memory[T]) Saves() int {
	<-m.ch
	defer func() { m.ch <- struct{}{} }()
	return m.saves
}

func (m *Memory[T]) acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-m.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory[T]) release() { m.ch <- struct{}{} }
