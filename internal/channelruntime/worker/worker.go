// Package worker runs jobs serially per key with a global concurrency cap.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrStopped = errors.New("worker: pool stopped")

const (
	defaultIdle  = 5 * time.Minute
	defaultDrain = 10 * time.Second
)

type Options[J any] struct {
	// MaxConcurrency caps jobs running at once across all keys.
	MaxConcurrency int
	// Idle is how long a key's worker waits for a job before exiting.
	Idle time.Duration
	// Drain bounds how long an in-flight job keeps running after the pool
	// context is canceled.
	Drain  time.Duration
	Handle func(context.Context, J)
}

// Pool keeps one goroutine per active key. Jobs for the same key run in
// enqueue order; jobs for different keys run concurrently up to
// MaxConcurrency. Per-key queues are unbounded so Enqueue never waits on a
// slow key. When the pool context ends, in-flight jobs finish (bounded by
// Drain) and queued jobs are dropped.
type Pool[K comparable, J any] struct {
	ctx    context.Context
	sem    chan struct{}
	handle func(context.Context, J)
	idle   time.Duration
	drain  time.Duration

	mu      sync.Mutex
	workers map[K]*keyWorker[J]
	wg      sync.WaitGroup
}

type keyWorker[J any] struct {
	jobs   []J
	signal chan struct{}
}

func NewPool[K comparable, J any](ctx context.Context, opts Options[J]) *Pool[K, J] {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.Idle <= 0 {
		opts.Idle = defaultIdle
	}
	if opts.Drain <= 0 {
		opts.Drain = defaultDrain
	}
	return &Pool[K, J]{
		ctx:     ctx,
		sem:     make(chan struct{}, opts.MaxConcurrency),
		handle:  opts.Handle,
		idle:    opts.Idle,
		drain:   opts.Drain,
		workers: map[K]*keyWorker[J]{},
	}
}

// Enqueue appends job to key's queue, starting a worker if needed. It does
// not block.
func (p *Pool[K, J]) Enqueue(ctx context.Context, key K, job J) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	p.mu.Lock()
	if p.ctx.Err() != nil {
		p.mu.Unlock()
		return ErrStopped
	}
	w, ok := p.workers[key]
	if !ok {
		w = &keyWorker[J]{signal: make(chan struct{}, 1)}
		p.workers[key] = w
		p.wg.Add(1)
		go p.loop(key, w)
	}
	w.jobs = append(w.jobs, job)
	p.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
	return nil
}

// Wait blocks until every worker has exited. Call it after canceling the
// pool context.
func (p *Pool[K, J]) Wait() { p.wg.Wait() }

// Active reports how many keys currently have a worker.
func (p *Pool[K, J]) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

func (p *Pool[K, J]) loop(key K, w *keyWorker[J]) {
	defer p.wg.Done()
	defer p.remove(key, w)

	idle := time.NewTimer(p.idle)
	defer idle.Stop()
	for {
		if p.ctx.Err() != nil {
			return
		}
		if job, ok := p.next(w); ok {
			select {
			case p.sem <- struct{}{}:
			case <-p.ctx.Done():
				return
			}
			if p.ctx.Err() != nil {
				<-p.sem
				return
			}
			p.run(job)
			<-p.sem
			idle.Reset(p.idle)
			continue
		}
		select {
		case <-p.ctx.Done():
			return
		case <-w.signal:
		case <-idle.C:
			p.mu.Lock()
			if len(w.jobs) == 0 {
				delete(p.workers, key)
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
			idle.Reset(p.idle)
		}
	}
}

// next pops the oldest queued job for w.
func (p *Pool[K, J]) next(w *keyWorker[J]) (J, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero J
	if len(w.jobs) == 0 {
		return zero, false
	}
	job := w.jobs[0]
	w.jobs[0] = zero
	w.jobs = w.jobs[1:]
	if len(w.jobs) == 0 {
		w.jobs = nil
	}
	return job, true
}

func (p *Pool[K, J]) remove(key K, w *keyWorker[J]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workers[key] == w {
		delete(p.workers, key)
	}
}

// run gives the job a context that outlives pool cancellation by at most
// the drain period.
func (p *Pool[K, J]) run(job J) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(p.ctx))
	defer cancel()
	stop := context.AfterFunc(p.ctx, func() {
		t := time.NewTimer(p.drain)
		defer t.Stop()
		select {
		case <-t.C:
			cancel()
		case <-ctx.Done():
		}
	})
	defer stop()
	p.handle(ctx, job)
}
