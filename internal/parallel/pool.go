// Package parallel provides the process-wide worker pool the join strategies
// schedule their phases on.
//
// A Pool runs a fixed number of workers and offers three ways to spread an
// index range over them:
//   - Static splits [0, n) into exactly one equal contiguous slice per worker
//   - Dynamic hands [0, n) to work-stealing workers that halve ranges on demand
//   - Each runs one task per index with concurrency bounded by the worker count
//
// Static and Dynamic execute on a shared ants goroutine pool that is created
// once and reused by every phase until Close.
package parallel

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/paveg/joinbench/internal/errors"
	"github.com/paveg/joinbench/internal/hashing"
	"golang.org/x/sync/errgroup"
)

// DefaultMinSplit is the smallest range Dynamic splits further.
const DefaultMinSplit = 256

// Config holds the settings for NewPool.
type Config struct {
	Threads  int // worker count, must be a power of two
	MinSplit int // dynamic split floor; DefaultMinSplit when zero
}

// Pool manages a fixed set of workers for static, dynamic and per-item work
type Pool struct {
	threads  int
	minSplit int
	workers  *ants.Pool
	ctx      context.Context
	cancel   context.CancelFunc
	metrics  *PoolMetrics
}

// NewPool creates a pool with cfg.Threads workers. The thread count must be a
// positive power of two.
func NewPool(cfg Config) (*Pool, error) {
	if !hashing.IsPowerOfTwo(cfg.Threads) {
		return nil, errors.NewPreconditionError("NewPool", "threads",
			fmt.Sprintf("must be a power of two, got %d", cfg.Threads))
	}
	if cfg.MinSplit <= 0 {
		cfg.MinSplit = DefaultMinSplit
	}

	workers, err := ants.NewPool(cfg.Threads, ants.WithPreAlloc(true))
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		threads:  cfg.Threads,
		minSplit: cfg.MinSplit,
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
		metrics:  &PoolMetrics{},
	}, nil
}

// Threads returns the worker count.
func (p *Pool) Threads() int {
	return p.threads
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool) Metrics() PoolMetrics {
	return p.metrics.snapshot()
}

// Static runs fn over exactly Threads() equal contiguous slices of [0, n)
// and waits for all of them. n must be a multiple of the thread count.
func (p *Pool) Static(n int, fn func(lo, hi int)) error {
	if n%p.threads != 0 {
		return errors.NewPreconditionError("Static", "",
			fmt.Sprintf("%d items do not divide evenly across %d threads", n, p.threads))
	}
	if n == 0 {
		return nil
	}
	if err := p.ctx.Err(); err != nil {
		return fmt.Errorf("pool closed: %w", err)
	}

	var (
		wg    sync.WaitGroup
		fault panicError
	)
	size := n / p.threads
	for lo := 0; lo < n; lo += size {
		wg.Add(1)
		hi := lo + size
		task := func() {
			defer wg.Done()
			defer fault.recover("Static")
			fn(lo, hi)
		}
		if err := p.workers.Submit(task); err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("submitting static slice: %w", err)
		}
	}
	wg.Wait()
	p.metrics.addTasks(int64(p.threads))
	return fault.err()
}

// Each calls fn once per index in [0, n), running at most Threads() calls
// at a time. It returns the first error; ctx passed to fn is cancelled once
// any call fails.
func (p *Pool) Each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.threads)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return fn(ctx, i)
		})
	}
	err := g.Wait()
	p.metrics.addTasks(int64(n))
	return err
}

// MapIndexed applies worker to every item on the pool and returns the
// results in input order.
func MapIndexed[T, R any](ctx context.Context, p *Pool, items []T, worker func(int, T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	results := make([]R, len(items))
	err := p.Each(ctx, len(items), func(_ context.Context, i int) error {
		r, err := worker(i, items[i])
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Close shuts down the pool. Later Static and Dynamic calls fail.
func (p *Pool) Close() {
	p.cancel()
	p.workers.Release()
}

// panicError records the first panic raised by a task.
type panicError struct {
	once  sync.Once
	cause error
}

func (f *panicError) recover(op string) {
	if r := recover(); r != nil {
		f.once.Do(func() {
			f.cause = errors.NewInternalError(op, fmt.Errorf("task panicked: %v", r))
		})
	}
}

func (f *panicError) err() error {
	return f.cause
}
