package parallel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const (
	idleSpins      = 16
	minIdleBackoff = time.Microsecond
	maxIdleBackoff = 128 * time.Microsecond
)

// Dynamic runs fn over [0, n) on work-stealing workers and waits for the
// whole range. Ranges larger than the split threshold are halved, with the
// right half left on the worker's deque for idle workers to steal. The
// threshold is max(MinSplit, n/(Threads*8)).
func (p *Pool) Dynamic(n int, fn func(lo, hi int)) error {
	grain := max(p.minSplit, n/(p.threads*8))
	return p.DynamicWithGrain(n, grain, fn)
}

// DynamicWithGrain is Dynamic with an explicit split threshold. A grain of 1
// lets every single index become its own stolen task.
func (p *Pool) DynamicWithGrain(n, grain int, fn func(lo, hi int)) error {
	if n <= 0 {
		return nil
	}
	if err := p.ctx.Err(); err != nil {
		return fmt.Errorf("pool closed: %w", err)
	}

	j := newStealingJob(p.threads, max(grain, 1), n, fn)
	j.deques[0].pushLocal(span{lo: 0, hi: n})

	var wg sync.WaitGroup
	for id := 0; id < p.threads; id++ {
		wg.Add(1)
		w := &stealingWorker{id: id, job: j, metrics: p.metrics}
		if err := p.workers.Submit(func() {
			defer wg.Done()
			w.run()
		}); err != nil {
			wg.Done()
			j.abort()
			wg.Wait()
			return fmt.Errorf("submitting dynamic worker: %w", err)
		}
	}
	wg.Wait()
	return j.fault.err()
}

// span is a half-open index range.
type span struct {
	lo, hi int
}

type stealingJob struct {
	fn      func(lo, hi int)
	grain   int
	deques  []*workStealingQueue
	pending atomic.Int64 // indices not yet processed
	done    chan struct{}
	once    sync.Once
	fault   panicError
}

func newStealingJob(threads, grain, n int, fn func(lo, hi int)) *stealingJob {
	j := &stealingJob{
		fn:     fn,
		grain:  grain,
		deques: make([]*workStealingQueue, threads),
		done:   make(chan struct{}),
	}
	for i := range j.deques {
		j.deques[i] = newWorkStealingQueue()
	}
	j.pending.Store(int64(n))
	return j
}

func (j *stealingJob) abort() {
	j.once.Do(func() { close(j.done) })
}

func (j *stealingJob) finished(count int) {
	if j.pending.Add(-int64(count)) == 0 {
		j.abort()
	}
}

type stealingWorker struct {
	id      int
	job     *stealingJob
	metrics *PoolMetrics
}

func (w *stealingWorker) run() {
	local := w.job.deques[w.id]
	var idle idleBackoff
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		s, ok := local.popLocal()
		if !ok {
			s, ok = w.steal()
		}
		if ok {
			idle.reset()
			w.process(local, s)
			continue
		}

		d := idle.next()
		if d == 0 {
			select {
			case <-w.job.done:
				return
			default:
				runtime.Gosched()
			}
			continue
		}
		if timer == nil {
			timer = time.NewTimer(d)
		} else {
			timer.Reset(d)
		}
		select {
		case <-w.job.done:
			return
		case <-timer.C:
		}
	}
}

// idleBackoff paces a worker that found nothing to run or steal. The first
// idleSpins rounds only yield; later rounds sleep for doubling intervals
// capped at maxIdleBackoff.
type idleBackoff struct {
	rounds int
	delay  time.Duration
}

func (b *idleBackoff) reset() {
	*b = idleBackoff{}
}

// next returns the wait before the next steal attempt. Zero means yield.
func (b *idleBackoff) next() time.Duration {
	b.rounds++
	if b.rounds <= idleSpins {
		return 0
	}
	if b.delay == 0 {
		b.delay = minIdleBackoff
	} else {
		b.delay = min(b.delay*2, maxIdleBackoff)
	}
	return b.delay
}

// process splits s down to the grain, leaving right halves on the local
// deque, then runs fn on what remains.
func (w *stealingWorker) process(local *workStealingQueue, s span) {
	for s.hi-s.lo > w.job.grain {
		mid := s.lo + (s.hi-s.lo)/2
		local.pushLocal(span{lo: mid, hi: s.hi})
		s.hi = mid
		atomic.AddInt64(&w.metrics.SplitCount, 1)
	}
	w.call(s)
	atomic.AddInt64(&w.metrics.TotalTasksProcessed, 1)
}

func (w *stealingWorker) call(s span) {
	defer w.job.finished(s.hi - s.lo)
	defer w.job.fault.recover("Dynamic")
	w.job.fn(s.lo, s.hi)
}

func (w *stealingWorker) steal() (span, bool) {
	n := len(w.job.deques)
	for i := 1; i < n; i++ {
		victim := w.job.deques[(w.id+i)%n]
		if s, ok := victim.steal(); ok {
			atomic.AddInt64(&w.metrics.WorkStealingCount, 1)
			return s, true
		}
	}
	return span{}, false
}

// workStealingQueue is a mutex-guarded deque: the owner pushes and pops at
// the tail, thieves take from the head.
type workStealingQueue struct {
	items []span
	mu    sync.Mutex
}

func newWorkStealingQueue() *workStealingQueue {
	return &workStealingQueue{
		items: make([]span, 0, 16),
	}
}

// pushLocal adds a range to the local end of the queue (LIFO for owner)
func (q *workStealingQueue) pushLocal(s span) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, s)
}

// popLocal removes a range from the local end of the queue (LIFO for owner)
func (q *workStealingQueue) popLocal() (span, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return span{}, false
	}
	s := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return s, true
}

// steal removes a range from the remote end of the queue (FIFO for thieves)
func (q *workStealingQueue) steal() (span, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return span{}, false
	}
	// Oldest entries are the largest halves.
	s := q.items[0]
	q.items = q.items[1:]
	return s, true
}

func (q *workStealingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// PoolMetrics counts scheduling events over the pool's lifetime
type PoolMetrics struct {
	TotalTasksProcessed int64
	WorkStealingCount   int64
	SplitCount          int64
}

func (m *PoolMetrics) addTasks(n int64) {
	atomic.AddInt64(&m.TotalTasksProcessed, n)
}

func (m *PoolMetrics) snapshot() PoolMetrics {
	return PoolMetrics{
		TotalTasksProcessed: atomic.LoadInt64(&m.TotalTasksProcessed),
		WorkStealingCount:   atomic.LoadInt64(&m.WorkStealingCount),
		SplitCount:          atomic.LoadInt64(&m.SplitCount),
	}
}
