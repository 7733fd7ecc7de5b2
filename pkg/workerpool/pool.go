package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/log"
	"github.com/aerosuite/platform/pkg/metrics"
)

// Job is a pure function over its input; it must not touch shared mutable
// state. It observes cancellation through ctx at its next safe point.
type Job func(ctx context.Context) (any, error)

// Handle is the completion handle returned by Submit.
type Handle struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu     sync.Mutex
	result any
	err    error
}

// Wait blocks until the job finishes or ctx is cancelled.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, h.err
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.KindCancelled, ctx.Err(), "wait cancelled")
	}
}

// Cancel signals the running job to stop at its next safe point.
func (h *Handle) Cancel() {
	h.cancel()
}

func (h *Handle) complete(result any, err error) {
	h.mu.Lock()
	h.result = result
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

type task struct {
	job    Job
	ctx    context.Context
	handle *Handle
}

// SubmitOptions controls a single submission.
type SubmitOptions struct {
	// Timeout bounds the job's execution; zero means no deadline.
	Timeout time.Duration
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers    int
	QueueDepth int
	Submitted  uint64
	Completed  uint64
	Failed     uint64
	Rejected   uint64
	Cancelled  uint64
	Restarts   uint64
}

// Pool is a bounded pool for CPU-bound jobs (hashing, PDF rendering, drift
// calculation). A single shared queue feeds the workers; when the queue is
// full, Submit rejects immediately rather than blocking the caller.
type Pool struct {
	queue chan *task

	mu      sync.Mutex
	slots   []chan struct{} // per-worker stop channels
	stopped bool
	wg      sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
	cancelled atomic.Uint64
	restarts  atomic.Uint64
}

// DefaultSize returns the default worker count: cpuCount-1, minimum 1.
func DefaultSize() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// NewPool creates a pool with the given worker count and queue capacity.
// size <= 0 selects the default; queueCap <= 0 selects 4x the size.
func NewPool(size, queueCap int) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	if queueCap <= 0 {
		queueCap = size * 4
	}
	return &Pool{
		queue: make(chan *task, queueCap),
		slots: make([]chan struct{}, 0, size),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.slots) < cap(p.slots) {
		p.addWorkerLocked()
	}
}

func (p *Pool) addWorkerLocked() {
	stop := make(chan struct{})
	p.slots = append(p.slots, stop)
	id := len(p.slots) - 1
	p.wg.Add(1)
	go p.worker(id, stop)
}

// Resize adjusts the number of workers. Shrinking signals excess workers
// to exit after their current job.
func (p *Pool) Resize(size int) {
	if size < 1 {
		size = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	for len(p.slots) < size {
		stop := make(chan struct{})
		p.slots = append(p.slots, stop)
		id := len(p.slots) - 1
		p.wg.Add(1)
		go p.worker(id, stop)
	}
	for len(p.slots) > size {
		last := p.slots[len(p.slots)-1]
		close(last)
		p.slots = p.slots[:len(p.slots)-1]
	}
	log.WithComponent("workerpool").Info().Int("size", size).Msg("pool resized")
}

// Submit enqueues a job. When the queue is full the submission is
// rejected with queueFull.
func (p *Pool) Submit(job Job, opts SubmitOptions) (*Handle, error) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	h := &Handle{done: make(chan struct{}), cancel: cancel}
	t := &task{job: job, ctx: ctx, handle: h}

	select {
	case p.queue <- t:
		p.submitted.Add(1)
		metrics.PoolQueueDepth.Set(float64(len(p.queue)))
		return h, nil
	default:
		cancel()
		p.rejected.Add(1)
		metrics.PoolJobsTotal.WithLabelValues("rejected").Inc()
		return nil, apperr.New(apperr.KindQueueFull, "worker pool queue full")
	}
}

// Stop drains the pool: no new work is accepted and Stop returns when all
// in-flight jobs finish or ctx expires.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	for _, stop := range p.slots {
		close(stop)
	}
	p.slots = nil
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return apperr.Wrap(apperr.KindTimeout, ctx.Err(), "pool drain timed out")
	}
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	workers := len(p.slots)
	p.mu.Unlock()
	return Stats{
		Workers:    workers,
		QueueDepth: len(p.queue),
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Rejected:   p.rejected.Load(),
		Cancelled:  p.cancelled.Load(),
		Restarts:   p.restarts.Load(),
	}
}

func (p *Pool) worker(id int, stop chan struct{}) {
	defer p.wg.Done()
	logger := log.WithWorkerID(fmt.Sprintf("pool-%d", id))

	backoff := time.Second
	for {
		select {
		case <-stop:
			return
		case t := <-p.queue:
			metrics.PoolQueueDepth.Set(float64(len(p.queue)))
			if p.runTask(t) {
				backoff = time.Second
				continue
			}
			// The job panicked; restart this worker slot after a backoff
			p.restarts.Add(1)
			metrics.PoolWorkerRestarts.Inc()
			logger.Warn().Dur("backoff", backoff).Msg("worker crashed, restarting")
			select {
			case <-stop:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}
}

// runTask executes one job, converting panics into failures. It returns
// false when the job panicked.
func (p *Pool) runTask(t *task) (ok bool) {
	defer t.handle.cancel()

	if err := t.ctx.Err(); err != nil {
		p.cancelled.Add(1)
		metrics.PoolJobsTotal.WithLabelValues("cancelled").Inc()
		t.handle.complete(nil, apperr.Wrap(apperr.KindCancelled, err, "job cancelled before start"))
		return true
	}

	ok = true
	func() {
		defer func() {
			if r := recover(); r != nil {
				ok = false
				p.failed.Add(1)
				metrics.PoolJobsTotal.WithLabelValues("panicked").Inc()
				t.handle.complete(nil, apperr.New(apperr.KindInternal, "job panicked: %v", r))
			}
		}()
		result, err := t.job(t.ctx)
		switch {
		case err == nil:
			p.completed.Add(1)
			metrics.PoolJobsTotal.WithLabelValues("completed").Inc()
		case t.ctx.Err() != nil:
			p.cancelled.Add(1)
			metrics.PoolJobsTotal.WithLabelValues("cancelled").Inc()
			err = apperr.Wrap(apperr.KindCancelled, err, "job cancelled")
		default:
			p.failed.Add(1)
			metrics.PoolJobsTotal.WithLabelValues("failed").Inc()
		}
		t.handle.complete(result, err)
	}()
	return ok
}
