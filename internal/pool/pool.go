// Package pool implements the priority job pool (component A): a
// fixed set of worker goroutines, each statically configured with the
// ordered list of priority classes it pulls from, giving a coarse
// priority/QoS model without starving the top class entirely (§4.A).
//
// Grounded on the teacher's internal/worker.Pool (a single-queue bounded
// goroutine pool with Start/Stop-once semantics and a shutdown timeout),
// generalized from one FIFO channel to five FIFO queues guarded by one
// mutex/condvar, and from a bare sync.WaitGroup to an errgroup.Group that
// supervises the worker goroutines the way the teacher's pool supervises
// its fixed worker count.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/netframe/coreengine/internal/metrics"
	"github.com/netframe/coreengine/internal/observability"
)

type worker struct {
	id      int
	classes []Priority

	titleMu sync.Mutex
	title   string
}

func (w *worker) setTitle(title string) {
	w.titleMu.Lock()
	w.title = title
	w.titleMu.Unlock()
}

func (w *worker) getTitle() string {
	w.titleMu.Lock()
	defer w.titleMu.Unlock()
	return w.title
}

// Pool owns N worker goroutines pulling from five priority FIFO queues.
type Pool struct {
	logger observability.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queues  map[Priority][]Job
	workers map[int]*worker
	nextID  int

	locked   atomic.Bool
	stopped  atomic.Bool
	draining atomic.Bool
	started  atomic.Bool

	eg         *errgroup.Group
	cancel     context.CancelFunc
	shutdownTO time.Duration
}

// NewPool creates an empty, unstarted pool. Workers are attached with
// AddWorker before Start.
func NewPool(logger observability.Logger, shutdownTimeout time.Duration) *Pool {
	if logger == nil {
		logger = observability.NewStdLogger()
	}
	p := &Pool{
		logger:     logger,
		queues:     make(map[Priority][]Job),
		workers:    make(map[int]*worker),
		shutdownTO: shutdownTimeout,
	}
	p.cond = sync.NewCond(&p.mu)
	for _, pr := range AllPriorities {
		p.queues[pr] = nil
	}
	return p
}

// AddWorker registers a worker that will pull, in order, from classes.
// Must be called before Start. Returns the worker's id (for
// RemoveWorkers/ThreadTitle).
func (p *Pool) AddWorker(classes ...Priority) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.workers[id] = &worker{id: id, classes: append([]Priority(nil), classes...)}
	return id
}

// Start transitions every registered worker to running. Idempotent.
func (p *Pool) Start() (bool, error) {
	if !p.started.CompareAndSwap(false, true) {
		return true, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	eg, _ := errgroup.WithContext(ctx)
	p.eg = eg

	p.mu.Lock()
	ids := make([]int, 0, len(p.workers))
	for id := range p.workers {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		w := p.workers[id]
		eg.Go(func() error {
			p.runWorker(w)
			return nil
		})
	}
	p.logger.Info("pool: started %d workers", len(ids))
	return true, nil
}

// Push appends job to the queue for job.Priority and wakes any worker
// waiting on that class. Fails if the pool is stopped or locked.
func (p *Pool) Push(job Job) (bool, error) {
	if p.stopped.Load() {
		return false, fmt.Errorf("pool: stopped")
	}
	if p.locked.Load() {
		return false, fmt.Errorf("pool: locked")
	}
	p.mu.Lock()
	p.queues[job.Priority] = append(p.queues[job.Priority], job)
	depth := len(p.queues[job.Priority])
	p.mu.Unlock()
	metrics.QueueDepthGauge.WithLabelValues(job.Priority.String()).Set(float64(depth))
	p.cond.Broadcast()
	return true, nil
}

// Lock toggles whether Push accepts new work; used during controlled
// teardown to stop intake while workers drain.
func (p *Pool) Lock(locked bool) {
	p.locked.Store(locked)
}

// Stop halts the pool. With drain=true, workers finish everything already
// queued before exiting; otherwise queues are discarded immediately and
// workers only finish their current job. Idempotent; blocks up to
// shutdownTimeout waiting for workers, same bounded-wait as the teacher's
// Pool.Stop.
func (p *Pool) Stop(drain bool) {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	if drain {
		p.draining.Store(true)
	} else {
		p.mu.Lock()
		for pr := range p.queues {
			p.queues[pr] = nil
		}
		p.mu.Unlock()
	}
	p.cond.Broadcast()

	if p.cancel == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.eg.Wait()
	}()

	timeout := p.shutdownTO
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-done:
		p.logger.Info("pool: stopped, all workers finished")
	case <-time.After(timeout):
		p.logger.Warn("pool: stop timed out after %v, workers may still be running", timeout)
	}
	p.cancel()
}

// RemoveWorkers detaches and terminates every worker whose primary
// (first-configured) class matches priority.
func (p *Pool) RemoveWorkers(priority Priority) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, w := range p.workers {
		if len(w.classes) > 0 && w.classes[0] == priority {
			delete(p.workers, id)
		}
	}
	p.cond.Broadcast()
}

// ThreadTitle renames a worker for observability only; it has no effect on
// scheduling.
func (p *Pool) ThreadTitle(workerID int, title string) {
	p.mu.Lock()
	w := p.workers[workerID]
	p.mu.Unlock()
	if w != nil {
		w.setTitle(title)
	}
}

// QueueDepth returns the current queue length for a priority class.
func (p *Pool) QueueDepth(priority Priority) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queues[priority])
}

func (p *Pool) popLocked(w *worker) (Job, Priority, bool) {
	for _, pr := range w.classes {
		q := p.queues[pr]
		if len(q) > 0 {
			job := q[0]
			p.queues[pr] = q[1:]
			return job, pr, true
		}
	}
	return Job{}, 0, false
}

func (p *Pool) emptyLocked(w *worker) bool {
	for _, pr := range w.classes {
		if len(p.queues[pr]) > 0 {
			return false
		}
	}
	return true
}

// isAlive reports whether worker id is still registered (not removed by
// RemoveWorkers while it was parked).
func (p *Pool) isAlive(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.workers[id]
	return ok
}

func (p *Pool) runWorker(w *worker) {
	for {
		p.mu.Lock()
		for {
			if job, pr, ok := p.popLocked(w); ok {
				p.mu.Unlock()
				p.execute(w, pr, job)
				goto next
			}
			if p.stopped.Load() {
				if !p.draining.Load() || p.emptyLocked(w) {
					p.mu.Unlock()
					return
				}
			}
			if _, alive := p.workers[w.id]; !alive {
				p.mu.Unlock()
				return
			}
			p.cond.Wait()
		}
	next:
		if !p.isAlive(w.id) {
			return
		}
	}
}

func (p *Pool) execute(w *worker, pr Priority, job Job) {
	metrics.ActiveWorkersGauge.WithLabelValues(pr.String()).Inc()
	defer metrics.ActiveWorkersGauge.WithLabelValues(pr.String()).Dec()

	p.mu.Lock()
	depth := len(p.queues[pr])
	p.mu.Unlock()
	metrics.QueueDepthGauge.WithLabelValues(pr.String()).Set(float64(depth))

	ok, err := safeRun(job.Work)
	if err != nil {
		metrics.JobsFailedCounter.WithLabelValues(pr.String()).Inc()
		p.logger.Error("pool: worker %d (%s) job failed: %v", w.id, w.getTitle(), err)
		return
	}
	if ok {
		metrics.JobsProcessedCounter.WithLabelValues(pr.String()).Inc()
	} else {
		metrics.JobsFailedCounter.WithLabelValues(pr.String()).Inc()
	}
}

// safeRun executes a job's work function, converting a panic into an error
// so that a single misbehaving job can never take down a worker goroutine
// (§4.A: "a worker never dies on user-job failure").
func safeRun(work func() (bool, error)) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	return work()
}
