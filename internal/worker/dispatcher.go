package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"medoai/internal/logger"
)

var (
	// ErrDispatcherBusy is returned when the pending job limit is reached.
	ErrDispatcherBusy = errors.New("dispatcher busy")
	ErrJobCancelled   = errors.New("job cancelled")
	ErrStopped        = errors.New("dispatcher stopped")
)

type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher hands jobs to a bounded worker pool, round-robin across users so
// one busy user cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher
	log      *logger.Logger

	limit   int64
	pending atomic.Int64

	mu        sync.Mutex
	queues    map[string]*userQueue // job queue for each user
	ready     *list.List            // LRU queue storing user IDs
	positions map[string]*list.Element

	quit     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
}

func NewDispatcher(cfg DispatcherConfig, log *logger.Logger) *Dispatcher {
	if cfg.MinWorkers < 0 {
		cfg.MinWorkers = 0
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if log == nil {
		log = logger.Nop()
	}
	pool := newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout)

	d := &Dispatcher{
		queues:    make(map[string]*userQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		pool:      pool,
		JobQueue:  make(chan Job, cfg.QueueSize),
		log:       log.With("service", "worker.Dispatcher"),
		limit:     int64(cfg.QueueSize),
		quit:      make(chan struct{}),
	}

	// Warm up workers
	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Do queues fn for userID and waits for it to finish. It fails fast with
// ErrDispatcherBusy when too many jobs are pending.
func (d *Dispatcher) Do(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	if d.pending.Add(1) > d.limit {
		d.pending.Add(-1)
		return ErrDispatcherBusy
	}
	job := Job{UserID: userID, Ctx: ctx, Run: fn, done: make(chan error, 1)}
	select {
	case d.JobQueue <- job:
	default:
		d.pending.Add(-1)
		return ErrDispatcherBusy
	}

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		// the worker sees the cancelled context and returns without running
		return ctx.Err()
	}
}

// Stop ends the dispatch loop and shuts the workers down. Jobs still queued
// finish with ErrStopped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.quit)
		d.pool.close()

		d.mu.Lock()
		for userID, q := range d.queues {
			for _, job := range q.jobs {
				job.finish(ErrStopped)
			}
			delete(d.queues, userID)
		}
		d.ready.Init()
		clear(d.positions)
		d.mu.Unlock()
		for {
			select {
			case job := <-d.JobQueue:
				job.finish(ErrStopped)
			default:
				return
			}
		}
	})
}

func (d *Dispatcher) run() {
	for {
		// pull every waiting job first so the LRU sees all users
		d.drain()
		// dispatch one job of user in the front of LRU queue
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue: // force congestion
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		select {
		case <-d.quit:
			return
		default:
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		default:
			return
		}
	}
}

// CancelUser drops the user's queued jobs. Running jobs are not interrupted.
func (d *Dispatcher) CancelUser(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if q, ok := d.queues[userID]; ok {
		for _, job := range q.jobs {
			d.pending.Add(-1)
			job.finish(ErrJobCancelled)
		}
	}
	delete(d.queues, userID)
	if elem, ok := d.positions[userID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, userID)
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	userID := job.UserID

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[userID]
	if q == nil {
		q = &userQueue{}
		d.queues[userID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		// user already enqueue, skip
		return
	}
	// new user, enqueue
	q.enqueued = true
	elem := d.ready.PushBack(userID)
	d.positions[userID] = elem
}

// dispatchOne get first user in LRU and dispatch its job
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	userID := elem.Value.(string)
	q := d.queues[userID]
	// get job from the first user
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		// user only have one job, it'll be handled, user needs to quit queue
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, userID)
		delete(d.queues, userID)
	} else {
		// get to the back of queue
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	d.pending.Add(-1)
	if workerChan == nil {
		job.finish(ErrStopped)
		return true
	}
	d.debugLog("assign job", "user", userID, "worker", d.pool.workerID(workerChan))
	workerChan <- job
	return true
}

// Stats reports pool size for health output.
func (d *Dispatcher) Stats() (running, idle int, pending int64) {
	running, idle = d.pool.size()
	return running, idle, d.pending.Load()
}
