// Package workpool runs non-time-critical tasks, such as configuration
// writes that may block on the bus, off the control cycle.
package workpool

import (
	"context"
	"sync"

	"codeberg.org/mutker/swervectl/internal/errors"
	"codeberg.org/mutker/swervectl/internal/logger"
	"codeberg.org/mutker/swervectl/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers = 4
	DefaultQueue   = 16
)

const ErrPoolClosed = errors.ErrorCode("workpool_closed")

// Task is a fire-and-forget unit of work.
type Task func()

// Submitter accepts tasks without blocking.
type Submitter interface {
	Submit(name string, task Task) bool
}

type namedTask struct {
	name string
	run  Task
}

// Pool runs tasks on a fixed number of workers fed from a bounded queue.
type Pool struct {
	tasks  chan namedTask
	group  errgroup.Group
	log    logger.Logger
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New starts a pool with the given worker count and queue depth.
func New(workers, queue int, log logger.Logger) *Pool {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if queue < 0 {
		queue = DefaultQueue
	}

	p := &Pool{
		tasks: make(chan namedTask, queue),
		log:   log,
		done:  make(chan struct{}),
	}
	p.group.SetLimit(workers)

	go p.dispatch()

	return p
}

// Submit queues task and returns immediately. It returns false, and counts
// a dropped task, when the queue is full or the pool is closed.
func (p *Pool) Submit(name string, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.log.Warn().Str("task", name).Msg("Task submitted to closed pool")
		metrics.RecordDroppedTask()
		return false
	}

	select {
	case p.tasks <- namedTask{name: name, run: task}:
		return true
	default:
		p.log.Warn().Str("task", name).Msg("Worker queue full, dropping task")
		metrics.RecordDroppedTask()
		return false
	}
}

// dispatch hands queued tasks to the errgroup, which blocks once every
// worker is busy.
func (p *Pool) dispatch() {
	defer close(p.done)

	for t := range p.tasks {
		t := t
		p.group.Go(func() error {
			p.run(t)
			return nil
		})
	}
	_ = p.group.Wait()
}

func (p *Pool) run(t namedTask) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("task", t.name).Interface("panic", r).Msg("Task panicked")
		}
	}()

	t.run()
}

// Close stops accepting tasks and waits for queued and running tasks to
// finish or ctx to expire.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return errors.New().Wrap(errors.ErrTimeout, ctx.Err())
	}
}
