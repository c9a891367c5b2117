// Package spill runs the background durability pipeline: a bounded
// queue of pending tier migrations and a fixed pool of workers that
// drain it by invoking the payload manager's ExecuteSpill.
//
// Grounded on original_source/internal/spill/{spill_scheduler,
// spill_worker,spill_task}.{hpp,cpp}. The reference SpillScheduler is a
// std::queue guarded by a mutex/condition_variable; a buffered Go
// channel is the idiomatic equivalent of that blocking queue, and a
// fixed set of goroutines reading from it plays the role of the
// reference's std::thread-per-worker SpillWorker.
package spill

import (
	"context"
	"log"
	"sync"

	"github.com/orneryd/payloadmgr/internal/payload"
)

// Task is a scheduled durability request: make id durable on
// TargetTier. Mirrors SpillTask.
type Task struct {
	ID            payload.ID
	TargetTier    payload.Tier
	Fsync         bool
	WaitForLeases bool
}

// Executor is the subset of *manager.Manager a worker needs. Declared
// here (rather than imported from internal/manager) so this package has
// no dependency on the manager's full surface — only the one operation
// spill actually drives.
type Executor interface {
	ExecuteSpill(ctx context.Context, id payload.ID, target payload.Tier, fsync, waitForLeases bool) (*payload.Descriptor, error)
}

// Scheduler is the bounded task queue spill workers drain. Enqueue
// never blocks the caller once the channel has capacity; a full queue
// applies backpressure to whoever is scheduling spills (the tiering
// controller), matching the reference's intent that producers should
// not be allowed to run unbounded ahead of workers.
type Scheduler struct {
	tasks chan Task
}

// NewScheduler constructs a Scheduler with the given queue depth.
func NewScheduler(depth int) *Scheduler {
	if depth <= 0 {
		depth = 1
	}
	return &Scheduler{tasks: make(chan Task, depth)}
}

// Enqueue submits a task. Blocks if the queue is full.
func (s *Scheduler) Enqueue(task Task) {
	s.tasks <- task
}

// TryEnqueue submits a task without blocking, reporting false if the
// queue was full.
func (s *Scheduler) TryEnqueue(task Task) bool {
	select {
	case s.tasks <- task:
		return true
	default:
		return false
	}
}

// Tasks exposes the underlying channel for callers that want to drain
// it directly rather than through a Pool (used by tests and by
// alternate consumers that need custom dispatch logic).
func (s *Scheduler) Tasks() <-chan Task { return s.tasks }

// Shutdown closes the task channel. Workers drain whatever remains
// queued, then exit — mirroring SpillScheduler::Shutdown's
// drain-then-stop semantics (Dequeue returns remaining items until the
// queue is empty, only then reports nullopt).
func (s *Scheduler) Shutdown() {
	close(s.tasks)
}

// Pool is a fixed set of workers draining a Scheduler, each invoking
// Executor.ExecuteSpill. A task whose execution fails is logged and
// dropped — it does not stop the pool, matching SpillWorker::Run's
// catch-log-continue loop.
type Pool struct {
	scheduler *Scheduler
	executor  Executor
	logger    *log.Logger

	wg sync.WaitGroup
}

// NewPool constructs a worker pool of size workers over scheduler,
// invoking executor for each dequeued task.
func NewPool(scheduler *Scheduler, executor Executor, logger *log.Logger, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	p := &Pool{scheduler: scheduler, executor: executor, logger: logger}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	ctx := context.Background()
	for task := range p.scheduler.tasks {
		if _, err := p.executor.ExecuteSpill(ctx, task.ID, task.TargetTier, task.Fsync, task.WaitForLeases); err != nil {
			p.logger.Printf("spill-worker: spill failed for %s -> %s: %v", task.ID, task.TargetTier, err)
		}
	}
}

// Wait blocks until every worker has drained the (now-closed) queue and
// exited. Call after Scheduler.Shutdown.
func (p *Pool) Wait() {
	p.wg.Wait()
}
