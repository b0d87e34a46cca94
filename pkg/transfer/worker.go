// Package transfer implements the manager's single-slot background
// archive shipper: the reference design's abstract "ship file F; on
// completion fire callback cb(handle, F)" contract, with exactly one
// Ship call in flight at a time so exports complete in enqueue order.
//
// The worker goroutine never touches the journal. It posts a Completion
// to a channel the event loop drains on its own thread — see
// pkg/manager's transfer source — matching the shared-resource rule that
// the journal handle is never shared across threads.
package transfer

import (
	"context"
	"sync/atomic"

	"github.com/opencrash/crashmgr/internal/logger"
)

// Task is one queued export: the archive path plus an opaque handle the
// enqueuer uses to correlate the eventual completion back to its own
// bookkeeping. The manager passes the journal row id as Handle.
type Task struct {
	Path   string
	Handle uint64
}

// Completion is posted once a task's Ship call returns, successful or
// not.
type Completion struct {
	Task Task
	Err  error
}

// Shipper exports one archive to an external sink.
type Shipper interface {
	Ship(ctx context.Context, path string) error
}

// Worker is the single-slot background transfer worker.
type Worker struct {
	shipper     Shipper
	queue       chan Task
	completions chan Completion
	busy        atomic.Bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewWorker constructs a Worker shipping through shipper. queueSize
// bounds how many tasks can be handed off before Enqueue starts
// rejecting; it does not allow more than one to be in flight, only more
// than one to be queued ahead of the worker noticing.
func NewWorker(shipper Shipper, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Worker{
		shipper:     shipper,
		queue:       make(chan Task, queueSize),
		completions: make(chan Completion, queueSize),
		done:        make(chan struct{}),
	}
}

// Start launches the single worker goroutine. Stop must be called
// before the worker is discarded.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-w.queue:
			w.busy.Store(true)
			err := w.shipper.Ship(ctx, task.Path)
			if err != nil {
				logger.Warn("transfer: shipping archive failed", logger.Path(task.Path), logger.Err(err))
			}
			w.busy.Store(false)
			select {
			case w.completions <- Completion{Task: task, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Stop cancels the worker goroutine and waits for it to exit. Any task
// mid-Ship is abandoned; per the manager's shutdown contract, in-flight
// transfers are dropped, not awaited.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

// Ready reports whether the worker has a free slot.
func (w *Worker) Ready() bool {
	return !w.busy.Load()
}

// Enqueue hands a task to the worker's intake buffer. Callers should
// check Ready first; Enqueue itself only fails if the intake buffer (not
// the single in-flight slot) is also full.
func (w *Worker) Enqueue(task Task) bool {
	select {
	case w.queue <- task:
		return true
	default:
		return false
	}
}

// Completions is drained by the event loop, on its own thread, to learn
// of finished shipments.
func (w *Worker) Completions() <-chan Completion {
	return w.completions
}
