package manager

import (
	"github.com/opencrash/crashmgr/internal/logger"
	"github.com/opencrash/crashmgr/pkg/eventloop"
	"github.com/opencrash/crashmgr/pkg/journal"
	"github.com/opencrash/crashmgr/pkg/transfer"
)

// transferMetrics is the subset of pkg/metrics.Metrics TransferSource
// reports through.
type transferMetrics interface {
	ObserveTransfer(err error)
}

// TransferSource bridges the journal's COMPLETE events to the
// background transfer.Worker: it enqueues newly completed archives and,
// once a shipment finishes, marks the journal row transferred. Every
// journal touch happens here, on the loop thread; the worker goroutine
// itself never sees the journal.
type TransferSource struct {
	worker  *transfer.Worker
	journal *journal.Journal
	metrics transferMetrics

	outbox <-chan transfer.Task

	pendingTask       *transfer.Task
	pendingCompletion *transfer.Completion
}

// NewTransferSource wires worker to journal via outbox, the channel
// HandlerClient sessions post newly completed archives onto. metrics
// may be nil.
func NewTransferSource(worker *transfer.Worker, j *journal.Journal, outbox <-chan transfer.Task, metrics transferMetrics) *TransferSource {
	return &TransferSource{worker: worker, journal: j, outbox: outbox, metrics: metrics}
}

func (t *TransferSource) Name() string { return "transfer" }

// Prepare drains whichever of the worker's completion channel or the
// handler-client outbox has something ready, without mutating anything
// beyond this source's own pending slots.
func (t *TransferSource) Prepare() {
	if t.pendingCompletion == nil {
		select {
		case c := <-t.worker.Completions():
			t.pendingCompletion = &c
		default:
		}
	}
	if t.pendingTask == nil && t.worker.Ready() {
		select {
		case task := <-t.outbox:
			t.pendingTask = &task
		default:
		}
	}
}

func (t *TransferSource) ShouldFire() bool {
	return t.pendingCompletion != nil || t.pendingTask != nil
}

func (t *TransferSource) Dispatch() (eventloop.Action, error) {
	if t.pendingCompletion != nil {
		c := t.pendingCompletion
		t.pendingCompletion = nil
		return eventloop.Continue, t.finishCompletion(*c)
	}

	task := *t.pendingTask
	t.pendingTask = nil
	if !t.worker.Enqueue(task) {
		logger.Warn("manager: transfer worker queue full, archive will ship on next startup sweep", logger.Path(task.Path))
	}
	return eventloop.Continue, nil
}

func (t *TransferSource) finishCompletion(c transfer.Completion) error {
	if t.metrics != nil {
		t.metrics.ObserveTransfer(c.Err)
	}

	if c.Err != nil {
		logger.Warn("manager: archive transfer failed, will retry at next startup sweep", logger.Path(c.Task.Path), logger.Err(c.Err))
		return nil
	}

	if err := t.journal.SetTransfer(c.Task.Path, true); err != nil {
		return err
	}
	logger.Info("manager: archive transferred", logger.Path(c.Task.Path))
	return nil
}

var _ eventloop.Source = (*TransferSource)(nil)
