// Package janitor enforces the crashdump directory's disk quota: an
// eventloop.Source that fires whenever the journal's tracked archives
// exceed the configured thresholds and, on each dispatch, evicts exactly
// one victim before yielding back to the loop.
//
// The teacher's closest analogue, pkg/flusher/background.go, runs a
// queue of background upload workers with a graceful-drain shutdown;
// none of that machinery carries over here because eviction itself is
// cheap (stat, unlink, one UPDATE) and belongs directly on the event
// loop thread rather than behind a worker pool — see DESIGN.md.
package janitor

import (
	"errors"
	"fmt"
	"os"

	"github.com/opencrash/crashmgr/internal/logger"
	"github.com/opencrash/crashmgr/pkg/eventloop"
	"github.com/opencrash/crashmgr/pkg/journal"
)

// Config mirrors the [crashmanager] quota keys, already resolved to
// bytes/counts.
type Config struct {
	MaxDirSize   int64 // bytes; 0 disables the size-based triggers
	MinDirSize   int64 // bytes of required headroom
	MaxFileCount int64 // 0 disables the count-based trigger
}

// Metrics is the subset of pkg/metrics.Metrics the janitor reports
// through; kept as an interface so janitor has no import dependency on
// the metrics package's concrete prometheus types.
type Metrics interface {
	SetDataSize(int64)
	SetEntryCount(int64)
	ObserveEviction()
}

// Janitor is the quota-eviction event source. It never removes itself:
// the quota predicate is re-evaluated every turn for the lifetime of the
// manager.
type Janitor struct {
	journal *journal.Journal
	cfg     Config
	metrics Metrics

	fire bool
}

// New constructs a Janitor driven by j and cfg. metrics may be nil.
func New(j *journal.Journal, cfg Config, metrics Metrics) *Janitor {
	return &Janitor{journal: j, cfg: cfg, metrics: metrics}
}

func (jn *Janitor) Name() string { return "janitor" }

// Prepare re-evaluates the quota predicate against the journal's current
// aggregates.
func (jn *Janitor) Prepare() {
	dataSize, err := jn.journal.GetDataSize()
	if err != nil {
		logger.Warn("janitor: get_data_size failed", logger.Err(err))
		jn.fire = false
		return
	}
	entryCount, err := jn.journal.GetEntryCount()
	if err != nil {
		logger.Warn("janitor: get_entry_count failed", logger.Err(err))
		jn.fire = false
		return
	}
	if jn.metrics != nil {
		jn.metrics.SetDataSize(dataSize)
		jn.metrics.SetEntryCount(entryCount)
	}
	jn.fire = jn.overQuota(dataSize, entryCount)
}

// overQuota implements the three-way trigger predicate: strictly over
// the size cap, strictly over the file-count cap, or inside the
// required headroom. The first and third comparisons are deliberately
// asymmetric (">" vs "<") per the testable boundary case: an archive set
// sitting at exactly MaxDirSize does not fire on the size check alone.
func (jn *Janitor) overQuota(dataSize, entryCount int64) bool {
	if jn.cfg.MaxDirSize > 0 && dataSize > jn.cfg.MaxDirSize {
		return true
	}
	if jn.cfg.MaxFileCount > 0 && entryCount > jn.cfg.MaxFileCount {
		return true
	}
	if jn.cfg.MaxDirSize > 0 && jn.cfg.MaxDirSize-dataSize < jn.cfg.MinDirSize {
		return true
	}
	return false
}

func (jn *Janitor) ShouldFire() bool { return jn.fire }

// Dispatch removes exactly one victim: the journal's own choice of
// oldest eviction candidate. The quota is re-checked fresh next turn, so
// a single turn never evicts more than one archive even if the quota
// remains violated afterward.
func (jn *Janitor) Dispatch() (eventloop.Action, error) {
	victim, ok, err := jn.journal.GetVictim()
	if err != nil {
		return eventloop.Continue, fmt.Errorf("janitor: get_victim: %w", err)
	}
	if !ok {
		return eventloop.Continue, nil
	}

	if err := os.Remove(victim.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return eventloop.Continue, fmt.Errorf("janitor: unlinking %s: %w", victim.FilePath, err)
	}
	if err := jn.journal.SetRemoved(victim.FilePath, true); err != nil {
		return eventloop.Continue, fmt.Errorf("janitor: set_removed %s: %w", victim.FilePath, err)
	}
	if jn.metrics != nil {
		jn.metrics.ObserveEviction()
	}
	logger.Info("janitor: evicted archive", logger.Path(victim.FilePath), "journal_id", victim.ID)
	return eventloop.Continue, nil
}

var _ eventloop.Source = (*Janitor)(nil)
