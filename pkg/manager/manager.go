// Package manager implements the crash manager daemon: a cooperative
// single-threaded event loop (pkg/eventloop) that owns the journal and
// multiplexes four kinds of work across it — handler sessions, epilog
// sessions, quota eviction and background archive transfer — without
// ever sharing the journal handle across goroutines.
package manager

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/opencrash/crashmgr/internal/logger"
	"github.com/opencrash/crashmgr/pkg/config"
	"github.com/opencrash/crashmgr/pkg/eventloop"
	"github.com/opencrash/crashmgr/pkg/janitor"
	"github.com/opencrash/crashmgr/pkg/journal"
	"github.com/opencrash/crashmgr/pkg/metrics"
	"github.com/opencrash/crashmgr/pkg/transfer"
)

// Manager owns every long-lived resource the daemon holds across its
// lifetime: the journal, the two listening sockets, the event loop and
// the background transfer worker.
type Manager struct {
	cfg     *config.Config
	loop    *eventloop.Loop
	journal *journal.Journal
	metrics *metrics.Metrics

	handlerLn *net.UnixListener
	elogLn    *net.UnixListener
	worker    *transfer.Worker
}

// Shipper is the subset of transfer.Shipper the manager needs; supplied
// by cmd/cdm so Manager itself stays decoupled from any one transport
// (S3 today, potentially others later).
type Shipper = transfer.Shipper

// New opens the journal and binds both listening sockets, but does not
// yet start accepting connections — that begins in Run.
func New(cfg *config.Config, shipper Shipper) (*Manager, error) {
	j, err := journal.Open(cfg.CrashManager.DatabaseFile)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Common.RunDirectory, 0o755); err != nil {
		j.Close()
		return nil, fmt.Errorf("manager: creating run directory: %w", err)
	}

	handlerSocket := cfg.Common.SocketPath()
	handlerLn, err := bindUnix(handlerSocket)
	if err != nil {
		j.Close()
		return nil, err
	}

	elogSocket := handlerSocket + ".elog"
	elogLn, err := bindUnix(elogSocket)
	if err != nil {
		handlerLn.Close()
		j.Close()
		return nil, err
	}

	return &Manager{
		cfg:       cfg,
		loop:      eventloop.New(),
		journal:   j,
		metrics:   metrics.New(),
		handlerLn: handlerLn,
		elogLn:    elogLn,
		worker:    transfer.NewWorker(shipper, 16),
	}, nil
}

func bindUnix(path string) (*net.UnixListener, error) {
	_ = os.Remove(path)
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("manager: resolving socket address %s: %w", path, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("manager: binding socket %s: %w", path, err)
	}
	return ln, nil
}

// Metrics exposes the manager's Prometheus registry, for cmd/cdm to
// serve over HTTP.
func (m *Manager) Metrics() *metrics.Metrics { return m.metrics }

// Run starts the transfer worker, resumes any archives a prior run left
// untransferred, registers every event source and drives the loop until
// ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.worker.Start(ctx)
	defer m.worker.Stop()

	managerNS, err := hostNamespaceID()
	if err != nil {
		logger.Warn("manager: deriving host namespace id failed", logger.Err(err))
	}

	outbox := make(chan transfer.Task, 64)
	m.loop.Add(NewHandlerListener(m.handlerLn, m.loop, m.journal, m.cfg.Common.CrashdumpDirectory, managerNS, outbox))
	m.loop.Add(NewELogListener(m.elogLn, m.loop, m.journal))
	m.loop.Add(NewTransferSource(m.worker, m.journal, outbox, m.metrics))
	m.loop.Add(janitor.New(m.journal, janitor.Config{
		MaxDirSize:   m.cfg.CrashManager.MaxCrashdumpDirSize.Int64(),
		MinDirSize:   m.cfg.CrashManager.MinCrashdumpDirSize.Int64(),
		MaxFileCount: m.cfg.CrashManager.MaxCrashdumpArchives,
	}, m.metrics))

	if err := m.resumeTransfers(outbox); err != nil {
		logger.Warn("manager: resuming untransferred archives failed", logger.Err(err))
	}

	logger.Info("manager: event loop starting",
		logger.Path(m.cfg.Common.SocketPath()), "database", m.cfg.CrashManager.DatabaseFile)
	err = m.loop.Run(ctx)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// resumeTransfers re-enqueues every row the journal still has marked
// untransferred, in case a prior manager process was killed mid-flight.
func (m *Manager) resumeTransfers(outbox chan<- transfer.Task) error {
	rows, err := m.journal.GetUntransferred()
	if err != nil {
		return err
	}
	for _, r := range rows {
		select {
		case outbox <- transfer.Task{Path: r.FilePath, Handle: r.ID}:
		default:
			logger.Warn("manager: startup transfer sweep outbox full", logger.Path(r.FilePath))
		}
	}
	if len(rows) > 0 {
		logger.Info("manager: resuming untransferred archives", "count", len(rows))
	}
	return nil
}

// Close releases the journal and both listening sockets. Call after Run
// returns.
func (m *Manager) Close() error {
	m.handlerLn.Close()
	m.elogLn.Close()
	return m.journal.Close()
}
