// Package handler implements the crash handler: the short-lived,
// single-threaded process the kernel's core_pattern invokes once per
// crash, with the core image arriving on stdin. It streams the core
// straight into a gzip archive while parsing just enough of it to
// derive a fingerprint, notifies the manager at three points in its
// lifecycle, and sweeps configured auxiliary files into the archive
// alongside the core.
//
// Unlike the manager, the handler has no event loop: every operation is
// synchronous blocking I/O, paced by the kernel feeding the core pipe
// and by the manager's own accept/read cadence — there is nothing here
// for a reactor to multiplex.
package handler

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/opencrash/crashmgr/internal/logger"
	"github.com/opencrash/crashmgr/pkg/archive"
	"github.com/opencrash/crashmgr/pkg/config"
	"github.com/opencrash/crashmgr/pkg/elfcore"
	"github.com/opencrash/crashmgr/pkg/fingerprint"
)

// State is one step of the handler's lifecycle, logged at each
// transition for postmortem debugging; it is not used for control flow
// (the orchestration in Run is linear), only observability.
type State int

const (
	StateInit State = iota
	StateArgsOK
	StateMgrNotifiedNew
	StateArchiveOpen
	StatePrestreamWritten
	StateCoreStreamed
	StateMgrNotifiedUpdate
	StatePoststreamWritten
	StateArchiveClosed
	StateMgrNotifiedComplete
	StateMgrNotifiedFailed
	StateExitOK
	StateExitFail
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateArgsOK:
		return "ARGS_OK"
	case StateMgrNotifiedNew:
		return "MGR_NOTIFIED_NEW"
	case StateArchiveOpen:
		return "ARCHIVE_OPEN"
	case StatePrestreamWritten:
		return "PRESTREAM_WRITTEN"
	case StateCoreStreamed:
		return "CORE_STREAMED"
	case StateMgrNotifiedUpdate:
		return "MGR_NOTIFIED_UPDATE"
	case StatePoststreamWritten:
		return "POSTSTREAM_WRITTEN"
	case StateArchiveClosed:
		return "ARCHIVE_CLOSED"
	case StateMgrNotifiedComplete:
		return "MGR_NOTIFIED_COMPLETE"
	case StateMgrNotifiedFailed:
		return "MGR_NOTIFIED_FAILED"
	case StateExitOK:
		return "EXIT_OK"
	case StateExitFail:
		return "EXIT_FAIL"
	default:
		return "UNKNOWN"
	}
}

// Args is the handler's CLI invocation contract:
// handler <timestamp> <pid> <container_pid> <signal> <procname>
type Args struct {
	Timestamp    uint64
	PID          int64
	ContainerPID int64
	Signal       int64
	ProcName     string
}

// info accumulates everything known about the crash as the handler's
// state machine advances, feeding both the manager messages and the
// archive's embedded records.
type info struct {
	Args
	ThreadName string

	ContextID string
	OnHost    bool

	CrashID   string
	VectorID  string

	CoredumpSize uint64
}

// Handler runs one crash-capture session end to end.
type Handler struct {
	cfg   *config.Config
	state State
	info  info
}

// New constructs a Handler for one invocation.
func New(cfg *config.Config, args Args) *Handler {
	return &Handler{cfg: cfg, state: StateInit, info: info{Args: args, ThreadName: readProcComm(args.PID)}}
}

func (h *Handler) setState(s State) {
	h.state = s
	logger.Debug("handler: state transition", "state", s.String())
}

// ArchivePath builds the deterministic archive name spec.md §6 defines:
// {CrashdumpDir}/{procname}.{pid}.{timestamp}.cdh.tar.gz
func ArchivePath(dir, procName string, pid int64, timestamp uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%d.%d.cdh.tar.gz", procName, pid, timestamp))
}

// sessionToken derives the 16-bit handler<->manager session id: the
// composite (pid | timestamp) truncated to its low 16 bits.
func sessionToken(pid int64, timestamp uint64) uint16 {
	return uint16((uint64(pid) | timestamp) & 0xffff)
}

// selectArch picks the ELF core register layout for the running
// architecture. Any GOARCH other than amd64 and arm64 gets an error here at
// run time; the package itself still builds for it.
func selectArch() (elfcore.Arch, error) {
	switch runtime.GOARCH {
	case "amd64":
		return elfcore.ArchX86_64, nil
	case "arm64":
		return elfcore.ArchAArch64, nil
	default:
		return 0, fmt.Errorf("handler: unsupported architecture %s", runtime.GOARCH)
	}
}

// Run drives the full capture session: manager NEW, archive open,
// pre-stream record, core parse/stream, manager UPDATE, post-stream
// record, archive close, manager COMPLETE/FAILED. A non-nil return means
// the caller (cmd/cdh) should exit 1; nil means exit 0.
func Run(ctx context.Context, cfg *config.Config, args Args, core io.Reader) error {
	h := New(cfg, args)
	h.setState(StateArgsOK)

	session := sessionToken(args.PID, args.Timestamp)
	mgr := dialManager(cfg.Common.SocketPath(), cfg.Common.SocketTimeout())
	defer mgr.close()

	mgr.send(newMessage(session, h.info))
	h.setState(StateMgrNotifiedNew)

	archivePath := ArchivePath(cfg.Common.CrashdumpDirectory, args.ProcName, args.PID, args.Timestamp)
	ar, err := archive.Open(archivePath)
	if err != nil {
		logger.Error("handler: cannot open archive", logger.Path(archivePath), logger.Err(err))
		mgr.send(failedMessage(session))
		h.setState(StateMgrNotifiedFailed)
		return fmt.Errorf("handler: %w", err)
	}
	defer ar.Close()
	ar.StreamOpenReader(core)
	h.setState(StateArchiveOpen)

	contextID, onHost, ctxErr := deriveContextID(args.ContainerPID)
	if ctxErr != nil {
		logger.Warn("handler: deriving context id failed", logger.Err(ctxErr))
	}
	h.info.ContextID = contextID
	h.info.OnHost = onHost

	h.sweepCrashContexts(ar, false)
	h.setState(StatePrestreamWritten)

	arch, err := selectArch()
	if err != nil {
		logger.Error("handler: unsupported architecture", logger.Err(err))
		return h.finishFailed(ar, mgr, session)
	}

	result, parseErr := streamCore(ar, arch)
	h.setState(StateCoreStreamed)
	h.info.CoredumpSize = ar.InOffset()

	if parseErr != nil {
		logger.Warn("handler: core parse failed, archive preserved raw", logger.Err(parseErr))
		return h.finishFailed(ar, mgr, session)
	}

	fp := fingerprint.Derive(fingerprint.Input{
		ProcName:      args.ProcName,
		IP:            result.Registers.IP,
		IPOffsetKnown: result.IPOffsetKnown,
		IPOffset:      result.IPOffset,
		IPModule:      result.IPModule,
		RAKnown:       result.RAKnown,
		RAOffsetKnown: result.RAOffsetKnown,
		RAOffset:      result.RAOffset,
		RAModule:      result.RAModule,
	})
	h.info.CrashID = fp.CrashID
	h.info.VectorID = fp.VectorID

	mgr.send(updateMessage(session, h.info))
	h.setState(StateMgrNotifiedUpdate)

	if err := h.writePostStreamRecord(ar); err != nil {
		// Preserved quirk (spec.md §9 open questions): COMPLETE is still
		// reported below even though the post-stream write failed here.
		logger.Warn("handler: writing post-stream record failed", logger.Err(err))
	}
	h.sweepCrashContexts(ar, true)
	h.setState(StatePoststreamWritten)

	closeErr := ar.Close()
	h.setState(StateArchiveClosed)

	mgr.send(completeMessage(session, archivePath))
	h.setState(StateMgrNotifiedComplete)

	if closeErr != nil {
		h.setState(StateExitFail)
		return fmt.Errorf("handler: closing archive: %w", closeErr)
	}
	h.setState(StateExitOK)
	return nil
}

// finishFailed finalizes whatever the archive captured so far and
// reports FAILED, per the error-handling design: a parse failure still
// leaves a readable archive behind with transferred=false.
func (h *Handler) finishFailed(ar *archive.Archive, mgr *managerConn, session uint16) error {
	_ = ar.ReadAll()
	_ = ar.Close()
	h.setState(StateArchiveClosed)
	mgr.send(failedMessage(session))
	h.setState(StateMgrNotifiedFailed)
	h.setState(StateExitFail)
	return fmt.Errorf("handler: crash not fully captured")
}

func streamCore(ar *archive.Archive, arch elfcore.Arch) (elfcore.Result, error) {
	res, err := elfcore.Parse(ar, arch)
	if err != nil {
		return res, err
	}
	if err := ar.ReadAll(); err != nil {
		return res, err
	}
	return res, nil
}

func readProcComm(pid int64) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return ""
	}
	s := string(data)
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
