package manager

import (
	"fmt"
	"net"

	"github.com/opencrash/crashmgr/internal/logger"
	"github.com/opencrash/crashmgr/pkg/eventloop"
	"github.com/opencrash/crashmgr/pkg/handler"
	"github.com/opencrash/crashmgr/pkg/journal"
	"github.com/opencrash/crashmgr/pkg/transfer"
	"github.com/opencrash/crashmgr/pkg/wire"
)

// HandlerListener accepts connections on the handler<->manager IPC
// socket and registers a HandlerClient source for each. The accept call
// itself runs on a background goroutine since it blocks; only the
// resulting conns cross back to the loop thread.
type HandlerListener struct {
	ln   *net.UnixListener
	loop *eventloop.Loop

	journal         *journal.Journal
	crashdumpDir    string
	managerNS       string
	transferOutbox  chan<- transfer.Task

	pending chan net.Conn
	closed  chan struct{}
}

// NewHandlerListener wraps an already-bound *net.UnixListener.
func NewHandlerListener(ln *net.UnixListener, loop *eventloop.Loop, j *journal.Journal, crashdumpDir, managerNS string, outbox chan<- transfer.Task) *HandlerListener {
	l := &HandlerListener{
		ln:             ln,
		loop:           loop,
		journal:        j,
		crashdumpDir:   crashdumpDir,
		managerNS:      managerNS,
		transferOutbox: outbox,
		pending:        make(chan net.Conn, 8),
		closed:         make(chan struct{}),
	}
	go l.acceptLoop()
	return l
}

func (l *HandlerListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			close(l.closed)
			return
		}
		l.pending <- conn
		l.loop.Wake()
	}
}

func (l *HandlerListener) Name() string { return "handler-listener" }
func (l *HandlerListener) Prepare()     {}

func (l *HandlerListener) ShouldFire() bool {
	return len(l.pending) > 0
}

func (l *HandlerListener) Dispatch() (eventloop.Action, error) {
	select {
	case conn := <-l.pending:
		client := newHandlerClient(conn, l.loop, l.journal, l.crashdumpDir, l.managerNS, l.transferOutbox)
		l.loop.Add(client)
	default:
	}
	return eventloop.Continue, nil
}

var _ eventloop.Source = (*HandlerListener)(nil)

// clientState tracks a HandlerClient's progress through the NEW ->
// [UPDATE] -> COMPLETE|FAILED message sequence the handler always
// follows (UPDATE only ever precedes COMPLETE; FAILED always arrives
// straight after NEW since it reports a capture that never reached a
// parsed fingerprint).
type clientState int

const (
	csNewExpected clientState = iota
	csAfterNew
	csAfterUpdate
	csClosed
)

// HandlerClient is one accepted handler session: a background goroutine
// performs the blocking wire.Read loop and hands parsed messages back
// to the loop thread, which alone calls into the journal.
type HandlerClient struct {
	conn    net.Conn
	loop    *eventloop.Loop
	journal *journal.Journal

	crashdumpDir string
	managerNS    string
	outbox       chan<- transfer.Task

	msgs   chan *wire.Message
	closed chan struct{}

	state     clientState
	initData  wire.NewPayload
	osVersion string
	fp        wire.UpdatePayload
}

func newHandlerClient(conn net.Conn, loop *eventloop.Loop, j *journal.Journal, crashdumpDir, managerNS string, outbox chan<- transfer.Task) *HandlerClient {
	c := &HandlerClient{
		conn:         conn,
		loop:         loop,
		journal:      j,
		crashdumpDir: crashdumpDir,
		managerNS:    managerNS,
		outbox:       outbox,
		msgs:         make(chan *wire.Message, 4),
		closed:       make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *HandlerClient) readLoop() {
	for {
		msg, err := wire.Read(c.conn)
		if err != nil {
			close(c.closed)
			return
		}
		c.msgs <- msg
		c.loop.Wake()
	}
}

func (c *HandlerClient) Name() string {
	return fmt.Sprintf("handler-client[%s]", c.conn.RemoteAddr())
}

func (c *HandlerClient) Prepare() {}

func (c *HandlerClient) ShouldFire() bool {
	select {
	case <-c.closed:
		return true
	default:
	}
	return len(c.msgs) > 0
}

func (c *HandlerClient) Dispatch() (eventloop.Action, error) {
	select {
	case msg := <-c.msgs:
		return c.handleMessage(msg)
	default:
	}

	// closed fired with nothing left queued: the handler hung up.
	c.conn.Close()
	return eventloop.Remove, nil
}

func (c *HandlerClient) handleMessage(msg *wire.Message) (eventloop.Action, error) {
	switch msg.Header.Type {
	case wire.TypeNew:
		if c.state != csNewExpected {
			return c.abort(fmt.Errorf("manager: NEW out of order from session %d", msg.Header.Session))
		}
		payload, err := wire.DecodeNewPayload(msg.Data)
		if err != nil {
			return c.abort(fmt.Errorf("manager: decoding NEW: %w", err))
		}
		c.initData = payload
		c.osVersion = msg.Header.VersionString()
		c.state = csAfterNew
		return eventloop.Continue, nil

	case wire.TypeUpdate:
		if c.state != csAfterNew {
			return c.abort(fmt.Errorf("manager: UPDATE out of order from session %d", msg.Header.Session))
		}
		payload, err := wire.DecodeUpdatePayload(msg.Data)
		if err != nil {
			return c.abort(fmt.Errorf("manager: decoding UPDATE: %w", err))
		}
		c.fp = payload
		c.state = csAfterUpdate
		return eventloop.Continue, nil

	case wire.TypeComplete:
		if c.state != csAfterUpdate {
			return c.abort(fmt.Errorf("manager: COMPLETE out of order from session %d", msg.Header.Session))
		}
		payload, err := wire.DecodeCompletePayload(msg.Data)
		if err != nil {
			return c.abort(fmt.Errorf("manager: decoding COMPLETE: %w", err))
		}
		return c.finishComplete(payload.CoreFile)

	case wire.TypeFailed:
		if c.state != csAfterNew {
			return c.abort(fmt.Errorf("manager: FAILED out of order from session %d", msg.Header.Session))
		}
		return c.finishFailed()

	default:
		return c.abort(fmt.Errorf("manager: unknown message type %d from session %d", msg.Header.Type, msg.Header.Session))
	}
}

func (c *HandlerClient) finishComplete(path string) (eventloop.Action, error) {
	id, err := c.journal.AddCrash(c.initData.ProcName, c.fp.CrashID, c.fp.VectorID, c.fp.ContextID, path,
		c.initData.PID, c.initData.Sig, c.initData.Tstamp, c.osVersion)
	if err != nil {
		c.conn.Close()
		return eventloop.Remove, fmt.Errorf("manager: recording completed crash: %w", err)
	}

	logger.Info("manager: crash captured", logger.Path(path), logger.ProcName(c.initData.ProcName),
		logger.Pid(c.initData.PID), "crash_id", c.fp.CrashID, "container", containerName(c.fp.ContextID, c.managerNS))

	if c.outbox != nil {
		select {
		case c.outbox <- transfer.Task{Path: path, Handle: id}:
		default:
			logger.Warn("manager: transfer outbox full, archive will ship on next startup sweep", logger.Path(path))
		}
	}

	c.state = csClosed
	c.conn.Close()
	return eventloop.Remove, nil
}

func (c *HandlerClient) finishFailed() (eventloop.Action, error) {
	path := handler.ArchivePath(c.crashdumpDir, c.initData.ProcName, c.initData.PID, c.initData.Tstamp)
	_, err := c.journal.AddCrash(c.initData.ProcName, "", "", "", path,
		c.initData.PID, c.initData.Sig, c.initData.Tstamp, c.osVersion)
	if err != nil {
		c.conn.Close()
		return eventloop.Remove, fmt.Errorf("manager: recording failed crash: %w", err)
	}

	logger.Warn("manager: crash capture failed", logger.Path(path), logger.ProcName(c.initData.ProcName), logger.Pid(c.initData.PID))
	c.state = csClosed
	c.conn.Close()
	return eventloop.Remove, nil
}

func (c *HandlerClient) abort(err error) (eventloop.Action, error) {
	c.conn.Close()
	c.state = csClosed
	return eventloop.Remove, err
}

var _ eventloop.Source = (*HandlerClient)(nil)
