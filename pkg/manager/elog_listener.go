package manager

import (
	"fmt"
	"net"

	"github.com/opencrash/crashmgr/internal/logger"
	"github.com/opencrash/crashmgr/pkg/epilog"
	"github.com/opencrash/crashmgr/pkg/eventloop"
)

// ELogListener accepts connections on the crash-epilog socket. Unlike
// the handler protocol, an epilog session is exactly one read: the
// background goroutine performs it in full and hands back a parsed
// Record (or nothing, on error), so there is no per-message state
// machine to track.
type ELogListener struct {
	ln   *net.UnixListener
	loop *eventloop.Loop
	sink epilog.Sink

	pending chan net.Conn
}

func NewELogListener(ln *net.UnixListener, loop *eventloop.Loop, sink epilog.Sink) *ELogListener {
	l := &ELogListener{ln: ln, loop: loop, sink: sink, pending: make(chan net.Conn, 8)}
	go l.acceptLoop()
	return l
}

func (l *ELogListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return
		}
		l.pending <- conn
		l.loop.Wake()
	}
}

func (l *ELogListener) Name() string { return "elog-listener" }
func (l *ELogListener) Prepare()     {}

func (l *ELogListener) ShouldFire() bool { return len(l.pending) > 0 }

func (l *ELogListener) Dispatch() (eventloop.Action, error) {
	select {
	case conn := <-l.pending:
		l.loop.Add(newELogClient(conn, l.loop, l.sink))
	default:
	}
	return eventloop.Continue, nil
}

var _ eventloop.Source = (*ELogListener)(nil)

// ELogClient reads exactly one epilog record on a background goroutine
// and hands it to the loop thread, which alone calls Sink.AppendEpilog.
type ELogClient struct {
	conn net.Conn
	loop *eventloop.Loop
	sink epilog.Sink

	result chan epilogResult
}

type epilogResult struct {
	rec epilog.Record
	err error
}

func newELogClient(conn net.Conn, loop *eventloop.Loop, sink epilog.Sink) *ELogClient {
	c := &ELogClient{conn: conn, loop: loop, sink: sink, result: make(chan epilogResult, 1)}
	go c.read()
	return c
}

func (c *ELogClient) read() {
	rec, err := epilog.ReadRecord(c.conn)
	c.result <- epilogResult{rec: rec, err: err}
	c.loop.Wake()
}

func (c *ELogClient) Name() string {
	return fmt.Sprintf("elog-client[%s]", c.conn.RemoteAddr())
}

func (c *ELogClient) Prepare() {}

func (c *ELogClient) ShouldFire() bool {
	return len(c.result) > 0
}

func (c *ELogClient) Dispatch() (eventloop.Action, error) {
	c.conn.Close()

	res := <-c.result
	if res.err != nil {
		return eventloop.Remove, nil
	}
	if err := c.sink.AppendEpilog(res.rec); err != nil {
		return eventloop.Remove, fmt.Errorf("manager: recording epilog: %w", err)
	}
	logger.Debug("manager: epilog recorded", logger.Pid(res.rec.PID), logger.Signal(res.rec.Signal), logger.Bytes(uint64(len(res.rec.Body))))
	return eventloop.Remove, nil
}

var _ eventloop.Source = (*ELogClient)(nil)
