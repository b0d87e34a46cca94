package epilog

import (
	"errors"
	"io"
	"net"
)

// MaxBodySize bounds the raw backtrace+userdata tail read after the
// framed header: a hard cap, not a buffer hint, so one stalled or
// hostile client cannot exhaust manager memory.
const MaxBodySize = 64 << 10

// Record is what the server hands off for a successfully parsed client:
// the reported pid/signal plus the raw text that followed (the
// "[backtrace]\n"-delimited frames and any optional userdata section).
type Record struct {
	PID    int64
	Signal int64
	Body   []byte
}

// Sink receives completed records for persistence. pkg/journal
// implements this against the embedded database.
type Sink interface {
	AppendEpilog(rec Record) error
}

// HandleConn reads exactly one framed NEW message followed by the raw
// body, then appends the record to sink. A partial or malformed read is
// discarded silently, matching the reference server's per-client
// tolerance: one bad epilog client never disturbs another.
func HandleConn(conn net.Conn, sink Sink) {
	defer conn.Close()

	rec, err := ReadRecord(conn)
	if err != nil {
		return
	}
	_ = sink.AppendEpilog(rec)
}

// ReadRecord performs the blocking read half of HandleConn without
// touching a Sink: the framed NEW message, then the capped body. The
// manager's event loop calls this from a connection's background
// goroutine and posts the result back to the loop thread, which alone is
// permitted to call Sink.AppendEpilog against the journal.
func ReadRecord(conn net.Conn) (Record, error) {
	msg, err := Read(conn)
	if err != nil {
		return Record{}, err
	}

	body, err := readBodyCapped(conn, MaxBodySize)
	if err != nil && !errors.Is(err, io.EOF) {
		return Record{}, err
	}

	return Record{
		PID:    msg.Data.ProcessPID,
		Signal: msg.Data.ProcessExitSignal,
		Body:   body,
	}, nil
}

// readBodyCapped reads from r until EOF or until limit bytes have been
// read, whichever comes first; reaching the cap is not itself an error.
func readBodyCapped(r io.Reader, limit int) ([]byte, error) {
	lr := io.LimitReader(r, int64(limit))
	return io.ReadAll(lr)
}

// Serve accepts connections on l until it returns an error (typically
// because the listener was closed during shutdown), dispatching each to
// its own goroutine so one slow client can't stall the accept loop. This
// is the standalone, blocking entry point; the manager's own event loop
// instead drives accept/read through its reactor sources and only calls
// sink.AppendEpilog from the loop thread — see pkg/eventloop.
func Serve(l net.Listener, sink Sink) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go HandleConn(conn, sink)
	}
}
