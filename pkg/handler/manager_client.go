package handler

import (
	"net"
	"time"

	"github.com/opencrash/crashmgr/internal/logger"
	"github.com/opencrash/crashmgr/pkg/wire"
	"golang.org/x/sys/unix"
)

// managerConn is the handler's outbound half of the wire protocol: a
// best-effort UNIX socket connection to the manager that degrades to a
// silent no-op when the manager is unreachable, since a handler that
// cannot reach its manager must still finish capturing the crash.
type managerConn struct {
	conn net.Conn
}

func dialManager(socketPath string, timeout time.Duration) *managerConn {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		logger.Warn("handler: manager unreachable, proceeding without notifications",
			logger.Path(socketPath), logger.Err(err))
		return &managerConn{}
	}
	return &managerConn{conn: conn}
}

func (m *managerConn) send(msg *wire.Message) {
	if m == nil || m.conn == nil {
		return
	}
	if err := wire.Write(m.conn, msg); err != nil {
		logger.Warn("handler: writing message to manager failed", "type", msg.Header.Type.String(), logger.Err(err))
	}
}

func (m *managerConn) close() {
	if m == nil || m.conn == nil {
		return
	}
	_ = m.conn.Close()
}

// kernelVersion reports the running kernel's release string, the
// stand-in the NEW message's header version field carries across to the
// manager as the journal's os_version column.
func kernelVersion() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return cstr(uts.Release[:])
}

func cstr(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func newMessage(session uint16, in info) *wire.Message {
	m := wire.New(wire.TypeNew, session, kernelVersion())
	m.SetData(wire.NewPayload{
		PID:        in.PID,
		Sig:        in.Signal,
		Tstamp:     in.Timestamp,
		ThreadName: in.ThreadName,
		ProcName:   in.ProcName,
	}.Encode())
	return m
}

func updateMessage(session uint16, in info) *wire.Message {
	m := wire.New(wire.TypeUpdate, session, kernelVersion())
	m.SetData(wire.UpdatePayload{
		CrashID:   in.CrashID,
		VectorID:  in.VectorID,
		ContextID: in.ContextID,
	}.Encode())
	return m
}

func completeMessage(session uint16, archivePath string) *wire.Message {
	m := wire.New(wire.TypeComplete, session, kernelVersion())
	m.SetData(wire.CompletePayload{CoreFile: archivePath}.Encode())
	return m
}

func failedMessage(session uint16) *wire.Message {
	return wire.New(wire.TypeFailed, session, kernelVersion())
}
