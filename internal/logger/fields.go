package logger

import (
	"log/slog"
)

// Standard field keys for structured logging, shared by the handler, the
// manager, the epilog server and the inspection tool. Use these keys
// consistently so the text/JSON output can be grepped and aggregated the
// same way regardless of which binary emitted the line.
const (
	// Correlation
	KeySession  = "session"   // handler<->manager session token
	KeyProcName = "procname"  // crashing process name
	KeyPid      = "pid"       // crashing process pid
	KeyCPid     = "cpid"      // container pid, if any
	KeySignal   = "signal"    // delivered signal number
	KeyCrashID  = "crash_id"  // 16-hex crash fingerprint
	KeyVectorID = "vector_id" // 16-hex vector fingerprint
	KeyContextID = "context_id"

	// Archive / streaming
	KeyPath      = "path"       // archive or member file path
	KeyOffset    = "offset"     // stream offset
	KeyBytes     = "bytes"      // byte count moved
	KeyArchive   = "archive"    // archive file name

	// Manager protocol
	KeyMsgType  = "msg_type"  // NEW | UPDATE | COMPLETE | FAILED
	KeyPeer     = "peer"      // "handler" or "epilog"
	KeyDataSize = "data_size" // frame payload size

	// Journal / janitor
	KeyJournalID  = "journal_id"
	KeyEntryCount = "entry_count"
	KeyDataSizeMB = "data_size_mb"
	KeyTransferred = "transferred"
	KeyRemoved     = "removed"

	// Generic
	KeyError    = "error"
	KeyDuration = "duration_ms"
	KeyAddr     = "addr"
)

// Session returns a slog.Attr for the handler<->manager session token.
func Session(s uint16) slog.Attr { return slog.Int(KeySession, int(s)) }

// ProcName returns a slog.Attr for the crashing process name.
func ProcName(n string) slog.Attr { return slog.String(KeyProcName, n) }

// Pid returns a slog.Attr for a process id.
func Pid(pid int64) slog.Attr { return slog.Int64(KeyPid, pid) }

// Signal returns a slog.Attr for a signal number.
func Signal(sig int64) slog.Attr { return slog.Int64(KeySignal, sig) }

// CrashID returns a slog.Attr for a crash fingerprint.
func CrashID(id string) slog.Attr { return slog.String(KeyCrashID, id) }

// VectorID returns a slog.Attr for a vector fingerprint.
func VectorID(id string) slog.Attr { return slog.String(KeyVectorID, id) }

// Path returns a slog.Attr for a file path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// Bytes returns a slog.Attr for a byte count.
func Bytes(n uint64) slog.Attr { return slog.Uint64(KeyBytes, n) }

// Err returns a slog.Attr wrapping an error, or a no-op attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
