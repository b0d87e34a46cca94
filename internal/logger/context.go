package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds crash-scoped logging context that follows one crash
// through the handler or one client connection through the manager.
type LogContext struct {
	Session   uint16    // handler<->manager session token, (pid|timestamp)&0xFFFF
	ProcName  string    // crashing process name
	Pid       int64     // crashing process pid
	CrashID   string    // fingerprint once computed
	VectorID  string    // vector fingerprint once computed
	Peer      string    // "handler" or "epilog"
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a freshly accepted connection.
func NewLogContext(peer string) *LogContext {
	return &LogContext{
		Peer:      peer,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithSession returns a copy with the session token set
func (lc *LogContext) WithSession(session uint16) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Session = session
	}
	return clone
}

// WithCrash returns a copy with procname/pid attached
func (lc *LogContext) WithCrash(procName string, pid int64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ProcName = procName
		clone.Pid = pid
	}
	return clone
}

// WithFingerprint returns a copy with crash/vector IDs attached
func (lc *LogContext) WithFingerprint(crashID, vectorID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.CrashID = crashID
		clone.VectorID = vectorID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
