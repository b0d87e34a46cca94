// Package journal is the durable, single-table embedded store of crash
// records: a GORM model over glebarez/sqlite, with the query surface the
// manager's event loop needs (insert, flag mutation, quota aggregates,
// eviction-victim selection) and a companion table for epilog telemetry.
package journal

import "time"

// CrashRecord is one row of the journal: a crash the handler reported
// COMPLETE or FAILED for. Rows are never deleted; Removed records archive
// eviction in place.
type CrashRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement:false"`
	ProcName    string `gorm:"index"`
	CrashID     string
	VectorID    string `gorm:"index"`
	ContextID   string
	FilePath    string `gorm:"uniqueIndex"`
	PID         int64
	Signal      int64
	Timestamp   uint64 `gorm:"index"`
	OSVersion   string
	Transferred bool `gorm:"index"`
	Removed     bool `gorm:"index"`
	CreatedAt   time.Time
}

func (CrashRecord) TableName() string { return "crash_records" }

// EpilogRecord is a backtrace blob keyed by the reporting process's pid,
// appended whenever an epilog client finishes its report.
type EpilogRecord struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	PID       int64  `gorm:"index"`
	Signal    int64
	Backtrace []byte
	CreatedAt time.Time
}

func (EpilogRecord) TableName() string { return "epilog_records" }
