package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/opencrash/crashmgr/pkg/epilog"
	"github.com/opencrash/crashmgr/pkg/fingerprint"
)

// Journal wraps the embedded database file the manager keeps at
// DatabaseFile. It is not safe for concurrent use across goroutines: the
// event loop is the sole owner, per the single-threaded ownership rule.
type Journal struct {
	db *gorm.DB
}

// Open creates the database file (and its parent directory) if absent
// and runs the schema migration.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: creating database directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: opening database: %w", err)
	}

	if err := db.AutoMigrate(&CrashRecord{}, &EpilogRecord{}); err != nil {
		return nil, fmt.Errorf("journal: running migration: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AddCrash inserts a row whose id is jenkins64(path); this is the single
// row-creation path for both COMPLETE (non-empty path) and FAILED
// sessions.
func (j *Journal) AddCrash(procName, crashID, vectorID, contextID, path string, pid, sig int64, ts uint64, osVersion string) (uint64, error) {
	id := fingerprint.Jenkins64String(path)
	rec := CrashRecord{
		ID:        id,
		ProcName:  procName,
		CrashID:   crashID,
		VectorID:  vectorID,
		ContextID: contextID,
		FilePath:  path,
		PID:       pid,
		Signal:    sig,
		Timestamp: ts,
		OSVersion: osVersion,
	}
	if err := j.db.Create(&rec).Error; err != nil {
		return 0, fmt.Errorf("journal: inserting crash record: %w", err)
	}
	return id, nil
}

func (j *Journal) SetTransfer(path string, transferred bool) error {
	res := j.db.Model(&CrashRecord{}).Where("file_path = ?", path).Update("transferred", transferred)
	return wrapUpdate(res, path)
}

func (j *Journal) SetRemoved(path string, removed bool) error {
	res := j.db.Model(&CrashRecord{}).Where("file_path = ?", path).Update("removed", removed)
	return wrapUpdate(res, path)
}

func wrapUpdate(res *gorm.DB, path string) error {
	if res.Error != nil {
		return fmt.Errorf("journal: updating %q: %w", path, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("journal: no row for path %q", path)
	}
	return nil
}

func (j *Journal) GetEntryCount() (int64, error) {
	var count int64
	if err := j.db.Model(&CrashRecord{}).Where("removed = ?", false).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// GetDataSize sums the on-disk byte size of every non-removed archive.
// Rows whose file has already disappeared from disk contribute zero
// rather than failing the aggregate.
func (j *Journal) GetDataSize() (int64, error) {
	var paths []string
	if err := j.db.Model(&CrashRecord{}).Where("removed = ?", false).Pluck("file_path", &paths).Error; err != nil {
		return 0, err
	}
	var total int64
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil {
			total += fi.Size()
		}
	}
	return total, nil
}

// GetVictim returns the oldest eviction candidate: the oldest
// removed=false, transferred=true row, falling back to the oldest
// removed=false row of any transfer state if none qualify.
func (j *Journal) GetVictim() (CrashRecord, bool, error) {
	var rec CrashRecord
	err := j.db.Where("removed = ? AND transferred = ?", false, true).Order("timestamp asc").First(&rec).Error
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return CrashRecord{}, false, err
	}

	err = j.db.Where("removed = ?", false).Order("timestamp asc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CrashRecord{}, false, nil
	}
	if err != nil {
		return CrashRecord{}, false, err
	}
	return rec, true, nil
}

// GetUntransferred lists every row still awaiting shipment, used at
// startup to resume transfers the manager was killed mid-flight on.
func (j *Journal) GetUntransferred() ([]CrashRecord, error) {
	var recs []CrashRecord
	err := j.db.Where("transferred = ? AND removed = ?", false, false).Order("timestamp asc").Find(&recs).Error
	return recs, err
}

// ListCrashes returns every non-removed crash record, newest first,
// capped at limit rows (0 means unlimited). Used by cdi's listing
// command; the manager itself never lists in bulk.
func (j *Journal) ListCrashes(limit int) ([]CrashRecord, error) {
	q := j.db.Where("removed = ?", false).Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []CrashRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("journal: listing crash records: %w", err)
	}
	return recs, nil
}

func (j *Journal) ArchiveExists(path string) (bool, error) {
	var count int64
	if err := j.db.Model(&CrashRecord{}).Where("file_path = ?", path).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// AppendEpilog implements epilog.Sink, persisting the backtrace body a
// completed epilog client submitted.
func (j *Journal) AppendEpilog(rec epilog.Record) error {
	row := EpilogRecord{PID: rec.PID, Signal: rec.Signal, Backtrace: rec.Body}
	if err := j.db.Create(&row).Error; err != nil {
		return fmt.Errorf("journal: inserting epilog record: %w", err)
	}
	return nil
}

// GetEpilog returns the most recently recorded epilog backtrace for pid,
// if any. Used by cdi's backtrace command; the manager itself never
// reads epilog rows back out.
func (j *Journal) GetEpilog(pid int64) (EpilogRecord, bool, error) {
	var rec EpilogRecord
	err := j.db.Where("pid = ?", pid).Order("created_at desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return EpilogRecord{}, false, nil
	}
	if err != nil {
		return EpilogRecord{}, false, err
	}
	return rec, true, nil
}

var _ epilog.Sink = (*Journal)(nil)
