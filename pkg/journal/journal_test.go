package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opencrash/crashmgr/pkg/epilog"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func mustArchive(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("writing fixture archive: %v", err)
	}
	return path
}

func TestAddCrashAssignsJenkinsID(t *testing.T) {
	j := openTest(t)
	dir := t.TempDir()
	path := mustArchive(t, dir, "crashy.1.100.cdh.tar.gz", 10)

	id, err := j.AddCrash("crashy", "AAAA", "BBBB", "host", path, 1, 11, 100, "1.0")
	if err != nil {
		t.Fatalf("AddCrash: %v", err)
	}

	exists, err := j.ArchiveExists(path)
	if err != nil || !exists {
		t.Fatalf("ArchiveExists = %v, %v", exists, err)
	}

	var rec CrashRecord
	if err := j.db.First(&rec, id).Error; err != nil {
		t.Fatalf("loading inserted row: %v", err)
	}
	if rec.FilePath != path {
		t.Fatalf("file_path = %q, want %q", rec.FilePath, path)
	}
}

func TestSetTransferAndRemoved(t *testing.T) {
	j := openTest(t)
	dir := t.TempDir()
	path := mustArchive(t, dir, "crashy.1.100.cdh.tar.gz", 10)
	if _, err := j.AddCrash("crashy", "A", "B", "C", path, 1, 11, 100, "1.0"); err != nil {
		t.Fatalf("AddCrash: %v", err)
	}

	if err := j.SetTransfer(path, true); err != nil {
		t.Fatalf("SetTransfer: %v", err)
	}
	if err := j.SetRemoved(path, true); err != nil {
		t.Fatalf("SetRemoved: %v", err)
	}

	untransferred, err := j.GetUntransferred()
	if err != nil {
		t.Fatalf("GetUntransferred: %v", err)
	}
	if len(untransferred) != 0 {
		t.Fatalf("untransferred = %v, want none", untransferred)
	}
}

func TestSetTransferUnknownPathErrors(t *testing.T) {
	j := openTest(t)
	if err := j.SetTransfer("/no/such/path", true); err == nil {
		t.Fatalf("expected error updating a nonexistent row")
	}
}

func TestGetVictimPrefersTransferredThenFallsBack(t *testing.T) {
	j := openTest(t)
	dir := t.TempDir()

	oldPath := mustArchive(t, dir, "a.1.100.cdh.tar.gz", 10)
	newPath := mustArchive(t, dir, "b.2.200.cdh.tar.gz", 10)
	if _, err := j.AddCrash("a", "A", "B", "C", oldPath, 1, 11, 100, "1.0"); err != nil {
		t.Fatalf("AddCrash: %v", err)
	}
	if _, err := j.AddCrash("b", "A", "B", "C", newPath, 2, 11, 200, "1.0"); err != nil {
		t.Fatalf("AddCrash: %v", err)
	}

	// Neither row is transferred yet: fall back to oldest removed=false.
	victim, ok, err := j.GetVictim()
	if err != nil || !ok {
		t.Fatalf("GetVictim = %v, %v, %v", victim, ok, err)
	}
	if victim.FilePath != oldPath {
		t.Fatalf("victim = %q, want fallback to oldest %q", victim.FilePath, oldPath)
	}

	// Mark the newer one transferred: it now outranks the untransferred
	// older row as the preferred (transferred) victim.
	if err := j.SetTransfer(newPath, true); err != nil {
		t.Fatalf("SetTransfer: %v", err)
	}
	victim, ok, err = j.GetVictim()
	if err != nil || !ok {
		t.Fatalf("GetVictim = %v, %v, %v", victim, ok, err)
	}
	if victim.FilePath != newPath {
		t.Fatalf("victim = %q, want transferred row %q", victim.FilePath, newPath)
	}
}

func TestGetVictimEmptyJournal(t *testing.T) {
	j := openTest(t)
	_, ok, err := j.GetVictim()
	if err != nil {
		t.Fatalf("GetVictim: %v", err)
	}
	if ok {
		t.Fatalf("expected no victim in an empty journal")
	}
}

func TestGetDataSizeSumsNonRemovedArchives(t *testing.T) {
	j := openTest(t)
	dir := t.TempDir()
	p1 := mustArchive(t, dir, "a.1.100.cdh.tar.gz", 100)
	p2 := mustArchive(t, dir, "b.2.200.cdh.tar.gz", 200)
	if _, err := j.AddCrash("a", "A", "B", "C", p1, 1, 11, 100, "1.0"); err != nil {
		t.Fatalf("AddCrash: %v", err)
	}
	if _, err := j.AddCrash("b", "A", "B", "C", p2, 2, 11, 200, "1.0"); err != nil {
		t.Fatalf("AddCrash: %v", err)
	}

	size, err := j.GetDataSize()
	if err != nil {
		t.Fatalf("GetDataSize: %v", err)
	}
	if size != 300 {
		t.Fatalf("data size = %d, want 300", size)
	}

	if err := j.SetRemoved(p2, true); err != nil {
		t.Fatalf("SetRemoved: %v", err)
	}
	size, err = j.GetDataSize()
	if err != nil {
		t.Fatalf("GetDataSize: %v", err)
	}
	if size != 100 {
		t.Fatalf("data size after removal = %d, want 100", size)
	}
}

func TestAppendEpilogImplementsSink(t *testing.T) {
	j := openTest(t)
	var sink epilog.Sink = j
	if err := sink.AppendEpilog(epilog.Record{PID: 5, Signal: 11, Body: []byte("frame0\n")}); err != nil {
		t.Fatalf("AppendEpilog: %v", err)
	}

	var count int64
	if err := j.db.Model(&EpilogRecord{}).Where("pid = ?", 5).Count(&count).Error; err != nil {
		t.Fatalf("counting epilog rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("epilog rows = %d, want 1", count)
	}
}
