package janitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencrash/crashmgr/pkg/eventloop"
	"github.com/opencrash/crashmgr/pkg/journal"
)

func openTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func writeArchive(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestOverQuotaSizeTrigger(t *testing.T) {
	jn := &Janitor{cfg: Config{MaxDirSize: 1000, MinDirSize: 0}}
	require.False(t, jn.overQuota(1000, 0), "exactly at the cap must not fire")
	require.True(t, jn.overQuota(1001, 0))
}

func TestOverQuotaCountTrigger(t *testing.T) {
	jn := &Janitor{cfg: Config{MaxFileCount: 5}}
	require.False(t, jn.overQuota(0, 5))
	require.True(t, jn.overQuota(0, 6))
}

func TestOverQuotaHeadroomTrigger(t *testing.T) {
	jn := &Janitor{cfg: Config{MaxDirSize: 1000, MinDirSize: 100}}
	// 1000-950=50 < 100: fires even though the plain size check doesn't.
	require.True(t, jn.overQuota(950, 0))
	require.False(t, jn.overQuota(900, 0))
}

func TestDispatchEvictsOldestVictim(t *testing.T) {
	j := openTestJournal(t)
	dir := t.TempDir()
	oldPath := writeArchive(t, dir, "a.1.100.cdh.tar.gz", 10)
	newPath := writeArchive(t, dir, "b.2.200.cdh.tar.gz", 10)
	_, err := j.AddCrash("a", "A", "B", "C", oldPath, 1, 11, 100, "1.0")
	require.NoError(t, err)
	_, err = j.AddCrash("b", "A", "B", "C", newPath, 2, 11, 200, "1.0")
	require.NoError(t, err)

	jn := New(j, Config{MaxDirSize: 1, MaxFileCount: 0}, nil)
	jn.Prepare()
	require.True(t, jn.ShouldFire())

	action, err := jn.Dispatch()
	require.NoError(t, err)
	require.Equal(t, eventloop.Continue, action)

	_, statErr := os.Stat(oldPath)
	require.True(t, os.IsNotExist(statErr), "oldest archive should have been unlinked")
	_, statErr = os.Stat(newPath)
	require.NoError(t, statErr, "newer archive should be untouched")

	size, err := j.GetDataSize()
	require.NoError(t, err)
	require.Equal(t, int64(10), size)
}

func TestDispatchNoVictimIsNoop(t *testing.T) {
	j := openTestJournal(t)
	jn := New(j, Config{}, nil)
	action, err := jn.Dispatch()
	require.NoError(t, err)
	require.Equal(t, eventloop.Continue, action)
}
