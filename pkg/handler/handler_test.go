package handler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opencrash/crashmgr/pkg/archive"
	"github.com/opencrash/crashmgr/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestArchivePath(t *testing.T) {
	got := ArchivePath("/var/crash", "myapp", 1234, 555)
	require.Equal(t, "/var/crash/myapp.1234.555.cdh.tar.gz", got)
}

func TestSessionToken(t *testing.T) {
	require.Equal(t, uint16(0x1234), sessionToken(0x1234, 0))
	require.Equal(t, sessionToken(7, 9), sessionToken(7, 9))
}

func TestSweepCrashContextsEmbedsMatchingFile(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "aux.txt")
	require.NoError(t, os.WriteFile(dataPath, []byte("hello"), 0o644))

	cfg := config.Default()
	cfg.CrashContexts = []config.CrashContext{
		{Name: "aux", ProcName: "^myapp$", PostCore: false, DataPath: dataPath},
		{Name: "other", ProcName: "^nomatch$", PostCore: false, DataPath: dataPath},
	}

	arPath := filepath.Join(dir, "out.cdar.gz")
	ar, err := archive.Open(arPath)
	require.NoError(t, err)

	h := New(cfg, Args{ProcName: "myapp", PID: 1})
	h.sweepCrashContexts(ar, false)
	require.NoError(t, ar.Close())
}

func TestWritePostStreamRecord(t *testing.T) {
	dir := t.TempDir()
	arPath := filepath.Join(dir, "out.cdar.gz")
	ar, err := archive.Open(arPath)
	require.NoError(t, err)

	h := New(config.Default(), Args{ProcName: "myapp", PID: 42, Signal: 11, Timestamp: 100})
	h.info.CrashID = "deadbeef"
	require.NoError(t, h.writePostStreamRecord(ar))
	require.NoError(t, ar.Close())
}
