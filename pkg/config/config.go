// Package config reads the manager's key-group configuration file: a
// flat INI-style document with a fixed [common] section, one
// [crashhandler] and one [crashmanager] section, and zero or more
// repeated [crashcontext-*] sections describing auxiliary per-process
// files to sweep into every archive.
//
// Unlike the teacher's YAML+mapstructure loader (pkg/config/config.go in
// the reference tree, whose own validator dependency goes unused),
// crashmgr's config is read with spf13/viper in its "ini" mode and
// validated with go-playground/validator/v10 struct tags — the actual
// consumer SPEC_FULL.md assigns that dependency to.
package config

import (
	"time"

	"github.com/opencrash/crashmgr/internal/bytesize"
)

// Common holds the [common] section: identity, directory layout and the
// handler<->manager IPC socket.
type Common struct {
	UserName            string `validate:"required"`
	GroupName           string `validate:"required"`
	CrashdumpDirectory  string `validate:"required"`
	RunDirectory        string `validate:"required"`
	IpcSocketFile       string `validate:"required"`
	IpcSocketTimeout    int    `validate:"gte=0"`
}

// SocketTimeout returns IpcSocketTimeout as a time.Duration in seconds,
// the unit the config file's comments document.
func (c Common) SocketTimeout() time.Duration {
	return time.Duration(c.IpcSocketTimeout) * time.Second
}

// CrashHandler holds the [crashhandler] section: per-handler-invocation
// tunables.
type CrashHandler struct {
	FileSystemMinSize bytesize.ByteSize
	ElevatedNiceValue int
}

// CrashManager holds the [crashmanager] section: journal location and
// quota thresholds.
type CrashManager struct {
	DatabaseFile         string `validate:"required"`
	KernelDumpSourceDir  string
	MinCrashdumpDirSize  bytesize.ByteSize
	MaxCrashdumpDirSize  bytesize.ByteSize
	MaxCrashdumpArchives int64 `validate:"gte=0"`
}

// CrashContext holds one repeated [crashcontext-*] section: a rule for
// sweeping an auxiliary per-process file into the archive, either before
// or after the core is streamed.
type CrashContext struct {
	// Name is the section suffix ("foo" for "[crashcontext-foo]"), used
	// as the archive member name the swept file is stored under.
	Name string

	ProcName string `validate:"required"`
	PostCore bool
	DataPath string `validate:"required"`
}

// Transfer holds the [transfer] section: where completed archives ship
// to. Region/AccessKeyID/SecretAccessKey/Endpoint follow the same
// optional-override-over-default-provider-chain convention
// pkg/transfer.NewS3ClientFromConfig documents; only Bucket is required; an
// empty Bucket disables transfer entirely (cmd/cdm then runs with a no-op
// shipper).
type Transfer struct {
	Bucket          string
	KeyPrefix       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// Logging holds the [logging] section, read directly into
// internal/logger.Config by cmd/cdm and cmd/cdh.
type Logging struct {
	Level  string
	Format string
	Output string
}

// Metrics holds the [metrics] section: the Prometheus exposition
// listener cmd/cdm binds alongside its IPC sockets.
type Metrics struct {
	Enabled bool
	Addr    string
}

// Config is the fully parsed, defaulted and validated configuration
// file.
type Config struct {
	Common        Common
	CrashHandler  CrashHandler
	CrashManager  CrashManager
	Transfer      Transfer
	Logging       Logging
	Metrics       Metrics
	CrashContexts []CrashContext `validate:"dive"`
}

// Default returns the configuration with every documented default
// applied and no crashcontext entries, the state Load starts from before
// overlaying whatever the file actually sets.
func Default() *Config {
	return &Config{
		Common: Common{
			UserName:           "crashmgr",
			GroupName:          "crashmgr",
			CrashdumpDirectory: "/var/crash",
			RunDirectory:       "/run/crashmgr",
			IpcSocketFile:      "cdm.sock",
			IpcSocketTimeout:   5,
		},
		CrashHandler: CrashHandler{
			FileSystemMinSize: 50 * bytesize.MB,
			ElevatedNiceValue: -5,
		},
		CrashManager: CrashManager{
			DatabaseFile:         "/var/lib/crashmgr/journal.db",
			MinCrashdumpDirSize:  100 * bytesize.MB,
			MaxCrashdumpDirSize:  2000 * bytesize.MB,
			MaxCrashdumpArchives: 200,
		},
		Logging: Logging{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Metrics: Metrics{
			Enabled: true,
			Addr:    ":9153",
		},
	}
}
