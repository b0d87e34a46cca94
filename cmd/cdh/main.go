// Command cdh is the crash handler: the kernel invokes it once per crash
// (wired through /proc/sys/kernel/core_pattern as a pipe target), with
// the crashing core streamed on stdin and the crash's identity passed as
// fixed positional arguments. There are no subcommands or long-running
// state here — cdh does one capture and exits, mirroring the single-shot
// contract the kernel itself imposes.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/opencrash/crashmgr/internal/logger"
	"github.com/opencrash/crashmgr/pkg/config"
	"github.com/opencrash/crashmgr/pkg/handler"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
)

const usage = `cdh - crash handler (invoked by the kernel, not meant for direct use)

Usage:
  cdh <timestamp> <pid> <container-pid> <signal> <proc-name>

The core itself is read from stdin. Exit status is 0 on a clean capture,
1 on any failure (archive left on disk in either case, wherever the
core parses far enough to discover the crash's fingerprint).
`

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("cdh %s (commit: %s)\n", version, commit)
		return
	}
	if len(os.Args) != 6 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	args, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "cdh: %v\n\n", err)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cfg, err := config.Load(configFilePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "cdh: loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		fmt.Fprintf(os.Stderr, "cdh: initializing logger: %v\n", err)
		os.Exit(1)
	}

	if err := handler.Run(context.Background(), cfg, args, os.Stdin); err != nil {
		logger.Error("cdh: capture failed", logger.Err(err), logger.Pid(args.PID), logger.ProcName(args.ProcName))
		os.Exit(1)
	}
}

// parseArgs maps the kernel's positional core_pattern arguments onto
// handler.Args. Kernel-supplied numeric fields are trusted but still
// parsed defensively: a malformed invocation should fail loudly rather
// than capture under a wrong identity.
func parseArgs(argv []string) (handler.Args, error) {
	tstamp, err := strconv.ParseUint(argv[0], 10, 64)
	if err != nil {
		return handler.Args{}, fmt.Errorf("invalid timestamp %q: %w", argv[0], err)
	}
	pid, err := strconv.ParseInt(argv[1], 10, 64)
	if err != nil {
		return handler.Args{}, fmt.Errorf("invalid pid %q: %w", argv[1], err)
	}
	cpid, err := strconv.ParseInt(argv[2], 10, 64)
	if err != nil {
		return handler.Args{}, fmt.Errorf("invalid container pid %q: %w", argv[2], err)
	}
	sig, err := strconv.ParseInt(argv[3], 10, 64)
	if err != nil {
		return handler.Args{}, fmt.Errorf("invalid signal %q: %w", argv[3], err)
	}
	return handler.Args{
		Timestamp:    tstamp,
		PID:          pid,
		ContainerPID: cpid,
		Signal:       sig,
		ProcName:     argv[4],
	}, nil
}

// configFilePath returns the config path the kernel's core_pattern line
// can override via CDH_CONFIG, since core_pattern arguments themselves
// are fixed by the %-specifier contract and leave no room for a flag.
func configFilePath() string {
	if p := os.Getenv("CDH_CONFIG"); p != "" {
		return p
	}
	return "/etc/crashmgr/crashmgr.conf"
}
