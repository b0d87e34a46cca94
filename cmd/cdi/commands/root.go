// Package commands implements the cdi CLI: a read-only inspection tool
// over the crash journal and the archives it references, following the
// same cobra root + subcommand layout the teacher's cmd/dfsctl uses.
package commands

import (
	"fmt"
	"os"

	"github.com/opencrash/crashmgr/pkg/config"
	"github.com/opencrash/crashmgr/pkg/journal"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cdi",
	Short: "Inspect the crashmgr journal and crash archives",
	Long: `cdi is a read-only companion to cdm: it lists journal entries, walks an
archive's member list, prints an archive's captured crash info and
dumps the backtrace an epilog session recorded for a given PID.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "/etc/crashmgr/crashmgr.conf", "path to the crashmgr configuration file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(backtraceCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// openJournal loads the active config and opens its journal database
// read-write (gorm/sqlite has no read-only open mode worth the extra
// plumbing here — cdi simply never calls a mutating method).
func openJournal() (*journal.Journal, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return journal.Open(cfg.CrashManager.DatabaseFile)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
