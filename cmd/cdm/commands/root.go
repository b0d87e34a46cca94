// Package commands implements the cdm CLI: a single long-running "start"
// daemon plus a "version" command, laid out the way the teacher's
// cmd/dittofs/commands package roots its own subcommands.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cdm",
	Short: "crashmgr crash manager daemon",
	Long: `cdm is the crash manager daemon: it owns the crash journal, accepts
handler and epilog connections over its IPC sockets, evicts archives
under disk-quota pressure and ships completed archives to object
storage.

Use "cdm start" to run it, "cdm version" for build information.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetConfigFile returns the -c/--config flag value.
func GetConfigFile() string {
	return cfgFile
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "/etc/crashmgr/crashmgr.conf", "path to the crashmgr configuration file")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
