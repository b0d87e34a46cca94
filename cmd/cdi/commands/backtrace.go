package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var backtraceCmd = &cobra.Command{
	Use:     "backtrace <pid>",
	Aliases: []string{"bt"},
	Short:   "Print the epilog backtrace recorded for a crashed PID",
	Long: `Backtrace prints the raw text an application's own epilog handler
submitted over the crash-epilog socket for the given PID (see
pkg/epilog), if the journal still has one.`,
	Args: cobra.ExactArgs(1),
	RunE: runBacktrace,
}

func runBacktrace(cmd *cobra.Command, args []string) error {
	pid, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("cdi: invalid pid %q: %w", args[0], err)
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, ok, err := j.GetEpilog(pid)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cdi: no epilog backtrace recorded for pid %d", pid)
	}

	fmt.Fprintf(os.Stdout, "pid %d, signal %d\n\n", rec.PID, rec.Signal)
	os.Stdout.Write(rec.Backtrace)
	if len(rec.Backtrace) == 0 || rec.Backtrace[len(rec.Backtrace)-1] != '\n' {
		fmt.Fprintln(os.Stdout)
	}
	return nil
}
