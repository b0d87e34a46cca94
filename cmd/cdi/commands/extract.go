package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/opencrash/crashmgr/pkg/archive"
	"github.com/spf13/cobra"
)

var extractOutput string

var extractCmd = &cobra.Command{
	Use:   "extract <member> <archive>",
	Short: "Extract one member (use \"core\" for the raw coredump) to a file or stdout",
	Args:  cobra.ExactArgs(2),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "destination path (default: stdout)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	member, path := args[0], args[1]

	r, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		m, err := r.Next()
		if err == io.EOF {
			return fmt.Errorf("cdi: %s has no member %q", path, member)
		}
		if err != nil {
			return err
		}
		if m.Name != member {
			continue
		}

		out := io.Writer(os.Stdout)
		if extractOutput != "" {
			f, err := os.Create(extractOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		if _, err := io.Copy(out, r); err != nil {
			return fmt.Errorf("cdi: extracting %q: %w", member, err)
		}
		return nil
	}
}
