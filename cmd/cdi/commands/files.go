package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/opencrash/crashmgr/pkg/archive"
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files <archive>",
	Short: "List the members of a crash archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runFiles,
}

func runFiles(cmd *cobra.Command, args []string) error {
	r, err := archive.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "SIZE"})
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")

	for {
		m, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		size := fmt.Sprintf("%d", m.Size)
		if m.Size < 0 {
			size = "streamed"
		}
		table.Append([]string{m.Name, size})
	}
	table.Render()
	return nil
}
