package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/opencrash/crashmgr/pkg/archive"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <archive>",
	Short: "Print the captured crash info record from an archive",
	Long: `Info reads the info.crashdata member a handler session embeds after
streaming the core (see pkg/handler) and prints it as a key/value table.
Fields are printed as stored; an empty crash_id, vector_id or
coredump_size is left out of the record. An archive from a FAILED
session has no info.crashdata member, and info reports that as an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	r, err := archive.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		m, err := r.Next()
		if err == io.EOF {
			return fmt.Errorf("cdi: %s has no info.crashdata member", args[0])
		}
		if err != nil {
			return err
		}
		if m.Name != "info.crashdata" {
			continue
		}

		raw, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("cdi: reading info.crashdata: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("cdi: parsing info.crashdata: %w", err)
		}

		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		table := tablewriter.NewWriter(os.Stdout)
		table.SetBorder(false)
		table.SetHeaderLine(false)
		table.SetCenterSeparator("")
		table.SetColumnSeparator(":")
		table.SetRowSeparator("")
		table.SetTablePadding("  ")
		for _, k := range keys {
			table.Append([]string{k, fmt.Sprintf("%v", fields[k])})
		}
		table.Render()
		return nil
	}
}
