package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List crash journal entries",
	Long:  `List prints the most recent non-removed crash journal rows, newest first.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "maximum number of rows to print (0 = unlimited)")
}

func runList(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListCrashes(listLimit)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "TIME", "PROC", "PID", "SIG", "CRASH ID", "CONTEXT", "SHIPPED"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")

	for _, r := range recs {
		table.Append([]string{
			strconv.FormatUint(r.ID, 10),
			time.Unix(int64(r.Timestamp), 0).Format(time.RFC3339),
			r.ProcName,
			strconv.FormatInt(r.PID, 10),
			strconv.FormatInt(r.Signal, 10),
			r.CrashID,
			r.ContextID,
			strconv.FormatBool(r.Transferred),
		})
	}
	table.Render()
	fmt.Fprintf(os.Stdout, "%d entr", len(recs))
	if len(recs) == 1 {
		fmt.Fprintln(os.Stdout, "y")
	} else {
		fmt.Fprintln(os.Stdout, "ies")
	}
	return nil
}
