package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/shadecheck/internal/types"
	"github.com/andresmejia3/shadecheck/internal/utils"
)

var historyOpts Options

var historyCmd = &cobra.Command{
	Use:         "history",
	Short:       "List recorded captures, newest first",
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runHistory(cmd.Context(), historyOpts.Limit, os.Stdout)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyOpts.Limit, "limit", "n", 20, "Maximum number of captures to list (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(ctx context.Context, limit int, out io.Writer) error {
	captures, err := DB.ListCaptures(ctx, limit)
	if err != nil {
		return utils.ReportError("Failed to list captures", err, nil)
	}

	if len(captures) == 0 {
		fmt.Fprintln(out, "No captures recorded yet.")
		return nil
	}
	writeCaptureTable(out, captures)
	return nil
}

func writeCaptureTable(out io.Writer, captures []types.CaptureRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tFILE\tSIZE\tLABEL\tREADINESS\tCAPTURED")
	fmt.Fprintln(w, "--\t----\t----\t-----\t---------\t--------")

	for _, c := range captures {
		label := c.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%dx%d\t%s\t%s\t%s\n",
			shortID(c.ID), c.FileName, c.Width, c.Height, label, c.Readiness,
			c.CapturedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
