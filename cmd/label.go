package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/shadecheck/internal/utils"
)

var labelCmd = &cobra.Command{
	Use:         "label <capture_id> <label>",
	Short:       "Attach a label to a recorded capture",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runLabel(cmd.Context(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

func runLabel(ctx context.Context, id, label string) error {
	// Resolve a prefix to the full id first
	c, err := DB.GetCapture(ctx, id)
	if err != nil {
		return utils.ReportError("Failed to find capture", err, nil)
	}

	if err := DB.LabelCapture(ctx, c.ID, label); err != nil {
		return utils.ReportError("Failed to label capture", err, nil)
	}

	fmt.Printf("✅ Capture %s labeled as '%s'\n", shortID(c.ID), label)
	return nil
}
