package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/shadecheck/internal/store"
	"github.com/andresmejia3/shadecheck/internal/utils"
)

var showOpts Options

var showCmd = &cobra.Command{
	Use:         "show <capture_id>",
	Short:       "Show a recorded capture and the reading that allowed it",
	Long:        "Accepts the full capture id or any unambiguous prefix, such as the 12 characters printed by history.",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runShow(cmd.Context(), args[0], showOpts, os.Stdout)
	},
}

func init() {
	showCmd.Flags().BoolVar(&showOpts.JSON, "json", false, "Print the capture as JSON")
	rootCmd.AddCommand(showCmd)
}

func runShow(ctx context.Context, id string, opts Options, out io.Writer) error {
	c, err := DB.GetCapture(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(out, "❌ No capture matches '%s'.\n", id)
		return utils.Shown(err)
	}
	if err != nil {
		return utils.ReportError("Failed to look up capture", err, nil)
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}

	fmt.Fprintf(out, "🆔 %s\n", c.ID)
	fmt.Fprintf(out, "📁 %s (%s, %dx%d)\n", c.Location, c.MimeType, c.Width, c.Height)
	if c.Label != "" {
		fmt.Fprintf(out, "🏷️  %s\n", c.Label)
	}
	fmt.Fprintf(out, "🕒 %s (session %s)\n", c.CapturedAt.Local().Format("2006-01-02 15:04:05"), c.SessionID)
	fmt.Fprintf(out, "🟢 %s\n", c.Readiness)
	fmt.Fprintf(out, "   luma %.1f  sharpness %.1f  cast %+.3f  skin %.2f  face area %.2f\n",
		c.Debug.MeanLuma, c.Debug.Sharpness, c.Debug.CastMagnitude, c.Debug.SkinRatio, c.Debug.FaceAreaRatio)
	return nil
}
