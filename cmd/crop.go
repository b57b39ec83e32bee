package cmd

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/andresmejia3/shadecheck/internal/camera"
	"github.com/andresmejia3/shadecheck/internal/quality"
	"github.com/andresmejia3/shadecheck/internal/utils"
)

var cropOpts Options

var cropCmd = &cobra.Command{
	Use:   "crop <image>",
	Short: "Crop an image to the face guide's bounding box",
	Long:  "Uses the same guide proportions as live guidance, so the crop keeps exactly the region the readiness checks looked at.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCrop(cmd.Context(), args[0], cropOpts.Output)
	},
}

func init() {
	cropCmd.Flags().StringVarP(&cropOpts.Output, "output", "o", "", "Path to output image (.jpg, .png, .tiff, .bmp); default <input>_guide.jpg")
	rootCmd.AddCommand(cropCmd)
}

func runCrop(ctx context.Context, input, output string) error {
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + "_guide.jpg"
	}

	// Safety Check: Prevent overwriting the input file
	inAbs, _ := filepath.Abs(input)
	outAbs, _ := filepath.Abs(output)
	if inAbs == outAbs {
		return fmt.Errorf("input and output paths must be different")
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return utils.ReportError("Failed to read image file", err, nil)
	}
	img, err := camera.DecodeImage(data)
	if err != nil {
		return utils.ReportError("Failed to decode image", err, nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	state := quality.AssessImage(img)
	if !state.OK {
		fmt.Fprintf(os.Stderr, "⚠️  Source image would not pass the gate: %s\n", state.Message)
	}

	cropped := quality.CropToGuide(img)
	f, err := os.Create(output)
	if err != nil {
		return utils.ReportError("Failed to create output file", err, nil)
	}
	if err := encodeByExt(f, output, cropped); err != nil {
		f.Close()
		os.Remove(output)
		return utils.ReportError("Failed to encode output", err, nil)
	}
	if err := f.Close(); err != nil {
		return err
	}

	b := cropped.Bounds()
	fmt.Fprintf(os.Stderr, "✂️  Wrote %dx%d crop to %s\n", b.Dx(), b.Dy(), output)
	return nil
}

func encodeByExt(w io.Writer, path string, img image.Image) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case ".png":
		return png.Encode(w, img)
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case ".bmp":
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("unsupported output format %q", filepath.Ext(path))
	}
}
