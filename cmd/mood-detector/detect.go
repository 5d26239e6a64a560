package main

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/spf13/cobra"

	mooddetector "github.com/menta2k/mood-detector"
	"github.com/menta2k/mood-detector/internal/utils"
	"github.com/menta2k/mood-detector/pkg/types"
)

var (
	overlayPath    string
	overlayQuality int
)

var detectCmd = &cobra.Command{
	Use:   "detect <image|data-url-file|URL>",
	Short: "Annotate the faces of a single frame and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := mooddetector.FromConfig(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		img, err := p.Processor().LoadImageSmart(args[0])
		if err != nil {
			return err
		}

		result, err := p.ProcessImage(cmd.Context(), img)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}

		if overlayPath != "" {
			return writeOverlay(p, img, result.BoundingBoxes, overlayPath)
		}
		return nil
	},
}

// writeOverlay saves img with mood-colored face boxes. The format follows the extension.
func writeOverlay(p *mooddetector.Pipeline, img image.Image, faces []types.AnnotatedFace, path string) error {
	overlay := p.Processor().CreateDebugOverlay(img, faces)
	if err := p.Processor().SaveImage(overlay, path, utils.GetFileExtension(path), overlayQuality, false); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	log.Infof("detect: wrote %s", path)
	return nil
}

func init() {
	detectCmd.Flags().StringVar(&overlayPath, "overlay", "", "write the frame with face boxes to this path (png|jpg|webp)")
	detectCmd.Flags().IntVar(&overlayQuality, "quality", 92, "overlay quality for jpg/webp (1-100)")
	rootCmd.AddCommand(detectCmd)
}
