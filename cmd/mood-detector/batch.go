package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	mooddetector "github.com/menta2k/mood-detector"
	"github.com/menta2k/mood-detector/internal/utils"
	"github.com/menta2k/mood-detector/pkg/types"
)

var (
	overlayDir string
	failFast   bool
)

// batchLine is one JSON line of batch output.
type batchLine struct {
	File string `json:"file"`
	*types.FrameResult
	Error string `json:"error,omitempty"`
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Annotate every frame under a directory, one JSON line per file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		if !utils.DirExists(dir) {
			return fmt.Errorf("%s is not a directory", dir)
		}

		files, err := utils.ListFrameFiles(dir)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			log.Warnf("batch: no frames found in %s", dir)
			return nil
		}

		if overlayDir != "" {
			if err := utils.EnsureDir(overlayDir); err != nil {
				return err
			}
		}

		p, err := mooddetector.FromConfig(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		bar := progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Annotating frames"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		var faces, failed int
		for _, file := range files {
			if err := cmd.Context().Err(); err != nil {
				return err
			}

			line := batchLine{File: file}
			img, err := p.Processor().LoadImage(file)
			if err == nil {
				var result types.FrameResult
				if result, err = p.ProcessImage(cmd.Context(), img); err == nil {
					line.FrameResult = &result
					faces += len(result.BoundingBoxes)
					if overlayDir != "" {
						out := utils.GenerateOutputFilename(file, overlayDir, "_overlay", "png")
						if werr := writeOverlay(p, img, result.BoundingBoxes, out); werr != nil {
							log.Warnf("batch: %v", werr)
						}
					}
				}
			}
			if err != nil {
				failed++
				line.Error = err.Error()
				if failFast {
					return fmt.Errorf("%s: %w", file, err)
				}
			}

			if err := enc.Encode(line); err != nil {
				return err
			}
			_ = bar.Add(1)
		}
		_ = bar.Finish()

		log.Infof("batch: %d frames, %d faces, %d failed", len(files), faces, failed)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&overlayDir, "overlay-dir", "", "write an overlay image per frame into this directory")
	batchCmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first frame that fails")
	rootCmd.AddCommand(batchCmd)
}
