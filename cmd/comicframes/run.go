package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omarluq/comicframes/cmd/comicframes/di"
	"github.com/omarluq/comicframes/internal/comic"
	"github.com/omarluq/comicframes/internal/detect"
	"github.com/omarluq/comicframes/internal/pdf"
	"github.com/omarluq/comicframes/internal/pipeline"
)

var runFlags struct {
	outputDir string
	method    string
	minWidth  int
	minHeight int
	noSave    bool
}

var runCmd = &cobra.Command{
	Use:   "run <document.pdf>",
	Short: "Run the full extraction pipeline on a document",
	Long: `Render every page of the document to an image, detect the comic frames on
each page, and extract them as cropped images under the data directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.outputDir, "output", "o", "", "override the data directory")
	runCmd.Flags().StringVarP(&runFlags.method, "method", "m", "", "detection method (threshold or edge)")
	runCmd.Flags().IntVar(&runFlags.minWidth, "min-width", 0, "minimum frame width in pixels")
	runCmd.Flags().IntVar(&runFlags.minHeight, "min-height", 0, "minimum frame height in pixels")
	runCmd.Flags().BoolVar(&runFlags.noSave, "no-save", false, "detect frames without writing cropped images")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(configPath())
	if err != nil {
		return err
	}
	defer shutdownContainer(container)

	pipelineSvc, err := di.Invoke[*di.PipelineService](container)
	if err != nil {
		return err
	}

	result := pipelineSvc.Pipeline.Process(ctx, args[0], runParams())
	if !result.Success {
		return fmt.Errorf("extraction failed: %s", result.Message)
	}

	printRunSummary(result)
	return nil
}

// runParams translates command flags into pipeline params. Unset flags are
// omitted so config defaults apply.
func runParams() pipeline.Params {
	params := pipeline.Params{}
	if runFlags.outputDir != "" {
		params[pdf.ParamOutputDir] = runFlags.outputDir
	}
	if runFlags.method != "" {
		params[detect.ParamMethod] = runFlags.method
	}
	if runFlags.minWidth > 0 {
		params[detect.ParamMinWidth] = runFlags.minWidth
	}
	if runFlags.minHeight > 0 {
		params[detect.ParamMinHeight] = runFlags.minHeight
	}
	if runFlags.noSave {
		params[detect.ParamSaveFrames] = false
	}
	return params
}

func printRunSummary(result pipeline.Result) {
	pages, _ := result.Data.([]comic.Page)
	totalFrames := 0
	for _, p := range pages {
		totalFrames += p.FrameCount()
	}

	fmt.Printf("Processed %d pages, extracted %d frames in %s\n",
		len(pages), totalFrames, result.Duration.Round(timePrecision))
	for _, sr := range result.Stages {
		status := "ok"
		if sr.CacheHit {
			status = "cached"
		}
		fmt.Printf("  %-12s %-8s %s\n", sr.Name, status, sr.Duration.Round(timePrecision))
	}
}

func shutdownContainer(c *di.Container) {
	if err := c.Shutdown(); err != nil {
		log.Error().Err(err).Msg("container shutdown error")
	}
}
