package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/omarluq/comicframes/cmd/comicframes/di"
	"github.com/omarluq/comicframes/internal/comic"
	"github.com/omarluq/comicframes/internal/pdf"
	"github.com/omarluq/comicframes/internal/pipeline"
)

// timePrecision rounds durations in command output.
const timePrecision = time.Millisecond

var pagesFlags struct {
	outputDir string
}

var pagesCmd = &cobra.Command{
	Use:   "pages <document.pdf>",
	Short: "Render document pages to images without detecting frames",
	Args:  cobra.ExactArgs(1),
	RunE:  runPages,
}

func init() {
	pagesCmd.Flags().StringVarP(&pagesFlags.outputDir, "output", "o", "", "override the data directory")
	rootCmd.AddCommand(pagesCmd)
}

func runPages(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(configPath())
	if err != nil {
		return err
	}
	defer shutdownContainer(container)

	rasterSvc, err := di.Invoke[*di.RasterizerService](container)
	if err != nil {
		return err
	}
	cacheSvc, err := di.Invoke[*di.CacheService](container)
	if err != nil {
		return err
	}

	proc := pipeline.NewProcessor(rasterSvc.Rasterizer, pipeline.WithManager(cacheSvc.Manager))

	params := pipeline.Params{}
	if pagesFlags.outputDir != "" {
		params[pdf.ParamOutputDir] = pagesFlags.outputDir
	}

	result := proc.Process(ctx, args[0], params)
	if !result.Success {
		return fmt.Errorf("rasterization failed: %s", result.Message)
	}

	pages, _ := result.Data.([]comic.Page)
	source := "rendered"
	if result.CacheHit {
		source = "cached"
	}
	fmt.Printf("%d pages %s in %s\n", len(pages), source, result.Duration.Round(timePrecision))
	for _, p := range pages {
		fmt.Printf("  page %d: %s (%dx%d)\n", p.PageNumber, p.ImagePath, p.Width, p.Height)
	}

	return nil
}
