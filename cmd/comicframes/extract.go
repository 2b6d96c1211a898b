package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omarluq/comicframes/cmd/comicframes/di"
	"github.com/omarluq/comicframes/internal/comic"
	"github.com/omarluq/comicframes/internal/detect"
	"github.com/omarluq/comicframes/internal/pipeline"
)

var extractFlags struct {
	method    string
	minWidth  int
	minHeight int
	noSave    bool
}

var extractCmd = &cobra.Command{
	Use:   "extract <image-or-directory>",
	Short: "Detect and extract frames from page images",
	Long: `Run frame detection on an already-rendered page image, or on every page
image in a directory. Images are processed in name order.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractFlags.method, "method", "m", "", "detection method (threshold or edge)")
	extractCmd.Flags().IntVar(&extractFlags.minWidth, "min-width", 0, "minimum frame width in pixels")
	extractCmd.Flags().IntVar(&extractFlags.minHeight, "min-height", 0, "minimum frame height in pixels")
	extractCmd.Flags().BoolVar(&extractFlags.noSave, "no-save", false, "detect frames without writing cropped images")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(configPath())
	if err != nil {
		return err
	}
	defer shutdownContainer(container)

	detectorSvc, err := di.Invoke[*di.DetectorService](container)
	if err != nil {
		return err
	}
	cacheSvc, err := di.Invoke[*di.CacheService](container)
	if err != nil {
		return err
	}

	proc := pipeline.NewProcessor(detectorSvc.Detector, pipeline.WithManager(cacheSvc.Manager))

	images, err := collectImages(args[0])
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return fmt.Errorf("no page images found at %s", args[0])
	}

	params := extractParams()
	totalFrames := 0
	for pageNum, imgPath := range images {
		page := comic.Page{ImagePath: imgPath, PageNumber: pageNum}
		result := proc.Process(ctx, page, params)
		if !result.Success {
			return fmt.Errorf("detection failed on %s: %s", imgPath, result.Message)
		}
		pages, _ := result.Data.([]comic.Page)
		for _, p := range pages {
			totalFrames += p.FrameCount()
			fmt.Printf("  %s: %d frames\n", p.ImagePath, p.FrameCount())
		}
	}

	fmt.Printf("Extracted %d frames from %d images\n", totalFrames, len(images))
	return nil
}

func extractParams() pipeline.Params {
	params := pipeline.Params{}
	if extractFlags.method != "" {
		params[detect.ParamMethod] = extractFlags.method
	}
	if extractFlags.minWidth > 0 {
		params[detect.ParamMinWidth] = extractFlags.minWidth
	}
	if extractFlags.minHeight > 0 {
		params[detect.ParamMinHeight] = extractFlags.minHeight
	}
	if extractFlags.noSave {
		params[detect.ParamSaveFrames] = false
	}
	return params
}

// collectImages resolves the argument to a sorted list of page image paths.
func collectImages(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			images = append(images, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}
