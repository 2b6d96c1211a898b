package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg" // page images may be JPEG when supplied directly
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/omarluq/comicframes/internal/comic"
	"github.com/omarluq/comicframes/internal/config"
	"github.com/omarluq/comicframes/internal/pipeline"
)

// Param keys recognized by the frame detector.
const (
	// ParamMethod selects the detection method ("threshold" or "edge").
	ParamMethod = "method"

	// ParamMinWidth and ParamMinHeight override the minimum frame size.
	ParamMinWidth  = "min_width"
	ParamMinHeight = "min_height"

	// ParamSaveFrames disables writing cropped frame images when false.
	ParamSaveFrames = "save_frames"
)

// frameDirName is the directory, sibling to raw_image, where cropped frames
// are written.
const frameDirName = "frame_data"

// FrameDetector is the pipeline stage that finds panels on rasterized pages
// and extracts each as a cropped PNG under <document>/frame_data/. It accepts
// a []comic.Page from the rasterization stage, a single comic.Page, or a page
// image path, and returns []comic.Page with frames populated.
type FrameDetector struct {
	cfg config.DetectionConfig
	log zerolog.Logger
}

// NewFrameDetector creates a detector with the given defaults. Stage params
// override the config per run.
func NewFrameDetector(cfg config.DetectionConfig, log zerolog.Logger) *FrameDetector {
	return &FrameDetector{
		cfg: cfg,
		log: log.With().Str("component", "frame_detector").Logger(),
	}
}

// Name implements pipeline.Worker.
func (d *FrameDetector) Name() string {
	return "frame_detector"
}

// Work implements pipeline.Worker.
func (d *FrameDetector) Work(ctx context.Context, input any, params pipeline.Params) (any, error) {
	pages, err := coercePages(input)
	if err != nil {
		return nil, err
	}

	opts := d.options(params)
	save := pipeline.Get(params, ParamSaveFrames, true)

	totalFrames := 0
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := d.detectPage(&pages[i], opts, save); err != nil {
			return nil, err
		}
		totalFrames += pages[i].FrameCount()
	}

	d.log.Info().
		Int("pages", len(pages)).
		Int("frames", totalFrames).
		Str("method", opts.Method).
		Msg("frame detection complete")

	return pages, nil
}

// detectPage detects frames on one page and, when save is set, crops each
// frame to <document>/frame_data/, continuing the document-wide total frame
// counter already present on disk.
func (d *FrameDetector) detectPage(page *comic.Page, opts Options, save bool) error {
	img, err := loadImage(page.ImagePath)
	if err != nil {
		return fmt.Errorf("detect: load page image: %w", err)
	}
	bounds := img.Bounds()
	page.Width = bounds.Dx()
	page.Height = bounds.Dy()

	boxes := Detect(img, opts)

	frameDir := filepath.Join(filepath.Dir(filepath.Dir(page.ImagePath)), frameDirName)
	nextTotal := 1
	if save {
		if err := os.MkdirAll(frameDir, 0o750); err != nil {
			return fmt.Errorf("detect: create frame directory: %w", err)
		}
		nextTotal = nextTotalNumber(frameDir)
	}

	page.Frames = page.Frames[:0]
	for i, box := range boxes {
		frame := comic.Frame{
			BBox:             box,
			FrameNumber:      i + 1,
			TotalFrameNumber: nextTotal + i,
			DetectionMethod:  opts.Method,
			Confidence:       box.Confidence,
		}
		frame.PageNumber = page.PageNumber

		if save {
			framePath := filepath.Join(frameDir, frame.FileName())
			if err := writePNG(framePath, Crop(img, box)); err != nil {
				return fmt.Errorf("detect: save frame %d: %w", frame.TotalFrameNumber, err)
			}
			frame.ImagePath = framePath
		}

		page.Frames = append(page.Frames, frame)
	}

	d.log.Debug().
		Int("page", page.PageNumber).
		Int("frames", len(page.Frames)).
		Msg("page processed")

	return nil
}

// options resolves effective detection options from config and stage params.
func (d *FrameDetector) options(params pipeline.Params) Options {
	return Options{
		Method:    pipeline.Get(params, ParamMethod, d.cfg.GetEffectiveMethod()),
		MinWidth:  pipeline.Get(params, ParamMinWidth, d.cfg.MinFrameWidth),
		MinHeight: pipeline.Get(params, ParamMinHeight, d.cfg.MinFrameHeight),
	}
}

// CacheKey implements pipeline.CacheKeyer. The key covers every page image's
// modification time plus the effective detection options, so re-rendered
// pages or changed settings miss the cache.
func (d *FrameDetector) CacheKey(input any, params pipeline.Params) (string, error) {
	pages, err := coercePages(input)
	if err != nil {
		return "", err
	}
	opts := d.options(params)

	var b strings.Builder
	fmt.Fprintf(&b, "detect:%s:%d:%d", opts.Method, opts.MinWidth, opts.MinHeight)
	for _, p := range pages {
		info, err := os.Stat(p.ImagePath)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, ":%s@%d", p.ImagePath, info.ModTime().UnixNano())
	}
	return b.String(), nil
}

// EncodeOutput implements pipeline.Codec.
func (d *FrameDetector) EncodeOutput(out any) ([]byte, error) {
	return json.Marshal(out)
}

// DecodeOutput implements pipeline.Codec, restoring the typed page list.
func (d *FrameDetector) DecodeOutput(data []byte) (any, error) {
	var pages []comic.Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// coercePages normalizes the accepted input shapes to a page slice.
func coercePages(input any) ([]comic.Page, error) {
	switch v := input.(type) {
	case []comic.Page:
		return v, nil
	case comic.Page:
		return []comic.Page{v}, nil
	case string:
		return []comic.Page{{ImagePath: v}}, nil
	default:
		return nil, fmt.Errorf("detect: unsupported input type %T, want pages or image path", input)
	}
}

// nextTotalNumber scans existing frame files and returns the next free
// document-wide frame number, so repeated runs never overwrite earlier
// frames.
func nextTotalNumber(frameDir string) int {
	entries, err := os.ReadDir(frameDir)
	if err != nil {
		return 1
	}
	maxTotal := 0
	for _, e := range entries {
		var page, frame, total int
		n, err := fmt.Sscanf(e.Name(), "page_%d_frame_%d_total_%d.png", &page, &frame, &total)
		if err == nil && n == 3 && total > maxTotal {
			maxTotal = total
		}
	}
	return maxTotal + 1
}

// ListFrameFiles returns the cropped frame files under a document's frame
// directory in total-number order.
func ListFrameFiles(documentDir string) ([]string, error) {
	frameDir := filepath.Join(documentDir, frameDirName)
	entries, err := os.ReadDir(frameDir)
	if err != nil {
		return nil, err
	}
	type numbered struct {
		path  string
		total int
	}
	var frames []numbered
	for _, e := range entries {
		var page, frame, total int
		n, err := fmt.Sscanf(e.Name(), "page_%d_frame_%d_total_%d.png", &page, &frame, &total)
		if err == nil && n == 3 {
			frames = append(frames, numbered{path: filepath.Join(frameDir, e.Name()), total: total})
		}
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].total < frames[j].total })
	paths := make([]string, len(frames))
	for i, f := range frames {
		paths[i] = f.path
	}
	return paths, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
