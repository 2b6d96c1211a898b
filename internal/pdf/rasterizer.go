// Package pdf provides the page rasterization stage: it renders each page of
// a PDF document to a PNG image using MuPDF via go-fitz.
package pdf

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"

	"github.com/omarluq/comicframes/internal/comic"
	"github.com/omarluq/comicframes/internal/pipeline"
)

// Param keys recognized by the rasterizer.
const (
	// ParamOutputDir overrides the base directory pages are rendered into.
	ParamOutputDir = "output_dir"
)

// Rasterizer converts a PDF document into per-page PNG images under
// <base>/<document-stem>/raw_image/. It implements pipeline.Worker; its
// input is the PDF path and its output is the rendered []comic.Page.
type Rasterizer struct {
	dataDir string
	log     zerolog.Logger
}

// NewRasterizer creates a rasterizer writing under dataDir by default.
func NewRasterizer(dataDir string, log zerolog.Logger) *Rasterizer {
	return &Rasterizer{
		dataDir: dataDir,
		log:     log.With().Str("component", "rasterizer").Logger(),
	}
}

// Name implements pipeline.Worker.
func (r *Rasterizer) Name() string {
	return "pdf_rasterizer"
}

// Work renders every page of the input document to disk.
func (r *Rasterizer) Work(ctx context.Context, input any, params pipeline.Params) (any, error) {
	pdfPath, ok := input.(string)
	if !ok {
		return nil, fmt.Errorf("pdf: unsupported input type %T, want document path", input)
	}
	if _, err := os.Stat(pdfPath); err != nil {
		return nil, fmt.Errorf("pdf: document not found: %w", err)
	}

	outBase := pipeline.Get(params, ParamOutputDir, r.dataDir)
	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	imageDir := filepath.Join(outBase, stem, "raw_image")
	if err := os.MkdirAll(imageDir, 0o750); err != nil {
		return nil, fmt.Errorf("pdf: create output directory: %w", err)
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("pdf: open document: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	pages := make([]comic.Page, 0, pageCount)

	for pageNum := range pageCount {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.Image(pageNum)
		if err != nil {
			return nil, fmt.Errorf("pdf: render page %d: %w", pageNum, err)
		}

		imagePath := filepath.Join(imageDir, fmt.Sprintf("comic_page_%d.png", pageNum))
		if err := savePNG(imagePath, img); err != nil {
			return nil, fmt.Errorf("pdf: save page %d: %w", pageNum, err)
		}

		bounds := img.Bounds()
		pages = append(pages, comic.Page{
			PageNumber:     pageNum,
			ImagePath:      imagePath,
			SourceDocument: pdfPath,
			Width:          bounds.Dx(),
			Height:         bounds.Dy(),
		})
	}

	r.log.Info().
		Str("document", pdfPath).
		Int("pages", len(pages)).
		Str("output", imageDir).
		Msg("document rasterized")

	return pages, nil
}

// CacheKey implements pipeline.CacheKeyer. The key incorporates the source
// file's modification time so an edited document always misses the cache.
func (r *Rasterizer) CacheKey(input any, params pipeline.Params) (string, error) {
	pdfPath, ok := input.(string)
	if !ok {
		return "", fmt.Errorf("pdf: unsupported input type %T", input)
	}
	info, err := os.Stat(pdfPath)
	if err != nil {
		return "", err
	}
	outBase := pipeline.Get(params, ParamOutputDir, r.dataDir)
	return fmt.Sprintf("pdf:%s:%s:%d", pdfPath, outBase, info.ModTime().UnixNano()), nil
}

// EncodeOutput implements pipeline.Codec.
func (r *Rasterizer) EncodeOutput(out any) ([]byte, error) {
	return json.Marshal(out)
}

// DecodeOutput implements pipeline.Codec, restoring the typed page list.
func (r *Rasterizer) DecodeOutput(data []byte) (any, error) {
	var pages []comic.Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

func savePNG(path string, img image.Image) error {
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
