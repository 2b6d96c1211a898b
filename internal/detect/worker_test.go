package detect

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/comicframes/internal/comic"
	"github.com/omarluq/comicframes/internal/config"
	"github.com/omarluq/comicframes/internal/pipeline"
)

func testDetectionConfig() config.DetectionConfig {
	return config.DetectionConfig{
		Method:         "threshold",
		MinFrameWidth:  50,
		MinFrameHeight: 50,
	}
}

// writeTestPage renders a two-frame page under <dir>/<doc>/raw_image/ and
// returns its path.
func writeTestPage(t *testing.T, docDir string) string {
	t.Helper()
	img := newPage(400, 300)
	fillRect(img, 20, 20, 100, 120)
	fillRect(img, 200, 20, 100, 120)

	imageDir := filepath.Join(docDir, "raw_image")
	require.NoError(t, os.MkdirAll(imageDir, 0o750))
	path := filepath.Join(imageDir, "comic_page_0.png")
	require.NoError(t, writePNG(path, img))
	return path
}

func TestFrameDetector_Work(t *testing.T) {
	docDir := filepath.Join(t.TempDir(), "mycomic")
	pagePath := writeTestPage(t, docDir)

	d := NewFrameDetector(testDetectionConfig(), zerolog.Nop())
	out, err := d.Work(context.Background(), []comic.Page{{ImagePath: pagePath, PageNumber: 0}}, nil)
	require.NoError(t, err)

	pages, ok := out.([]comic.Page)
	require.True(t, ok)
	require.Len(t, pages, 1)
	require.Equal(t, 2, pages[0].FrameCount())

	// Frames were cropped into frame_data with canonical names
	frames := pages[0].Frames
	assert.Equal(t, 1, frames[0].FrameNumber)
	assert.Equal(t, 2, frames[1].FrameNumber)
	assert.Equal(t, 1, frames[0].TotalFrameNumber)
	assert.Equal(t, 2, frames[1].TotalFrameNumber)
	for _, f := range frames {
		assert.FileExists(t, f.ImagePath)
		assert.Equal(t, filepath.Join(docDir, "frame_data", f.FileName()), f.ImagePath)
	}
}

func TestFrameDetector_ContinuesTotalCounter(t *testing.T) {
	docDir := filepath.Join(t.TempDir(), "mycomic")
	pagePath := writeTestPage(t, docDir)

	// Frames from an earlier run already on disk
	frameDir := filepath.Join(docDir, "frame_data")
	require.NoError(t, os.MkdirAll(frameDir, 0o750))
	require.NoError(t, os.WriteFile(
		filepath.Join(frameDir, "page_0_frame_1_total_5.png"), []byte("x"), 0o600))

	d := NewFrameDetector(testDetectionConfig(), zerolog.Nop())
	out, err := d.Work(context.Background(), []comic.Page{{ImagePath: pagePath}}, nil)
	require.NoError(t, err)

	pages := out.([]comic.Page)
	require.Equal(t, 2, pages[0].FrameCount())
	assert.Equal(t, 6, pages[0].Frames[0].TotalFrameNumber)
	assert.Equal(t, 7, pages[0].Frames[1].TotalFrameNumber)
}

func TestFrameDetector_NoSaveParam(t *testing.T) {
	docDir := filepath.Join(t.TempDir(), "mycomic")
	pagePath := writeTestPage(t, docDir)

	d := NewFrameDetector(testDetectionConfig(), zerolog.Nop())
	out, err := d.Work(context.Background(), pagePath,
		pipeline.Params{ParamSaveFrames: false})
	require.NoError(t, err)

	pages := out.([]comic.Page)
	require.Equal(t, 2, pages[0].FrameCount())
	for _, f := range pages[0].Frames {
		assert.Empty(t, f.ImagePath)
	}
	assert.NoDirExists(t, filepath.Join(docDir, "frame_data"))
}

func TestFrameDetector_ParamOverrides(t *testing.T) {
	docDir := filepath.Join(t.TempDir(), "mycomic")
	pagePath := writeTestPage(t, docDir)

	// Raised minimums reject both 100x120 frames
	d := NewFrameDetector(testDetectionConfig(), zerolog.Nop())
	out, err := d.Work(context.Background(), pagePath, pipeline.Params{
		ParamMinWidth:   150,
		ParamMinHeight:  150,
		ParamSaveFrames: false,
	})
	require.NoError(t, err)

	pages := out.([]comic.Page)
	assert.Equal(t, 0, pages[0].FrameCount())
}

func TestFrameDetector_UnsupportedInput(t *testing.T) {
	d := NewFrameDetector(testDetectionConfig(), zerolog.Nop())
	_, err := d.Work(context.Background(), 42, nil)
	require.Error(t, err)
}

func TestFrameDetector_CodecRoundTrip(t *testing.T) {
	d := NewFrameDetector(testDetectionConfig(), zerolog.Nop())
	pages := []comic.Page{{
		ImagePath:  "/tmp/page.png",
		PageNumber: 3,
		Frames: []comic.Frame{{
			BBox:             comic.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4},
			PageNumber:       3,
			FrameNumber:      1,
			TotalFrameNumber: 9,
		}},
	}}

	blob, err := d.EncodeOutput(pages)
	require.NoError(t, err)
	decoded, err := d.DecodeOutput(blob)
	require.NoError(t, err)

	// The typed codec restores []comic.Page, not generic JSON values
	got, ok := decoded.([]comic.Page)
	require.True(t, ok)
	assert.Equal(t, pages, got)
}

func TestFrameDetector_CacheKeyTracksImageChanges(t *testing.T) {
	docDir := filepath.Join(t.TempDir(), "mycomic")
	pagePath := writeTestPage(t, docDir)

	d := NewFrameDetector(testDetectionConfig(), zerolog.Nop())
	input := []comic.Page{{ImagePath: pagePath}}

	key1, err := d.CacheKey(input, nil)
	require.NoError(t, err)
	key2, err := d.CacheKey(input, nil)
	require.NoError(t, err)
	assert.Equal(t, key1, key2, "key must be stable for an unchanged image")

	// Different detection params produce a different key
	key3, err := d.CacheKey(input, pipeline.Params{ParamMethod: "edge"})
	require.NoError(t, err)
	assert.NotEqual(t, key1, key3)

	// A missing image fails derivation so caching is skipped
	_, err = d.CacheKey([]comic.Page{{ImagePath: filepath.Join(docDir, "gone.png")}}, nil)
	require.Error(t, err)
}

func TestNextTotalNumber(t *testing.T) {
	dir := t.TempDir()

	if got := nextTotalNumber(dir); got != 1 {
		t.Errorf("nextTotalNumber(empty) = %d, want 1", got)
	}

	for _, name := range []string{
		"page_0_frame_1_total_1.png",
		"page_0_frame_2_total_2.png",
		"page_1_frame_1_total_3.png",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	if got := nextTotalNumber(dir); got != 4 {
		t.Errorf("nextTotalNumber = %d, want 4", got)
	}
}

func TestListFrameFiles(t *testing.T) {
	docDir := t.TempDir()
	frameDir := filepath.Join(docDir, "frame_data")
	require.NoError(t, os.MkdirAll(frameDir, 0o750))

	// Written out of order; listing sorts by total number
	for _, name := range []string{
		"page_1_frame_1_total_3.png",
		"page_0_frame_1_total_1.png",
		"page_0_frame_2_total_2.png",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(frameDir, name), []byte("x"), 0o600))
	}

	files, err := ListFrameFiles(docDir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Contains(t, files[0], "total_1")
	assert.Contains(t, files[1], "total_2")
	assert.Contains(t, files[2], "total_3")
}
