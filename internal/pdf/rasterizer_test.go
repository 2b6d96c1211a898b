package pdf

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/comicframes/internal/comic"
	"github.com/omarluq/comicframes/internal/pipeline"
)

func TestRasterizer_RejectsBadInput(t *testing.T) {
	r := NewRasterizer(t.TempDir(), zerolog.Nop())
	ctx := context.Background()

	_, err := r.Work(ctx, 42, nil)
	require.Error(t, err)

	_, err = r.Work(ctx, filepath.Join(t.TempDir(), "missing.pdf"), nil)
	require.Error(t, err)
}

func TestRasterizer_CacheKey(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "comic.pdf")
	require.NoError(t, os.WriteFile(docPath, []byte("%PDF-1.4"), 0o600))

	r := NewRasterizer(dir, zerolog.Nop())

	key1, err := r.CacheKey(docPath, nil)
	require.NoError(t, err)
	key2, err := r.CacheKey(docPath, nil)
	require.NoError(t, err)
	assert.Equal(t, key1, key2, "key must be stable for an unchanged document")

	// A different output directory changes the key: rendered paths differ
	key3, err := r.CacheKey(docPath, pipeline.Params{ParamOutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.NotEqual(t, key1, key3)

	// A missing document fails derivation so caching is skipped
	_, err = r.CacheKey(filepath.Join(dir, "gone.pdf"), nil)
	require.Error(t, err)

	_, err = r.CacheKey(7, nil)
	require.Error(t, err)
}

func TestRasterizer_CodecRoundTrip(t *testing.T) {
	r := NewRasterizer(t.TempDir(), zerolog.Nop())
	pages := []comic.Page{{
		ImagePath:      "/data/mycomic/raw_image/comic_page_0.png",
		SourceDocument: "/docs/mycomic.pdf",
		PageNumber:     0,
		Width:          800,
		Height:         1200,
	}}

	blob, err := r.EncodeOutput(pages)
	require.NoError(t, err)
	decoded, err := r.DecodeOutput(blob)
	require.NoError(t, err)

	got, ok := decoded.([]comic.Page)
	require.True(t, ok)
	assert.Equal(t, pages, got)
}

func TestRasterizer_Name(t *testing.T) {
	r := NewRasterizer(t.TempDir(), zerolog.Nop())
	assert.Equal(t, "pdf_rasterizer", r.Name())
}
