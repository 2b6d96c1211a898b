package detect

import (
	"image"
	"image/color"
	"testing"

	"github.com/omarluq/comicframes/internal/comic"
)

// newPage builds a white test page image.
func newPage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.White)
		}
	}
	return img
}

// fillRect paints a filled black rectangle.
func fillRect(img *image.RGBA, x, y, w, h int) {
	for dy := range h {
		for dx := range w {
			img.Set(x+dx, y+dy, color.Black)
		}
	}
}

// outlineRect paints a 2px black rectangle border.
func outlineRect(img *image.RGBA, x, y, w, h int) {
	fillRect(img, x, y, w, 2)
	fillRect(img, x, y+h-2, w, 2)
	fillRect(img, x, y, 2, h)
	fillRect(img, x+w-2, y, 2, h)
}

func TestDetect_FindsFramesInReadingOrder(t *testing.T) {
	img := newPage(400, 400)
	// Top row: two frames side by side. Bottom: one frame.
	fillRect(img, 20, 20, 100, 120)
	fillRect(img, 200, 20, 100, 120)
	fillRect(img, 20, 200, 150, 120)

	boxes := Detect(img, Options{Method: "threshold", MinWidth: 50, MinHeight: 50})

	if len(boxes) != 3 {
		t.Fatalf("Detect found %d boxes, want 3", len(boxes))
	}

	// Reading order: top-left, top-right, then bottom
	if boxes[0].X != 20 || boxes[0].Y != 20 {
		t.Errorf("first box at (%d,%d), want (20,20)", boxes[0].X, boxes[0].Y)
	}
	if boxes[1].X != 200 || boxes[1].Y != 20 {
		t.Errorf("second box at (%d,%d), want (200,20)", boxes[1].X, boxes[1].Y)
	}
	if boxes[2].Y != 200 {
		t.Errorf("third box at y=%d, want 200", boxes[2].Y)
	}

	if boxes[0].Width != 100 || boxes[0].Height != 120 {
		t.Errorf("first box %dx%d, want 100x120", boxes[0].Width, boxes[0].Height)
	}
}

func TestDetect_MinSizeFilter(t *testing.T) {
	img := newPage(300, 300)
	fillRect(img, 10, 10, 100, 120) // valid frame
	fillRect(img, 200, 200, 20, 20) // speck, below minimums

	boxes := Detect(img, Options{Method: "threshold", MinWidth: 75, MinHeight: 100})

	if len(boxes) != 1 {
		t.Fatalf("Detect found %d boxes, want 1 after size filter", len(boxes))
	}
	if boxes[0].X != 10 || boxes[0].Y != 10 {
		t.Errorf("kept box at (%d,%d), want (10,10)", boxes[0].X, boxes[0].Y)
	}
}

func TestDetect_NestedBoxesSuppressed(t *testing.T) {
	img := newPage(300, 300)
	// A frame border with separate content inside it
	outlineRect(img, 20, 20, 200, 220)
	fillRect(img, 60, 60, 80, 100)

	boxes := Detect(img, Options{Method: "threshold", MinWidth: 50, MinHeight: 50})

	if len(boxes) != 1 {
		t.Fatalf("Detect found %d boxes, want 1 after nested suppression", len(boxes))
	}
	if boxes[0].Width != 200 || boxes[0].Height != 220 {
		t.Errorf("surviving box %dx%d, want outer 200x220", boxes[0].Width, boxes[0].Height)
	}
}

func TestDetect_EdgeMethod(t *testing.T) {
	img := newPage(300, 300)
	fillRect(img, 50, 50, 120, 140)

	boxes := Detect(img, Options{Method: "edge", MinWidth: 75, MinHeight: 100})

	if len(boxes) != 1 {
		t.Fatalf("Detect(edge) found %d boxes, want 1", len(boxes))
	}
	// Edge detection plus dilation lands within a few pixels of the shape
	b := boxes[0]
	if b.X < 45 || b.X > 55 || b.Y < 45 || b.Y > 55 {
		t.Errorf("edge box at (%d,%d), want near (50,50)", b.X, b.Y)
	}
	if b.Width < 110 || b.Width > 130 {
		t.Errorf("edge box width %d, want near 120", b.Width)
	}
}

func TestDetect_BlankPage(t *testing.T) {
	img := newPage(200, 200)

	boxes := Detect(img, Options{Method: "threshold", MinWidth: 10, MinHeight: 10})
	if len(boxes) != 0 {
		t.Errorf("Detect found %d boxes on a blank page, want 0", len(boxes))
	}
}

func TestCrop(t *testing.T) {
	img := newPage(100, 100)
	fillRect(img, 10, 10, 30, 40)

	cropped := Crop(img, comic.BoundingBox{X: 10, Y: 10, Width: 30, Height: 40})

	bounds := cropped.Bounds()
	if bounds.Dx() != 30 || bounds.Dy() != 40 {
		t.Errorf("Crop returned %dx%d, want 30x40", bounds.Dx(), bounds.Dy())
	}
	r, g, b, _ := cropped.At(bounds.Min.X, bounds.Min.Y).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Error("Crop top-left pixel is not the filled region")
	}
}
