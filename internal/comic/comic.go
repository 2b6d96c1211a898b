// Package comic holds the domain types shared by the rasterization and
// detection stages: pages, frames, and their geometry.
package comic

import (
	"fmt"
	"image"
)

// BoundingBox is an axis-aligned rectangle in page pixel coordinates.
type BoundingBox struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}

// X2 returns the right edge x-coordinate.
func (b BoundingBox) X2() int {
	return b.X + b.Width
}

// Y2 returns the bottom edge y-coordinate.
func (b BoundingBox) Y2() int {
	return b.Y + b.Height
}

// Center returns the center point of the box.
func (b BoundingBox) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Area returns the box area in pixels.
func (b BoundingBox) Area() int {
	return b.Width * b.Height
}

// Rect converts the box to an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X2(), b.Y2())
}

// Contains reports whether other lies entirely within b.
func (b BoundingBox) Contains(other BoundingBox) bool {
	return other.X >= b.X && other.Y >= b.Y &&
		other.X2() <= b.X2() && other.Y2() <= b.Y2()
}

// Frame is one detected panel on a page.
type Frame struct {
	BBox BoundingBox `json:"bbox"`

	// ImagePath is where the cropped frame image was saved, if it was.
	ImagePath string `json:"image_path,omitempty"`

	PageNumber int `json:"page_number"`

	// FrameNumber counts frames within the page, starting at 1.
	FrameNumber int `json:"frame_number"`

	// TotalFrameNumber counts frames across the whole document, continuing
	// any numbering already present in the output directory.
	TotalFrameNumber int `json:"total_frame_number"`

	// DetectionMethod records which detector produced the frame.
	DetectionMethod string `json:"detection_method,omitempty"`

	Confidence float64 `json:"confidence,omitempty"`
}

// FileName returns the canonical file name for the cropped frame image.
func (f Frame) FileName() string {
	return fmt.Sprintf("page_%d_frame_%d_total_%d.png", f.PageNumber, f.FrameNumber, f.TotalFrameNumber)
}

// Page is one rasterized document page and its detected frames.
type Page struct {
	// ImagePath is the rendered page image on disk.
	ImagePath string `json:"image_path"`

	// SourceDocument is the document the page was rendered from.
	SourceDocument string `json:"source_document,omitempty"`

	Frames []Frame `json:"frames,omitempty"`

	PageNumber int `json:"page_number"`
	Width      int `json:"width"`
	Height     int `json:"height"`
}

// AddFrame appends a frame, stamping it with the page number.
func (p *Page) AddFrame(f Frame) {
	f.PageNumber = p.PageNumber
	p.Frames = append(p.Frames, f)
}

// FrameCount returns the number of frames detected on the page.
func (p *Page) FrameCount() int {
	return len(p.Frames)
}
