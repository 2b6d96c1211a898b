// Package detect provides the frame detection stage: it finds rectangular
// panel regions in a rasterized page image and extracts them as frames.
//
// Detection is deterministic and geometric: the page is binarized (by
// luminance threshold or by gradient edges), foreground pixels are grouped
// into connected components, and component bounding boxes are filtered by
// minimum size, cleared of nested boxes, and ordered top-to-bottom then
// left-to-right.
package detect

import (
	"image"
	"sort"

	"github.com/samber/lo"

	"github.com/omarluq/comicframes/internal/comic"
)

// Options control one detection run.
type Options struct {
	// Method is "threshold" (default) or "edge".
	Method string

	// MinWidth and MinHeight reject components smaller than a plausible
	// frame.
	MinWidth  int
	MinHeight int
}

// Detect finds frame bounding boxes in a page image.
func Detect(img image.Image, opts Options) []comic.BoundingBox {
	gray := luminance(img)

	var mask bitmask
	switch opts.Method {
	case "edge":
		mask = edgeMask(gray)
	default:
		mask = thresholdMask(gray)
	}

	boxes := componentBoxes(mask)

	boxes = lo.Filter(boxes, func(b comic.BoundingBox, _ int) bool {
		return b.Width >= opts.MinWidth && b.Height >= opts.MinHeight
	})
	boxes = suppressNested(boxes)
	sortReadingOrder(boxes)
	return boxes
}

// inkThreshold is the luminance below which a pixel counts as foreground in
// threshold mode. Page background is assumed near-white.
const inkThreshold = 225

// edgeThreshold is the minimum Sobel gradient magnitude for a pixel to count
// as an edge in edge mode.
const edgeThreshold = 40

// grayImage is a packed 8-bit luminance plane.
type grayImage struct {
	pix  []uint8
	w, h int
}

// bitmask marks foreground pixels.
type bitmask struct {
	set  []bool
	w, h int
}

func luminance(img image.Image) grayImage {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	g := grayImage{pix: make([]uint8, w*h), w: w, h: h}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, gr, b, _ := img.At(x, y).RGBA()
			// Rec. 601 luma on 16-bit channels scaled to 8-bit
			g.pix[i] = uint8((299*r + 587*gr + 114*b) / 1000 >> 8)
			i++
		}
	}
	return g
}

// thresholdMask marks every pixel darker than the ink threshold.
func thresholdMask(g grayImage) bitmask {
	m := bitmask{set: make([]bool, len(g.pix)), w: g.w, h: g.h}
	for i, v := range g.pix {
		m.set[i] = v < inkThreshold
	}
	return m
}

// edgeMask marks pixels with a strong Sobel gradient, then dilates once with
// a 3x3 kernel to close small gaps in panel borders.
func edgeMask(g grayImage) bitmask {
	edges := bitmask{set: make([]bool, len(g.pix)), w: g.w, h: g.h}
	at := func(x, y int) int {
		return int(g.pix[y*g.w+x])
	}
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			if gx < 0 {
				gx = -gx
			}
			if gy < 0 {
				gy = -gy
			}
			if gx+gy > edgeThreshold*4 {
				edges.set[y*g.w+x] = true
			}
		}
	}
	return dilate(edges)
}

func dilate(m bitmask) bitmask {
	out := bitmask{set: make([]bool, len(m.set)), w: m.w, h: m.h}
	for y := range m.h {
		for x := range m.w {
			if !m.set[y*m.w+x] {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx >= 0 && nx < m.w && ny >= 0 && ny < m.h {
						out.set[ny*m.w+nx] = true
					}
				}
			}
		}
	}
	return out
}

// componentBoxes groups foreground pixels into 8-connected components and
// returns each component's bounding box. An iterative scan with an explicit
// stack keeps recursion depth flat on large pages.
func componentBoxes(m bitmask) []comic.BoundingBox {
	visited := make([]bool, len(m.set))
	var boxes []comic.BoundingBox
	stack := make([]int, 0, 1024)

	for start, fg := range m.set {
		if !fg || visited[start] {
			continue
		}

		minX, minY := m.w, m.h
		maxX, maxY := 0, 0
		stack = append(stack[:0], start)
		visited[start] = true

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%m.w, idx/m.w

			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= m.w || ny < 0 || ny >= m.h {
						continue
					}
					nidx := ny*m.w + nx
					if m.set[nidx] && !visited[nidx] {
						visited[nidx] = true
						stack = append(stack, nidx)
					}
				}
			}
		}

		boxes = append(boxes, comic.BoundingBox{
			X:          minX,
			Y:          minY,
			Width:      maxX - minX + 1,
			Height:     maxY - minY + 1,
			Confidence: 1.0,
		})
	}
	return boxes
}

// suppressNested drops boxes entirely contained within another box, keeping
// only top-level regions.
func suppressNested(boxes []comic.BoundingBox) []comic.BoundingBox {
	return lo.Filter(boxes, func(b comic.BoundingBox, i int) bool {
		for j, outer := range boxes {
			if i == j {
				continue
			}
			if outer.Contains(b) && outer.Area() > b.Area() {
				return false
			}
		}
		return true
	})
}

// sortReadingOrder orders boxes top-to-bottom, then left-to-right.
func sortReadingOrder(boxes []comic.BoundingBox) {
	sort.SliceStable(boxes, func(i, j int) bool {
		if boxes[i].Y != boxes[j].Y {
			return boxes[i].Y < boxes[j].Y
		}
		return boxes[i].X < boxes[j].X
	})
}

// Crop extracts the sub-image for a bounding box.
func Crop(img image.Image, b comic.BoundingBox) image.Image {
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	rect := b.Rect().Add(img.Bounds().Min)
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	for y := range b.Height {
		for x := range b.Width {
			out.Set(x, y, img.At(rect.Min.X+x, rect.Min.Y+y))
		}
	}
	return out
}
