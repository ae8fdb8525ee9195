package vio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Flow overlay colors
var (
	flowBG      = color.RGBA{240, 240, 240, 255}
	inlierColor = color.RGBA{0, 160, 0, 255}
	rejectColor = color.RGBA{200, 0, 0, 255}
	labelColor  = color.RGBA{0, 0, 0, 255}
)

// FlowRenderer draws one frame pair's correspondences as a flow field:
// a dot at the frame-1 position and a line to the frame-2 position, green
// for tracks that survived refinement and red for rejected ones.
type FlowRenderer struct {
	Width   int
	Height  int
	Padding int
}

// NewFlowRenderer creates a renderer with default settings
func NewFlowRenderer() *FlowRenderer {
	return &FlowRenderer{
		Width:   800,
		Height:  600,
		Padding: 30,
	}
}

// Render creates the flow overlay image for a track set and its verdict.
// A nil verdict draws every track in the inlier color.
func (r *FlowRenderer) Render(ts *TrackSet, v *Verdict) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			img.Set(x, y, flowBG)
		}
	}

	minX, minY, maxX, maxY := trackBounds(ts)
	spanX := maxX - minX
	spanY := maxY - minY
	if spanX <= 0 {
		spanX = 1
	}
	if spanY <= 0 {
		spanY = 1
	}
	scale := math.Min(
		float64(r.Width-2*r.Padding)/spanX,
		float64(r.Height-2*r.Padding)/spanY,
	)

	toImage := func(p Point) (int, int) {
		x := int((p.X-minX)*scale) + r.Padding
		y := int((p.Y-minY)*scale) + r.Padding
		return x, y
	}

	for i := range ts.Points1 {
		c := inlierColor
		if v != nil && (i >= len(v.Flags) || v.Flags[i] == 0) {
			c = rejectColor
		}

		x1, y1 := toImage(ts.Points1[i])
		x2, y2 := toImage(ts.Points2[i])
		drawLine(img, x1, y1, x2, y2, c)
		drawDot(img, x1, y1, 2, c)
	}

	label := ts.Camera
	if v != nil {
		label = fmt.Sprintf("%s seq=%d inliers=%d/%d", ts.Camera, v.Seq, v.Inliers, v.Candidates)
	}
	drawText(img, 10, 15, label, labelColor)

	return img
}

// SavePNG renders the overlay and writes it to a file
func (r *FlowRenderer) SavePNG(ts *TrackSet, v *Verdict, path string) error {
	img := r.Render(ts, v)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return png.Encode(f, img)
}

// trackBounds computes the bounding box over both point sets
func trackBounds(ts *TrackSet) (minX, minY, maxX, maxY float64) {
	minX, minY = math.MaxFloat64, math.MaxFloat64
	maxX, maxY = -math.MaxFloat64, -math.MaxFloat64

	grow := func(p Point) {
		if p.X < minX {
			minX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	for _, p := range ts.Points1 {
		grow(p)
	}
	for _, p := range ts.Points2 {
		grow(p)
	}

	if len(ts.Points1) == 0 && len(ts.Points2) == 0 {
		return 0, 0, 1, 1
	}
	return
}

// drawLine draws a line between two pixels (Bresenham)
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := abs(x2 - x1)
	dy := -abs(y2 - y1)
	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}
	errTerm := dx + dy

	bounds := img.Bounds()
	for {
		if x1 >= bounds.Min.X && x1 < bounds.Max.X && y1 >= bounds.Min.Y && y1 < bounds.Max.Y {
			img.Set(x1, y1, c)
		}
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * errTerm
		if e2 >= dy {
			errTerm += dy
			x1 += sx
		}
		if e2 <= dx {
			errTerm += dx
			y1 += sy
		}
	}
}

// drawDot draws a filled circle
func drawDot(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	bounds := img.Bounds()
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
