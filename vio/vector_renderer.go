package vio

import (
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorFlowRenderer renders a frame pair's flow field as vector graphics,
// suitable for the /tracks.svg endpoint and for offline reports.
type VectorFlowRenderer struct {
	Width      float64 // Canvas width in mm
	Height     float64 // Canvas height in mm
	Padding    float64 // Padding in mm
	Resolution canvas.Resolution
}

// NewVectorFlowRenderer creates a vector renderer with default settings
func NewVectorFlowRenderer() *VectorFlowRenderer {
	return &VectorFlowRenderer{
		Width:      200,
		Height:     150,
		Padding:    10,
		Resolution: canvas.DPI(300),
	}
}

// canvasRenderer is the subset both the svg and rasterizer backends implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the flow field as an SVG to the provided writer
func (r *VectorFlowRenderer) RenderToSVG(ts *TrackSet, v *Verdict, w io.Writer) error {
	svgRenderer := svg.New(w, r.Width, r.Height, nil)
	r.renderToCanvas(svgRenderer, ts, v)
	return svgRenderer.Close()
}

// RenderToPNG rasterizes the flow field and writes it as a PNG
func (r *VectorFlowRenderer) RenderToPNG(ts *TrackSet, v *Verdict, w io.Writer) error {
	rast := rasterizer.New(r.Width, r.Height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, ts, v)
	return png.Encode(w, rast)
}

// renderToCanvas renders the flow field (shared logic for SVG and PNG)
func (r *VectorFlowRenderer) renderToCanvas(renderer canvasRenderer, ts *TrackSet, v *Verdict) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(r.Width, r.Height), bgStyle, canvas.Identity)

	minX, minY, maxX, maxY := trackBounds(ts)
	spanX := maxX - minX
	spanY := maxY - minY
	if spanX <= 0 {
		spanX = 1
	}
	if spanY <= 0 {
		spanY = 1
	}
	scale := math.Min((r.Width-2*r.Padding)/spanX, (r.Height-2*r.Padding)/spanY)

	toCanvas := func(p Point) (float64, float64) {
		cx := (p.X-minX)*scale + r.Padding
		// Canvas Y grows upward; flip so the image plane reads naturally
		cy := r.Height - ((p.Y-minY)*scale + r.Padding)
		return cx, cy
	}

	inlierStyle := canvas.DefaultStyle
	inlierStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	inlierStyle.Stroke = canvas.Paint{Color: canvas.Darkgreen}
	inlierStyle.StrokeWidth = 0.5

	rejectStyle := inlierStyle
	rejectStyle.Stroke = canvas.Paint{Color: canvas.Red}

	dotStyle := canvas.DefaultStyle
	dotStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	for i := range ts.Points1 {
		style := inlierStyle
		dotColor := canvas.Darkgreen
		if v != nil && (i >= len(v.Flags) || v.Flags[i] == 0) {
			style = rejectStyle
			dotColor = canvas.Red
		}

		x1, y1 := toCanvas(ts.Points1[i])
		x2, y2 := toCanvas(ts.Points2[i])

		flow := &canvas.Path{}
		flow.MoveTo(x1, y1)
		flow.LineTo(x2, y2)
		renderer.RenderPath(flow, style, canvas.Identity)

		ds := dotStyle
		ds.Fill = canvas.Paint{Color: dotColor}
		renderer.RenderPath(canvas.Circle(0.8).Translate(x1, y1), ds, canvas.Identity)
	}

	r.drawLegend(renderer)
}

// drawLegend draws inlier/outlier color swatches in the top-left corner.
// Text rendering in tdewolff/canvas requires font loading, so the legend
// stays symbolic; the raster renderer carries the textual summary.
func (r *VectorFlowRenderer) drawLegend(renderer canvasRenderer) {
	swatch := 3.0
	x := r.Padding / 2
	y := r.Height - r.Padding/2 - swatch

	inlierStyle := canvas.DefaultStyle
	inlierStyle.Fill = canvas.Paint{Color: canvas.Darkgreen}
	renderer.RenderPath(canvas.Rectangle(swatch, swatch).Translate(x, y), inlierStyle, canvas.Identity)

	rejectStyle := canvas.DefaultStyle
	rejectStyle.Fill = canvas.Paint{Color: canvas.Red}
	renderer.RenderPath(canvas.Rectangle(swatch, swatch).Translate(x+swatch*1.5, y), rejectStyle, canvas.Identity)
}
