package graph

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ErrEmptyViewport is returned when a frame has no pixels to draw on.
var ErrEmptyViewport = errors.New("viewport has no area")

var (
	backgroundColor = drawing.ColorFromHex("ffffff")
	gridColor       = drawing.ColorFromHex("d0d0d0")
	labelColor      = drawing.ColorFromHex("808080")
	markerColor     = drawing.ColorFromHex("ff9933")
	traceColor      = drawing.ColorFromHex("0066cc")
)

// Rasterize draws frame onto a new image the size of its viewport. The caller's
// current image is never touched, so a failure leaves the previous frame intact.
func Rasterize(frame Frame) (*image.RGBA, error) {
	vp := frame.Scale.Viewport
	if !vp.Valid() {
		return nil, ErrEmptyViewport
	}

	img := image.NewRGBA(image.Rect(0, 0, vp.Width, vp.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	gc, err := drawing.NewRasterGraphicContext(img)
	if err != nil {
		return nil, fmt.Errorf("create graphic context: %w", err)
	}

	width := float64(vp.Width)
	height := float64(vp.Height)
	// Row of a graph-space y, centred on the pixel.
	row := func(y int) float64 { return height + float64(y) - 0.5 }

	gc.SetLineWidth(1)
	gc.SetStrokeColor(gridColor)
	for _, line := range frame.Gridlines {
		y := row(-line.Offset)
		gc.MoveTo(0, y)
		gc.LineTo(width, y)
		gc.Stroke()
	}

	gc.SetStrokeColor(markerColor)
	for _, x := range frame.Markers {
		gc.MoveTo(float64(x)+0.5, 0)
		gc.LineTo(float64(x)+0.5, height)
		gc.Stroke()
	}

	if len(frame.Trace) > 1 {
		gc.SetLineWidth(2)
		gc.SetStrokeColor(traceColor)
		gc.MoveTo(float64(frame.Trace[0].X), row(frame.Trace[0].Y))
		for _, p := range frame.Trace[1:] {
			gc.LineTo(float64(p.X), row(p.Y))
		}
		gc.Stroke()
	}

	drawLabels(img, frame.Gridlines)
	return img, nil
}

func drawLabels(img *image.RGBA, lines []Gridline) {
	height := img.Bounds().Dy()
	drawer := &font.Drawer{Dst: img, Src: image.NewUniform(labelColor), Face: basicfont.Face7x13}
	for _, line := range lines {
		drawer.Dot = fixed.Point26_6{X: fixed.I(2), Y: fixed.I(height - line.Offset - 2)}
		drawer.DrawString(line.Label)
	}
}

// EncodePNG serialises a rendered frame for the view layer.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
