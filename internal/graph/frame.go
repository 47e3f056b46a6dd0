package graph

import (
	"image"
	"sort"
	"strconv"

	"github.com/benmeehan/kiln-console/internal/models"
)

// Gridline is a horizontal temperature line, Offset pixels above the bottom edge.
type Gridline struct {
	Offset int
	Label  string
}

// Frame is the display list for one redraw. Trace points use graph coordinates:
// X from Scale.X and Y from Scale.Y, relative to the bottom-left corner.
type Frame struct {
	Scale     Scale
	Latest    int64
	Gridlines []Gridline
	Markers   []int
	Trace     []image.Point
}

// TraceSegments returns the number of line segments in the trace polyline.
func (f Frame) TraceSegments() int {
	if len(f.Trace) < 2 {
		return 0
	}
	return len(f.Trace) - 1
}

// BuildFrame lays out the grid, segment markers and temperature trace for a
// history window ending at latest.
func BuildFrame(scale Scale, latest int64, history models.History) Frame {
	frame := Frame{
		Scale:     scale,
		Latest:    latest,
		Gridlines: gridlines(scale),
		Markers:   markers(scale, latest, history.Segments),
	}

	for _, sample := range history.Temps.Sorted() {
		point := image.Pt(scale.X(sample.Time, latest), scale.Y(sample.Temperature))
		// Coalesce samples that land on the pixel we just drew to.
		if n := len(frame.Trace); n > 0 && frame.Trace[n-1] == point {
			continue
		}
		frame.Trace = append(frame.Trace, point)
	}
	return frame
}

func gridlines(scale Scale) []Gridline {
	step := scale.PixelsPerHundredDegrees
	if step <= 0 {
		return nil
	}
	var lines []Gridline
	for k := 0; k*step < scale.Viewport.Height; k++ {
		lines = append(lines, Gridline{Offset: k * step, Label: strconv.Itoa(k * 100)})
	}
	return lines
}

func markers(scale Scale, latest int64, boundaries []models.SegmentBoundary) []int {
	seen := make(map[int]struct{}, len(boundaries))
	xs := make([]int, 0, len(boundaries))
	for _, boundary := range boundaries {
		x := scale.X(int64(boundary), latest)
		if x < 0 || x > scale.Viewport.Width {
			continue
		}
		if _, dup := seen[x]; dup {
			continue
		}
		seen[x] = struct{}{}
		xs = append(xs, x)
	}
	sort.Ints(xs)
	return xs
}
