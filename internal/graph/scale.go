// Package graph maps a temperature history onto the console's raster surface.
//
// Both axes share one scale factor: pixelsPerHundredDegrees equals pixelsPerHour,
// so a rate of 100 degrees per hour is drawn as a 45 degree line. The coupling is
// intentional and must be revisited if the display units ever diverge.
package graph

import (
	"math"

	"github.com/benmeehan/kiln-console/internal/models"
)

// Scale holds the axis factors derived from a viewport.
type Scale struct {
	Viewport                models.Viewport
	PixelsPerHundredDegrees int
	PixelsPerHour           int
	WindowSeconds           int64 // Seconds of history that fit the viewport width
}

// NewScale derives the axis factors for vp.
func NewScale(vp models.Viewport) Scale {
	perHundred := int(round(float64(vp.Height) / 16))
	scale := Scale{
		Viewport:                vp,
		PixelsPerHundredDegrees: perHundred,
		PixelsPerHour:           perHundred,
	}
	if perHundred > 0 && vp.Width > 0 {
		scale.WindowSeconds = round(3600 * float64(vp.Width) / float64(perHundred))
	}
	return scale
}

// Degenerate reports whether the viewport is too small to show any history.
func (s Scale) Degenerate() bool {
	return s.PixelsPerHour <= 0 || s.WindowSeconds <= 0
}

// Origin is the timestamp drawn at x=0 when latest is the newest sample.
func (s Scale) Origin(latest int64) int64 {
	return latest - s.WindowSeconds
}

// X maps timestamp t to a column, with latest at the right edge.
func (s Scale) X(t, latest int64) int {
	return int(round(float64(t-s.Origin(latest)) * float64(s.PixelsPerHour) / 3600))
}

// Y maps a temperature to a row offset from the bottom edge. Values grow upward,
// so the result is zero or negative for non-negative temperatures.
func (s Scale) Y(v float64) int {
	return -int(round(v * float64(s.PixelsPerHundredDegrees) / 100))
}

// round rounds half up, matching the convention the controller UI was designed with.
func round(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}
