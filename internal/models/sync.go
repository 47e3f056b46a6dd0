package models

import "math"

// Unset marks a SyncState field that has not been recorded yet.
const Unset int64 = math.MinInt64

// Viewport is the pixel size of the graph surface.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (v Viewport) Valid() bool {
	return v.Width > 0 && v.Height > 0
}

// SyncState remembers which sample time the graph was last refreshed for. It is a
// value: every transition returns a new SyncState and leaves the receiver alone.
type SyncState struct {
	LastSampleTimeSeen int64 // lastTime that triggered the most recent redraw
	LastGraphedTime    int64 // lastTime of the most recent successful redraw
}

// NewSyncState returns a state that forces a redraw on the next eligible tick.
func NewSyncState() SyncState {
	return SyncState{LastSampleTimeSeen: Unset, LastGraphedTime: Unset}
}

// Reset forgets both markers; used when the viewport changes.
func (s SyncState) Reset() SyncState {
	return NewSyncState()
}

// ShouldRedraw reports whether a status carrying lastTime warrants a new frame.
// The sample time must differ from the one already drawn, and at least one pixel
// column (pixelsPerHour/3600 px per second) must have passed since the last frame.
// A lastTime older than the last frame means the controller's log was reset or
// its clock moved back, and always redraws.
func (s SyncState) ShouldRedraw(lastTime int64, pixelsPerHour int) bool {
	if lastTime == s.LastSampleTimeSeen {
		return false
	}
	if s.LastGraphedTime == Unset {
		return true
	}
	if pixelsPerHour <= 0 {
		return false
	}
	if lastTime < s.LastGraphedTime {
		return true
	}
	return (lastTime-s.LastGraphedTime)*int64(pixelsPerHour) >= 3600
}

// Triggered records that a redraw was requested for lastTime.
func (s SyncState) Triggered(lastTime int64) SyncState {
	s.LastSampleTimeSeen = lastTime
	return s
}

// Committed records a successful redraw for lastTime. The trigger marker is left
// alone: a newer trigger may already be waiting behind this redraw.
func (s SyncState) Committed(lastTime int64) SyncState {
	s.LastGraphedTime = lastTime
	return s
}

// Failed clears the trigger marker so the next eligible tick retries. The last
// graphed time is kept.
func (s SyncState) Failed() SyncState {
	s.LastSampleTimeSeen = Unset
	return s
}
