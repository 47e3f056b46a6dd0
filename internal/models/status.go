package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/kiln-console/internal/constants"
)

// DeviceStatus is the controller state reported by the status endpoint.
type DeviceStatus struct {
	PV          float64 `json:"pv"`          // Process value (measured temperature)
	SV          float64 `json:"sv"`          // Setpoint value
	ElapsedTime int64   `json:"elapsedTime"` // Seconds elapsed in the current firing
	PlannedTime int64   `json:"plannedTime"` // Seconds the current segment should take, 0 if unknown
	FiringID    *int64  `json:"firingID"`    // Active firing, nil or 0 when idle
	SegmentType int     `json:"segmentType"` // Phase of the active program
	LastTime    int64   `json:"lastTime"`    // Timestamp of the most recent logged sample
}

// HasActiveProgram reports whether a firing program is currently running.
func (s DeviceStatus) HasActiveProgram() bool {
	return s.FiringID != nil && *s.FiringID != 0
}

// ActiveFiringID returns the firing ID, or 0 when idle.
func (s DeviceStatus) ActiveFiringID() int64 {
	if !s.HasActiveProgram() {
		return 0
	}
	return *s.FiringID
}

// Paused reports whether the controller is sitting in a pause segment.
func (s DeviceStatus) Paused() bool {
	return s.SegmentType == constants.SegmentPause
}

type statusWire struct {
	PV          *float64 `json:"pv"`
	SV          *float64 `json:"sv"`
	ElapsedTime *int64   `json:"elapsedTime"`
	PlannedTime *int64   `json:"plannedTime"`
	FiringID    *int64   `json:"firingID"`
	SegmentType *int     `json:"segmentType"`
	LastTime    *int64   `json:"lastTime"`
}

// UnmarshalJSON decodes a status response, rejecting responses that lack the
// fields the console cannot do without.
func (s *DeviceStatus) UnmarshalJSON(data []byte) error {
	var wire statusWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	var missing []error
	if wire.PV == nil {
		missing = append(missing, errors.New("missing pv"))
	}
	if wire.SV == nil {
		missing = append(missing, errors.New("missing sv"))
	}
	if wire.SegmentType == nil {
		missing = append(missing, errors.New("missing segmentType"))
	}
	if wire.LastTime == nil {
		missing = append(missing, errors.New("missing lastTime"))
	}
	if len(missing) > 0 {
		return errors.Join(missing...)
	}

	*s = DeviceStatus{
		PV:          *wire.PV,
		SV:          *wire.SV,
		FiringID:    wire.FiringID,
		SegmentType: *wire.SegmentType,
		LastTime:    *wire.LastTime,
	}
	if wire.ElapsedTime != nil {
		s.ElapsedTime = *wire.ElapsedTime
	}
	if wire.PlannedTime != nil {
		s.PlannedTime = *wire.PlannedTime
	}
	return nil
}

// DisplayState is everything the console shows besides the graph.
type DisplayState struct {
	PV              float64   `json:"pv"`
	SV              float64   `json:"sv"`
	ElapsedSeconds  int64     `json:"elapsed_seconds"`
	Elapsed         string    `json:"elapsed"`
	PlannedSeconds  int64     `json:"planned_seconds"`
	Planned         string    `json:"planned"`
	FiringID        int64     `json:"firing_id"`
	ProgramName     string    `json:"program_name,omitempty"`
	PauseGlyph      string    `json:"pause_glyph"`
	IndicatorActive bool      `json:"indicator_active"`
	LastSampleTime  int64     `json:"last_sample_time"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ProjectDisplay derives the display fields from a status. The pause affordance
// is recomputed from segmentType alone so the UI cannot drift from the device.
func ProjectDisplay(status DeviceStatus, programName string, now time.Time) DisplayState {
	display := DisplayState{
		PV:             status.PV,
		SV:             status.SV,
		ElapsedSeconds: status.ElapsedTime,
		Elapsed:        FormatDuration(status.ElapsedTime),
		PlannedSeconds: status.PlannedTime,
		Planned:        FormatDuration(status.PlannedTime),
		FiringID:       status.ActiveFiringID(),
		LastSampleTime: status.LastTime,
		UpdatedAt:      now,
		PauseGlyph:     constants.GlyphPause,
	}
	if display.FiringID != 0 {
		display.ProgramName = programName
	}
	if status.Paused() {
		display.PauseGlyph = constants.GlyphResume
		display.IndicatorActive = true
	}
	return display
}

// FormatDuration renders seconds as h:mm:ss.
func FormatDuration(seconds int64) string {
	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%d:%02d:%02d", sign, seconds/3600, seconds/60%60, seconds%60)
}
