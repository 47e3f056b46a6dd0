package constants

import "time"

// SegmentPause is the segmentType the controller reports while a program is paused.
// Every other value (AFAP, hold, ramp, idle) is treated as "not paused".
const SegmentPause = 3

// Controller endpoints, relative to the configured base URL.
const (
	EndpointStatus   = "status"
	EndpointLog      = "log"
	EndpointPrograms = "programs"
	EndpointProgram  = "program"
	EndpointCommand  = "command"
	EndpointDelete   = "delete"
)

// Pause/resume affordance glyphs shown by the UI.
const (
	GlyphPause  = "pause"
	GlyphResume = "resume"
)

const (
	DefaultPollInterval   = 1 * time.Second
	DefaultRequestTimeout = 5 * time.Second
	DefaultViewListen     = ":8080"
	DefaultViewportWidth  = 640
	DefaultViewportHeight = 320
	DefaultMirrorTopic    = "kiln/status"
	DefaultMirrorBuffer   = 16
	DefaultFetchWorkers   = 4
)
