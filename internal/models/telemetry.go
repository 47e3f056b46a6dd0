package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Sample is one logged temperature reading.
type Sample struct {
	Time        int64   `json:"time"`        // Unix seconds
	Temperature float64 `json:"temperature"` // Degrees, in the controller's unit
}

// Series is a window of samples returned by one history fetch.
type Series []Sample

// Sorted returns a copy of the series ordered by timestamp. Samples with equal
// timestamps keep their relative order.
func (s Series) Sorted() Series {
	out := make(Series, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// SegmentBoundary is the timestamp of a transition between program segments.
type SegmentBoundary int64

// History is the decoded response of the log endpoint.
type History struct {
	StartTime int64
	Segments  []SegmentBoundary
	Temps     Series
}

type historyWire struct {
	StartTime *int64                     `json:"startTime"`
	Segments  map[string]json.RawMessage `json:"segments"`
	Temps     [][]float64                `json:"temps"`
}

// UnmarshalJSON decodes the log response. A missing temps or segments member is an
// empty window; malformed pairs or non-numeric boundary keys are rejected.
func (h *History) UnmarshalJSON(data []byte) error {
	var wire historyWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.StartTime == nil {
		return errors.New("missing startTime")
	}

	temps := make(Series, 0, len(wire.Temps))
	for i, pair := range wire.Temps {
		if len(pair) != 2 {
			return fmt.Errorf("temps[%d]: expected [timestamp, temperature], got %d values", i, len(pair))
		}
		temps = append(temps, Sample{Time: int64(pair[0]), Temperature: pair[1]})
	}

	segments := make([]SegmentBoundary, 0, len(wire.Segments))
	for key := range wire.Segments {
		ts, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("segments: invalid timestamp key %q", key)
		}
		segments = append(segments, SegmentBoundary(ts))
	}

	h.StartTime = *wire.StartTime
	h.Segments = segments
	h.Temps = temps
	return nil
}
