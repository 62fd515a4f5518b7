package location

import (
	"time"

	"github.com/azrayildirim/mekandamobil/internal/shared/geo"
)

// Fix is one location sample reported by a device.
type Fix struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	AccuracyM  float64        `json:"accuracy_m,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

type Accuracy string

const (
	AccuracyHigh     Accuracy = "high"
	AccuracyBalanced Accuracy = "balanced"
	AccuracyLow      Accuracy = "low"
)

// Options configure a Watch. Fixes closer than MinDistanceM to the last
// delivered one are dropped.
type Options struct {
	MinDistanceM float64  `json:"min_distance_m"`
	Accuracy     Accuracy `json:"accuracy"`
}

func DefaultOptions() Options {
	return Options{MinDistanceM: 10, Accuracy: AccuracyHigh}
}
