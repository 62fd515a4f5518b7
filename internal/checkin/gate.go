// Package checkin runs the proximity check-in flow of one device: it scans
// venues around each location fix, prompts for the first new one in range and
// records the answer.
package checkin

import (
	"time"

	"github.com/azrayildirim/mekandamobil/internal/location"
)

const (
	Cooldown = 30 * time.Minute
	RadiusM  = 100.0
	// DeviceIdle is how long a device nobody holds keeps its in-memory session.
	DeviceIdle = 30 * time.Minute
)

// Config tunes the flow. The zero value falls back to the package defaults.
type Config struct {
	RadiusM  float64
	Cooldown time.Duration
	// NearestFirst orders candidates by distance instead of storage order.
	NearestFirst bool
	Watch        location.Options
	DeviceIdle   time.Duration
}

func DefaultConfig() Config {
	return Config{RadiusM: RadiusM, Cooldown: Cooldown, Watch: location.DefaultOptions(), DeviceIdle: DeviceIdle}
}

func (c Config) withDefaults() Config {
	if c.RadiusM <= 0 {
		c.RadiusM = RadiusM
	}
	if c.Cooldown <= 0 {
		c.Cooldown = Cooldown
	}
	if c.DeviceIdle <= 0 {
		c.DeviceIdle = DeviceIdle
	}
	if c.Watch.MinDistanceM <= 0 {
		c.Watch.MinDistanceM = location.DefaultOptions().MinDistanceM
	}
	if c.Watch.Accuracy == "" {
		c.Watch.Accuracy = location.AccuracyHigh
	}
	return c
}

// ShouldPrompt reports whether a scan may run. It is false only while the user
// holds an active venue confirmed less than Cooldown ago. A zero lastConfirm
// never suppresses.
func ShouldPrompt(now, lastConfirm time.Time, hasActivePlace bool) bool {
	return shouldPrompt(now, lastConfirm, hasActivePlace, Cooldown)
}

func shouldPrompt(now, lastConfirm time.Time, hasActivePlace bool, cooldown time.Duration) bool {
	if !hasActivePlace || lastConfirm.IsZero() {
		return true
	}
	return now.Sub(lastConfirm) >= cooldown
}
