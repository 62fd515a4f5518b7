package checkin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldPrompt(t *testing.T) {
	now := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		lastConfirm time.Time
		active      bool
		want        bool
	}{
		{"no active place", now.Add(-time.Minute), false, true},
		{"cooldown at 29 minutes", now.Add(-29 * time.Minute), true, false},
		{"cooldown over at 31 minutes", now.Add(-31 * time.Minute), true, true},
		{"cooldown boundary", now.Add(-Cooldown), true, true},
		{"never confirmed", time.Time{}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldPrompt(now, tt.lastConfirm, tt.active))
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, RadiusM, cfg.RadiusM)
	assert.Equal(t, Cooldown, cfg.Cooldown)
	assert.Equal(t, 10.0, cfg.Watch.MinDistanceM)
}
