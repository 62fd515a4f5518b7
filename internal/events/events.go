// Package events publishes presence changes for other services.
package events

import (
	"context"
	"time"
)

const (
	VenueEntered = "venue.entered"
	VenueExited  = "venue.exited"
)

type Event struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	VenueID   string    `json:"venue_id"`
	VenueName string    `json:"venue_name,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
