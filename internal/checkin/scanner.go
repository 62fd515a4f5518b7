package checkin

import (
	"context"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/presence"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"
	"github.com/azrayildirim/mekandamobil/internal/shared/geo"
	"github.com/azrayildirim/mekandamobil/internal/venue"

	"github.com/rs/zerolog"
)

type VenueLister interface {
	List(ctx context.Context) ([]venue.Venue, error)
}

type Leaver interface {
	LeaveVenue(ctx context.Context, userID, venueID string, session presence.SessionState) error
}

type Scanner struct {
	venues VenueLister
	leaver Leaver
	cfg    Config
	now    func() time.Time
	log    zerolog.Logger
}

func NewScanner(venues VenueLister, leaver Leaver, cfg Config, log zerolog.Logger) *Scanner {
	return &Scanner{venues: venues, leaver: leaver, cfg: cfg.withDefaults(), now: time.Now, log: log}
}

// Scan returns the venues in range of loc. While the cooldown holds it does
// nothing and returns no candidates. When the active venue has fallen out of
// range the user is checked out of it first.
func (s *Scanner) Scan(ctx context.Context, userID string, session *Session, loc geo.Coordinate) ([]Candidate, error) {
	active, hasActive, err := session.ActivePlace(ctx)
	if err != nil {
		return nil, apperr.Read("read check-in state", err)
	}
	last, err := session.LastConfirm(ctx)
	if err != nil {
		return nil, apperr.Read("read check-in state", err)
	}
	if !shouldPrompt(s.now(), last, hasActive, s.cfg.Cooldown) {
		s.log.Debug().Str("action", "scan_suppressed").Str("user_id", userID).Msg("cooldown active")
		return nil, nil
	}

	venues, err := s.venues.List(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("action", "scan_list_failed").Str("user_id", userID).Msg("venue list unavailable")
		return nil, apperr.Read("list venues", err)
	}
	candidates := Nearby(loc, venues, s.cfg.RadiusM)

	if hasActive && !contains(candidates, active) {
		if err := s.leaver.LeaveVenue(ctx, userID, active, session); err != nil {
			return nil, err
		}
		s.log.Info().Str("action", "left_out_of_range").Str("user_id", userID).Str("venue_id", active).Msg("active venue out of range")
	}

	if s.cfg.NearestFirst {
		NearestFirst(candidates)
	}
	return candidates, nil
}
