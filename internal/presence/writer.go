package presence

import (
	"context"
	"errors"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/auth"
	"github.com/azrayildirim/mekandamobil/internal/events"
	"github.com/azrayildirim/mekandamobil/internal/realtime"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"
	"github.com/azrayildirim/mekandamobil/internal/user"
	"github.com/azrayildirim/mekandamobil/internal/venue"

	"github.com/rs/zerolog"
)

type ProfileReader interface {
	Profile(ctx context.Context, id string) (user.Profile, error)
}

// Writer records entries and exits. The venue store is always written before
// the realtime record, and a failure of either is returned to the caller.
type Writer struct {
	venues   *venue.Service
	rt       realtime.Store
	profiles ProfileReader
	events   events.Publisher
	log      zerolog.Logger
	now      func() time.Time
}

func NewWriter(venues *venue.Service, rt realtime.Store, profiles ProfileReader, pub events.Publisher, log zerolog.Logger) *Writer {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Writer{
		venues:   venues,
		rt:       rt,
		profiles: profiles,
		events:   pub,
		log:      log,
		now:      time.Now,
	}
}

// EnterVenue adds the user to the venue's active users unless already there
// and points the realtime record at the venue.
func (w *Writer) EnterVenue(ctx context.Context, venueID, userID string) error {
	v, err := w.venues.Get(ctx, venueID)
	if err != nil {
		return err
	}

	p, err := w.profiles.Profile(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		p = user.Profile{ID: userID, Name: user.UnnamedUser, Status: auth.DefaultStatus, AllowMessages: true}
	} else if err != nil {
		return err
	}

	entry := venue.ActiveUser{
		ID:            userID,
		Name:          p.Name,
		PhotoURL:      p.PhotoURL,
		Status:        p.Status,
		LastSeen:      w.now().UTC(),
		AllowMessages: p.AllowMessages,
		IsOnline:      true,
	}
	if err := w.venues.AddActiveUser(ctx, venueID, entry); err != nil {
		w.log.Error().Err(err).Str("action", "enter_venue_failed").Str("venue_id", venueID).Str("user_id", userID).Msg("venue store write failed")
		return err
	}

	err = w.rt.Write(ctx, StatusPath(userID), realtime.Value{
		"isOnline":     true,
		"lastSeen":     realtime.ServerTimestamp,
		"currentPlace": Place{ID: v.ID, Name: v.Name},
	})
	if err != nil {
		w.log.Error().Err(err).Str("action", "enter_venue_failed").Str("venue_id", venueID).Str("user_id", userID).Msg("presence write failed")
		return apperr.Write("write presence", err)
	}

	w.publish(ctx, events.VenueEntered, userID, v.ID, v.Name)
	w.log.Info().Str("action", "venue_entered").Str("venue_id", venueID).Str("user_id", userID).Msg("user checked in")
	return nil
}

// ExitVenue removes the user from the venue and clears the current place. The
// user stays online. Exiting a venue the user is not in, or one that no
// longer exists, only refreshes the realtime record.
func (w *Writer) ExitVenue(ctx context.Context, venueID, userID string) error {
	err := w.venues.RemoveActiveUser(ctx, venueID, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		w.log.Warn().Str("action", "exit_unknown_venue").Str("venue_id", venueID).Str("user_id", userID).Msg("venue gone")
	} else if err != nil {
		w.log.Error().Err(err).Str("action", "exit_venue_failed").Str("venue_id", venueID).Str("user_id", userID).Msg("venue store write failed")
		return err
	}

	err = w.rt.Write(ctx, StatusPath(userID), realtime.Value{
		"isOnline":     true,
		"lastSeen":     realtime.ServerTimestamp,
		"currentPlace": nil,
	})
	if err != nil {
		w.log.Error().Err(err).Str("action", "exit_venue_failed").Str("venue_id", venueID).Str("user_id", userID).Msg("presence write failed")
		return apperr.Write("write presence", err)
	}

	w.publish(ctx, events.VenueExited, userID, venueID, "")
	w.log.Info().Str("action", "venue_exited").Str("venue_id", venueID).Str("user_id", userID).Msg("user checked out")
	return nil
}

func (w *Writer) publish(ctx context.Context, kind, userID, venueID, venueName string) {
	err := w.events.Publish(ctx, events.Event{
		Type:      kind,
		UserID:    userID,
		VenueID:   venueID,
		VenueName: venueName,
		At:        w.now().UTC(),
	})
	if err != nil {
		w.log.Warn().Err(err).Str("action", "presence_event_failed").Str("type", kind).Str("user_id", userID).Msg("event dropped")
	}
}
