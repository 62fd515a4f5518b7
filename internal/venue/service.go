package venue

import (
	"context"
	"errors"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"
	"github.com/azrayildirim/mekandamobil/internal/stream"

	"github.com/rs/zerolog"
)

// Topic is the hub topic notified whenever any venue changes.
const Topic = "venues"

var ErrInvalidVenue = errors.New("venue name and a valid coordinate are required")

type Service struct {
	store Store
	hub   *stream.Hub
	log   zerolog.Logger
}

func NewService(store Store, hub *stream.Hub, log zerolog.Logger) *Service {
	return &Service{store: store, hub: hub, log: log}
}

func (s *Service) List(ctx context.Context) ([]Venue, error) {
	venues, err := s.store.List(ctx)
	if err != nil {
		return nil, apperr.Read("list venues", err)
	}
	return venues, nil
}

func (s *Service) Get(ctx context.Context, id string) (Venue, error) {
	v, err := s.store.Get(ctx, id)
	if err != nil {
		return Venue{}, apperr.Read("get venue", err)
	}
	return v, nil
}

func (s *Service) Create(ctx context.Context, input Venue) (Venue, error) {
	if input.Name == "" || !input.Coordinate.Valid() {
		return Venue{}, ErrInvalidVenue
	}
	v, err := s.store.Create(ctx, input)
	if err != nil {
		return Venue{}, apperr.Write("create venue", err)
	}
	s.changed(v.ID)
	return v, nil
}

// AddActiveUser inserts u into the venue's active users unless already present.
func (s *Service) AddActiveUser(ctx context.Context, venueID string, u ActiveUser) error {
	if err := s.store.AddActiveUser(ctx, venueID, u); err != nil {
		return apperr.Write("add active user", err)
	}
	s.changed(venueID)
	return nil
}

// RemoveActiveUser is a no-op when the user is not checked in.
func (s *Service) RemoveActiveUser(ctx context.Context, venueID, userID string) error {
	if err := s.store.RemoveActiveUser(ctx, venueID, userID); err != nil {
		return apperr.Write("remove active user", err)
	}
	s.changed(venueID)
	return nil
}

func (s *Service) RefreshActiveUser(ctx context.Context, userID string, patch ProfilePatch) (int64, error) {
	n, err := s.store.RefreshActiveUser(ctx, userID, patch, time.Now().UTC())
	if err != nil {
		return 0, apperr.Write("refresh active user", err)
	}
	if n > 0 {
		s.changed("")
	}
	return n, nil
}

// Subscribe delivers the full venue list now and after every change until the
// returned func is called.
func (s *Service) Subscribe(onChange func([]Venue), onError func(error)) func() {
	client := s.hub.Register(Topic)
	ctx, cancel := context.WithCancel(context.Background())

	push := func() {
		venues, err := s.List(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			onError(err)
			return
		}
		onChange(venues)
	}

	go func() {
		push()
		for range client.Send {
			push()
		}
	}()

	return func() {
		cancel()
		s.hub.Unregister(client)
	}
}

func (s *Service) changed(venueID string) {
	s.hub.Broadcast(Topic, []byte(venueID))
	s.log.Debug().Str("action", "venue_changed").Str("venue_id", venueID).Msg("venue changed")
}
