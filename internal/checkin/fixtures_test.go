package checkin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/kv"
	"github.com/azrayildirim/mekandamobil/internal/location"
	"github.com/azrayildirim/mekandamobil/internal/presence"
	"github.com/azrayildirim/mekandamobil/internal/realtime"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"
	"github.com/azrayildirim/mekandamobil/internal/shared/geo"
	"github.com/azrayildirim/mekandamobil/internal/stream"
	"github.com/azrayildirim/mekandamobil/internal/user"
	"github.com/azrayildirim/mekandamobil/internal/venue"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var origin = geo.Coordinate{Latitude: 0, Longitude: 0}

// orderedVenues is an in-memory venue.Store that lists in insertion order.
type orderedVenues struct {
	mu        sync.Mutex
	order     []string
	venues    map[string]venue.Venue
	listCalls int
	writeErr  error
}

func newOrderedVenues(vs ...venue.Venue) *orderedVenues {
	s := &orderedVenues{venues: map[string]venue.Venue{}}
	for _, v := range vs {
		v.ActiveUsers = map[string]venue.ActiveUser{}
		s.order = append(s.order, v.ID)
		s.venues[v.ID] = v
	}
	return s
}

func (s *orderedVenues) List(context.Context) ([]venue.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	out := make([]venue.Venue, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.venues[id])
	}
	return out, nil
}

func (s *orderedVenues) Get(_ context.Context, id string) (venue.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.venues[id]
	if !ok {
		return venue.Venue{}, apperr.ErrNotFound
	}
	return v, nil
}

func (s *orderedVenues) Create(_ context.Context, v venue.Venue) (venue.Venue, error) {
	return v, nil
}

func (s *orderedVenues) AddActiveUser(_ context.Context, venueID string, u venue.ActiveUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	v, ok := s.venues[venueID]
	if !ok {
		return apperr.ErrNotFound
	}
	if _, exists := v.ActiveUsers[u.ID]; !exists {
		v.ActiveUsers[u.ID] = u
	}
	return nil
}

func (s *orderedVenues) RemoveActiveUser(_ context.Context, venueID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	v, ok := s.venues[venueID]
	if !ok {
		return apperr.ErrNotFound
	}
	delete(v.ActiveUsers, userID)
	return nil
}

func (s *orderedVenues) RefreshActiveUser(context.Context, string, venue.ProfilePatch, time.Time) (int64, error) {
	return 0, nil
}

func (s *orderedVenues) has(venueID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.venues[venueID].ActiveUsers[userID]
	return ok
}

func (s *orderedVenues) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

type stubProfiles struct{}

func (stubProfiles) Profile(_ context.Context, id string) (user.Profile, error) {
	return user.Profile{ID: id, Name: "Ayşe", AllowMessages: true}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type flow struct {
	store      *orderedVenues
	venues     *venue.Service
	rt         *realtime.RedisStore
	writer     *presence.Writer
	reconciler *presence.Reconciler
	scanner    *Scanner
	clock      *clock
	kv         *kv.MemoryStore
	session    *Session
	ctrl       *Controller
}

func newFlow(t *testing.T, cfg Config, vs ...venue.Venue) *flow {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := stream.NewHub(nil, zerolog.Nop())
	store := newOrderedVenues(vs...)
	venues := venue.NewService(store, hub, zerolog.Nop())
	rt := realtime.NewRedisStore(rdb, hub, zerolog.Nop())
	writer := presence.NewWriter(venues, rt, stubProfiles{}, nil, zerolog.Nop())
	reconciler := presence.NewReconciler(writer, rt, zerolog.Nop())

	clk := &clock{now: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)}
	scanner := NewScanner(venues, reconciler, cfg, zerolog.Nop())
	scanner.now = clk.Now

	mem := kv.NewMemoryStore()
	session := NewSession(mem)
	ctrl := NewController("user-1", session, scanner, writer, reconciler, zerolog.Nop())
	ctrl.now = clk.Now

	return &flow{
		store:      store,
		venues:     venues,
		rt:         rt,
		writer:     writer,
		reconciler: reconciler,
		scanner:    scanner,
		clock:      clk,
		kv:         mem,
		session:    session,
		ctrl:       ctrl,
	}
}

func at(c geo.Coordinate) LocationUpdated {
	return LocationUpdated{Fix: fix(c)}
}

func fix(c geo.Coordinate) location.Fix {
	return location.Fix{Coordinate: c}
}
