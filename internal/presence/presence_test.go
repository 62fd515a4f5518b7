package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/events"
	"github.com/azrayildirim/mekandamobil/internal/realtime"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"
	"github.com/azrayildirim/mekandamobil/internal/stream"
	"github.com/azrayildirim/mekandamobil/internal/user"
	"github.com/azrayildirim/mekandamobil/internal/venue"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const serverNowMs = 1_700_000_000_000

type memVenues struct {
	mu       sync.Mutex
	venues   map[string]venue.Venue
	writeErr error
}

func newMemVenues(vs ...venue.Venue) *memVenues {
	m := &memVenues{venues: map[string]venue.Venue{}}
	for _, v := range vs {
		v.ActiveUsers = map[string]venue.ActiveUser{}
		m.venues[v.ID] = v
	}
	return m
}

func (m *memVenues) List(context.Context) ([]venue.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]venue.Venue, 0, len(m.venues))
	for _, v := range m.venues {
		out = append(out, v)
	}
	return out, nil
}

func (m *memVenues) Get(_ context.Context, id string) (venue.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.venues[id]
	if !ok {
		return venue.Venue{}, apperr.ErrNotFound
	}
	return v, nil
}

func (m *memVenues) Create(_ context.Context, v venue.Venue) (venue.Venue, error) {
	return v, nil
}

func (m *memVenues) AddActiveUser(_ context.Context, venueID string, u venue.ActiveUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	v, ok := m.venues[venueID]
	if !ok {
		return apperr.ErrNotFound
	}
	if _, exists := v.ActiveUsers[u.ID]; !exists {
		v.ActiveUsers[u.ID] = u
	}
	return nil
}

func (m *memVenues) RemoveActiveUser(_ context.Context, venueID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	v, ok := m.venues[venueID]
	if !ok {
		return apperr.ErrNotFound
	}
	delete(v.ActiveUsers, userID)
	return nil
}

func (m *memVenues) RefreshActiveUser(context.Context, string, venue.ProfilePatch, time.Time) (int64, error) {
	return 0, nil
}

func (m *memVenues) count(venueID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.venues[venueID].ActiveUsers)
}

type stubProfiles map[string]user.Profile

func (s stubProfiles) Profile(_ context.Context, id string) (user.Profile, error) {
	p, ok := s[id]
	if !ok {
		return user.Profile{}, apperr.ErrNotFound
	}
	return p, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type fakeSession struct {
	active  string
	cleared bool
	err     error
}

func (s *fakeSession) ActivePlace(context.Context) (string, bool, error) {
	if s.err != nil {
		return "", false, s.err
	}
	return s.active, s.active != "", nil
}

func (s *fakeSession) Clear(context.Context) error {
	s.active = ""
	s.cleared = true
	return nil
}

type fixture struct {
	venues *memVenues
	rt     *realtime.RedisStore
	redis  *miniredis.Miniredis
	pub    *recordingPublisher
	writer *Writer
	rec    *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(time.UnixMilli(serverNowMs))
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := stream.NewHub(nil, zerolog.Nop())
	venues := newMemVenues(
		venue.Venue{ID: "venue-1", Name: "Kahve Durağı"},
		venue.Venue{ID: "venue-2", Name: "Çay Bahçesi"},
	)
	rt := realtime.NewRedisStore(rdb, hub, zerolog.Nop())
	profiles := stubProfiles{"user-1": {ID: "user-1", Name: "Ayşe", Status: "Buradayım", AllowMessages: true}}
	pub := &recordingPublisher{}

	writer := NewWriter(venue.NewService(venues, hub, zerolog.Nop()), rt, profiles, pub, zerolog.Nop())
	return &fixture{
		venues: venues,
		rt:     rt,
		redis:  mr,
		pub:    pub,
		writer: writer,
		rec:    NewReconciler(writer, rt, zerolog.Nop()),
	}
}

func (f *fixture) status(t *testing.T, userID string) Record {
	t.Helper()
	rec, err := Status(context.Background(), f.rt, userID)
	require.NoError(t, err)
	return rec
}

func TestEnterVenueIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.writer.EnterVenue(ctx, "venue-1", "user-1"))
	require.NoError(t, f.writer.EnterVenue(ctx, "venue-1", "user-1"))

	require.Equal(t, 1, f.venues.count("venue-1"))
	entry := f.venues.venues["venue-1"].ActiveUsers["user-1"]
	require.Equal(t, "Ayşe", entry.Name)
	require.True(t, entry.IsOnline)

	rec := f.status(t, "user-1")
	require.True(t, rec.IsOnline)
	require.EqualValues(t, serverNowMs, rec.LastSeen)
	require.Equal(t, &Place{ID: "venue-1", Name: "Kahve Durağı"}, rec.CurrentPlace)

	require.Len(t, f.pub.events, 2)
	require.Equal(t, events.VenueEntered, f.pub.events[0].Type)
}

func TestEnterVenueUnknownUserUsesDefaults(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.writer.EnterVenue(context.Background(), "venue-1", "user-9"))

	entry := f.venues.venues["venue-1"].ActiveUsers["user-9"]
	require.Equal(t, user.UnnamedUser, entry.Name)
	require.True(t, entry.AllowMessages)
}

func TestEnterVenueMissingVenue(t *testing.T) {
	f := newFixture(t)
	err := f.writer.EnterVenue(context.Background(), "missing", "user-1")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.False(t, f.redis.Exists("rt:status/user-1"))
}

func TestEnterVenueStoreFailureSkipsRealtime(t *testing.T) {
	f := newFixture(t)
	f.venues.writeErr = errors.New("unavailable")

	err := f.writer.EnterVenue(context.Background(), "venue-1", "user-1")
	require.ErrorIs(t, err, apperr.ErrRemoteWrite)
	require.False(t, f.redis.Exists("rt:status/user-1"))
	require.Empty(t, f.pub.events)
}

func TestEnterVenueRealtimeFailure(t *testing.T) {
	f := newFixture(t)
	f.redis.SetError("READONLY")

	err := f.writer.EnterVenue(context.Background(), "venue-1", "user-1")
	require.ErrorIs(t, err, apperr.ErrRemoteWrite)
}

func TestExitVenueIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.writer.EnterVenue(ctx, "venue-1", "user-1"))

	require.NoError(t, f.writer.ExitVenue(ctx, "venue-1", "user-1"))
	require.NoError(t, f.writer.ExitVenue(ctx, "venue-1", "user-1"))
	require.Equal(t, 0, f.venues.count("venue-1"))

	rec := f.status(t, "user-1")
	require.True(t, rec.IsOnline)
	require.Nil(t, rec.CurrentPlace)
}

func TestExitVenueUnknownVenue(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.writer.ExitVenue(context.Background(), "gone", "user-1"))
	require.Nil(t, f.status(t, "user-1").CurrentPlace)
}

func TestStatusOfUnknownUser(t *testing.T) {
	f := newFixture(t)
	rec := f.status(t, "nobody")
	require.False(t, rec.IsOnline)
	require.Nil(t, rec.CurrentPlace)
}

func TestSessionDisconnectGoesOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.rec.StartSession(ctx, "conn-1", "user-1"))
	require.True(t, f.status(t, "user-1").IsOnline)

	require.NoError(t, f.rec.Disconnect(ctx, "conn-1"))
	rec := f.status(t, "user-1")
	require.False(t, rec.IsOnline)
	require.EqualValues(t, serverNowMs, rec.LastSeen)
	require.False(t, f.redis.Exists("rt:ondisconnect:conn-1"))
}

func TestStartSessionKeepsCurrentPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.writer.EnterVenue(ctx, "venue-1", "user-1"))

	require.NoError(t, f.rec.StartSession(ctx, "conn-2", "user-1"))
	rec := f.status(t, "user-1")
	require.True(t, rec.IsOnline)
	require.NotNil(t, rec.CurrentPlace)
}

func TestLeaveVenue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.writer.EnterVenue(ctx, "venue-1", "user-1"))

	session := &fakeSession{active: "venue-1"}
	require.NoError(t, f.rec.LeaveVenue(ctx, "user-1", "venue-1", session))
	require.True(t, session.cleared)
	require.Equal(t, 0, f.venues.count("venue-1"))
}

func TestLeaveVenueFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	f.venues.writeErr = errors.New("unavailable")

	session := &fakeSession{active: "venue-1"}
	err := f.rec.LeaveVenue(context.Background(), "user-1", "venue-1", session)
	require.ErrorIs(t, err, apperr.ErrRemoteWrite)
	require.False(t, session.cleared)
	require.Equal(t, "venue-1", session.active)
}

func TestSignOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.rec.StartSession(ctx, "conn-1", "user-1"))
	require.NoError(t, f.writer.EnterVenue(ctx, "venue-1", "user-1"))

	session := &fakeSession{active: "venue-1"}
	f.rec.SignOut(ctx, "conn-1", "user-1", session)

	require.True(t, session.cleared)
	require.Equal(t, 0, f.venues.count("venue-1"))
	require.False(t, f.status(t, "user-1").IsOnline)
	require.False(t, f.redis.Exists("rt:ondisconnect:conn-1"))
}

func TestSignOutIsBestEffort(t *testing.T) {
	f := newFixture(t)
	f.venues.writeErr = errors.New("unavailable")

	session := &fakeSession{active: "venue-1"}
	f.rec.SignOut(context.Background(), "", "user-1", session)

	require.True(t, session.cleared)
	require.False(t, f.status(t, "user-1").IsOnline)
}
