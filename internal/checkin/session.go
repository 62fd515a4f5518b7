package checkin

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/kv"
)

const (
	ActivePlaceKey = "activePlaceId"
	LastConfirmKey = "lastPlaceConfirm"
)

// Session is the check-in memory of one device. The active venue and the
// last confirmation survive restarts through kv; rejections live in memory
// and are gone when the Session is dropped.
type Session struct {
	store kv.Store

	mu       sync.Mutex
	rejected map[string]struct{}
}

func NewSession(store kv.Store) *Session {
	return &Session{store: store, rejected: map[string]struct{}{}}
}

func (s *Session) ActivePlace(ctx context.Context) (string, bool, error) {
	id, ok, err := s.store.Get(ctx, ActivePlaceKey)
	if err != nil || !ok || id == "" {
		return "", false, err
	}
	return id, true, nil
}

// LastConfirm returns the zero time when no confirmation was stored or the
// stored value is unreadable.
func (s *Session) LastConfirm(ctx context.Context) (time.Time, error) {
	raw, ok, err := s.store.Get(ctx, LastConfirmKey)
	if err != nil || !ok {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// Confirm stores venueID as the active venue and restarts the cooldown.
func (s *Session) Confirm(ctx context.Context, venueID string, at time.Time) error {
	if err := s.store.Set(ctx, ActivePlaceKey, venueID); err != nil {
		return err
	}
	return s.store.Set(ctx, LastConfirmKey, strconv.FormatInt(at.UnixMilli(), 10))
}

func (s *Session) Clear(ctx context.Context) error {
	return errors.Join(
		s.store.Remove(ctx, ActivePlaceKey),
		s.store.Remove(ctx, LastConfirmKey),
	)
}

func (s *Session) Reject(venueID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[venueID] = struct{}{}
}

func (s *Session) Rejected(venueID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rejected[venueID]
	return ok
}

func (s *Session) ResetRejections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected = map[string]struct{}{}
}
