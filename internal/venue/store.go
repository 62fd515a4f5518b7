package venue

import (
	"context"
	"time"
)

// Store is the venue document store. Active users are keyed by user id, so
// AddActiveUser and RemoveActiveUser are atomic per user and idempotent.
// Missing venues are reported with apperr.ErrNotFound.
type Store interface {
	List(ctx context.Context) ([]Venue, error)
	Get(ctx context.Context, id string) (Venue, error)
	Create(ctx context.Context, v Venue) (Venue, error)
	AddActiveUser(ctx context.Context, venueID string, u ActiveUser) error
	RemoveActiveUser(ctx context.Context, venueID, userID string) error
	// RefreshActiveUser patches the user's snapshot in every venue holding it
	// and returns how many venues changed.
	RefreshActiveUser(ctx context.Context, userID string, patch ProfilePatch, seen time.Time) (int64, error)
}
