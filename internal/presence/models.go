// Package presence writes check-ins to the venue store and mirrors them into
// the realtime status record of each user.
package presence

import (
	"context"

	"github.com/azrayildirim/mekandamobil/internal/realtime"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"
)

type Place struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Record is the realtime status of one user. LastSeen is server epoch millis.
type Record struct {
	IsOnline     bool   `json:"isOnline"`
	LastSeen     int64  `json:"lastSeen"`
	CurrentPlace *Place `json:"currentPlace"`
}

func StatusPath(userID string) string {
	return "status/" + userID
}

// Status reads the record of userID. A user never seen is reported offline.
func Status(ctx context.Context, rt realtime.Store, userID string) (Record, error) {
	var rec Record
	if _, err := rt.Read(ctx, StatusPath(userID), &rec); err != nil {
		return Record{}, apperr.Read("read presence", err)
	}
	return rec, nil
}

// SessionState is the persisted check-in state of one device.
type SessionState interface {
	ActivePlace(ctx context.Context) (string, bool, error)
	// Clear removes the active place and the last confirmation time.
	Clear(ctx context.Context) error
}
