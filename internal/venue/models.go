package venue

import (
	"sort"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/shared/geo"
)

type Venue struct {
	ID           string                `json:"id" bson:"_id"`
	Name         string                `json:"name" bson:"name"`
	Coordinate   geo.Coordinate        `json:"coordinate" bson:"coordinate"`
	Description  string                `json:"description,omitempty" bson:"description,omitempty"`
	Address      string                `json:"address,omitempty" bson:"address,omitempty"`
	OpeningHours string                `json:"opening_hours,omitempty" bson:"opening_hours,omitempty"`
	Rating       float64               `json:"rating" bson:"rating"`
	Photos       []string              `json:"photos" bson:"photos"`
	Reviews      []Review              `json:"reviews" bson:"reviews"`
	ActiveUsers  map[string]ActiveUser `json:"active_users" bson:"activeUsers"`
	CreatedAt    time.Time             `json:"created_at" bson:"created_at"`
}

// Users returns the checked-in users, most recently seen first.
func (v Venue) Users() []ActiveUser {
	users := make([]ActiveUser, 0, len(v.ActiveUsers))
	for _, u := range v.ActiveUsers {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].LastSeen.Equal(users[j].LastSeen) {
			return users[i].ID < users[j].ID
		}
		return users[i].LastSeen.After(users[j].LastSeen)
	})
	return users
}

type Review struct {
	ID        string    `json:"id" bson:"id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	UserName  string    `json:"user_name" bson:"user_name"`
	UserPhoto string    `json:"user_photo" bson:"user_photo"`
	Rating    int       `json:"rating" bson:"rating"`
	Comment   string    `json:"comment" bson:"comment"`
	Date      time.Time `json:"date" bson:"date"`
}

// ActiveUser is the snapshot of a user embedded in a venue while checked in.
// It may lag the user record until the next write.
type ActiveUser struct {
	ID            string    `json:"id" bson:"id"`
	Name          string    `json:"name" bson:"name"`
	PhotoURL      string    `json:"photo_url" bson:"photo_url"`
	Status        string    `json:"status" bson:"status"`
	LastSeen      time.Time `json:"last_seen" bson:"last_seen"`
	AllowMessages bool      `json:"allow_messages" bson:"allow_messages"`
	IsOnline      bool      `json:"is_online" bson:"is_online"`
}

// ProfilePatch carries the profile fields copied into active-user snapshots.
type ProfilePatch struct {
	Name     *string `json:"name,omitempty"`
	PhotoURL *string `json:"photo_url,omitempty"`
	Status   *string `json:"status,omitempty"`
	// AllowMessages is copied too so chat gating seen in a venue stays current.
	AllowMessages *bool `json:"allow_messages,omitempty"`
}

func (p ProfilePatch) fields(seen time.Time) map[string]any {
	out := map[string]any{"last_seen": seen}
	if p.Name != nil {
		out["name"] = *p.Name
	}
	if p.PhotoURL != nil {
		out["photo_url"] = *p.PhotoURL
	}
	if p.Status != nil {
		out["status"] = *p.Status
	}
	if p.AllowMessages != nil {
		out["allow_messages"] = *p.AllowMessages
	}
	return out
}
