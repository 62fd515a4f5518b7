package checkin

import (
	"sort"

	"github.com/azrayildirim/mekandamobil/internal/shared/geo"
	"github.com/azrayildirim/mekandamobil/internal/venue"
)

type Candidate struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	DistanceM float64 `json:"distance_m"`
}

// Nearby returns the venues within radiusM of loc (inclusive), in the order
// they were given.
func Nearby(loc geo.Coordinate, venues []venue.Venue, radiusM float64) []Candidate {
	var out []Candidate
	for _, v := range venues {
		d := geo.DistanceM(loc, v.Coordinate)
		if d <= radiusM {
			out = append(out, Candidate{ID: v.ID, Name: v.Name, DistanceM: d})
		}
	}
	return out
}

// NearestFirst reorders candidates by distance, keeping storage order on ties.
func NearestFirst(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool { return c[i].DistanceM < c[j].DistanceM })
}

func contains(c []Candidate, id string) bool {
	for _, cand := range c {
		if cand.ID == id {
			return true
		}
	}
	return false
}
