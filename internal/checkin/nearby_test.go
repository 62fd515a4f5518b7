package checkin

import (
	"testing"

	"github.com/azrayildirim/mekandamobil/internal/shared/geo"
	"github.com/azrayildirim/mekandamobil/internal/venue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNearbyRadiusBoundary(t *testing.T) {
	inside := geo.Destination(origin, 0, 99.99)
	outside := geo.Destination(origin, 0, 100.01)
	venues := []venue.Venue{
		{ID: "inside", Coordinate: inside},
		{ID: "outside", Coordinate: outside},
	}

	got := Nearby(origin, venues, RadiusM)
	require.Len(t, got, 1)
	assert.Equal(t, "inside", got[0].ID)

	exact := geo.DistanceM(origin, outside)
	got = Nearby(origin, venues, exact)
	require.Len(t, got, 2, "radius is inclusive")
}

func TestNearbyKeepsStorageOrder(t *testing.T) {
	venues := []venue.Venue{
		{ID: "far", Coordinate: geo.Destination(origin, 90, 80)},
		{ID: "near", Coordinate: geo.Destination(origin, 90, 20)},
		{ID: "mid", Coordinate: geo.Destination(origin, 90, 50)},
	}

	got := Nearby(origin, venues, RadiusM)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"far", "near", "mid"}, ids(got))

	NearestFirst(got)
	assert.Equal(t, []string{"near", "mid", "far"}, ids(got))
}

func ids(c []Candidate) []string {
	out := make([]string, len(c))
	for i, cand := range c {
		out[i] = cand.ID
	}
	return out
}
