package geo

import (
	"math"

	"github.com/example/carpool-matching/internal/models"
)

// Haversine distance in kilometers.
func Haversine(a, b models.Coord) float64 {
	const R = 6371.0
	dLat := rad(b.Lat - a.Lat)
	dLon := rad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}

func rad(deg float64) float64 { return deg * math.Pi / 180.0 }

// IsNear reports whether p lies within thresholdKm of the straight path
// from routeStart to routeEnd. Point-to-segment distance on a local flat
// projection; a coarse heuristic, not road routing.
func IsNear(p, routeStart, routeEnd models.Coord, thresholdKm float64) bool {
	return DistanceToSegment(p, routeStart, routeEnd) <= thresholdKm
}

// DistanceToSegment returns the distance in km from p to the segment a-b.
func DistanceToSegment(p, a, b models.Coord) float64 {
	// project onto a plane centered at p; fine for intra-region distances
	px, py := project(p, p)
	ax, ay := project(a, p)
	bx, by := project(b, p)

	dx, dy := bx-ax, by-ay
	segLenSq := dx*dx + dy*dy
	if segLenSq == 0 {
		return Haversine(p, a)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	cx, cy := ax+t*dx, ay+t*dy
	return math.Hypot(px-cx, py-cy)
}

// project maps a coordinate to km offsets on a plane tangent at ref.
func project(c, ref models.Coord) (x, y float64) {
	const kmPerDegLat = 110.574
	kmPerDegLon := 111.320 * math.Cos(rad(ref.Lat))
	return c.Lon * kmPerDegLon, c.Lat * kmPerDegLat
}
