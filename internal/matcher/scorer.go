package matcher

import (
	"sort"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

// Additive score weights. Destination certainty dominates: an exact name
// match always outranks fuzzy, which outranks mere route proximity. The
// time bonus only orders candidates within the same destination tier.
const (
	scoreDestExact = 100.0
	scoreDestFuzzy = 60.0
	scoreDestRoute = 30.0
	scoreTimeMax   = 20.0

	// DefaultScoreFloor is the minimum score a candidate needs to become
	// a Match row.
	DefaultScoreFloor = 25.0
)

// horizon beyond which a start-time gap earns no time bonus
const timeBonusHorizon = 2 * time.Hour

// Score is a pure function of the request and one candidate. The result
// is a total order used for notification ranking only; it does not gate
// matching beyond the score floor.
func Score(rec *models.RideRequest, c Candidate) float64 {
	var s float64
	switch c.Basis {
	case DestExact:
		s = scoreDestExact
	case DestFuzzy:
		s = scoreDestFuzzy
	case DestRoute:
		s = scoreDestRoute
	}
	gap := rec.When.Center().Sub(c.Window.Center())
	if gap < 0 {
		gap = -gap
	}
	if gap < timeBonusHorizon {
		s += scoreTimeMax * (1 - float64(gap)/float64(timeBonusHorizon))
	}
	return s
}

// Rank orders candidates best-first: score descending, ties broken by
// earliest counterpart creation (first come, first served).
func Rank(cands []Candidate) []Candidate {
	out := append([]Candidate(nil), cands...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
