package matcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
	"github.com/example/carpool-matching/internal/schedule"
	"github.com/example/carpool-matching/internal/storage"
)

// DestBasis records which rule matched the destination; the scorer weighs
// exact above fuzzy above route proximity.
type DestBasis string

const (
	DestExact DestBasis = "exact"
	DestFuzzy DestBasis = "fuzzy"
	DestRoute DestBasis = "route"
)

// Candidate is one possible counterpart for a ride request.
type Candidate struct {
	CounterpartID string
	RoutineID     string // set when found via the recurring pass
	RequestID     string // set when found via the one-off pass
	Window        schedule.TimeWindow
	Basis         DestBasis
	Score         float64
	CreatedAt     time.Time // counterpart record creation, for tie-breaks
}

// RoutineHit pairs an existing open request with the owner of a newly
// created routine; used when a routine arrives and requests already wait.
type RoutineHit struct {
	Request   models.RideRequest
	Candidate Candidate
}

// Resolver is the slice of geo the finder needs.
type Resolver interface {
	Resolve(ctx context.Context, placeName string) (models.Coord, error)
}

type Finder struct {
	Store         storage.Store
	Resolver      Resolver
	FuzzyMin      float64 // similarity threshold, default 0.8
	ProximityKm   float64 // route/destination nearness threshold
	Logger        *slog.Logger
}

func NewFinder(store storage.Store, resolver Resolver, logger *slog.Logger) *Finder {
	return &Finder{Store: store, Resolver: resolver, FuzzyMin: 0.8, ProximityKm: 5, Logger: logger}
}

// FindCandidates runs both search passes for a ride request and returns
// the union, deduplicated by counterpart (higher score wins).
func (f *Finder) FindCandidates(ctx context.Context, rec *models.RideRequest) ([]Candidate, error) {
	if rec.Expired(time.Now()) {
		return nil, nil
	}
	destCoord := f.coordOf(ctx, rec.Destination)

	byCounterpart := make(map[string]Candidate)
	keep := func(c Candidate) {
		if prev, ok := byCounterpart[c.CounterpartID]; ok && prev.Score >= c.Score {
			return
		}
		byCounterpart[c.CounterpartID] = c
	}

	// recurring pass: routines are driver schedules, so only a rider's
	// request searches them
	if rec.Kind == models.KindHitchhikerRequest {
		routines, err := f.Store.GetActiveRoutines(ctx, "")
		if err != nil {
			return nil, err
		}
		date := rec.When.Center()
		for _, rt := range routines {
			if rt.UserID == rec.UserID {
				continue
			}
			if blocked := f.counterpartBlocked(ctx, rt.UserID); blocked {
				continue
			}
			basis, ok := f.destinationMatches(rec.Destination, destCoord, rt.Destination, nil)
			if !ok {
				continue
			}
			if !rt.CoversDate(date) {
				continue
			}
			window := rt.Departure.On(date)
			if !schedule.Overlaps(window, rec.When) {
				continue
			}
			c := Candidate{
				CounterpartID: rt.UserID,
				RoutineID:     rt.ID,
				Window:        window,
				Basis:         basis,
				CreatedAt:     rt.CreatedAt,
			}
			c.Score = Score(rec, c)
			keep(c)
		}
	}

	// one-off pass: open requests of the opposite kind
	others, err := f.Store.GetActiveRequests(ctx, rec.Kind.Counterpart(), "")
	if err != nil {
		return nil, err
	}
	for _, other := range others {
		if other.UserID == rec.UserID || other.ID == rec.ID {
			continue
		}
		if blocked := f.counterpartBlocked(ctx, other.UserID); blocked {
			continue
		}
		var route *routeSegment
		if other.Origin.Coord != nil && other.Destination.Coord != nil {
			route = &routeSegment{a: *other.Origin.Coord, b: *other.Destination.Coord}
		}
		basis, ok := f.destinationMatches(rec.Destination, destCoord, other.Destination, route)
		if !ok {
			continue
		}
		if !schedule.Overlaps(other.When, rec.When) {
			continue
		}
		c := Candidate{
			CounterpartID: other.UserID,
			RequestID:     other.ID,
			Window:        other.When,
			Basis:         basis,
			CreatedAt:     other.CreatedAt,
		}
		c.Score = Score(rec, c)
		keep(c)
	}

	out := make([]Candidate, 0, len(byCounterpart))
	for _, c := range byCounterpart {
		out = append(out, c)
	}
	observability.FinderCandidates.Observe(float64(len(out)))
	return out, nil
}

// FindForRoutine is the reverse direction: a new driver routine sweeps the
// open rider requests it could serve.
func (f *Finder) FindForRoutine(ctx context.Context, rt *models.Routine) ([]RoutineHit, error) {
	requests, err := f.Store.GetActiveRequests(ctx, models.KindHitchhikerRequest, "")
	if err != nil {
		return nil, err
	}
	rtCoord := f.coordOf(ctx, rt.Destination)
	var hits []RoutineHit
	for _, req := range requests {
		if req.UserID == rt.UserID {
			continue
		}
		basis, ok := f.destinationMatches(req.Destination, f.coordOf(ctx, req.Destination), rt.Destination, nil)
		if !ok && rtCoord != nil {
			// retry proximity from the routine's side
			if req.Destination.Coord != nil && geo.Haversine(*req.Destination.Coord, *rtCoord) <= f.ProximityKm {
				basis, ok = DestRoute, true
			}
		}
		if !ok {
			continue
		}
		date := req.When.Center()
		if !rt.CoversDate(date) {
			continue
		}
		window := rt.Departure.On(date)
		if !schedule.Overlaps(window, req.When) {
			continue
		}
		c := Candidate{
			CounterpartID: rt.UserID,
			RoutineID:     rt.ID,
			Window:        window,
			Basis:         basis,
			CreatedAt:     rt.CreatedAt,
		}
		reqCopy := req
		c.Score = Score(&reqCopy, c)
		hits = append(hits, RoutineHit{Request: reqCopy, Candidate: c})
	}
	return hits, nil
}

type routeSegment struct{ a, b models.Coord }

// destinationMatches applies the three-rule destination test: exact text,
// fuzzy text at the threshold, then geographic nearness (to the
// counterpart's destination point, or to its route when one is known).
func (f *Finder) destinationMatches(dest models.Place, destCoord *models.Coord, other models.Place, route *routeSegment) (DestBasis, bool) {
	if geo.NormalizeName(dest.Text) == geo.NormalizeName(other.Text) {
		return DestExact, true
	}
	if Similarity(dest.Text, other.Text) >= f.FuzzyMin {
		return DestFuzzy, true
	}
	if destCoord != nil {
		if route != nil && geo.IsNear(*destCoord, route.a, route.b, f.ProximityKm) {
			return DestRoute, true
		}
		if other.Coord != nil && geo.Haversine(*destCoord, *other.Coord) <= f.ProximityKm {
			return DestRoute, true
		}
	}
	return "", false
}

// coordOf returns the place's coordinates, resolving lazily. Resolution
// failure is not an error here; text matching still applies.
func (f *Finder) coordOf(ctx context.Context, p models.Place) *models.Coord {
	if p.Coord != nil {
		return p.Coord
	}
	if f.Resolver == nil || p.Text == "" {
		return nil
	}
	c, err := f.Resolver.Resolve(ctx, p.Text)
	if err != nil {
		return nil
	}
	return &c
}

// counterpartBlocked filters soft-disabled users out of candidate sets.
// Unknown users pass; the store of record for profiles may lag.
func (f *Finder) counterpartBlocked(ctx context.Context, userID string) bool {
	u, err := f.Store.GetUser(ctx, userID)
	if err != nil {
		return false
	}
	return u.Disabled
}
