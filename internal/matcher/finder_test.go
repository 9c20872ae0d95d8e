package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/schedule"
	"github.com/example/carpool-matching/internal/storage"
)

// stubResolver resolves from a fixed map; everything else fails.
type stubResolver struct{ coords map[string]models.Coord }

func (r *stubResolver) Resolve(_ context.Context, name string) (models.Coord, error) {
	if c, ok := r.coords[name]; ok {
		return c, nil
	}
	return models.Coord{}, context.Canceled
}

// Tuesday morning; routines below run Sun-Thu.
var baseDay = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func testFinder(t *testing.T) (*Finder, *storage.MemoryStore) {
	t.Helper()
	s := storage.NewMemoryStore()
	f := NewFinder(s, &stubResolver{}, nil)
	return f, s
}

func saveRoutine(t *testing.T, s storage.Store, rt *models.Routine) {
	t.Helper()
	if rt.Days == 0 {
		rt.Days = schedule.DayRange(time.Sunday, time.Thursday)
	}
	rt.Active = true
	if err := s.SaveRoutine(context.Background(), rt); err != nil {
		t.Fatalf("save routine: %v", err)
	}
}

func TestFindCandidatesAgainstRoutine(t *testing.T) {
	f, s := testFinder(t)
	ctx := context.Background()

	saveRoutine(t, s, &models.Routine{
		ID: "rt1", UserID: "driver-1",
		Destination: models.Place{Text: "Tel Aviv"},
		Departure:   schedule.ClockWindow{StartMin: 7 * 60, EndMin: 9 * 60},
	})

	rec := &models.RideRequest{
		ID: "req1", UserID: "rider-1", Kind: models.KindHitchhikerRequest,
		Destination: models.Place{Text: "tel aviv"},
		When:        schedule.Point(baseDay.Add(8*time.Hour), schedule.FlexFlexible),
		Status:      models.RequestPending,
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}

	cands, err := f.FindCandidates(ctx, rec)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	c := cands[0]
	if c.CounterpartID != "driver-1" || c.RoutineID != "rt1" {
		t.Fatalf("wrong candidate: %+v", c)
	}
	if c.Basis != DestExact {
		t.Fatalf("expected exact destination basis, got %s", c.Basis)
	}
}

func TestFindCandidatesSkipsNonCoveredDayAndDisjointTime(t *testing.T) {
	f, s := testFinder(t)
	ctx := context.Background()

	saveRoutine(t, s, &models.Routine{
		ID: "rt1", UserID: "driver-1",
		Destination: models.Place{Text: "haifa"},
		Days:        schedule.Days(time.Friday),
		Departure:   schedule.ClockWindow{StartMin: 7 * 60, EndMin: 9 * 60},
	})
	saveRoutine(t, s, &models.Routine{
		ID: "rt2", UserID: "driver-2",
		Destination: models.Place{Text: "haifa"},
		Departure:   schedule.ClockWindow{StartMin: 20 * 60, EndMin: 21 * 60},
	})

	rec := &models.RideRequest{
		ID: "req1", UserID: "rider-1", Kind: models.KindHitchhikerRequest,
		Destination: models.Place{Text: "haifa"},
		When:        schedule.Point(baseDay.Add(8*time.Hour), schedule.FlexFlexible),
		Status:      models.RequestPending,
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
	cands, err := f.FindCandidates(ctx, rec)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("expected no candidates, got %+v", cands)
	}
}

func TestFindCandidatesOneOffPassAndDedup(t *testing.T) {
	f, s := testFinder(t)
	ctx := context.Background()

	// driver-1 appears both as a routine and as a one-off offer at the
	// same hour; the union must contain them once
	saveRoutine(t, s, &models.Routine{
		ID: "rt1", UserID: "driver-1",
		Destination: models.Place{Text: "beer sheva"},
		Departure:   schedule.ClockWindow{StartMin: 7 * 60, EndMin: 9 * 60},
	})
	offer := &models.RideRequest{
		ID: "offer1", UserID: "driver-1", Kind: models.KindDriverOffer,
		Destination: models.Place{Text: "beer sheva"},
		When:        schedule.Point(baseDay.Add(8*time.Hour), schedule.FlexExact),
		Status:      models.RequestPending,
		CreatedAt:   baseDay.Add(-time.Hour),
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
	if err := s.SaveRequest(ctx, offer); err != nil {
		t.Fatalf("save offer: %v", err)
	}

	rec := &models.RideRequest{
		ID: "req1", UserID: "rider-1", Kind: models.KindHitchhikerRequest,
		Destination: models.Place{Text: "Beer Sheva"},
		When:        schedule.Point(baseDay.Add(8*time.Hour), schedule.FlexFlexible),
		Status:      models.RequestPending,
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
	cands, err := f.FindCandidates(ctx, rec)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected deduplicated candidate, got %d", len(cands))
	}
	if cands[0].CounterpartID != "driver-1" {
		t.Fatalf("wrong counterpart: %+v", cands[0])
	}
}

func TestFindCandidatesNeverMatchesSelfOrDisabled(t *testing.T) {
	f, s := testFinder(t)
	ctx := context.Background()

	saveRoutine(t, s, &models.Routine{
		ID: "rt-self", UserID: "rider-1",
		Destination: models.Place{Text: "eilat"},
		Departure:   schedule.ClockWindow{StartMin: 7 * 60, EndMin: 9 * 60},
	})
	saveRoutine(t, s, &models.Routine{
		ID: "rt-gone", UserID: "driver-gone",
		Destination: models.Place{Text: "eilat"},
		Departure:   schedule.ClockWindow{StartMin: 7 * 60, EndMin: 9 * 60},
	})
	if err := s.SaveUser(ctx, &models.User{ID: "driver-gone", Disabled: true}); err != nil {
		t.Fatalf("save user: %v", err)
	}

	rec := &models.RideRequest{
		ID: "req1", UserID: "rider-1", Kind: models.KindHitchhikerRequest,
		Destination: models.Place{Text: "eilat"},
		When:        schedule.Point(baseDay.Add(8*time.Hour), schedule.FlexFlexible),
		Status:      models.RequestPending,
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
	cands, err := f.FindCandidates(ctx, rec)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("self or disabled counterpart leaked: %+v", cands)
	}
}

func TestFindCandidatesExpiredRequestFindsNothing(t *testing.T) {
	f, s := testFinder(t)
	ctx := context.Background()

	saveRoutine(t, s, &models.Routine{
		ID: "rt1", UserID: "driver-1",
		Destination: models.Place{Text: "ashdod"},
		Departure:   schedule.ClockWindow{StartMin: 0, EndMin: 24 * 60},
	})
	rec := &models.RideRequest{
		ID: "req1", UserID: "rider-1", Kind: models.KindHitchhikerRequest,
		Destination: models.Place{Text: "ashdod"},
		When:        schedule.Point(baseDay.Add(8*time.Hour), schedule.FlexFlexible),
		Status:      models.RequestPending,
		ExpiresAt:   time.Now().Add(-time.Minute),
	}
	cands, err := f.FindCandidates(ctx, rec)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if cands != nil {
		t.Fatalf("expired request must match nothing, got %+v", cands)
	}
}

func TestFindCandidatesRouteProximity(t *testing.T) {
	telAviv := models.Coord{Lat: 32.0853, Lon: 34.7818}
	jerusalem := models.Coord{Lat: 31.7683, Lon: 35.2137}
	ramla := models.Coord{Lat: 31.9254, Lon: 34.8720}

	s := storage.NewMemoryStore()
	f := NewFinder(s, &stubResolver{coords: map[string]models.Coord{"ramla": ramla}}, nil)
	f.ProximityKm = 10
	ctx := context.Background()

	offer := &models.RideRequest{
		ID: "offer1", UserID: "driver-1", Kind: models.KindDriverOffer,
		Origin:      models.Place{Text: "tel aviv", Coord: &telAviv},
		Destination: models.Place{Text: "jerusalem", Coord: &jerusalem},
		When:        schedule.Point(baseDay.Add(8*time.Hour), schedule.FlexVeryFlexible),
		Status:      models.RequestPending,
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
	if err := s.SaveRequest(ctx, offer); err != nil {
		t.Fatalf("save offer: %v", err)
	}

	rec := &models.RideRequest{
		ID: "req1", UserID: "rider-1", Kind: models.KindHitchhikerRequest,
		Destination: models.Place{Text: "ramla"}, // on the way, name nothing alike
		When:        schedule.Point(baseDay.Add(8*time.Hour), schedule.FlexFlexible),
		Status:      models.RequestPending,
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
	cands, err := f.FindCandidates(ctx, rec)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(cands) != 1 || cands[0].Basis != DestRoute {
		t.Fatalf("expected a route-proximity candidate, got %+v", cands)
	}
}

func TestFindForRoutineSweepsWaitingRequests(t *testing.T) {
	f, s := testFinder(t)
	ctx := context.Background()

	waiting := &models.RideRequest{
		ID: "req1", UserID: "rider-1", Kind: models.KindHitchhikerRequest,
		Destination: models.Place{Text: "netanya"},
		When:        schedule.Point(baseDay.Add(8*time.Hour), schedule.FlexFlexible),
		Status:      models.RequestPending,
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
	if err := s.SaveRequest(ctx, waiting); err != nil {
		t.Fatalf("save request: %v", err)
	}

	rt := &models.Routine{
		ID: "rt1", UserID: "driver-1",
		Destination: models.Place{Text: "netanya"},
		Days:        schedule.DayRange(time.Sunday, time.Thursday),
		Departure:   schedule.ClockWindow{StartMin: 7 * 60, EndMin: 9 * 60},
		Active:      true,
	}
	hits, err := f.FindForRoutine(ctx, rt)
	if err != nil {
		t.Fatalf("find for routine: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Request.ID != "req1" || hits[0].Candidate.CounterpartID != "driver-1" {
		t.Fatalf("wrong hit: %+v", hits[0])
	}
}
