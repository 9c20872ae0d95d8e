package matcher

import (
	"testing"
	"time"

	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/schedule"
)

func reqAt(at time.Time) *models.RideRequest {
	return &models.RideRequest{
		ID: "r1", UserID: "u1", Kind: models.KindHitchhikerRequest,
		When: schedule.Point(at, schedule.FlexFlexible),
	}
}

func TestScoreDestinationTiersDominate(t *testing.T) {
	at := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	rec := reqAt(at)

	// route candidate at the exact same instant vs fuzzy candidate 90
	// minutes off: the tier still wins
	route := Candidate{Basis: DestRoute, Window: schedule.Point(at, schedule.FlexExact)}
	fuzzy := Candidate{Basis: DestFuzzy, Window: schedule.Point(at.Add(90*time.Minute), schedule.FlexExact)}
	exact := Candidate{Basis: DestExact, Window: schedule.Point(at.Add(119*time.Minute), schedule.FlexExact)}

	sr, sf, se := Score(rec, route), Score(rec, fuzzy), Score(rec, exact)
	if !(se > sf && sf > sr) {
		t.Fatalf("tier ordering violated: exact=%v fuzzy=%v route=%v", se, sf, sr)
	}
}

func TestScoreTimeBonus(t *testing.T) {
	at := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	rec := reqAt(at)

	same := Score(rec, Candidate{Basis: DestExact, Window: schedule.Point(at, schedule.FlexExact)})
	near := Score(rec, Candidate{Basis: DestExact, Window: schedule.Point(at.Add(30*time.Minute), schedule.FlexExact)})
	far := Score(rec, Candidate{Basis: DestExact, Window: schedule.Point(at.Add(3*time.Hour), schedule.FlexExact)})

	if !(same > near && near > far) {
		t.Fatalf("time bonus not monotone: same=%v near=%v far=%v", same, near, far)
	}
	if far != scoreDestExact {
		t.Fatalf("beyond the horizon the bonus must be zero, got %v", far)
	}
	if same != scoreDestExact+scoreTimeMax {
		t.Fatalf("same-instant bonus must be maximal, got %v", same)
	}
}

func TestRankOrdersByScoreThenAge(t *testing.T) {
	older := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(48 * time.Hour)
	cands := []Candidate{
		{CounterpartID: "low", Score: 30},
		{CounterpartID: "tied-new", Score: 80, CreatedAt: newer},
		{CounterpartID: "tied-old", Score: 80, CreatedAt: older},
		{CounterpartID: "high", Score: 120},
	}
	ranked := Rank(cands)
	want := []string{"high", "tied-old", "tied-new", "low"}
	for i, id := range want {
		if ranked[i].CounterpartID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, ranked[i].CounterpartID)
		}
	}
	// input untouched
	if cands[0].CounterpartID != "low" {
		t.Fatal("Rank must not mutate its input")
	}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"Tel Aviv", "tel aviv", 1, 1},
		{"Tel Aviv", "Tel-Aviv ", 0.8, 1}, // near miss on punctuation
		{"jerusalem", "jerusalm", 0.8, 1},
		{"haifa", "eilat", 0, 0.5},
		{"", "", 1, 1},
	}
	for _, tc := range cases {
		got := Similarity(tc.a, tc.b)
		if got < tc.min || got > tc.max {
			t.Errorf("Similarity(%q, %q) = %v, want within [%v, %v]", tc.a, tc.b, got, tc.min, tc.max)
		}
	}
}
