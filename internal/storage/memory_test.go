package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

func TestInsertMatchIfAbsentIsKeyedByPair(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	m := &models.Match{ID: "m1", RequestID: "r1", CounterpartID: "u2", Status: models.MatchPendingApproval}
	if _, created, err := s.InsertMatchIfAbsent(ctx, m); err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}
	dup := &models.Match{ID: "m2", RequestID: "r1", CounterpartID: "u2", Status: models.MatchPendingApproval}
	existing, created, err := s.InsertMatchIfAbsent(ctx, dup)
	if err != nil {
		t.Fatalf("dup insert: %v", err)
	}
	if created {
		t.Fatal("duplicate pair must not create a second match")
	}
	if existing.ID != "m1" {
		t.Fatalf("expected existing match m1, got %s", existing.ID)
	}
}

func TestUpdateMatchStatusCAS(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	m := &models.Match{ID: "m1", RequestID: "r1", CounterpartID: "u2", Status: models.MatchPendingApproval}
	_, _, _ = s.InsertMatchIfAbsent(ctx, m)

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.UpdateMatchStatus(ctx, "m1", models.MatchPendingApproval, models.MatchApproved)
			if err != nil {
				t.Errorf("update: %v", err)
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)
	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly 1 CAS winner, got %d", won)
	}
}

func TestRejectSiblingsOnlyPending(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, m := range []*models.Match{
		{ID: "m1", RequestID: "r1", CounterpartID: "a", Status: models.MatchPendingApproval},
		{ID: "m2", RequestID: "r1", CounterpartID: "b", Status: models.MatchPendingApproval},
		{ID: "m3", RequestID: "r1", CounterpartID: "c", Status: models.MatchRejected},
		{ID: "m4", RequestID: "r2", CounterpartID: "d", Status: models.MatchPendingApproval},
	} {
		if _, _, err := s.InsertMatchIfAbsent(ctx, m); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	n, err := s.RejectSiblings(ctx, "r1", "m1")
	if err != nil {
		t.Fatalf("reject siblings: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 sibling rejected, got %d", n)
	}
	winner, _ := s.GetMatch(ctx, "m1")
	if winner.Status != models.MatchPendingApproval {
		t.Fatal("winner must be untouched")
	}
	other, _ := s.GetMatch(ctx, "m4")
	if other.Status != models.MatchPendingApproval {
		t.Fatal("other request's match must be untouched")
	}
}

func TestGetActiveRequestsExcludesExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	fresh := &models.RideRequest{
		ID: "r1", UserID: "u1", Kind: models.KindHitchhikerRequest,
		Destination: models.Place{Text: "tel aviv"},
		Status:      models.RequestPending,
		CreatedAt:   now, ExpiresAt: now.Add(24 * time.Hour),
	}
	stale := &models.RideRequest{
		ID: "r2", UserID: "u2", Kind: models.KindHitchhikerRequest,
		Destination: models.Place{Text: "tel aviv"},
		Status:      models.RequestPending,
		CreatedAt:   now.Add(-25 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	_ = s.SaveRequest(ctx, fresh)
	_ = s.SaveRequest(ctx, stale)

	got, err := s.GetActiveRequests(ctx, models.KindHitchhikerRequest, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("expected only the fresh request, got %+v", got)
	}
}

func TestApproveRequestIsConditional(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	req := &models.RideRequest{
		ID: "r1", UserID: "u1", Kind: models.KindHitchhikerRequest,
		Destination: models.Place{Text: "haifa"},
		Status:      models.RequestMatched,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	_ = s.SaveRequest(ctx, req)

	if ok, _ := s.ApproveRequest(ctx, "r1", "driver-1"); !ok {
		t.Fatal("first approval must win")
	}
	if ok, _ := s.ApproveRequest(ctx, "r1", "driver-2"); ok {
		t.Fatal("second approval must lose the precondition")
	}
	got, _ := s.GetRequest(ctx, "r1")
	if got.ApprovedCounterpartID != "driver-1" {
		t.Fatalf("winner overwritten: %s", got.ApprovedCounterpartID)
	}
	if got.Status != models.RequestApproved {
		t.Fatalf("unexpected status %s", got.Status)
	}
}

func TestSaveRequestOverwrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	req := &models.RideRequest{ID: "r1", UserID: "u1", Kind: models.KindHitchhikerRequest,
		Destination: models.Place{Text: "haifa"}, Status: models.RequestPending,
		ExpiresAt: time.Now().Add(time.Hour)}
	if err := s.SaveRequest(ctx, req); err != nil {
		t.Fatalf("save: %v", err)
	}
	req.Status = models.RequestMatched
	req.ExpiresAt = time.Now().Add(-time.Minute)
	if err := s.SaveRequest(ctx, req); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	got, err := s.GetRequest(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.RequestMatched || !got.Expired(time.Now()) {
		t.Fatalf("re-save must replace the record, got %+v", got)
	}
}

func TestAddRequestCandidatesDeduplicates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	req := &models.RideRequest{ID: "r1", UserID: "u1", Kind: models.KindHitchhikerRequest,
		Destination: models.Place{Text: "x"}, Status: models.RequestPending,
		ExpiresAt: time.Now().Add(time.Hour)}
	_ = s.SaveRequest(ctx, req)
	_ = s.AddRequestCandidates(ctx, "r1", []string{"a", "b"})
	_ = s.AddRequestCandidates(ctx, "r1", []string{"b", "c"})
	got, _ := s.GetRequest(ctx, "r1")
	if len(got.CandidateIDs) != 3 {
		t.Fatalf("expected 3 distinct candidates, got %v", got.CandidateIDs)
	}
}
