package matcher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
	"github.com/example/carpool-matching/internal/storage"
)

// Registry turns ranked candidates into persisted Match rows. Inserts are
// keyed by (request, counterpart) so replaying the same request creates
// nothing new.
type Registry struct {
	Store      storage.Store
	ScoreFloor float64
}

func NewRegistry(store storage.Store) *Registry {
	return &Registry{Store: store, ScoreFloor: DefaultScoreFloor}
}

// RegisterMatches persists every candidate at or above the score floor and
// returns only the newly created rows for notification dispatch.
func (r *Registry) RegisterMatches(ctx context.Context, rec *models.RideRequest, ranked []Candidate) ([]models.Match, error) {
	now := time.Now()
	var created []models.Match
	var counterparts []string
	for _, c := range ranked {
		if c.Score < r.ScoreFloor {
			continue
		}
		m := &models.Match{
			ID:            uuid.NewString(),
			RequestID:     rec.ID,
			CounterpartID: c.CounterpartID,
			RoutineID:     c.RoutineID,
			Origin:        rec.Origin,
			Destination:   rec.Destination,
			Score:         c.Score,
			Status:        models.MatchPendingApproval,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		saved, wasCreated, err := r.Store.InsertMatchIfAbsent(ctx, m)
		if err != nil {
			return created, err
		}
		counterparts = append(counterparts, c.CounterpartID)
		if !wasCreated {
			continue // retry or duplicate invocation; row already there
		}
		created = append(created, *saved)
		observability.MatchesCreated.Inc()
	}
	if len(counterparts) > 0 {
		if err := r.Store.AddRequestCandidates(ctx, rec.ID, counterparts); err != nil {
			return created, err
		}
		// losing this CAS just means another invocation got there first
		_, err := r.Store.UpdateRequestStatus(ctx, rec.ID, models.RequestPending, models.RequestMatched)
		if err != nil {
			return created, err
		}
	}
	return created, nil
}
