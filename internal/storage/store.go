package storage

import (
	"context"
	"errors"

	"github.com/example/carpool-matching/internal/models"
)

// ErrNotFound means the referenced record does not exist. Callers that hit
// it during approval treat the event as already resolved, not as a failure.
var ErrNotFound = errors.New("storage: not found")

// Store is the persistence boundary of the engine. Every state-changing
// write that races takes the expected prior status and reports whether the
// precondition held; a false return means someone else completed the
// transition first and the caller absorbs it as a no-op.
//
// TTL semantics: requests past ExpiresAt never appear in "active" queries,
// whatever their stored status. Physical deletion timing is the backing
// implementation's business.
type Store interface {
	SaveUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)

	SaveRoutine(ctx context.Context, r *models.Routine) error
	GetRoutine(ctx context.Context, id string) (*models.Routine, error)
	// GetActiveRoutines returns active routines; destinationHint is a
	// coarse pre-filter, empty means all.
	GetActiveRoutines(ctx context.Context, destinationHint string) ([]models.Routine, error)

	SaveRequest(ctx context.Context, r *models.RideRequest) error
	GetRequest(ctx context.Context, id string) (*models.RideRequest, error)
	// GetActiveRequests returns unexpired requests of the given kind in
	// status pending or matched.
	GetActiveRequests(ctx context.Context, kind models.RequestKind, destinationHint string) ([]models.RideRequest, error)
	// UpdateRequestStatus is a compare-and-swap on the request status.
	UpdateRequestStatus(ctx context.Context, id string, from, to models.RequestStatus) (bool, error)
	// ApproveRequest marks the request approved and records the winning
	// counterpart, conditioned on the request not being terminal yet.
	ApproveRequest(ctx context.Context, id, counterpartID string) (bool, error)
	// AddRequestCandidates appends counterpart ids to the considered set.
	AddRequestCandidates(ctx context.Context, id string, candidateIDs []string) error

	// InsertMatchIfAbsent inserts keyed by (RequestID, CounterpartID).
	// When a match for that pair already exists it returns the existing
	// row and created=false.
	InsertMatchIfAbsent(ctx context.Context, m *models.Match) (*models.Match, bool, error)
	GetMatch(ctx context.Context, id string) (*models.Match, error)
	GetMatchesByRequest(ctx context.Context, requestID string) ([]models.Match, error)
	// UpdateMatchStatus is a compare-and-swap on the match status.
	UpdateMatchStatus(ctx context.Context, id string, from, to models.MatchStatus) (bool, error)
	// RejectSiblings bulk-rejects every other match of the request that is
	// still pending approval; each row's update is individually
	// conditioned on that status. Returns how many flipped.
	RejectSiblings(ctx context.Context, requestID, winnerMatchID string) (int, error)
	// MarkMatchNotified flips the driver- or rider-notified flag.
	MarkMatchNotified(ctx context.Context, id string, rider bool) error
	// ListPendingMatches returns all matches still awaiting approval, for
	// the auto-approve sweep.
	ListPendingMatches(ctx context.Context) ([]models.Match, error)

	AppendNotification(ctx context.Context, n *models.Notification) error
	SetNotificationStatus(ctx context.Context, id string, status models.DeliveryStatus) error
}
