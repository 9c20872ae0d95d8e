package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool-matching/internal/approval"
	"github.com/example/carpool-matching/internal/dispatch"
	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/matcher"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/schedule"
	"github.com/example/carpool-matching/internal/storage"
)

// ErrValidation marks malformed input rejected before any matching runs;
// the front-end turns it into a corrective prompt.
var ErrValidation = errors.New("engine: validation failed")

// DefaultRequestTTL is how long a ride request stays eligible for
// matching.
const DefaultRequestTTL = 24 * time.Hour

// Orchestrator is the single entry point for the conversational front-end
// and webhook layer. It wires Finder, Scorer, Registry and the approval
// Coordinator together.
type Orchestrator struct {
	Store      storage.Store
	Finder     *matcher.Finder
	Registry   *matcher.Registry
	Approval   *approval.Coordinator
	Notifier   dispatch.Notifier
	RequestTTL time.Duration
	Logger     *slog.Logger
}

func New(store storage.Store, finder *matcher.Finder, registry *matcher.Registry, coord *approval.Coordinator, notifier dispatch.Notifier, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		Store:      store,
		Finder:     finder,
		Registry:   registry,
		Approval:   coord,
		Notifier:   notifier,
		RequestTTL: DefaultRequestTTL,
		Logger:     logger,
	}
}

// OnNewRequest ingests a ride request, finds and persists its candidate
// matches and prompts each counterpart. Calling it again with the same
// request id creates no duplicate matches.
func (o *Orchestrator) OnNewRequest(ctx context.Context, req *models.RideRequest) ([]models.Match, error) {
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}
	now := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	stored, err := o.Store.GetRequest(ctx, req.ID)
	switch {
	case err == nil:
		req = stored // replay; keep the persisted record authoritative
	case errors.Is(err, storage.ErrNotFound):
		req.Status = models.RequestPending
		req.CreatedAt = now
		if req.When.IsZero() {
			// no time given means "leave as soon as possible"
			req.When = schedule.ASAP(now)
		}
		if req.ExpiresAt.IsZero() {
			ttl := o.RequestTTL
			if ttl <= 0 {
				ttl = DefaultRequestTTL
			}
			req.ExpiresAt = now.Add(ttl)
		}
		o.resolvePlaces(ctx, req)
		if dup := o.findDuplicate(ctx, req); dup != nil {
			o.log().Info("near-duplicate request collapsed", "request", req.ID, "existing", dup.ID)
			req = dup
		} else if err := o.Store.SaveRequest(ctx, req); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	if req.Expired(time.Now()) {
		return nil, nil
	}

	cands, err := o.Finder.FindCandidates(ctx, req)
	if err != nil {
		return nil, err
	}
	created, err := o.Registry.RegisterMatches(ctx, req, matcher.Rank(cands))
	if err != nil {
		return created, err
	}
	for i := range created {
		o.dispatchOffer(ctx, req, &created[i])
	}
	return created, nil
}

// OnNewRoutine ingests a driver routine and pairs it against every open
// rider request it could serve.
func (o *Orchestrator) OnNewRoutine(ctx context.Context, rt *models.Routine) ([]models.Match, error) {
	if rt.UserID == "" || rt.Destination.Text == "" {
		return nil, fmt.Errorf("%w: routine needs user and destination", ErrValidation)
	}
	if rt.Days.IsEmpty() {
		return nil, fmt.Errorf("%w: routine needs at least one weekday", ErrValidation)
	}
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	if rt.CreatedAt.IsZero() {
		rt.CreatedAt = time.Now()
	}
	rt.Active = true
	if rt.Destination.Coord == nil && o.Finder.Resolver != nil {
		if c, err := o.Finder.Resolver.Resolve(ctx, rt.Destination.Text); err == nil {
			rt.Destination.Coord = &c
		}
	}
	if err := o.Store.SaveRoutine(ctx, rt); err != nil {
		return nil, err
	}

	hits, err := o.Finder.FindForRoutine(ctx, rt)
	if err != nil {
		return nil, err
	}
	var all []models.Match
	for _, hit := range hits {
		req := hit.Request
		created, err := o.Registry.RegisterMatches(ctx, &req, []matcher.Candidate{hit.Candidate})
		if err != nil {
			return all, err
		}
		for i := range created {
			o.dispatchOffer(ctx, &req, &created[i])
		}
		all = append(all, created...)
	}
	return all, nil
}

// OnApprovalEvent forwards a counterpart's decision to the approval
// coordinator. Duplicate deliveries resolve to no-ops there.
func (o *Orchestrator) OnApprovalEvent(ctx context.Context, matchID, responderID string, decision models.Decision) (approval.Outcome, error) {
	if matchID == "" {
		return approval.OutcomeNoOp, fmt.Errorf("%w: missing match id", ErrValidation)
	}
	if decision != models.DecisionApproved && decision != models.DecisionRejected {
		return approval.OutcomeNoOp, fmt.Errorf("%w: unknown decision %q", ErrValidation, decision)
	}
	return o.Approval.HandleResponse(ctx, matchID, responderID, decision)
}

// OnAutoApproveTick sweeps pending matches whose counterpart opted into
// auto-approval and has not been actioned yet.
func (o *Orchestrator) OnAutoApproveTick(ctx context.Context) error {
	pending, err := o.Store.ListPendingMatches(ctx)
	if err != nil {
		return err
	}
	for i := range pending {
		m := pending[i]
		u, err := o.Store.GetUser(ctx, m.CounterpartID)
		if err != nil || !u.AutoApprove {
			continue
		}
		if _, err := o.Approval.HandleAutoApprove(ctx, &m); err != nil {
			o.log().Warn("auto-approve sweep failed", "match", m.ID, "error", err)
		}
	}
	return nil
}

// OnExpiryTick terminates matches whose request ran out its TTL without
// a resolution, and tells the requester once that nobody took the ride.
func (o *Orchestrator) OnExpiryTick(ctx context.Context) error {
	pending, err := o.Store.ListPendingMatches(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for i := range pending {
		m := pending[i]
		req, err := o.Store.GetRequest(ctx, m.RequestID)
		if err != nil || !req.Expired(now) {
			continue
		}
		if _, err := o.Store.UpdateMatchStatus(ctx, m.ID, models.MatchPendingApproval, models.MatchExpired); err != nil {
			o.log().Warn("match expiry failed", "match", m.ID, "error", err)
			continue
		}
		o.expireRequest(ctx, req)
	}
	return nil
}

// expireRequest flips the request terminal; whoever wins the conditional
// update sends the single expiry notice.
func (o *Orchestrator) expireRequest(ctx context.Context, req *models.RideRequest) {
	won, err := o.Store.UpdateRequestStatus(ctx, req.ID, models.RequestPending, models.RequestExpired)
	if err == nil && !won {
		won, err = o.Store.UpdateRequestStatus(ctx, req.ID, models.RequestMatched, models.RequestExpired)
	}
	if err != nil || !won {
		return
	}
	data := map[string]any{"request_id": req.ID, "destination": req.Destination.Text}
	if err := o.Notifier.Send(ctx, req.UserID, dispatch.TemplateRequestExpired, data, nil); err != nil {
		o.log().Warn("expiry notification failed", "request", req.ID, "error", err)
	}
}

// dispatchOffer prompts the counterpart of a fresh match, or short-cuts
// straight to approval when they auto-approve. Auto-approving users never
// see a prompt for the match.
func (o *Orchestrator) dispatchOffer(ctx context.Context, req *models.RideRequest, m *models.Match) {
	u, err := o.Store.GetUser(ctx, m.CounterpartID)
	if err == nil && u.AutoApprove {
		if _, err := o.Approval.HandleAutoApprove(ctx, m); err != nil {
			o.log().Warn("auto-approve failed", "match", m.ID, "error", err)
		}
		return
	}
	data := map[string]any{
		"request_id":  req.ID,
		"match_id":    m.ID,
		"origin":      req.Origin.Text,
		"destination": req.Destination.Text,
	}
	if !req.When.Center().IsZero() {
		data["departure"] = req.When.Center().Format(time.RFC3339)
	}
	if err := o.Notifier.Send(ctx, m.CounterpartID, dispatch.TemplateMatchOffer, data,
		[]dispatch.Control{dispatch.ControlAccept, dispatch.ControlReject}); err != nil {
		o.log().Warn("offer notification failed", "match", m.ID, "error", err)
		return
	}
	if err := o.Store.MarkMatchNotified(ctx, m.ID, false); err != nil {
		o.log().Warn("notified flag update failed", "match", m.ID, "error", err)
	}
}

func (o *Orchestrator) validateRequest(req *models.RideRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrValidation)
	}
	if req.Destination.Text == "" {
		return fmt.Errorf("%w: missing destination", ErrValidation)
	}
	if req.Kind != models.KindDriverOffer && req.Kind != models.KindHitchhikerRequest {
		return fmt.Errorf("%w: unknown request kind %q", ErrValidation, req.Kind)
	}
	return nil
}

// resolvePlaces fills in coordinates best-effort; a resolver miss leaves
// the place text-only, which is fine for exact matching.
func (o *Orchestrator) resolvePlaces(ctx context.Context, req *models.RideRequest) {
	if o.Finder.Resolver == nil {
		return
	}
	if req.Destination.Coord == nil && req.Destination.Text != "" {
		if c, err := o.Finder.Resolver.Resolve(ctx, req.Destination.Text); err == nil {
			req.Destination.Coord = &c
		}
	}
	if req.Origin.Coord == nil && req.Origin.Text != "" {
		if c, err := o.Finder.Resolver.Resolve(ctx, req.Origin.Text); err == nil {
			req.Origin.Coord = &c
		}
	}
}

// findDuplicate collapses a re-phrased submission of the same intent:
// same user, same kind, same normalized destination, same departure
// instant. "08:00" and "8:00" land on the same instant after parsing, so
// they collapse here.
func (o *Orchestrator) findDuplicate(ctx context.Context, req *models.RideRequest) *models.RideRequest {
	open, err := o.Store.GetActiveRequests(ctx, req.Kind, "")
	if err != nil {
		return nil
	}
	for i := range open {
		other := &open[i]
		if other.UserID != req.UserID || other.ID == req.ID {
			continue
		}
		if !placeEqual(other.Destination, req.Destination) {
			continue
		}
		if other.When.Center().Equal(req.When.Center()) {
			return other
		}
	}
	return nil
}

func placeEqual(a, b models.Place) bool {
	return geo.NormalizeName(a.Text) == geo.NormalizeName(b.Text)
}

func (o *Orchestrator) log() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
