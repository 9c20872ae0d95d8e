package approval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/carpool-matching/internal/dispatch"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
	"github.com/example/carpool-matching/internal/storage"
)

// ErrWrongResponder is the one validation failure this package surfaces:
// the responder is not the match's counterpart.
var ErrWrongResponder = errors.New("approval: responder is not the match counterpart")

// Outcome describes what a response event actually did. NoOp covers every
// duplicate and late arrival; those are successes, not errors.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	OutcomeExpired  Outcome = "expired"
	OutcomeNoOp     Outcome = "noop"
)

// Coordinator drives a match through pending_approval to its terminal
// state. All transitions go through conditional updates; whoever wins the
// compare-and-swap is authoritative and the loser does nothing further.
type Coordinator struct {
	Store    storage.Store
	Notifier dispatch.Notifier
	Logger   *slog.Logger
}

func NewCoordinator(store storage.Store, notifier dispatch.Notifier, logger *slog.Logger) *Coordinator {
	return &Coordinator{Store: store, Notifier: notifier, Logger: logger}
}

// HandleResponse processes a counterpart's accept or reject. Replays of
// an already-resolved match return OutcomeNoOp with no side effects.
func (c *Coordinator) HandleResponse(ctx context.Context, matchID, responderID string, decision models.Decision) (Outcome, error) {
	m, err := c.Store.GetMatch(ctx, matchID)
	if errors.Is(err, storage.ErrNotFound) {
		c.log().Info("response for unknown match, treating as resolved", "match", matchID)
		return OutcomeNoOp, nil
	}
	if err != nil {
		return OutcomeNoOp, err
	}
	if responderID != "" && responderID != m.CounterpartID {
		return OutcomeNoOp, ErrWrongResponder
	}
	if m.Status.Terminal() {
		return OutcomeNoOp, nil
	}

	req, err := c.Store.GetRequest(ctx, m.RequestID)
	if errors.Is(err, storage.ErrNotFound) {
		c.log().Info("match references missing request", "match", matchID, "request", m.RequestID)
		return OutcomeNoOp, nil
	}
	if err != nil {
		return OutcomeNoOp, err
	}
	if req.Expired(time.Now()) {
		// expiry terminates the match without sibling rejection
		_, err := c.Store.UpdateMatchStatus(ctx, m.ID, models.MatchPendingApproval, models.MatchExpired)
		return OutcomeExpired, err
	}

	if decision == models.DecisionRejected {
		won, err := c.Store.UpdateMatchStatus(ctx, m.ID, models.MatchPendingApproval, models.MatchRejected)
		if err != nil {
			return OutcomeNoOp, err
		}
		if !won {
			return OutcomeNoOp, nil
		}
		return OutcomeRejected, nil
	}
	return c.approve(ctx, m, req, false)
}

// HandleAutoApprove is the auto-approve path. It races freely with a
// manual response on the same match; the conditional update decides.
func (c *Coordinator) HandleAutoApprove(ctx context.Context, m *models.Match) (Outcome, error) {
	if m.Status.Terminal() {
		return OutcomeNoOp, nil
	}
	req, err := c.Store.GetRequest(ctx, m.RequestID)
	if errors.Is(err, storage.ErrNotFound) {
		return OutcomeNoOp, nil
	}
	if err != nil {
		return OutcomeNoOp, err
	}
	if req.Expired(time.Now()) {
		_, err := c.Store.UpdateMatchStatus(ctx, m.ID, models.MatchPendingApproval, models.MatchExpired)
		return OutcomeExpired, err
	}
	return c.approve(ctx, m, req, true)
}

// approve performs the terminal transition. Exactly one caller per match
// passes the first CAS; only that caller rejects siblings and notifies
// the requester, so duplicates produce zero extra messages.
func (c *Coordinator) approve(ctx context.Context, m *models.Match, req *models.RideRequest, auto bool) (Outcome, error) {
	won, err := c.Store.UpdateMatchStatus(ctx, m.ID, models.MatchPendingApproval, models.MatchApproved)
	if err != nil {
		return OutcomeNoOp, err
	}
	if !won {
		return OutcomeNoOp, nil
	}
	observability.MatchesApproved.Inc()
	if auto {
		observability.AutoApprovals.Inc()
	}

	// also conditional; a sibling may have approved the request already,
	// but then our match CAS would have lost, so absorbing false is safe
	if _, err := c.Store.ApproveRequest(ctx, req.ID, m.CounterpartID); err != nil {
		return OutcomeApproved, err
	}
	rejected, err := c.Store.RejectSiblings(ctx, req.ID, m.ID)
	if err != nil {
		return OutcomeApproved, err
	}
	observability.SiblingRejections.Add(float64(rejected))
	c.log().Info("match approved", "match", m.ID, "request", req.ID, "auto", auto, "siblings_rejected", rejected)

	c.notifyRequester(ctx, m, req)
	return OutcomeApproved, nil
}

// notifyRequester delivers the winner's contact card. The counterpart's
// nameSharing preference decides whether the display name rides along.
func (c *Coordinator) notifyRequester(ctx context.Context, m *models.Match, req *models.RideRequest) {
	data := map[string]any{
		"request_id":  req.ID,
		"match_id":    m.ID,
		"phone":       m.CounterpartID,
		"destination": m.Destination.Text,
	}
	counterpart, err := c.Store.GetUser(ctx, m.CounterpartID)
	if err == nil {
		switch counterpart.NameSharing {
		case models.ShareAlways:
			data["name"] = counterpart.Name
		case models.ShareAsk:
			data["name_pending"] = true
			if err := c.Notifier.Send(ctx, m.CounterpartID, dispatch.TemplateNameSharePrompt,
				map[string]any{"match_id": m.ID}, []dispatch.Control{dispatch.ControlYes, dispatch.ControlNo}); err != nil {
				c.log().Warn("name share prompt failed", "match", m.ID, "error", err)
			}
		}
	}
	if err := c.Notifier.Send(ctx, req.UserID, dispatch.TemplateRiderContact, data, nil); err != nil {
		c.log().Warn("contact notification failed", "match", m.ID, "error", err)
		return
	}
	if err := c.Store.MarkMatchNotified(ctx, m.ID, true); err != nil {
		c.log().Warn("notified flag update failed", "match", m.ID, "error", err)
	}
}

func (c *Coordinator) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
