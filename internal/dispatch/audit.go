package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
	"github.com/example/carpool-matching/internal/storage"
)

// Publisher mirrors notification audit records onto an event stream.
type Publisher interface {
	PublishNotification(ctx context.Context, n models.Notification) error
}

// Audited wraps a Notifier so every send is recorded as an append-only
// Notification row before dispatch and its delivery status set after.
type Audited struct {
	Next      Notifier
	Store     storage.Store
	Publisher Publisher // optional
	Logger    *slog.Logger
}

func NewAudited(next Notifier, store storage.Store, pub Publisher, logger *slog.Logger) *Audited {
	return &Audited{Next: next, Store: store, Publisher: pub, Logger: logger}
}

func (a *Audited) Send(ctx context.Context, userID, template string, data map[string]any, controls []Control) error {
	n := models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      template,
		Status:    models.DeliveryPending,
		CreatedAt: time.Now(),
	}
	if v, ok := data["request_id"].(string); ok {
		n.RequestID = v
	}
	if v, ok := data["match_id"].(string); ok {
		n.MatchID = v
	}
	if err := a.Store.AppendNotification(ctx, &n); err != nil {
		return err
	}

	err := a.Next.Send(ctx, userID, template, data, controls)
	status := models.DeliverySent
	if err != nil {
		status = models.DeliveryFailed
		observability.NotificationsFailed.Inc()
		if a.Logger != nil {
			a.Logger.Warn("notification send failed", "user", userID, "template", template, "error", err)
		}
	} else {
		observability.NotificationsSent.WithLabelValues(template).Inc()
	}
	if serr := a.Store.SetNotificationStatus(ctx, n.ID, status); serr != nil && a.Logger != nil {
		a.Logger.Warn("notification status update failed", "id", n.ID, "error", serr)
	}
	n.Status = status
	if a.Publisher != nil {
		if perr := a.Publisher.PublishNotification(ctx, n); perr != nil && a.Logger != nil {
			a.Logger.Warn("notification publish failed", "id", n.ID, "error", perr)
		}
	}
	return err
}
