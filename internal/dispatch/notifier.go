package dispatch

import "context"

// Control is an interactive affordance attached to an outbound message.
type Control string

const (
	ControlAccept Control = "accept"
	ControlReject Control = "reject"
	ControlYes    Control = "yes"
	ControlNo     Control = "no"
)

// Message templates understood by the messaging channel.
const (
	TemplateMatchOffer      = "match_offer"
	TemplateRiderContact    = "rider_contact"
	TemplateNameSharePrompt = "name_share_prompt"
	TemplateRequestExpired  = "request_expired"
)

// Notifier sends a templated message to a phone-style user id. Delivery
// is fire-and-forget from the engine's point of view; implementations own
// their retry policy.
type Notifier interface {
	Send(ctx context.Context, userID, template string, data map[string]any, controls []Control) error
}
