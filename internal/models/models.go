package models

import (
	"time"

	"github.com/example/carpool-matching/internal/schedule"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Place is a destination or origin as the user gave it, plus resolved
// coordinates when geocoding succeeded. Coord stays nil when every
// resolver failed; exact-text matching still applies then.
type Place struct {
	Text  string `json:"text"`
	Coord *Coord `json:"coord,omitempty"`
}

type Role string

const (
	RoleDriver Role = "driver"
	RoleRider  Role = "rider"
	RoleBoth   Role = "both"
)

// NameSharing controls what the rider sees once a match is approved.
type NameSharing string

const (
	ShareAlways NameSharing = "always"
	ShareAsk    NameSharing = "ask"
	ShareNever  NameSharing = "never"
)

type User struct {
	ID          string      `json:"id"` // phone-style identifier
	Name        string      `json:"name"`
	Role        Role        `json:"role"`
	AutoApprove bool        `json:"auto_approve"`
	NameSharing NameSharing `json:"name_sharing"`
	Disabled    bool        `json:"disabled"` // soft delete, never removed
	CreatedAt   time.Time   `json:"created_at"`
}

// Routine is a driver's recurring weekly schedule.
type Routine struct {
	ID          string                `json:"id"`
	UserID      string                `json:"user_id"`
	Destination Place                 `json:"destination"`
	Days        schedule.WeekdaySet   `json:"days"`
	Departure   schedule.ClockWindow  `json:"departure"`
	Return      *schedule.ClockWindow `json:"return,omitempty"`
	Active      bool                  `json:"active"`
	CreatedAt   time.Time             `json:"created_at"`
}

// CoversDate reports whether the routine runs on the given date.
func (r *Routine) CoversDate(date time.Time) bool {
	return r.Days.Covers(date)
}

type RequestKind string

const (
	KindDriverOffer       RequestKind = "driver_offer"
	KindHitchhikerRequest RequestKind = "hitchhiker_request"
)

// Counterpart returns the kind this request pairs against.
func (k RequestKind) Counterpart() RequestKind {
	if k == KindDriverOffer {
		return KindHitchhikerRequest
	}
	return KindDriverOffer
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestMatched  RequestStatus = "matched"
	RequestApproved RequestStatus = "approved"
	RequestExpired  RequestStatus = "expired"
)

// RideRequest is a single-instance driver offer or rider request.
type RideRequest struct {
	ID                    string              `json:"id"`
	UserID                string              `json:"user_id"`
	Kind                  RequestKind         `json:"kind"`
	Origin                Place               `json:"origin"`
	Destination           Place               `json:"destination"`
	When                  schedule.TimeWindow `json:"when"`
	Status                RequestStatus       `json:"status"`
	CandidateIDs          []string            `json:"candidate_ids,omitempty"`
	ApprovedCounterpartID string              `json:"approved_counterpart_id,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	ExpiresAt             time.Time           `json:"expires_at"`
}

// Expired reports whether the request's TTL has elapsed. One-way: once
// past ExpiresAt a request never comes back.
func (r *RideRequest) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

type MatchStatus string

const (
	MatchPendingApproval MatchStatus = "pending_approval"
	MatchApproved        MatchStatus = "approved"
	MatchRejected        MatchStatus = "rejected"
	MatchExpired         MatchStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s MatchStatus) Terminal() bool { return s != MatchPendingApproval }

// Match pairs a RideRequest with a counterpart user, optionally through a
// routine. At most one Match exists per (RequestID, CounterpartID) and at
// most one per RequestID ever reaches approved.
type Match struct {
	ID             string      `json:"id"`
	RequestID      string      `json:"request_id"`
	CounterpartID  string      `json:"counterpart_id"`
	RoutineID      string      `json:"routine_id,omitempty"`
	Origin         Place       `json:"origin"`      // audit copy
	Destination    Place       `json:"destination"` // audit copy
	Score          float64     `json:"score"`
	Status         MatchStatus `json:"status"`
	NotifiedDriver bool        `json:"notified_driver"`
	NotifiedRider  bool        `json:"notified_rider"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Notification is the append-only audit record of an outbound message.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Kind      string         `json:"kind"`
	RequestID string         `json:"request_id,omitempty"`
	MatchID   string         `json:"match_id,omitempty"`
	Status    DeliveryStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}
