package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

// MemoryStore keeps everything in mutex-guarded maps. Used in tests and
// when no PG_DSN is configured. All CAS methods hold the single lock for
// the whole check-and-set, which gives the same one-winner guarantee the
// conditional SQL updates give.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*models.User
	routines      map[string]*models.Routine
	requests      map[string]*models.RideRequest
	matches       map[string]*models.Match
	matchByPair   map[string]string // requestID|counterpartID -> matchID
	notifications map[string]*models.Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*models.User),
		routines:      make(map[string]*models.Routine),
		requests:      make(map[string]*models.RideRequest),
		matches:       make(map[string]*models.Match),
		matchByPair:   make(map[string]string),
		notifications: make(map[string]*models.Notification),
	}
}

func pairKey(requestID, counterpartID string) string {
	return requestID + "|" + counterpartID
}

func (m *MemoryStore) SaveUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) SaveRoutine(_ context.Context, r *models.Routine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.routines[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRoutine(_ context.Context, id string) (*models.Routine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routines[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) GetActiveRoutines(_ context.Context, destinationHint string) ([]models.Routine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hint := strings.ToLower(destinationHint)
	out := make([]models.Routine, 0)
	for _, r := range m.routines {
		if !r.Active {
			continue
		}
		if hint != "" && !strings.Contains(strings.ToLower(r.Destination.Text), hint) {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (m *MemoryStore) SaveRequest(_ context.Context, r *models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	cp.CandidateIDs = append([]string(nil), r.CandidateIDs...)
	m.requests[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRequest(_ context.Context, id string) (*models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	cp.CandidateIDs = append([]string(nil), r.CandidateIDs...)
	return &cp, nil
}

func (m *MemoryStore) GetActiveRequests(_ context.Context, kind models.RequestKind, destinationHint string) ([]models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	hint := strings.ToLower(destinationHint)
	out := make([]models.RideRequest, 0)
	for _, r := range m.requests {
		if r.Kind != kind || r.Expired(now) {
			continue
		}
		if r.Status != models.RequestPending && r.Status != models.RequestMatched {
			continue
		}
		if hint != "" && !strings.Contains(strings.ToLower(r.Destination.Text), hint) {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (m *MemoryStore) UpdateRequestStatus(_ context.Context, id string, from, to models.RequestStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (m *MemoryStore) ApproveRequest(_ context.Context, id, counterpartID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return false, nil
	}
	if r.Status != models.RequestPending && r.Status != models.RequestMatched {
		return false, nil
	}
	r.Status = models.RequestApproved
	r.ApprovedCounterpartID = counterpartID
	return true, nil
}

func (m *MemoryStore) AddRequestCandidates(_ context.Context, id string, candidateIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	seen := make(map[string]bool, len(r.CandidateIDs))
	for _, c := range r.CandidateIDs {
		seen[c] = true
	}
	for _, c := range candidateIDs {
		if !seen[c] {
			r.CandidateIDs = append(r.CandidateIDs, c)
			seen[c] = true
		}
	}
	return nil
}

func (m *MemoryStore) InsertMatchIfAbsent(_ context.Context, match *models.Match) (*models.Match, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(match.RequestID, match.CounterpartID)
	if existingID, ok := m.matchByPair[key]; ok {
		cp := *m.matches[existingID]
		return &cp, false, nil
	}
	cp := *match
	m.matches[match.ID] = &cp
	m.matchByPair[key] = match.ID
	out := cp
	return &out, true, nil
}

func (m *MemoryStore) GetMatch(_ context.Context, id string) (*models.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mt
	return &cp, nil
}

func (m *MemoryStore) GetMatchesByRequest(_ context.Context, requestID string) ([]models.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Match, 0)
	for _, mt := range m.matches {
		if mt.RequestID == requestID {
			out = append(out, *mt)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateMatchStatus(_ context.Context, id string, from, to models.MatchStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.matches[id]
	if !ok || mt.Status != from {
		return false, nil
	}
	mt.Status = to
	mt.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) RejectSiblings(_ context.Context, requestID, winnerMatchID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, mt := range m.matches {
		if mt.RequestID != requestID || mt.ID == winnerMatchID {
			continue
		}
		if mt.Status != models.MatchPendingApproval {
			continue
		}
		mt.Status = models.MatchRejected
		mt.UpdatedAt = time.Now()
		count++
	}
	return count, nil
}

func (m *MemoryStore) MarkMatchNotified(_ context.Context, id string, rider bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.matches[id]
	if !ok {
		return ErrNotFound
	}
	if rider {
		mt.NotifiedRider = true
	} else {
		mt.NotifiedDriver = true
	}
	return nil
}

func (m *MemoryStore) ListPendingMatches(_ context.Context) ([]models.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Match, 0)
	for _, mt := range m.matches {
		if mt.Status == models.MatchPendingApproval {
			out = append(out, *mt)
		}
	}
	return out, nil
}

func (m *MemoryStore) AppendNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MemoryStore) SetNotificationStatus(_ context.Context, id string, status models.DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.Status = status
	return nil
}

// Notifications returns a snapshot of the audit log, oldest first not
// guaranteed; test helper.
func (m *MemoryStore) Notifications() []models.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		out = append(out, *n)
	}
	return out
}
