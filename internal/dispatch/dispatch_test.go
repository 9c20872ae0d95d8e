package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/storage"
)

type nextNotifier struct {
	calls int
	err   error
}

func (n *nextNotifier) Send(context.Context, string, string, map[string]any, []Control) error {
	n.calls++
	return n.err
}

func TestAuditedRecordsSent(t *testing.T) {
	s := storage.NewMemoryStore()
	next := &nextNotifier{}
	a := NewAudited(next, s, nil, nil)

	data := map[string]any{"request_id": "req1", "match_id": "m1"}
	if err := a.Send(context.Background(), "u1", TemplateMatchOffer, data, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("next called %d times", next.calls)
	}
	rows := s.Notifications()
	if len(rows) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(rows))
	}
	n := rows[0]
	if n.Status != models.DeliverySent || n.Kind != TemplateMatchOffer {
		t.Fatalf("bad row: %+v", n)
	}
	if n.RequestID != "req1" || n.MatchID != "m1" {
		t.Fatalf("ids not extracted: %+v", n)
	}
}

func TestAuditedRecordsFailure(t *testing.T) {
	s := storage.NewMemoryStore()
	next := &nextNotifier{err: errors.New("provider down")}
	a := NewAudited(next, s, nil, nil)

	if err := a.Send(context.Background(), "u1", TemplateRiderContact, nil, nil); err == nil {
		t.Fatal("send error must propagate")
	}
	rows := s.Notifications()
	if len(rows) != 1 || rows[0].Status != models.DeliveryFailed {
		t.Fatalf("expected a failed audit row, got %+v", rows)
	}
}

func TestPushRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPushNotifier(srv.URL, "", nil)
	p.BaseDelay = time.Millisecond
	if err := p.Send(context.Background(), "u1", TemplateMatchOffer, nil, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestPushDoesNotRetryProviderRejections(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewPushNotifier(srv.URL, "", nil)
	p.BaseDelay = time.Millisecond
	if err := p.Send(context.Background(), "u1", TemplateMatchOffer, nil, nil); err == nil {
		t.Fatal("a 4xx from the provider must surface as an error")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("rejections must not be retried, got %d attempts", got)
	}
}

func TestPushGivesUpAfterAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPushNotifier(srv.URL, "", nil)
	p.BaseDelay = time.Millisecond
	if err := p.Send(context.Background(), "u1", TemplateMatchOffer, nil, nil); err == nil {
		t.Fatal("exhausted retries must return the last error")
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}
