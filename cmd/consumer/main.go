package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/carpool-matching/internal/approval"
	"github.com/example/carpool-matching/internal/dispatch"
	"github.com/example/carpool-matching/internal/logging"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/storage"
)

var (
	eventsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_approval_events_total",
		Help: "Total approval events consumed",
	})
	eventsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_approval_events_invalid_total",
		Help: "Total malformed approval events received",
	})
	eventsHandled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_approval_events_handled_total",
		Help: "Total approval events processed successfully",
	})
	eventsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_approval_events_failed_total",
		Help: "Total approval events that exhausted retries",
	})
)

func init() {
	prometheus.MustRegister(eventsConsumed, eventsInvalid, eventsHandled, eventsFailed)
}

// approvalEvent is the wire format of a driver decision arriving over the
// messaging channel's event bus.
type approvalEvent struct {
	MatchID     string `json:"match_id"`
	ResponderID string `json:"responder_id"`
	Decision    string `json:"decision"`
}

// ApprovalHandler is the narrow slice of the engine the consumer needs;
// tests swap in a fake.
type ApprovalHandler interface {
	HandleResponse(ctx context.Context, matchID, responderID string, decision models.Decision) (approval.Outcome, error)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	logger := logging.NewLogger(os.Getenv("LOG_LEVEL"))

	brokers := []string{"localhost:9092"}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = brokers[:0]
		for _, b := range strings.Split(v, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	}
	topic := os.Getenv("APPROVAL_TOPIC")
	if topic == "" {
		topic = "approval-events"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "carpool-approvals"
	}

	var store storage.Store
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		ps, err := storage.NewPostgresStore(dsn)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}

	var notifier dispatch.Notifier = dispatch.NewPushNotifier(os.Getenv("PUSH_ENDPOINT"), os.Getenv("PUSH_TOKEN"), nil)
	handler := approval.NewCoordinator(store, dispatch.NewAudited(notifier, store, nil, logger), logger)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() { _ = r.Close() }()

	logger.Info("consumer listening", "topic", topic, "brokers", brokers, "group", group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		eventsConsumed.Inc()

		var ev approvalEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.MatchID == "" {
			eventsInvalid.Inc()
			logger.Warn("invalid approval event", "error", err)
			continue
		}

		if err := handleWithRetry(ctx, handler, ev, 3, 200*time.Millisecond); err != nil {
			eventsFailed.Inc()
			logger.Warn("approval event failed", "match", ev.MatchID, "error", err)
			continue
		}
		eventsHandled.Inc()
	}
}

// handleWithRetry drives an event into the engine with bounded backoff.
// Validation errors are terminal: retrying a malformed event cannot help.
func handleWithRetry(ctx context.Context, h ApprovalHandler, ev approvalEvent, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		_, err := h.HandleResponse(ctx, ev.MatchID, ev.ResponderID, models.Decision(ev.Decision))
		if err == nil {
			return nil
		}
		if errors.Is(err, approval.ErrWrongResponder) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
