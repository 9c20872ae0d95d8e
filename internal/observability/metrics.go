package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesCreated    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "matches_created_total", Help: "Match records persisted"})
	MatchesApproved   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "matches_approved_total", Help: "Matches that reached approved"})
	SiblingRejections = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "sibling_rejections_total", Help: "Matches rejected because a sibling won"})
	AutoApprovals     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "auto_approvals_total", Help: "Matches approved via the auto-approve preference"})

	NotificationsSent   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "carpool", Name: "notifications_sent_total", Help: "Outbound notifications by template"}, []string{"template"})
	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "notifications_failed_total", Help: "Notifications that exhausted retries"})

	GeocodeCacheHits   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "geocode_cache_hits_total", Help: "Geocode lookups served from cache"})
	GeocodeCacheMisses = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "geocode_cache_misses_total", Help: "Geocode lookups not in cache"})

	FinderCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "carpool", Name: "finder_candidates", Help: "Candidates found per search",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carpool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
