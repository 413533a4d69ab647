package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	GroupsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kchat_groups_created_total",
			Help: "Total groups created",
		},
	)

	GroupsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kchat_groups_deleted_total",
			Help: "Total groups deleted",
		},
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kchat_messages_posted_total",
			Help: "Total messages posted",
		},
		[]string{"surface"}, // "group" or "private"
	)

	MessagesEdited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kchat_messages_edited_total",
			Help: "Total message edits",
		},
	)

	MessagesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kchat_messages_deleted_total",
			Help: "Total message soft deletes",
		},
	)

	// Push channel metrics
	PushConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kchat_push_connections",
			Help: "Currently connected push clients",
		},
	)

	PushDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kchat_push_events_delivered_total",
			Help: "Push events handed to client send buffers",
		},
	)

	PushDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kchat_push_events_dropped_total",
			Help: "Push events dropped on full client buffers",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kchat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
