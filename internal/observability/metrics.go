package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gate_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	CheckinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_checkins_total",
			Help: "Successful admissions by resulting status",
		},
		[]string{"status"},
	)

	CheckinRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_checkin_rejections_total",
			Help: "Refused admissions by reason",
		},
		[]string{"reason"},
	)

	PeopleAdmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_people_admitted_total",
			Help: "People admitted through the gate",
		},
	)

	AdminOverrides = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_admin_overrides_total",
			Help: "Admissions authorized by admin override",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gate_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
