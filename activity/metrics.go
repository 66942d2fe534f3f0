package activity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("helix-activity/activity")

var (
	eventsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_events_submitted_total",
			Help: "Activity records accepted by the audit resource, labeled by operation status.",
		},
		[]string{"status"},
	)

	logFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_log_failures_total",
			Help: "Activity logging failures, labeled by failure kind and whether they were suspended.",
		},
		[]string{"kind", "suspended"},
	)
)
