// Package metrics holds the Prometheus collectors of the timeline engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "omnigerrit_build_info",
		Help: "Build information of the running binary",
	}, []string{"version", "commit", "date"})

	// PageFetchTotal counts change-list requests by result (success, network, server).
	PageFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omnigerrit_page_fetch_total",
		Help: "Total change-list page requests by result",
	}, []string{"result"})

	PageFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "omnigerrit_page_fetch_duration_seconds",
		Help:    "Duration of change-list page requests",
		Buckets: prometheus.DefBuckets,
	})

	PagesBuiltTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omnigerrit_pages_built_total",
		Help: "Total logical timeline pages produced",
	})

	ChangesFilteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omnigerrit_changes_filtered_total",
		Help: "Total changes dropped while building pages, by reason",
	}, []string{"reason"})

	BuildsSplicedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omnigerrit_builds_spliced_total",
		Help: "Total synthetic build entries spliced into timelines",
	})

	// SnapshotFailuresTotal counts degraded session inputs (builds, allowlist).
	SnapshotFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omnigerrit_snapshot_failures_total",
		Help: "Total build snapshot and allow-list fetch failures",
	}, []string{"kind"})

	SnapshotRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omnigerrit_snapshot_retries_total",
		Help: "Total retried build snapshot and allow-list fetches, by operation",
	}, []string{"op"})

	SessionsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omnigerrit_sessions_started_total",
		Help: "Total timeline sessions started, by invalidation reason",
	}, []string{"reason"})

	ConnectivityState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "omnigerrit_connectivity_available",
		Help: "1 when the review server is reachable, 0 otherwise",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omnigerrit_http_requests_total",
		Help: "Total API requests served, by route and status",
	}, []string{"route", "status"})
)
