// Package metrics holds the Prometheus collectors for browsing, discovery and
// the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Browse metrics
var (
	BrowseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdsbrowse_browse_total",
			Help: "Total number of container fetches by outcome",
		},
		[]string{"status"}, // "ok", "error", "canceled"
	)

	BrowseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cdsbrowse_browse_duration_seconds",
			Help:    "Time to fetch all children of a container",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	BrowseInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cdsbrowse_browse_in_flight",
			Help: "Number of container fetches currently running",
		},
	)

	ObjectsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cdsbrowse_objects_received_total",
			Help: "Total number of objects received from media servers",
		},
	)

	ObjectsMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cdsbrowse_objects_malformed_total",
			Help: "Total number of DIDL-Lite objects skipped as malformed",
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cdsbrowse_entry_cache_hits_total",
			Help: "Total number of reads served by an existing entry stream",
		},
	)
)

// SOAP metrics
var (
	ActionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdsbrowse_soap_actions_total",
			Help: "Total number of SOAP actions issued",
		},
		[]string{"action", "status"},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cdsbrowse_soap_action_duration_seconds",
			Help:    "SOAP action round trip time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
)

// Discovery metrics
var (
	ServersKnown = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cdsbrowse_servers",
			Help: "Number of media servers currently registered",
		},
	)

	SSDPResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cdsbrowse_ssdp_responses_total",
			Help: "Total number of SSDP search responses received",
		},
	)

	DescriptionFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdsbrowse_description_fetches_total",
			Help: "Total number of device description fetches",
		},
		[]string{"status"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdsbrowse_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cdsbrowse_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Status label for an operation's result.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
