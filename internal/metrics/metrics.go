// Package metrics provides Prometheus metrics collection for the reader.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epubread_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "epubread_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	Navigations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epubread_navigations_total",
			Help: "Total number of navigation actions by kind",
		},
		[]string{"action"},
	)

	LinkResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epubread_link_resolutions_total",
			Help: "Total number of link resolutions by result",
		},
		[]string{"result"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epubread_cache_lookups_total",
			Help: "Extraction cache lookups by result (hit or miss)",
		},
		[]string{"result"},
	)

	BookLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epubread_book_load_duration_seconds",
			Help:    "Time spent extracting and parsing a book",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	CurrentPosition = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "epubread_spine_position",
			Help: "Spine position currently displayed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		Navigations,
		LinkResolutions,
		CacheLookups,
		BookLoadDuration,
		CurrentPosition,
	)
}

// Handler returns an HTTP handler for the Prometheus /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest tracks request metrics with timing.
func RecordRequest(route string, status int, duration time.Duration) {
	RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordNavigation counts a navigation action and the position it ended on.
func RecordNavigation(action string, position int) {
	Navigations.WithLabelValues(action).Inc()
	CurrentPosition.Set(float64(position))
}

// RecordLinkResolution counts a link lookup as matched or unmatched.
func RecordLinkResolution(matched bool) {
	result := "unmatched"
	if matched {
		result = "matched"
	}
	LinkResolutions.WithLabelValues(result).Inc()
}

func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(result).Inc()
}

func RecordBookLoad(duration time.Duration) {
	BookLoadDuration.Observe(duration.Seconds())
}
