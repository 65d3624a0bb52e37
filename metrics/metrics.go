// Package metrics exposes optional Prometheus instrumentation for the
// request and stream pipelines. Collection is off until the host application
// calls Enable with a registerer; all record helpers are no-ops before that.
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	enabled atomic.Bool

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	limiterWait     *prometheus.HistogramVec
	wsReconnects    *prometheus.CounterVec
	wsMessages      *prometheus.CounterVec
)

// Enable builds the collectors and registers them. Calling it twice returns
// the registerer's AlreadyRegistered error.
func Enable(reg prometheus.Registerer) error {
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unifex",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "REST requests by venue and status code.",
	}, []string{"venue", "code"})
	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "unifex",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "REST round-trip latency by venue.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"venue"})
	limiterWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "unifex",
		Subsystem: "http",
		Name:      "ratelimit_wait_seconds",
		Help:      "Time spent waiting on the weighted rate limiter.",
		Buckets:   []float64{.001, .005, .025, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"venue"})
	wsReconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unifex",
		Subsystem: "ws",
		Name:      "reconnects_total",
		Help:      "WebSocket reconnect attempts by venue.",
	}, []string{"venue"})
	wsMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unifex",
		Subsystem: "ws",
		Name:      "messages_total",
		Help:      "Inbound WebSocket frames by venue.",
	}, []string{"venue"})

	for _, c := range []prometheus.Collector{
		requestsTotal, requestDuration, limiterWait, wsReconnects, wsMessages,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	enabled.Store(true)
	return nil
}

// RecordRequest counts a completed REST round trip
func RecordRequest(venue string, statusCode int, d time.Duration) {
	if !enabled.Load() {
		return
	}
	requestsTotal.WithLabelValues(venue, strconv.Itoa(statusCode)).Inc()
	requestDuration.WithLabelValues(venue).Observe(d.Seconds())
}

// RecordLimiterWait observes time blocked on rate-limit capacity
func RecordLimiterWait(venue string, d time.Duration) {
	if !enabled.Load() {
		return
	}
	limiterWait.WithLabelValues(venue).Observe(d.Seconds())
}

// RecordReconnect counts a WebSocket reconnect attempt
func RecordReconnect(venue string) {
	if !enabled.Load() {
		return
	}
	wsReconnects.WithLabelValues(venue).Inc()
}

// RecordWSMessage counts an inbound WebSocket frame
func RecordWSMessage(venue string) {
	if !enabled.Load() {
		return
	}
	wsMessages.WithLabelValues(venue).Inc()
}
