package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bark-labs/qr-alarm/internal/lifecycle"
	"github.com/bark-labs/qr-alarm/internal/verify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Recorder owns the device's collectors on a private registry so several
// instances can coexist in one process.
type Recorder struct {
	registry        *prometheus.Registry
	alarmEvents     *prometheus.CounterVec
	verifyResults   *prometheus.CounterVec
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New builds a Recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		alarmEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qr_alarm",
			Name:      "alarm_events_total",
			Help:      "Alarm lifecycle events by kind",
		}, []string{"kind"}),
		verifyResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qr_alarm",
			Name:      "verify_results_total",
			Help:      "Scan verification outcomes",
		}, []string{"outcome"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qr_alarm",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qr_alarm",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
	}
	r.registry.MustRegister(r.alarmEvents, r.verifyResults, r.requestTotal, r.requestDuration)
	return r
}

// OnAlarmEvent counts lifecycle transitions.
func (r *Recorder) OnAlarmEvent(ev lifecycle.Event) {
	r.alarmEvents.With(prometheus.Labels{"kind": string(ev.Kind)}).Inc()
}

// RecordVerify counts one verification outcome.
func (r *Recorder) RecordVerify(res verify.Result) {
	outcome := "authorized"
	if !res.Authorized {
		outcome = string(res.Reason)
	}
	r.verifyResults.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// RecordVerifyError counts a verification that failed outright.
func (r *Recorder) RecordVerifyError() {
	r.verifyResults.With(prometheus.Labels{"outcome": "error"}).Inc()
}

// RecordRequest counts one handled request. route is the registered
// pattern, not the raw path.
func (r *Recorder) RecordRequest(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestDuration.With(labels).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
