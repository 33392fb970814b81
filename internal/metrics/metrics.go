package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	framesReceived  prometheus.Counter
	decodeErrors    prometheus.Counter
	recordsIngested prometheus.Counter
	persistErrors   prometheus.Counter
	feedConnects    prometheus.Counter
	feedDisconnects prometheus.Counter
	feedConnected   prometheus.Gauge
	storeLatency    *prometheus.HistogramVec
	storeErrors     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg. Passing a fresh registry per
// instance keeps tests independent of the global default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_frames_received_total",
			Help: "Frames read from the machine feed.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_frame_decode_errors_total",
			Help: "Frames dropped because they could not be decoded.",
		}),
		recordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_records_ingested_total",
			Help: "Records committed by the ingestion client.",
		}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_ingest_persist_errors_total",
			Help: "Decoded frames whose insert failed and was rolled back.",
		}),
		feedConnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_feed_connects_total",
			Help: "Successful connections to the machine feed.",
		}),
		feedDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_feed_disconnects_total",
			Help: "Feed connections that ended with a transport failure.",
		}),
		feedConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_feed_connected",
			Help: "1 while the ingestion client is receiving from the feed.",
		}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "telemetry_store_operation_duration_seconds",
			Help:    "Latency of storage gateway operations, commit included.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_store_errors_total",
			Help: "Storage gateway operations that failed.",
		}, []string{"op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_http_requests_total",
			Help: "HTTP requests served, by route and status.",
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.framesReceived, m.decodeErrors, m.recordsIngested, m.persistErrors,
		m.feedConnects, m.feedDisconnects, m.feedConnected,
		m.storeLatency, m.storeErrors, m.httpRequests,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameReceived() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

func (m *Metrics) DecodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) RecordIngested() {
	if m != nil {
		m.recordsIngested.Inc()
	}
}

func (m *Metrics) PersistError() {
	if m != nil {
		m.persistErrors.Inc()
	}
}

// FeedUp marks the start of a receiving connection.
func (m *Metrics) FeedUp() {
	if m != nil {
		m.feedConnects.Inc()
		m.feedConnected.Set(1)
	}
}

// FeedDown marks the end of a connection. failed distinguishes transport
// failures from an orderly shutdown.
func (m *Metrics) FeedDown(failed bool) {
	if m == nil {
		return
	}
	m.feedConnected.Set(0)
	if failed {
		m.feedDisconnects.Inc()
	}
}

// ObserveStore records the latency and outcome of one store operation.
func (m *Metrics) ObserveStore(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.storeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.storeErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) HTTPRequest(method, route string, status int) {
	if m != nil {
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	}
}
