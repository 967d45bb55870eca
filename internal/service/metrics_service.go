package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns a private Prometheus registry so tests can construct
// multiple instances without duplicate-registration panics.
type MetricsService struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	queueJoinsTotal   *prometheus.CounterVec
	checkInsTotal     *prometheus.CounterVec
	checkOutsTotal    *prometheus.CounterVec
	seatsOccupied     *prometheus.GaugeVec
	queueDepth        *prometheus.GaugeVec
	staleEntriesSwept prometheus.Counter
}

// NewMetricsService builds the registry and registers all collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	s := &MetricsService{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of in-flight HTTP requests.",
		}),
		queueJoinsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_joins_total",
			Help: "Queue join attempts by result.",
		}, []string{"result"}),
		checkInsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "check_ins_total",
			Help: "Check-in attempts by result.",
		}, []string{"result"}),
		checkOutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "check_outs_total",
			Help: "Check-out attempts by result.",
		}, []string{"result"}),
		seatsOccupied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exam_seats_occupied",
			Help: "Seats currently occupied per exam.",
		}, []string{"exam_id"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exam_queue_depth",
			Help: "Active queue entries per exam.",
		}, []string{"exam_id"}),
		staleEntriesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stale_entries_swept_total",
			Help: "Waiting entries expired by the reconciliation sweeper.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		s.httpRequestsTotal,
		s.httpRequestDuration,
		s.httpRequestsInFlight,
		s.queueJoinsTotal,
		s.checkInsTotal,
		s.checkOutsTotal,
		s.seatsOccupied,
		s.queueDepth,
		s.staleEntriesSwept,
	)

	return s
}

// Handler exposes the registry for the /metrics endpoint.
func (s *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	s.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	s.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (s *MetricsService) IncRequestsInFlight() {
	s.httpRequestsInFlight.Inc()
}

func (s *MetricsService) DecRequestsInFlight() {
	s.httpRequestsInFlight.Dec()
}

func (s *MetricsService) RecordQueueJoin(result string) {
	s.queueJoinsTotal.WithLabelValues(result).Inc()
}

func (s *MetricsService) RecordCheckIn(result string) {
	s.checkInsTotal.WithLabelValues(result).Inc()
}

func (s *MetricsService) RecordCheckOut(result string) {
	s.checkOutsTotal.WithLabelValues(result).Inc()
}

func (s *MetricsService) SetSeatsOccupied(examID string, occupied int) {
	s.seatsOccupied.WithLabelValues(examID).Set(float64(occupied))
}

func (s *MetricsService) SetQueueDepth(examID string, depth int) {
	s.queueDepth.WithLabelValues(examID).Set(float64(depth))
}

func (s *MetricsService) AddStaleEntriesSwept(n int) {
	s.staleEntriesSwept.Add(float64(n))
}
