package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry and the domain counters.
// All record methods are nil-safe so callers never need to guard.
type MetricsService struct {
	registry *prometheus.Registry

	httpDuration *prometheus.HistogramVec
	httpTotal    *prometheus.CounterVec

	applicationsSubmitted prometheus.Counter
	decisionsTotal        *prometheus.CounterVec
	reapplicationsTotal   prometheus.Counter
	certificatesIssued    prometheus.Counter
	certificateVerifies   prometheus.Counter
	notificationsTotal    *prometheus.CounterVec
	integrityRowsRepaired prometheus.Counter
}

// NewMetricsService registers all collectors on a fresh registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &MetricsService{
		registry: registry,
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nodues_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nodues_http_requests_total",
			Help: "Total HTTP requests by route.",
		}, []string{"method", "path", "status"}),
		applicationsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nodues_applications_submitted_total",
			Help: "Clearance applications submitted.",
		}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nodues_decisions_total",
			Help: "Department decisions recorded.",
		}, []string{"department", "decision"}),
		reapplicationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nodues_reapplications_total",
			Help: "Reapplications after rejection.",
		}),
		certificatesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nodues_certificates_issued_total",
			Help: "Clearance certificates issued.",
		}),
		certificateVerifies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nodues_certificate_verifications_total",
			Help: "Public certificate verification lookups.",
		}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nodues_notifications_total",
			Help: "Notification emails by event and outcome.",
		}, []string{"event", "outcome"}),
		integrityRowsRepaired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nodues_integrity_rows_repaired_total",
			Help: "Missing department status rows inserted by repair runs.",
		}),
	}

	registry.MustRegister(
		m.httpDuration, m.httpTotal,
		m.applicationsSubmitted, m.decisionsTotal, m.reapplicationsTotal,
		m.certificatesIssued, m.certificateVerifies,
		m.notificationsTotal, m.integrityRowsRepaired,
	)
	return m
}

// Handler exposes the scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one handled request.
func (m *MetricsService) ObserveHTTP(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.httpTotal.WithLabelValues(method, path, code).Inc()
}

// RecordSubmission counts a new application.
func (m *MetricsService) RecordSubmission() {
	if m == nil {
		return
	}
	m.applicationsSubmitted.Inc()
}

// RecordDecision counts one recorded department decision.
func (m *MetricsService) RecordDecision(department, decision string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(department, decision).Inc()
}

// RecordReapplication counts a reapplication.
func (m *MetricsService) RecordReapplication() {
	if m == nil {
		return
	}
	m.reapplicationsTotal.Inc()
}

// RecordCertificateIssued counts an issued certificate.
func (m *MetricsService) RecordCertificateIssued() {
	if m == nil {
		return
	}
	m.certificatesIssued.Inc()
}

// RecordCertificateVerification counts a public verification lookup.
func (m *MetricsService) RecordCertificateVerification() {
	if m == nil {
		return
	}
	m.certificateVerifies.Inc()
}

// RecordNotification counts one delivery attempt outcome.
func (m *MetricsService) RecordNotification(event string, delivered bool) {
	if m == nil {
		return
	}
	outcome := "sent"
	if !delivered {
		outcome = "failed"
	}
	m.notificationsTotal.WithLabelValues(event, outcome).Inc()
}

// RecordRepair counts status rows inserted by an integrity repair run.
func (m *MetricsService) RecordRepair(rowsInserted int) {
	if m == nil {
		return
	}
	m.integrityRowsRepaired.Add(float64(rowsInserted))
}
