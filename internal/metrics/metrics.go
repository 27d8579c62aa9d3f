package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	UnsubscribeResults  *prometheus.CounterVec
	DNCAttempts         *prometheus.CounterVec
	HealthProbes        *prometheus.CounterVec
	AuditWriteFailures  prometheus.Counter
	RateLimitedRequests prometheus.Counter
	MirrorFailures      prometheus.Counter
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UnsubscribeResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dnc_proxy_unsubscribe_results_total",
			Help: "Unsubscribe requests by audited result",
		}, []string{"result"}),
		DNCAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dnc_proxy_dnc_attempts_total",
			Help: "Mautic DNC add calls by outcome",
		}, []string{"outcome"}),
		HealthProbes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dnc_proxy_health_probes_total",
			Help: "Upstream connectivity probes by outcome",
		}, []string{"outcome"}),
		AuditWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dnc_proxy_audit_write_failures_total",
			Help: "Audit records that could not be written",
		}),
		RateLimitedRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "dnc_proxy_rate_limited_requests_total",
			Help: "Unsubscribe requests rejected by the rate limiter",
		}),
		MirrorFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dnc_proxy_ses_mirror_failures_total",
			Help: "SES suppression mirror calls that failed",
		}),
	}
}

// UnsubscribeResult counts one finished unsubscribe request.
func (m *Metrics) UnsubscribeResult(result string) {
	if m == nil {
		return
	}
	m.UnsubscribeResults.WithLabelValues(result).Inc()
}

// DNCAttempt counts one DNC add call ("success", "http_error", "transport_error").
func (m *Metrics) DNCAttempt(outcome string) {
	if m == nil {
		return
	}
	m.DNCAttempts.WithLabelValues(outcome).Inc()
}

// HealthProbe counts one upstream probe ("reachable", "http_error", "connect_error").
func (m *Metrics) HealthProbe(outcome string) {
	if m == nil {
		return
	}
	m.HealthProbes.WithLabelValues(outcome).Inc()
}

// AuditWriteFailed counts one dropped audit record.
func (m *Metrics) AuditWriteFailed() {
	if m == nil {
		return
	}
	m.AuditWriteFailures.Inc()
}

// RateLimited counts one rejected request.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedRequests.Inc()
}

// MirrorFailed counts one failed SES mirror call.
func (m *Metrics) MirrorFailed() {
	if m == nil {
		return
	}
	m.MirrorFailures.Inc()
}
