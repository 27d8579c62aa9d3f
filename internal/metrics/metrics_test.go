package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.UnsubscribeResult("ok")
	m.UnsubscribeResult("ok")
	m.UnsubscribeResult("not_found")
	m.DNCAttempt("http_error")
	m.AuditWriteFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UnsubscribeResults.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnsubscribeResults.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DNCAttempts.WithLabelValues("http_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWriteFailures))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.UnsubscribeResult("ok")
		m.DNCAttempt("success")
		m.HealthProbe("reachable")
		m.AuditWriteFailed()
		m.RateLimited()
		m.MirrorFailed()
	})
}
