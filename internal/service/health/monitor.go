// Package health caches upstream connectivity so that health endpoints can
// be polled freely without turning into load on Mautic.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/mautic-dnc-proxy/internal/mautic"
	"github.com/ignite/mautic-dnc-proxy/internal/metrics"
	"github.com/ignite/mautic-dnc-proxy/internal/pkg/logger"
)

// Prober issues one cheap authenticated upstream call. *mautic.Client satisfies it.
type Prober interface {
	Ping(ctx context.Context) error
}

// Status is the cached result of the last probe.
type Status struct {
	OK        bool      `json:"ok"`
	CheckedAt time.Time `json:"checked_at"`
	Detail    string    `json:"detail"`
}

// Snapshot is a Status plus how old it is.
type Snapshot struct {
	Status
	Age time.Duration
}

// Monitor probes lazily: a Check within TTL of the last probe answers from
// cache, a Check after TTL probes first. Two concurrent stale checks may both
// probe; the later write wins.
type Monitor struct {
	prober  Prober
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.RWMutex
	status Status
}

// NewMonitor creates a monitor. The first Check always probes.
func NewMonitor(prober Prober, ttl time.Duration, m *metrics.Metrics) *Monitor {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Monitor{prober: prober, ttl: ttl, metrics: m, now: time.Now}
}

// Check returns the current status, probing first if the cache is stale.
// The probe result is stored whatever it is, so the probe runs detached
// from the caller's cancellation and is bounded only by the probe timeout.
func (m *Monitor) Check(ctx context.Context) Status {
	m.mu.RLock()
	cached := m.status
	m.mu.RUnlock()

	now := m.now()
	if !cached.CheckedAt.IsZero() && now.Sub(cached.CheckedAt) < m.ttl {
		return cached
	}

	fresh := m.probe(context.WithoutCancel(ctx))
	fresh.CheckedAt = now

	m.mu.Lock()
	m.status = fresh
	m.mu.Unlock()
	return fresh
}

// Snapshot runs Check and reports the age of the answer.
func (m *Monitor) Snapshot(ctx context.Context) Snapshot {
	st := m.Check(ctx)
	age := m.now().Sub(st.CheckedAt)
	if age < 0 {
		age = 0
	}
	return Snapshot{Status: st, Age: age}
}

func (m *Monitor) probe(ctx context.Context) Status {
	err := m.prober.Ping(ctx)
	if err == nil {
		m.metrics.HealthProbe("reachable")
		return Status{OK: true, Detail: "reachable"}
	}

	st := Status{Detail: Classify(err)}
	var se *mautic.HTTPStatusError
	if errors.As(err, &se) {
		m.metrics.HealthProbe("http_error")
	} else {
		m.metrics.HealthProbe("connect_error")
	}
	logger.Warn("mautic probe failed", "detail", st.Detail, "error", err)
	return st
}

// Classify renders a probe error as "http_error:<status>" or
// "connect_error:<kind>".
func Classify(err error) string {
	var se *mautic.HTTPStatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("http_error:%d", se.Status)
	}
	var te *mautic.TransportError
	if errors.As(err, &te) {
		return "connect_error:" + te.Kind()
	}
	return "connect_error:other"
}
