package api

import (
	"net/http"

	"github.com/ignite/mautic-dnc-proxy/internal/pkg/httputil"
)

type healthResponse struct {
	Status string `json:"status"`
	Mautic string `json:"mautic"`
}

type healthDetailResponse struct {
	Status          string `json:"status"`
	Mautic          string `json:"mautic"`
	CacheAgeSeconds int64  `json:"cache_age_seconds"`
}

// HandleHealth always answers 200; the upstream state is in the body.
//
//	GET /health
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.health.Check(r.Context())
	httputil.OK(w, healthResponse{Status: "ok", Mautic: st.Detail})
}

// HandleHealthDetail adds a degraded flag and the age of the cached probe.
//
//	GET /health/detail
func (h *Handlers) HandleHealthDetail(w http.ResponseWriter, r *http.Request) {
	snap := h.health.Snapshot(r.Context())
	status := "ok"
	if !snap.OK {
		status = "degraded"
	}
	httputil.OK(w, healthDetailResponse{
		Status:          status,
		Mautic:          snap.Detail,
		CacheAgeSeconds: int64(snap.Age.Seconds()),
	})
}
