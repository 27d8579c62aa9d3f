package api

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ignite/mautic-dnc-proxy/internal/pkg/httputil"
	"github.com/ignite/mautic-dnc-proxy/internal/pkg/logger"
	"github.com/ignite/mautic-dnc-proxy/internal/service/unsubscribe"
)

type unsubscribeRequest struct {
	Email  string `json:"email"`
	Origin string `json:"origin"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// HandleUnsubscribe accepts an address and answers only "ok" or
// "service_unavailable"; nothing about the contact is revealed.
//
//	POST /api/unsubscribe
func (h *Handlers) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req unsubscribeRequest
	if err := httputil.Decode(w, r, &req); err != nil {
		httputil.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if !validEmail(req.Email) {
		httputil.Error(w, http.StatusUnprocessableEntity, "invalid email")
		return
	}

	origin := req.Origin
	if origin == "" {
		origin = r.Header.Get("Origin")
	}

	resp := h.unsubscriber.Unsubscribe(r.Context(), unsubscribe.Request{
		Email:     req.Email,
		Origin:    truncateRunes(origin, h.originMaxLen),
		SourceIP:  clientIP(r),
		RequestID: middleware.GetReqID(r.Context()),
	})

	if resp == unsubscribe.ResponseServiceUnavailable {
		httputil.JSON(w, http.StatusServiceUnavailable, statusResponse{Status: "service_unavailable"})
		return
	}
	h.waitFloor(r, start)
	httputil.OK(w, statusResponse{Status: "ok"})
}

// waitFloor pads a response to the configured minimum duration.
func (h *Handlers) waitFloor(r *http.Request, start time.Time) {
	remaining := h.responseFloor - time.Since(start)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.Context().Done():
	}
}

// RateLimit rejects callers over the configured per-IP rate with 429. A
// limiter failure lets the request through.
func (h *Handlers) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		ok, err := h.limiter.Allow(r.Context(), clientIP(r))
		if err != nil {
			logger.Warn("rate limiter unavailable, allowing request", "error", err)
		}
		if !ok {
			h.metrics.RateLimited()
			w.Header().Set("Retry-After", "60")
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validEmail applies the usual structural checks: one @, bounded local and
// domain parts, a dotted domain, no whitespace.
func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return false
	}
	if len(local) == 0 || len(local) > 64 {
		return false
	}
	if len(domain) == 0 || len(domain) > 253 {
		return false
	}
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	_, err := url.Parse("mailto:" + email)
	return err == nil
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
