package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mautic-dnc-proxy/internal/config"
	"github.com/ignite/mautic-dnc-proxy/internal/mautic"
	"github.com/ignite/mautic-dnc-proxy/internal/metrics"
	"github.com/ignite/mautic-dnc-proxy/internal/pkg/httpretry"
	"github.com/ignite/mautic-dnc-proxy/internal/pkg/ratelimit"
	"github.com/ignite/mautic-dnc-proxy/internal/service/actions"
	"github.com/ignite/mautic-dnc-proxy/internal/service/health"
	"github.com/ignite/mautic-dnc-proxy/internal/service/unsubscribe"
)

type stubUnsubscriber struct {
	mu   sync.Mutex
	resp unsubscribe.Response
	reqs []unsubscribe.Request
}

func (s *stubUnsubscriber) Unsubscribe(ctx context.Context, req unsubscribe.Request) unsubscribe.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return s.resp
}

type stubHealth struct {
	snap health.Snapshot
}

func (s *stubHealth) Check(ctx context.Context) health.Status      { return s.snap.Status }
func (s *stubHealth) Snapshot(ctx context.Context) health.Snapshot { return s.snap }

type stubLister struct {
	records []actions.Record
	err     error
	filter  actions.ListFilter
}

func (s *stubLister) List(ctx context.Context, f actions.ListFilter) ([]actions.Record, error) {
	s.filter = f
	return s.records, s.err
}

func newTestRouter(h *Handlers) http.Handler {
	return SetupRoutes(h, []string{"https://simplify-erp.de"}, nil)
}

func postUnsubscribe(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/unsubscribe", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:51234"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandleUnsubscribeOK(t *testing.T) {
	u := &stubUnsubscriber{resp: unsubscribe.ResponseOK}
	router := newTestRouter(NewHandlers(u, &stubHealth{}, &stubLister{}, nil, nil, Options{}))

	rr := postUnsubscribe(t, router, `{"email":"a@x.com","origin":"https://simplify-erp.de/newsletter"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Len(t, u.reqs, 1)
	assert.Equal(t, "a@x.com", u.reqs[0].Email)
	assert.Equal(t, "https://simplify-erp.de/newsletter", u.reqs[0].Origin)
	assert.Equal(t, "203.0.113.9", u.reqs[0].SourceIP)
	assert.NotEmpty(t, u.reqs[0].RequestID)
}

func TestHandleUnsubscribeServiceUnavailable(t *testing.T) {
	u := &stubUnsubscriber{resp: unsubscribe.ResponseServiceUnavailable}
	router := newTestRouter(NewHandlers(u, &stubHealth{}, &stubLister{}, nil, nil, Options{}))

	rr := postUnsubscribe(t, router, `{"email":"a@x.com"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"service_unavailable"}`, rr.Body.String())
}

func TestHandleUnsubscribeInvalidInput(t *testing.T) {
	u := &stubUnsubscriber{}
	router := newTestRouter(NewHandlers(u, &stubHealth{}, &stubLister{}, nil, nil, Options{}))

	for _, body := range []string{
		`{"email":"not-an-email"}`,
		`{"email":""}`,
		`{"email":"a@b"}`,
		`{"email":"a b@x.com"}`,
		`{"email":"a@@x.com"}`,
		`not json`,
		``,
	} {
		rr := postUnsubscribe(t, router, body)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, body)
	}
	assert.Empty(t, u.reqs, "invalid input never reaches the workflow")
}

func TestHandleUnsubscribeOriginFallbackAndTruncation(t *testing.T) {
	u := &stubUnsubscriber{resp: unsubscribe.ResponseOK}
	router := newTestRouter(NewHandlers(u, &stubHealth{}, &stubLister{}, nil, nil, Options{OriginMaxLen: 10}))

	req := httptest.NewRequest(http.MethodPost, "/api/unsubscribe", strings.NewReader(`{"email":"a@x.com"}`))
	req.Header.Set("Origin", "https://simplify-erp.de")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, u.reqs, 1)
	assert.Equal(t, "https://si", u.reqs[0].Origin)
}

func TestHandleUnsubscribeResponseFloor(t *testing.T) {
	u := &stubUnsubscriber{resp: unsubscribe.ResponseOK}
	router := newTestRouter(NewHandlers(u, &stubHealth{}, &stubLister{}, nil, nil, Options{ResponseFloor: 50 * time.Millisecond}))

	start := time.Now()
	rr := postUnsubscribe(t, router, `{"email":"a@x.com"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := ratelimit.NewLimiter(client, "unsubscribe", 2, time.Minute)
	m := metrics.New(prometheus.NewRegistry())
	u := &stubUnsubscriber{resp: unsubscribe.ResponseOK}
	router := newTestRouter(NewHandlers(u, &stubHealth{}, &stubLister{}, limiter, m, Options{}))

	assert.Equal(t, http.StatusOK, postUnsubscribe(t, router, `{"email":"a@x.com"}`).Code)
	assert.Equal(t, http.StatusOK, postUnsubscribe(t, router, `{"email":"b@x.com"}`).Code)
	rr := postUnsubscribe(t, router, `{"email":"c@x.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Len(t, u.reqs, 2)
}

func TestHandleHealth(t *testing.T) {
	hc := &stubHealth{snap: health.Snapshot{Status: health.Status{OK: false, Detail: "connect_error:timeout"}, Age: 7 * time.Second}}
	router := newTestRouter(NewHandlers(&stubUnsubscriber{}, hc, &stubLister{}, nil, nil, Options{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code, "health is never non-200")
	assert.JSONEq(t, `{"status":"ok","mautic":"connect_error:timeout"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/detail", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"degraded","mautic":"connect_error:timeout","cache_age_seconds":7}`, rr.Body.String())

	hc.snap = health.Snapshot{Status: health.Status{OK: true, Detail: "reachable"}}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/detail", nil))
	assert.JSONEq(t, `{"status":"ok","mautic":"reachable","cache_age_seconds":0}`, rr.Body.String())
}

func getActions(router http.Handler, query, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/actions"+query, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandleListActionsAuth(t *testing.T) {
	disabled := newTestRouter(NewHandlers(&stubUnsubscriber{}, &stubHealth{}, &stubLister{}, nil, nil, Options{}))
	rr := getActions(disabled, "", "anything")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.JSONEq(t, `{"error":"disabled"}`, rr.Body.String())

	router := newTestRouter(NewHandlers(&stubUnsubscriber{}, &stubHealth{}, &stubLister{}, nil, nil, Options{AdminAPIKey: "secret"}))
	rr = getActions(router, "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rr.Body.String())

	rr = getActions(router, "", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = getActions(router, "", "secret")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAdminAuthSchemeIsCaseInsensitive(t *testing.T) {
	router := newTestRouter(NewHandlers(&stubUnsubscriber{}, &stubHealth{}, &stubLister{}, nil, nil, Options{AdminAPIKey: "secret"}))

	for header, want := range map[string]int{
		"bearer secret": http.StatusOK,
		"BEARER secret": http.StatusOK,
		"Basic secret":  http.StatusUnauthorized,
		"Bearersecret":  http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/actions", nil)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code, header)
	}
}

func TestHandleListActions(t *testing.T) {
	contactID := "42"
	lister := &stubLister{records: []actions.Record{
		{ID: 2, Email: "a@x.com", Result: actions.ResultOK, ContactID: &contactID},
		{ID: 1, Email: "a@x.com", Result: actions.ResultNotFound},
	}}
	router := newTestRouter(NewHandlers(&stubUnsubscriber{}, &stubHealth{}, lister, nil, nil, Options{AdminAPIKey: "secret"}))

	rr := getActions(router, "?email=a@x.com&result=ok&limit=10&offset=5", "secret")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, actions.ListFilter{Email: "a@x.com", Result: actions.ResultOK, Limit: 10, Offset: 5}, lister.filter)

	var body struct {
		Actions []actions.Record `json:"actions"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, int64(2), body.Actions[0].ID)
	assert.Equal(t, "42", *body.Actions[0].ContactID)

	rr = getActions(router, "", "secret")
	assert.Equal(t, actions.DefaultLimit, lister.filter.Limit)
}

func TestHandleListActionsBadParams(t *testing.T) {
	lister := &stubLister{}
	router := newTestRouter(NewHandlers(&stubUnsubscriber{}, &stubHealth{}, lister, nil, nil, Options{AdminAPIKey: "secret"}))

	assert.Equal(t, http.StatusBadRequest, getActions(router, "?limit=abc", "secret").Code)
	assert.Equal(t, http.StatusBadRequest, getActions(router, "?limit=0", "secret").Code)
	assert.Equal(t, http.StatusBadRequest, getActions(router, "?offset=x", "secret").Code)

	lister.err = actions.ErrInvalidResult
	assert.Equal(t, http.StatusBadRequest, getActions(router, "?result=maybe", "secret").Code)

	lister.err = errors.New("connection reset")
	rr := getActions(router, "", "secret")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection reset")
}

type memRecorder struct {
	mu      sync.Mutex
	records []actions.Record
}

func (m *memRecorder) Record(ctx context.Context, rec actions.Record) {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
}

// Every contact-specific outcome must produce the same response.
func TestUnsubscribeResponsesAreIndistinguishable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/contacts":
			switch r.URL.Query().Get("where[0][val]") {
			case "known@x.com":
				w.Write([]byte(`{"total":1,"contacts":{"1":{"id":1,"fields":{"core":{"email":{"value":"known@x.com"}}}}}}`))
			case "broken@x.com":
				w.Write([]byte(`{"total":1,"contacts":{"2":{"id":2,"fields":{"core":{"email":{"value":"broken@x.com"}}}}}}`))
			default:
				w.Write([]byte(`{"total":0,"contacts":[]}`))
			}
		case r.URL.Path == "/api/contacts/2/dnc/email/add":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(`{"contact":{}}`))
		}
	}))
	defer upstream.Close()

	client := mautic.NewClient(config.MauticConfig{BaseURL: upstream.URL, Username: "u", Password: "p", TimeoutSeconds: 2})
	rec := &memRecorder{}
	svc := unsubscribe.NewService(
		unsubscribe.NewResolver(client),
		unsubscribe.NewMutator(client, unsubscribe.MutatorConfig{Reason: 1, Policy: httpretry.Policy{MaxAttempts: 2}}, nil),
		rec, nil, nil,
	)
	router := newTestRouter(NewHandlers(svc, &stubHealth{}, &stubLister{}, nil, nil, Options{}))

	var bodies []string
	for _, email := range []string{"known@x.com", "unknown@x.com", "broken@x.com"} {
		rr := postUnsubscribe(t, router, `{"email":"`+email+`"}`)
		assert.Equal(t, http.StatusOK, rr.Code, email)
		bodies = append(bodies, rr.Body.String())
	}
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[0], bodies[2])

	require.Len(t, rec.records, 3)
	assert.Equal(t, actions.ResultOK, rec.records[0].Result)
	assert.Equal(t, actions.ResultNotFound, rec.records[1].Result)
	assert.Equal(t, actions.ResultError, rec.records[2].Result)
}
