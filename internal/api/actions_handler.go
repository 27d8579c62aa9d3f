package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ignite/mautic-dnc-proxy/internal/pkg/httputil"
	"github.com/ignite/mautic-dnc-proxy/internal/service/actions"
)

type actionsResponse struct {
	Actions []actions.Record `json:"actions"`
	Count   int              `json:"count"`
}

// AdminAuth guards operator endpoints with a static bearer token. Without a
// configured key the endpoints are disabled.
func (h *Handlers) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminKey == "" {
			httputil.Error(w, http.StatusForbidden, "disabled")
			return
		}
		scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(h.adminKey)) != 1 {
			httputil.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleListActions returns audit records, newest first.
//
//	GET /api/actions?email=&result=&limit=&offset=
func (h *Handlers) HandleListActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := actions.ListFilter{
		Email:  q.Get("email"),
		Result: actions.Result(q.Get("result")),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit"), actions.DefaultLimit); err != nil || filter.Limit == 0 {
		httputil.BadRequest(w, actions.ErrInvalidLimit.Error())
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		httputil.BadRequest(w, "offset must be an integer")
		return
	}

	records, err := h.actions.List(r.Context(), filter)
	switch {
	case errors.Is(err, actions.ErrInvalidLimit),
		errors.Is(err, actions.ErrInvalidOffset),
		errors.Is(err, actions.ErrInvalidResult):
		httputil.BadRequest(w, err.Error())
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, actionsResponse{Actions: records, Count: len(records)})
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
