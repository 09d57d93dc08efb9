package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// GET /v1/cves/{id}
func (r *Router) handleCVE(w http.ResponseWriter, req *http.Request) error {
	rec, err := r.cves.Lookup(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rec)
}

// GET /v1/cves?q=&limit=
func (r *Router) handleCVESearch(w http.ResponseWriter, req *http.Request) error {
	limit, err := intParam(req, "limit")
	if err != nil {
		return err
	}
	recs, err := r.cves.Search(req.Context(), req.URL.Query().Get("q"), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, recs)
}

// GET /v1/cves/recent?days=
func (r *Router) handleCVERecent(w http.ResponseWriter, req *http.Request) error {
	days, err := intParam(req, "days")
	if err != nil {
		return err
	}
	recs, err := r.cves.Recent(req.Context(), days)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, recs)
}

// intParam reads an optional non-negative integer query parameter. Absent
// means 0.
func intParam(req *http.Request, name string) (int, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return n, nil
}
