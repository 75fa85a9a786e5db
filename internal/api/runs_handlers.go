package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// listRuns handles GET /v1/runs?limit=&offset=. It returns {"runs": [...]},
// 400 for invalid paging, or 503 when no history is configured.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.history.List(limit, offset)})
}

// getRun handles GET /v1/runs/{run_id}. It returns {"run": {...}} or 404.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	run, err := s.history.Get(chi.URLParam(r, "run_id"))
	if err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit, err := parsePositive(q.Get("limit"), def, maxLimit)
	if err != nil {
		return 0, 0, errors.New("invalid limit")
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
