package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/journal-tracker/internal/authors"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

const (
	defaultPaperLimit   = 100
	maxPaperLimit       = 500
	defaultTrendingDays = 30
)

// listPapers handles GET /v1/papers?journal=&author=&topic=&days=&sort=&limit=.
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := tracker.PaperQuery{
		Journal:     strings.TrimSpace(q.Get("journal")),
		AuthorForms: authors.SearchForms(q.Get("author")),
		Topic:       strings.TrimSpace(q.Get("topic")),
	}
	sort, ok := tracker.ParseSortOrder(q.Get("sort"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid sort")
		return
	}
	query.Sort = sort
	limit, err := parsePositive(q.Get("limit"), defaultPaperLimit, maxPaperLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	query.Limit = limit
	if raw := q.Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 0 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		since := s.clock.Now().AddDate(0, 0, -days)
		query.Since = &since
	}

	papers, err := s.store.ListPapers(r.Context(), query)
	if err != nil {
		s.logger.Error("list papers failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list papers")
		return
	}
	for i := range papers {
		papers[i].Authors = authors.Normalize(papers[i].Authors)
	}
	writeJSON(w, http.StatusOK, map[string]any{"papers": papers, "count": len(papers)})
}

// getPaper handles GET /v1/papers/{id}.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid paper id")
		return
	}
	paper, err := s.store.GetPaper(r.Context(), id)
	if err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			writeError(w, http.StatusNotFound, "paper not found")
			return
		}
		s.logger.Error("get paper failed", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load paper")
		return
	}
	paper.Authors = authors.Normalize(paper.Authors)
	writeJSON(w, http.StatusOK, paper)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) topics(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.TopicCounts(r.Context(), nil)
	if err != nil {
		s.logger.Error("topic counts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count topics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": counts, "vocabulary": s.tagger.Names()})
}

// trendingTopics handles GET /v1/topics/trending?days=30.
func (s *Server) trendingTopics(w http.ResponseWriter, r *http.Request) {
	days, err := parsePositive(r.URL.Query().Get("days"), defaultTrendingDays, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid days")
		return
	}
	since := s.clock.Now().AddDate(0, 0, -days)
	counts, err := s.store.TopicCounts(r.Context(), &since)
	if err != nil {
		s.logger.Error("trending topics failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count topics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":   days,
		"since":  since.Format(time.RFC3339),
		"topics": counts,
	})
}

func (s *Server) journals(w http.ResponseWriter, r *http.Request) {
	js, err := s.store.ListJournals(r.Context())
	if err != nil {
		s.logger.Error("list journals failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list journals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"journals": js})
}

// parsePositive parses an optional positive integer, capping it at maxVal when maxVal > 0.
func parsePositive(raw string, def, maxVal int) (int, error) {
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid value")
	}
	if maxVal > 0 && val > maxVal {
		val = maxVal
	}
	return val, nil
}
