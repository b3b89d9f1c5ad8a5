package http

import (
	"net/http"

	"housingledger/internal/core"
)

// summaryCacheKey puts the range first so a county name cannot forge
// another entry's key.
func summaryCacheKey(scope string, r core.DateRange) string {
	return r.From.Format(timeKey) + "|" + r.To.Format(timeKey) + "|" + scope
}

const timeKey = "20060102T150405.000000000"

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	county, err := pathCounty(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	period, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := summaryCacheKey("county:"+county, period)
	if cached, ok := s.cachedSummaries(key); ok {
		writeJSON(w, http.StatusOK, cached[0])
		return
	}
	sum, err := s.deps.Summaries.Summarize(r.Context(), county, period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.storeSummaries(key, []core.CountySummary{sum})
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleSummarizeAll(w http.ResponseWriter, r *http.Request) {
	period, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := summaryCacheKey("all", period)
	sums, ok := s.cachedSummaries(key)
	if !ok {
		sums, err = s.deps.Summaries.SummarizeAll(r.Context(), period)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if sums == nil {
			sums = []core.CountySummary{}
		}
		s.storeSummaries(key, sums)
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": sums})
}

func (s *Server) cachedSummaries(key string) ([]core.CountySummary, bool) {
	if s.summaries == nil {
		return nil, false
	}
	return s.summaries.Get(key)
}

func (s *Server) storeSummaries(key string, sums []core.CountySummary) {
	if s.summaries != nil {
		s.summaries.Set(key, sums)
	}
}
