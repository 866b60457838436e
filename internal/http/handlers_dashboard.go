package http

import (
	"net/http"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rs, err := ParseRange(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	view, err := s.dashboard.Summary(r.Context(), rs.Range)
	if err != nil {
		writeFailure(w, r, "summary", err)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	rs, err := ParseRange(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	view, err := s.dashboard.Charts(r.Context(), rs.Range)
	if err != nil {
		writeFailure(w, r, "charts", err)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

// handleOverview returns summary and charts in one round trip.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	rs, err := ParseRange(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	view, err := s.dashboard.Overview(r.Context(), rs.Range)
	if err != nil {
		writeFailure(w, r, "overview", err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"range":   rs,
		"summary": view.Summary,
		"charts":  view.Charts,
	}).Write(w)
}
