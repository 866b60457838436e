package http

import (
	"context"
	"net/http"
	"time"

	"fluxo/internal/core"
	"fluxo/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady pings the store; the server is not ready without it.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{
		"rate_limiter": map[string]any{
			"active_clients": s.rateLimiter.ActiveClients(),
			"hits":           s.rateLimiter.Hits(),
		},
	}
	if err := s.ledger.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	current, _ := core.NewRangeState("", now)
	NewJSONResponse().Body(map[string]any{
		"default": current,
		"options": core.PeriodOptions(now),
	}).Write(w)
}
