package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/middleware"
	"ai-mistake-tracker/pkg/mistake"
	"ai-mistake-tracker/pkg/response"

	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

// EvidenceStore persists uploaded evidence files and returns their URL.
type EvidenceStore interface {
	Upload(ctx context.Context, reportID, contentType string, r io.Reader, size int64) (string, error)
}

type server struct {
	svc      *mistake.Service
	auth     *middleware.Authenticator
	evidence EvidenceStore
	log      *zap.Logger
}

func newServer(svc *mistake.Service, auth *middleware.Authenticator, evidence EvidenceStore, log *zap.Logger) *server {
	return &server{svc: svc, auth: auth, evidence: evidence, log: log}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	pub := s.auth.OptionalAuth
	user := s.auth.Auth
	staff := func(h http.HandlerFunc) http.HandlerFunc { return s.auth.Auth(middleware.RequireStaff(h)) }
	admin := func(h http.HandlerFunc) http.HandlerFunc { return s.auth.Auth(middleware.RequireAdmin(h)) }

	mux.HandleFunc("GET /api/reports", pub(s.listReports))
	mux.HandleFunc("POST /api/reports", pub(s.submitReport))
	mux.HandleFunc("GET /api/reports/trending", pub(s.trendingReports))
	mux.HandleFunc("GET /api/reports/mine", user(s.myReports))
	mux.HandleFunc("GET /api/reports/by-tool", pub(s.reportsByTool))
	mux.HandleFunc("GET /api/reports/by-category", pub(s.reportsByCategory))
	mux.HandleFunc("GET /api/reports/{id}", pub(s.getReport))
	mux.HandleFunc("POST /api/reports/{id}/share", s.shareReport)
	mux.HandleFunc("GET /api/reports/{id}/vote", user(s.getUserVote))
	mux.HandleFunc("POST /api/reports/{id}/vote", user(s.voteReport))
	mux.HandleFunc("DELETE /api/reports/{id}/vote", user(s.unvoteReport))
	mux.HandleFunc("POST /api/reports/{id}/evidence", user(s.attachEvidence))
	mux.HandleFunc("POST /api/reports/{id}/investigate", staff(s.investigateReport))
	mux.HandleFunc("POST /api/reports/{id}/verify", staff(s.verifyReport))
	mux.HandleFunc("POST /api/reports/{id}/reject", staff(s.rejectReport))
	mux.HandleFunc("GET /api/admin/reports/{id}/reporter", admin(s.revealReporter))

	mux.HandleFunc("GET /api/tools", s.listTools)
	mux.HandleFunc("POST /api/tools", admin(s.createTool))
	mux.HandleFunc("GET /api/tools/top", s.topTools)
	mux.HandleFunc("GET /api/tools/trending", s.trendingTools)
	mux.HandleFunc("GET /api/tools/category/{category}", s.toolsByCategory)
	mux.HandleFunc("GET /api/tools/slug/{slug}", s.getToolBySlug)
	mux.HandleFunc("GET /api/tools/{id}", s.getTool)
	mux.HandleFunc("PUT /api/tools/{id}", admin(s.updateTool))
	mux.HandleFunc("DELETE /api/tools/{id}", admin(s.deleteTool))
	mux.HandleFunc("POST /api/tools/{id}/metrics", admin(s.recordMetrics))
	mux.HandleFunc("PUT /api/tools/{id}/stats", admin(s.updateToolStats))
	mux.HandleFunc("POST /api/tools/{id}/query", s.recordQuery)
	mux.HandleFunc("POST /api/tools/{id}/mistake", s.recordMistake)

	mux.HandleFunc("GET /api/analytics/dashboard", s.dashboard)
	mux.HandleFunc("GET /api/analytics/user", user(s.userAnalytics))
	mux.HandleFunc("GET /api/analytics/compare", s.compareTools)
	mux.HandleFunc("GET /api/analytics/realtime", s.realtime)
	mux.HandleFunc("GET /api/analytics/trending", pub(s.trendingAnalytics))

	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.Handle("GET /metrics", middleware.MetricsHandler())

	return middleware.Chain(mux, s.log)
}

func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, http.StatusOK, "Service is healthy", map[string]string{"service": "report-service"})
}

// fail writes err and logs anything that is not a client error.
func (s *server) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	if response.StatusOf(err) == http.StatusInternalServerError {
		middleware.WithTrace(s.log, r).Error(message, zap.String("path", r.URL.Path), zap.Error(err))
	}
	response.FromError(w, message, err)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apperr.InvalidArgument("invalid request payload: %v", err)
	}
	return nil
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.InvalidArgument("%s must be a positive integer", key)
	}
	return n, nil
}

func withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}
