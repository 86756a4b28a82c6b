package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/middleware"
	"ai-mistake-tracker/pkg/mistake"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/response"

	"gorm.io/gorm"
)

const analyticsTimeout = 10 * time.Second

func (s *server) dashboard(w http.ResponseWriter, r *http.Request) {
	period, err := mistake.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		s.fail(w, r, "Invalid query", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyticsTimeout)
	defer cancel()

	d, err := s.svc.Dashboard(ctx, period)
	if err != nil {
		s.fail(w, r, "Failed to build dashboard", err)
		return
	}
	response.Success(w, http.StatusOK, "Analytics data retrieved", d)
}

func (s *server) userAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), analyticsTimeout)
	defer cancel()

	u, err := s.svc.UserAnalytics(ctx, middleware.PrincipalFrom(r.Context()))
	if err != nil {
		s.fail(w, r, "Failed to build user analytics", err)
		return
	}
	response.Success(w, http.StatusOK, "User analytics retrieved", u)
}

func (s *server) compareTools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := mistake.ParsePeriod(q.Get("period"))
	if err != nil {
		s.fail(w, r, "Invalid query", err)
		return
	}
	var names []string
	for _, n := range strings.Split(q.Get("tools"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		s.fail(w, r, "Invalid query", apperr.InvalidArgument("tools must list at least one tool name"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyticsTimeout)
	defer cancel()

	cmp, err := s.svc.Compare(ctx, names, period)
	if err != nil {
		s.fail(w, r, "Failed to compare tools", err)
		return
	}
	response.Success(w, http.StatusOK, "Comparison retrieved", cmp)
}

func (s *server) realtime(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), analyticsTimeout)
	defer cancel()

	rt, err := s.svc.Realtime(ctx)
	if err != nil {
		s.fail(w, r, "Failed to build realtime analytics", err)
		return
	}
	response.Success(w, http.StatusOK, "Realtime analytics retrieved", rt)
}

func (s *server) trendingAnalytics(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, "Invalid query", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyticsTimeout)
	defer cancel()

	t, err := s.svc.TrendingOverview(ctx, middleware.PrincipalFrom(r.Context()), limit)
	if err != nil {
		s.fail(w, r, "Failed to build trending analytics", err)
		return
	}
	response.Success(w, http.StatusOK, "Trending analytics retrieved", t)
}

// userDirectory reads user totals and stat counters from the auth database.
type userDirectory struct {
	db *gorm.DB
}

func (u userDirectory) CountUsers(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	q := u.db.WithContext(ctx).Model(&models.User{})
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// MostActive ranks users by the counters the dispatcher maintains.
func (u userDirectory) MostActive(ctx context.Context, limit int) ([]mistake.ActiveUser, error) {
	var users []models.User
	err := u.db.WithContext(ctx).
		Where("stat_reports_submitted > 0 OR stat_total_votes > 0").
		Order("stat_reports_submitted DESC, stat_total_votes DESC, created_at ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	out := make([]mistake.ActiveUser, 0, len(users))
	for _, usr := range users {
		out = append(out, mistake.ActiveUser{
			ID:           usr.ID,
			Name:         usr.Name,
			TotalReports: usr.Stats.ReportsSubmitted,
			TotalVotes:   usr.Stats.TotalVotes,
			JoinDate:     usr.CreatedAt,
		})
	}
	return out, nil
}
