package mistake

import (
	"context"
	"encoding/json"
	"time"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/store"

	"go.uber.org/zap"
)

const analyticsKeyPrefix = "analytics:"

type Period string

const (
	Period7d  Period = "7d"
	Period30d Period = "30d"
	Period90d Period = "90d"
	Period1y  Period = "1y"
	PeriodAll Period = "all"
)

// ParsePeriod accepts the dashboard periods; empty means 30d.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return Period30d, nil
	case Period7d, Period30d, Period90d, Period1y, PeriodAll:
		return p, nil
	}
	return "", apperr.InvalidArgument("period must be one of 7d, 30d, 90d, 1y, all")
}

// Since returns the start of the period ending at now, or the zero time for
// PeriodAll.
func (p Period) Since(now time.Time) time.Time {
	switch p {
	case Period7d:
		return now.AddDate(0, 0, -7)
	case Period30d:
		return now.AddDate(0, 0, -30)
	case Period90d:
		return now.AddDate(0, 0, -90)
	case Period1y:
		return now.AddDate(-1, 0, 0)
	}
	return time.Time{}
}

type Overview struct {
	TotalReports    int64 `json:"totalReports"`
	VerifiedReports int64 `json:"verifiedReports"`
	TotalUsers      int64 `json:"totalUsers"`
	ActiveTools     int64 `json:"activeTools"`
	TotalVotes      int64 `json:"totalVotes"`
}

type Dashboard struct {
	Period          Period                  `json:"period"`
	Overview        Overview                `json:"overview"`
	ByCategory      []store.GroupCount      `json:"categoryBreakdown"`
	ByAITool        []store.GroupCount      `json:"aiToolBreakdown"`
	BySeverity      []store.GroupCount      `json:"severityBreakdown"`
	TrendingReports []*models.MistakeReport `json:"trendingReports"`
	TopTools        []*models.AITool        `json:"topTools"`
	RecentReports   []*models.MistakeReport `json:"recentReports"`
	GeneratedAt     time.Time               `json:"generatedAt"`
}

// Dashboard aggregates verified public reports over the period. Results are
// served from the cache when one is configured.
func (s *Service) Dashboard(ctx context.Context, period Period) (*Dashboard, error) {
	key := analyticsKeyPrefix + "dashboard:" + string(period)
	if d := s.cachedDashboard(ctx, key); d != nil {
		return d, nil
	}

	now := s.now()
	since := period.Since(now)
	all := store.ReportFilter{Since: since}
	verified := store.ReportFilter{Status: models.StatusVerified, PublicOnly: true, Since: since}

	d := &Dashboard{Period: period, GeneratedAt: now}
	var err error
	if d.Overview.TotalReports, err = s.store.CountReports(ctx, all); err != nil {
		return nil, err
	}
	if d.Overview.VerifiedReports, err = s.store.CountReports(ctx, store.ReportFilter{Status: models.StatusVerified, Since: since}); err != nil {
		return nil, err
	}
	if d.Overview.ActiveTools, err = s.store.CountTools(ctx, store.ToolFilter{Status: models.ToolActive}); err != nil {
		return nil, err
	}
	if d.Overview.TotalVotes, err = s.store.SumTotalVotes(ctx, all); err != nil {
		return nil, err
	}
	if s.users != nil {
		if d.Overview.TotalUsers, err = s.users.CountUsers(ctx, since); err != nil {
			return nil, err
		}
	}
	if d.ByCategory, err = s.store.GroupReports(ctx, verified, store.GroupByCategory); err != nil {
		return nil, err
	}
	if d.ByAITool, err = s.store.GroupReports(ctx, verified, store.GroupByAITool); err != nil {
		return nil, err
	}
	if d.BySeverity, err = s.store.GroupReports(ctx, verified, store.GroupBySeverity); err != nil {
		return nil, err
	}
	if d.TrendingReports, err = s.store.FindReports(ctx, verified, store.SortMostVoted, 0, 5); err != nil {
		return nil, err
	}
	if d.TopTools, err = s.store.FindTools(ctx, store.ToolFilter{ListedOnly: true}, store.ToolSortAccuracy, 5); err != nil {
		return nil, err
	}
	if d.RecentReports, err = s.store.FindReports(ctx, verified, store.SortNewest, 0, 10); err != nil {
		return nil, err
	}

	s.storeDashboard(ctx, key, d)
	return d, nil
}

func (s *Service) cachedDashboard(ctx context.Context, key string) *Dashboard {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("analytics cache read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if raw == nil {
		return nil
	}
	var d Dashboard
	if err := json.Unmarshal(raw, &d); err != nil {
		s.log.Warn("analytics cache entry unreadable", zap.String("key", key), zap.Error(err))
		return nil
	}
	return &d
}

func (s *Service) storeDashboard(ctx context.Context, key string, d *Dashboard) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		s.log.Warn("analytics cache encode failed", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		s.log.Warn("analytics cache write failed", zap.String("key", key), zap.Error(err))
	}
}

type UserAnalytics struct {
	TotalReports     int64                   `json:"totalReports"`
	VerifiedReports  int64                   `json:"verifiedReports"`
	VerificationRate float64                 `json:"verificationRate"`
	ByCategory       []store.GroupCount      `json:"categoryBreakdown"`
	ByAITool         []store.GroupCount      `json:"aiToolBreakdown"`
	RecentReports    []*models.MistakeReport `json:"recentReports"`
	RecentVotes      []*models.MistakeReport `json:"recentVotes"`
}

// UserAnalytics summarizes the caller's own reporting and voting.
func (s *Service) UserAnalytics(ctx context.Context, p models.Principal) (*UserAnalytics, error) {
	if !p.Authenticated() {
		return nil, apperr.Unauthorized("login required")
	}
	mine := store.ReportFilter{ReporterID: p.UserID}
	u := &UserAnalytics{}
	var err error
	if u.TotalReports, err = s.store.CountReports(ctx, mine); err != nil {
		return nil, err
	}
	if u.VerifiedReports, err = s.store.CountReports(ctx, store.ReportFilter{ReporterID: p.UserID, Status: models.StatusVerified}); err != nil {
		return nil, err
	}
	if u.TotalReports > 0 {
		u.VerificationRate = float64(u.VerifiedReports) / float64(u.TotalReports) * 100
	}
	if u.ByCategory, err = s.store.GroupReports(ctx, mine, store.GroupByCategory); err != nil {
		return nil, err
	}
	if u.ByAITool, err = s.store.GroupReports(ctx, mine, store.GroupByAITool); err != nil {
		return nil, err
	}
	if u.RecentReports, err = s.store.FindReports(ctx, mine, store.SortNewest, 0, 5); err != nil {
		return nil, err
	}
	if u.RecentVotes, err = s.store.FindReports(ctx, store.ReportFilter{VoterID: p.UserID}, store.SortNewest, 0, 5); err != nil {
		return nil, err
	}
	withUserVotes(u.RecentVotes, p)
	return u, nil
}

type ToolComparison struct {
	Tool              *models.AITool     `json:"tool"`
	TotalReports      int64              `json:"totalReports"`
	AverageVoteScore  float64            `json:"averageVoteScore"`
	CategoryBreakdown []store.GroupCount `json:"categoryBreakdown"`
	SeverityBreakdown []store.GroupCount `json:"severityBreakdown"`
}

// Compare lines up active tools by their verified reports over the period.
func (s *Service) Compare(ctx context.Context, names []string, period Period) ([]ToolComparison, error) {
	if len(names) == 0 {
		return nil, apperr.InvalidArgument("at least one tool name is required")
	}
	tools, err := s.store.FindTools(ctx, store.ToolFilter{Names: names, Status: models.ToolActive}, store.ToolSortName, 0)
	if err != nil {
		return nil, err
	}
	since := period.Since(s.now())
	out := make([]ToolComparison, 0, len(tools))
	for _, t := range tools {
		f := store.ReportFilter{AITool: t.Name, Status: models.StatusVerified, Since: since}
		c := ToolComparison{Tool: t}
		if c.TotalReports, err = s.store.CountReports(ctx, f); err != nil {
			return nil, err
		}
		if c.CategoryBreakdown, err = s.store.GroupReports(ctx, f, store.GroupByCategory); err != nil {
			return nil, err
		}
		if c.SeverityBreakdown, err = s.store.GroupReports(ctx, f, store.GroupBySeverity); err != nil {
			return nil, err
		}
		c.AverageVoteScore = weightedAverage(c.CategoryBreakdown)
		out = append(out, c)
	}
	return out, nil
}

func weightedAverage(groups []store.GroupCount) float64 {
	var n int64
	var sum float64
	for _, g := range groups {
		n += g.Count
		sum += g.AvgVoteScore * float64(g.Count)
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

type ActiveUser struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	TotalReports int64     `json:"totalReports"`
	TotalVotes   int64     `json:"totalVotes"`
	JoinDate     time.Time `json:"joinDate"`
}

type Trends struct {
	Reports     []*models.MistakeReport `json:"trendingReports"`
	Tools       []*models.AITool        `json:"trendingAITools"`
	ActiveUsers []ActiveUser            `json:"activeUsers"`
}

// TrendingOverview combines trending reports, trending tools and the most
// active contributors, each capped at limit (1..50, default 10).
func (s *Service) TrendingOverview(ctx context.Context, p models.Principal, limit int) (*Trends, error) {
	if limit < 0 || limit > maxTrendingSize {
		return nil, apperr.InvalidArgument("limit must be between 1 and %d", maxTrendingSize)
	}
	limit = clampLimit(limit, defaultTrendingSize, maxTrendingSize)

	t := &Trends{ActiveUsers: []ActiveUser{}}
	var err error
	if t.Reports, err = s.Trending(ctx, p, limit); err != nil {
		return nil, err
	}
	if t.Tools, err = s.TrendingTools(ctx, limit); err != nil {
		return nil, err
	}
	if s.leaders != nil {
		users, err := s.leaders.MostActive(ctx, limit)
		if err != nil {
			return nil, err
		}
		if users != nil {
			t.ActiveUsers = users
		}
	}
	return t, nil
}

type Realtime struct {
	ReportsLast24h int64                   `json:"reportsLast24h"`
	VotesLast24h   int64                   `json:"votesLast24h"`
	RecentReports  []*models.MistakeReport `json:"recentReports"`
	UpdatedTools   []*models.AITool        `json:"updatedTools"`
	GeneratedAt    time.Time               `json:"generatedAt"`
}

// Realtime reports activity over the last 24 hours.
func (s *Service) Realtime(ctx context.Context) (*Realtime, error) {
	now := s.now()
	since := now.Add(-24 * time.Hour)
	rt := &Realtime{GeneratedAt: now}
	var err error
	if rt.ReportsLast24h, err = s.store.CountReports(ctx, store.ReportFilter{Since: since}); err != nil {
		return nil, err
	}
	if rt.VotesLast24h, err = s.store.CountVotesSince(ctx, since); err != nil {
		return nil, err
	}
	if rt.RecentReports, err = s.store.FindReports(ctx, store.ReportFilter{PublicOnly: true}, store.SortNewest, 0, 20); err != nil {
		return nil, err
	}
	if rt.UpdatedTools, err = s.store.FindTools(ctx, store.ToolFilter{ListedOnly: true}, store.ToolSortRecentlyUpdated, 10); err != nil {
		return nil, err
	}
	return rt, nil
}
