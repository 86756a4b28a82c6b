package mistake

import (
	"context"
	"fmt"
	"math"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/store"

	"go.uber.org/zap"
)

const (
	defaultPageSize     = 20
	maxPageSize         = 100
	defaultTrendingSize = 10
	maxTrendingSize     = 50
)

// Submit validates and stores a new pending report.
func (s *Service) Submit(ctx context.Context, p models.Principal, in models.ReportInput) (*models.MistakeReport, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	r := models.NewMistakeReport(in, p, s.now())
	if p.Authenticated() && in.IsAnonymous && s.sealer != nil {
		enc, err := s.sealer.Seal(p.UserID)
		if err != nil {
			return nil, fmt.Errorf("seal reporter: %w", err)
		}
		r.ReporterIDEnc = enc
		r.ReporterTag = s.sealer.Tag(p.UserID)
	}

	if err := s.store.InsertReport(ctx, r); err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	s.log.Info("report submitted",
		zap.String("report_id", r.ID.Hex()),
		zap.String("ai_tool", r.AITool),
		zap.Bool("anonymous", r.IsAnonymous),
	)
	s.emit(ctx, models.NewReportCreatedEvent(r))
	return r, nil
}

// Get returns a report and counts the view. Private reports are only visible
// to their reporter and to staff.
func (s *Service) Get(ctx context.Context, p models.Principal, id string) (*models.MistakeReport, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	r, err := s.store.GetReport(ctx, oid)
	if err != nil {
		return nil, err
	}
	if !canSee(p, r) {
		return nil, apperr.NotFound("mistake report %s", id)
	}
	r, err = s.store.IncrementReport(ctx, oid, store.CounterViews)
	if err != nil {
		return nil, err
	}
	r.UserVote = r.VoteOf(p.UserID)
	return r, nil
}

// Share counts one share of a report.
func (s *Service) Share(ctx context.Context, id string) (*models.MistakeReport, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.store.IncrementReport(ctx, oid, store.CounterShares)
}

func canSee(p models.Principal, r *models.MistakeReport) bool {
	return r.IsPublic || p.IsStaff() || r.IsReporter(p.UserID)
}

type ListQuery struct {
	AITool   string
	Category models.Category
	Severity models.Severity
	Status   models.Status
	Sort     store.ReportSort
	Page     int
	Limit    int
}

type ReportPage struct {
	Items []*models.MistakeReport `json:"data"`
	Page  int                     `json:"page"`
	Limit int                     `json:"limit"`
	Total int64                   `json:"total"`
	Pages int                     `json:"pages"`
}

// List returns public reports matching q. Status defaults to verified and
// sort to newest.
func (s *Service) List(ctx context.Context, p models.Principal, q ListQuery) (*ReportPage, error) {
	if q.AITool != "" && !models.ValidAITool(q.AITool) {
		return nil, apperr.InvalidArgument("invalid AI tool filter %q", q.AITool)
	}
	if q.Category != "" && !q.Category.Valid() {
		return nil, apperr.InvalidArgument("invalid category filter %q", q.Category)
	}
	if q.Severity != "" && !q.Severity.Valid() {
		return nil, apperr.InvalidArgument("invalid severity filter %q", q.Severity)
	}
	if q.Status == "" {
		q.Status = models.StatusVerified
	}
	if !q.Status.Valid() {
		return nil, apperr.InvalidArgument("invalid status filter %q", q.Status)
	}
	if q.Sort == "" {
		q.Sort = store.SortNewest
	}
	if !q.Sort.Valid() {
		return nil, apperr.InvalidArgument("invalid sort option %q", q.Sort)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit > maxPageSize {
		return nil, apperr.InvalidArgument("limit must be between 1 and %d", maxPageSize)
	}
	q.Limit = clampLimit(q.Limit, defaultPageSize, maxPageSize)

	f := store.ReportFilter{
		AITool:     q.AITool,
		Category:   q.Category,
		Severity:   q.Severity,
		Status:     q.Status,
		PublicOnly: true,
	}
	items, err := s.store.FindReports(ctx, f, q.Sort, (q.Page-1)*q.Limit, q.Limit)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountReports(ctx, f)
	if err != nil {
		return nil, err
	}
	withUserVotes(items, p)
	return &ReportPage{
		Items: items,
		Page:  q.Page,
		Limit: q.Limit,
		Total: total,
		Pages: int(math.Ceil(float64(total) / float64(q.Limit))),
	}, nil
}

// Trending returns verified public reports by vote score, newest first on
// ties.
func (s *Service) Trending(ctx context.Context, p models.Principal, limit int) ([]*models.MistakeReport, error) {
	if limit > maxTrendingSize {
		return nil, apperr.InvalidArgument("limit must be between 1 and %d", maxTrendingSize)
	}
	items, err := s.store.FindReports(ctx,
		store.ReportFilter{Status: models.StatusVerified, PublicOnly: true},
		store.SortMostVoted, 0, clampLimit(limit, defaultTrendingSize, maxTrendingSize))
	if err != nil {
		return nil, err
	}
	withUserVotes(items, p)
	return items, nil
}

func (s *Service) ByAITool(ctx context.Context, p models.Principal, tool string, limit int) ([]*models.MistakeReport, error) {
	return s.newestPublic(ctx, p, store.ReportFilter{AITool: tool, PublicOnly: true}, limit)
}

func (s *Service) ByCategory(ctx context.Context, p models.Principal, category models.Category, limit int) ([]*models.MistakeReport, error) {
	if !category.Valid() {
		return nil, apperr.InvalidArgument("invalid category %q", category)
	}
	return s.newestPublic(ctx, p, store.ReportFilter{Category: category, PublicOnly: true}, limit)
}

// Mine lists every report the caller filed, public or not.
func (s *Service) Mine(ctx context.Context, p models.Principal, status models.Status) ([]*models.MistakeReport, error) {
	if !p.Authenticated() {
		return nil, apperr.Unauthorized("login required")
	}
	items, err := s.store.FindReports(ctx, store.ReportFilter{ReporterID: p.UserID, Status: status}, store.SortNewest, 0, 0)
	if err != nil {
		return nil, err
	}
	withUserVotes(items, p)
	return items, nil
}

func (s *Service) newestPublic(ctx context.Context, p models.Principal, f store.ReportFilter, limit int) ([]*models.MistakeReport, error) {
	if limit > maxPageSize {
		return nil, apperr.InvalidArgument("limit must be between 1 and %d", maxPageSize)
	}
	items, err := s.store.FindReports(ctx, f, store.SortNewest, 0, clampLimit(limit, defaultPageSize, maxPageSize))
	if err != nil {
		return nil, err
	}
	withUserVotes(items, p)
	return items, nil
}

func withUserVotes(items []*models.MistakeReport, p models.Principal) {
	if !p.Authenticated() {
		return
	}
	for _, r := range items {
		r.UserVote = r.VoteOf(p.UserID)
	}
}

// AttachEvidence appends evidence to a report. Only the reporter and staff
// may do so.
func (s *Service) AttachEvidence(ctx context.Context, p models.Principal, id string, e models.Evidence) (*models.MistakeReport, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	if e.URL == "" {
		return nil, apperr.InvalidArgument("evidence url is required")
	}
	return s.store.UpdateReport(ctx, oid, func(r *models.MistakeReport) error {
		if !p.IsStaff() && !r.IsReporter(p.UserID) {
			return apperr.Unauthorized("only the reporter or a moderator may attach evidence")
		}
		r.AddEvidence(e, s.now())
		return nil
	})
}

// CheckEvidenceAccess fails unless p may attach evidence to report id. It
// lets callers reject an upload before storing any bytes.
func (s *Service) CheckEvidenceAccess(ctx context.Context, p models.Principal, id string) error {
	oid, err := ParseID(id)
	if err != nil {
		return err
	}
	r, err := s.store.GetReport(ctx, oid)
	if err != nil {
		return err
	}
	if !p.IsStaff() && !r.IsReporter(p.UserID) {
		return apperr.Unauthorized("only the reporter or a moderator may attach evidence")
	}
	return nil
}

// RevealReporter decrypts the identity behind an anonymous report.
func (s *Service) RevealReporter(ctx context.Context, id string) (string, error) {
	oid, err := ParseID(id)
	if err != nil {
		return "", err
	}
	r, err := s.store.GetReport(ctx, oid)
	if err != nil {
		return "", err
	}
	if r.ReporterID != nil {
		return *r.ReporterID, nil
	}
	if r.ReporterIDEnc == "" || s.sealer == nil {
		return "", apperr.NotFound("report %s has no recorded reporter", id)
	}
	return s.sealer.Open(r.ReporterIDEnc)
}

// AnonymizeReporter detaches every report from a deleted user, including
// anonymous reports whose sealed identity belongs to them.
func (s *Service) AnonymizeReporter(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, apperr.InvalidArgument("user id is required")
	}
	var tag string
	if s.sealer != nil {
		tag = s.sealer.Tag(userID)
	}
	n, err := s.store.AnonymizeReporter(ctx, userID, tag, s.now())
	if err != nil {
		return 0, err
	}
	s.log.Info("reporter anonymized", zap.String("user_id", userID), zap.Int64("reports", n))
	return n, nil
}
