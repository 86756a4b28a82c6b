package mistake

import (
	"context"
	"time"

	"ai-mistake-tracker/pkg/models"

	"go.uber.org/zap"
)

// Investigate moves a pending report to investigating.
func (s *Service) Investigate(ctx context.Context, p models.Principal, id string) (*models.MistakeReport, error) {
	return s.moderate(ctx, p, id, func(r *models.MistakeReport, now time.Time) error {
		return r.Investigate(now)
	})
}

// Verify marks a report verified and stamps the moderator and time.
func (s *Service) Verify(ctx context.Context, p models.Principal, id string) (*models.MistakeReport, error) {
	return s.moderate(ctx, p, id, func(r *models.MistakeReport, now time.Time) error {
		return r.Verify(p.UserID, now)
	})
}

// Reject marks a report rejected with a reason.
func (s *Service) Reject(ctx context.Context, p models.Principal, id, reason string) (*models.MistakeReport, error) {
	return s.moderate(ctx, p, id, func(r *models.MistakeReport, now time.Time) error {
		return r.Reject(p.UserID, reason, now)
	})
}

func (s *Service) moderate(ctx context.Context, p models.Principal, id string, apply func(*models.MistakeReport, time.Time) error) (*models.MistakeReport, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	r, err := s.store.UpdateReport(ctx, oid, func(r *models.MistakeReport) error {
		return apply(r, now)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("report moderated",
		zap.String("report_id", r.ID.Hex()),
		zap.String("status", string(r.Status)),
		zap.String("moderator", p.UserID),
	)
	s.invalidateAnalytics(ctx)
	s.emit(ctx, models.NewReportModeratedEvent(r, p.UserID, now))
	return r, nil
}

// invalidateAnalytics drops cached dashboards, which only count verified
// reports. A failure leaves entries to expire on their TTL.
func (s *Service) invalidateAnalytics(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, analyticsKeyPrefix); err != nil {
		s.log.Warn("analytics cache invalidation failed", zap.Error(err))
	}
}
