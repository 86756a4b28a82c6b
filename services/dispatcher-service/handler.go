package main

import (
	"context"
	"errors"
	"fmt"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type toolCounter interface {
	RecordMistakeByName(ctx context.Context, name string) (*models.AITool, error)
}

type reporterAnonymizer interface {
	AnonymizeReporter(ctx context.Context, userID string) (int64, error)
}

// statColumn names a counter in the users table.
type statColumn string

const (
	statReportsSubmitted statColumn = "stat_reports_submitted"
	statReportsVerified  statColumn = "stat_reports_verified"
	statTotalVotes       statColumn = "stat_total_votes"
)

type userStats interface {
	Increment(ctx context.Context, userID string, col statColumn) error
}

type gormStats struct {
	db *gorm.DB
}

func (g gormStats) Increment(ctx context.Context, userID string, col statColumn) error {
	return g.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn(string(col), gorm.Expr(string(col)+" + ?", 1)).
		Error
}

// dispatcher applies the cross-entity side effects of domain events.
type dispatcher struct {
	tools   toolCounter
	reports reporterAnonymizer
	stats   userStats
	log     *zap.Logger
}

func (d *dispatcher) Handle(ctx context.Context, e models.Event) error {
	var err error
	switch e.Type {
	case models.EventReportCreated:
		err = d.bump(ctx, e.ReporterID, statReportsSubmitted)
	case models.EventVoteChanged:
		if e.UserVote != models.NoVote {
			err = d.bump(ctx, e.ActorID, statTotalVotes)
		}
	case models.EventReportModerated:
		err = d.moderated(ctx, e)
	case models.EventUserDeleted:
		err = d.userDeleted(ctx, e)
	default:
		d.log.Debug("ignoring event", zap.String("type", string(e.Type)))
	}
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrInvalidArgument) {
		d.log.Warn("event cannot be applied, dropping",
			zap.String("type", string(e.Type)),
			zap.String("report_id", e.ReportID),
			zap.Error(err),
		)
		return nil
	}
	return err
}

func (d *dispatcher) moderated(ctx context.Context, e models.Event) error {
	if e.Status != models.StatusVerified {
		return nil
	}
	tool, err := d.tools.RecordMistakeByName(ctx, e.AITool)
	if err != nil {
		return fmt.Errorf("record mistake for %s: %w", e.AITool, err)
	}
	d.log.Info("tool mistake recorded",
		zap.String("report_id", e.ReportID),
		zap.String("tool", tool.Name),
		zap.Float64("mistake_rate", tool.Stats.MistakeRate),
	)
	// The tool counter is already committed; a retry would count it twice.
	if err := d.bump(ctx, e.ReporterID, statReportsVerified); err != nil {
		d.log.Warn("user stats not updated", zap.String("user_id", e.ReporterID), zap.Error(err))
	}
	return nil
}

func (d *dispatcher) userDeleted(ctx context.Context, e models.Event) error {
	n, err := d.reports.AnonymizeReporter(ctx, e.ActorID)
	if err != nil {
		return fmt.Errorf("anonymize reports of %s: %w", e.ActorID, err)
	}
	d.log.Info("reports anonymized", zap.String("user_id", e.ActorID), zap.Int64("reports", n))
	return nil
}

func (d *dispatcher) bump(ctx context.Context, userID string, col statColumn) error {
	if d.stats == nil || userID == "" {
		return nil
	}
	if err := d.stats.Increment(ctx, userID, col); err != nil {
		return fmt.Errorf("increment %s for %s: %w", col, userID, err)
	}
	return nil
}
