// Package store persists mistake reports and AI tools. Every mutation of a
// single document goes through an Update callback that the backend applies
// atomically: the callback sees the latest committed state and its result is
// either stored whole or discarded.
package store

import (
	"context"
	"time"

	"ai-mistake-tracker/pkg/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReportFilter struct {
	AITool     string
	Category   models.Category
	Severity   models.Severity
	Status     models.Status
	PublicOnly bool
	ReporterID string
	VoterID    string
	Since      time.Time
}

type ReportSort string

const (
	SortNewest     ReportSort = "newest"
	SortOldest     ReportSort = "oldest"
	SortMostVoted  ReportSort = "most-voted"
	SortLeastVoted ReportSort = "least-voted"
)

func (s ReportSort) Valid() bool {
	switch s {
	case SortNewest, SortOldest, SortMostVoted, SortLeastVoted:
		return true
	}
	return false
}

type GroupField string

const (
	GroupByCategory GroupField = "category"
	GroupByAITool   GroupField = "ai_tool"
	GroupBySeverity GroupField = "severity"
)

type GroupCount struct {
	Key          string  `bson:"_id" json:"key"`
	Count        int64   `bson:"count" json:"count"`
	AvgVoteScore float64 `bson:"avg_vote_score" json:"avgVoteScore"`
}

// ReportCounter names a plain counter on a report that is bumped without a
// read-modify-write cycle.
type ReportCounter string

const (
	CounterViews  ReportCounter = "views"
	CounterShares ReportCounter = "shares"
)

type ReportStore interface {
	InsertReport(ctx context.Context, r *models.MistakeReport) error
	GetReport(ctx context.Context, id primitive.ObjectID) (*models.MistakeReport, error)
	UpdateReport(ctx context.Context, id primitive.ObjectID, fn func(*models.MistakeReport) error) (*models.MistakeReport, error)
	IncrementReport(ctx context.Context, id primitive.ObjectID, c ReportCounter) (*models.MistakeReport, error)
	FindReports(ctx context.Context, f ReportFilter, sort ReportSort, skip, limit int) ([]*models.MistakeReport, error)
	CountReports(ctx context.Context, f ReportFilter) (int64, error)
	GroupReports(ctx context.Context, f ReportFilter, by GroupField) ([]GroupCount, error)
	SumTotalVotes(ctx context.Context, f ReportFilter) (int64, error)
	CountVotesSince(ctx context.Context, since time.Time) (int64, error)
	AnonymizeReporter(ctx context.Context, userID, tag string, now time.Time) (int64, error)
}

type ToolFilter struct {
	Category     models.ToolCategory
	Status       models.ToolStatus
	ListedOnly   bool
	Names        []string
	UpdatedSince time.Time
}

type ToolSort string

const (
	ToolSortName            ToolSort = "name"
	ToolSortAccuracy        ToolSort = "accuracy"
	ToolSortMistakeRate     ToolSort = "mistake-rate"
	ToolSortPopularity      ToolSort = "popularity"
	ToolSortRecentlyUpdated ToolSort = "recently-updated"
)

func (s ToolSort) Valid() bool {
	switch s {
	case ToolSortName, ToolSortAccuracy, ToolSortMistakeRate, ToolSortPopularity, ToolSortRecentlyUpdated:
		return true
	}
	return false
}

type ToolStore interface {
	InsertTool(ctx context.Context, t *models.AITool) error
	GetTool(ctx context.Context, id primitive.ObjectID) (*models.AITool, error)
	GetToolBySlug(ctx context.Context, slug string) (*models.AITool, error)
	GetToolByName(ctx context.Context, name string) (*models.AITool, error)
	UpdateTool(ctx context.Context, id primitive.ObjectID, fn func(*models.AITool) error) (*models.AITool, error)
	DeleteTool(ctx context.Context, id primitive.ObjectID) error
	FindTools(ctx context.Context, f ToolFilter, sort ToolSort, limit int) ([]*models.AITool, error)
	CountTools(ctx context.Context, f ToolFilter) (int64, error)
}

// Store is the full persistence surface used by the report service.
type Store interface {
	ReportStore
	ToolStore
}
