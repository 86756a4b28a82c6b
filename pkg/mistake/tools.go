package mistake

import (
	"context"
	"fmt"
	"strings"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/store"

	"go.uber.org/zap"
)

const (
	defaultToolRanking = 10
	maxToolRanking     = 50
)

func (s *Service) CreateTool(ctx context.Context, in models.ToolInput) (*models.AITool, error) {
	t, err := models.NewAITool(in, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertTool(ctx, t); err != nil {
		return nil, err
	}
	s.log.Info("ai tool created", zap.String("tool_id", t.ID.Hex()), zap.String("slug", t.Slug))
	return t, nil
}

func (s *Service) UpdateTool(ctx context.Context, id string, in models.ToolInput) (*models.AITool, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return s.store.UpdateTool(ctx, oid, func(t *models.AITool) error {
		return t.Apply(in, now)
	})
}

func (s *Service) DeleteTool(ctx context.Context, id string) error {
	oid, err := ParseID(id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTool(ctx, oid); err != nil {
		return err
	}
	s.log.Info("ai tool deleted", zap.String("tool_id", id))
	return nil
}

func (s *Service) GetTool(ctx context.Context, id string) (*models.AITool, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.store.GetTool(ctx, oid)
}

func (s *Service) GetToolBySlug(ctx context.Context, slug string) (*models.AITool, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, apperr.NotFound("ai tool with empty slug")
	}
	return s.store.GetToolBySlug(ctx, slug)
}

type ToolQuery struct {
	Category models.ToolCategory
	Status   models.ToolStatus
	Sort     store.ToolSort
	Limit    int
}

// ListTools lists public tools. Without a status filter only active tools
// are returned.
func (s *Service) ListTools(ctx context.Context, q ToolQuery) ([]*models.AITool, error) {
	if q.Category != "" && !q.Category.Valid() {
		return nil, apperr.InvalidArgument("invalid category filter %q", q.Category)
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, apperr.InvalidArgument("invalid status filter %q", q.Status)
	}
	if q.Sort == "" {
		q.Sort = store.ToolSortName
	}
	if !q.Sort.Valid() {
		return nil, apperr.InvalidArgument("invalid sort option %q", q.Sort)
	}
	if q.Limit > maxPageSize {
		return nil, apperr.InvalidArgument("limit must be between 1 and %d", maxPageSize)
	}
	f := store.ToolFilter{Category: q.Category, Status: q.Status, ListedOnly: q.Status == ""}
	return s.store.FindTools(ctx, f, q.Sort, clampLimit(q.Limit, maxPageSize, maxPageSize))
}

// TopPerformers ranks listed tools by accuracy, then by lower mistake rate.
func (s *Service) TopPerformers(ctx context.Context, limit int) ([]*models.AITool, error) {
	return s.rankTools(ctx, store.ToolSortAccuracy, limit)
}

// TrendingTools ranks listed tools by active users, then satisfaction.
func (s *Service) TrendingTools(ctx context.Context, limit int) ([]*models.AITool, error) {
	return s.rankTools(ctx, store.ToolSortPopularity, limit)
}

func (s *Service) ToolsByCategory(ctx context.Context, category models.ToolCategory) ([]*models.AITool, error) {
	if !category.Valid() {
		return nil, apperr.InvalidArgument("invalid category %q", category)
	}
	return s.store.FindTools(ctx, store.ToolFilter{Category: category, ListedOnly: true}, store.ToolSortAccuracy, 0)
}

func (s *Service) rankTools(ctx context.Context, sort store.ToolSort, limit int) ([]*models.AITool, error) {
	if limit > maxToolRanking {
		return nil, apperr.InvalidArgument("limit must be between 1 and %d", maxToolRanking)
	}
	return s.store.FindTools(ctx, store.ToolFilter{ListedOnly: true}, sort, clampLimit(limit, defaultToolRanking, maxToolRanking))
}

// RecordPerformanceSnapshot merges m into the tool's current metrics and
// appends a history entry, dropping entries past the retention window.
func (s *Service) RecordPerformanceSnapshot(ctx context.Context, id string, m models.MetricsUpdate) (*models.AITool, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return s.store.UpdateTool(ctx, oid, func(t *models.AITool) error {
		return t.RecordPerformance(m, now)
	})
}

func (s *Service) UpdateToolStats(ctx context.Context, id string, u models.StatsUpdate) (*models.AITool, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return s.store.UpdateTool(ctx, oid, func(t *models.AITool) error {
		return t.ApplyStats(u, now)
	})
}

func (s *Service) RecordQuery(ctx context.Context, id string, successful bool) (*models.AITool, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return s.store.UpdateTool(ctx, oid, func(t *models.AITool) error {
		t.RecordQuery(successful, now)
		return nil
	})
}

func (s *Service) RecordMistake(ctx context.Context, id string) (*models.AITool, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return s.store.UpdateTool(ctx, oid, func(t *models.AITool) error {
		t.RecordMistake(now)
		return nil
	})
}

// RecordMistakeByName counts a mistake against the tool registered under
// name. Reports name tools by display name, not by id.
func (s *Service) RecordMistakeByName(ctx context.Context, name string) (*models.AITool, error) {
	t, err := s.store.GetToolByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("lookup tool %q: %w", name, err)
	}
	return s.RecordMistake(ctx, t.ID.Hex())
}
