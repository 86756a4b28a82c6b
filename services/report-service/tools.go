package main

import (
	"net/http"

	"ai-mistake-tracker/pkg/mistake"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/response"
	"ai-mistake-tracker/pkg/store"
)

func (s *server) listTools(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, "Invalid query", err)
		return
	}
	q := r.URL.Query()

	ctx, cancel := withTimeout(r)
	defer cancel()

	tools, err := s.svc.ListTools(ctx, mistake.ToolQuery{
		Category: models.ToolCategory(q.Get("category")),
		Status:   models.ToolStatus(q.Get("status")),
		Sort:     store.ToolSort(q.Get("sortBy")),
		Limit:    limit,
	})
	if err != nil {
		s.fail(w, r, "Failed to fetch AI tools", err)
		return
	}
	response.Success(w, http.StatusOK, "AI tools fetched successfully", tools)
}

func (s *server) topTools(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, "Invalid query", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	tools, err := s.svc.TopPerformers(ctx, limit)
	if err != nil {
		s.fail(w, r, "Failed to fetch top performers", err)
		return
	}
	response.Success(w, http.StatusOK, "Top performers fetched successfully", tools)
}

func (s *server) trendingTools(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, "Invalid query", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	tools, err := s.svc.TrendingTools(ctx, limit)
	if err != nil {
		s.fail(w, r, "Failed to fetch trending tools", err)
		return
	}
	response.Success(w, http.StatusOK, "Trending tools fetched successfully", tools)
}

func (s *server) toolsByCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	tools, err := s.svc.ToolsByCategory(ctx, models.ToolCategory(r.PathValue("category")))
	if err != nil {
		s.fail(w, r, "Failed to fetch AI tools", err)
		return
	}
	response.Success(w, http.StatusOK, "AI tools fetched successfully", tools)
}

func (s *server) getTool(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	tool, err := s.svc.GetTool(ctx, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "AI tool not found", err)
		return
	}
	response.Success(w, http.StatusOK, "AI tool fetched successfully", tool)
}

func (s *server) getToolBySlug(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	tool, err := s.svc.GetToolBySlug(ctx, r.PathValue("slug"))
	if err != nil {
		s.fail(w, r, "AI tool not found", err)
		return
	}
	response.Success(w, http.StatusOK, "AI tool fetched successfully", tool)
}

func (s *server) createTool(w http.ResponseWriter, r *http.Request) {
	var input models.ToolInput
	if err := decodeJSON(r, &input); err != nil {
		s.fail(w, r, "Invalid request payload", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	tool, err := s.svc.CreateTool(ctx, input)
	if err != nil {
		s.fail(w, r, "Failed to create AI tool", err)
		return
	}
	response.Success(w, http.StatusCreated, "AI tool created successfully", tool)
}

func (s *server) updateTool(w http.ResponseWriter, r *http.Request) {
	var input models.ToolInput
	if err := decodeJSON(r, &input); err != nil {
		s.fail(w, r, "Invalid request payload", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	tool, err := s.svc.UpdateTool(ctx, r.PathValue("id"), input)
	if err != nil {
		s.fail(w, r, "Failed to update AI tool", err)
		return
	}
	response.Success(w, http.StatusOK, "AI tool updated successfully", tool)
}

func (s *server) deleteTool(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	if err := s.svc.DeleteTool(ctx, r.PathValue("id")); err != nil {
		s.fail(w, r, "Failed to delete AI tool", err)
		return
	}
	response.Success(w, http.StatusOK, "AI tool deleted successfully", nil)
}

func (s *server) recordMetrics(w http.ResponseWriter, r *http.Request) {
	var input models.MetricsUpdate
	if err := decodeJSON(r, &input); err != nil {
		s.fail(w, r, "Invalid request payload", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	tool, err := s.svc.RecordPerformanceSnapshot(ctx, r.PathValue("id"), input)
	if err != nil {
		s.fail(w, r, "Failed to update performance metrics", err)
		return
	}
	response.Success(w, http.StatusOK, "Performance metrics updated successfully", tool.Performance)
}

func (s *server) updateToolStats(w http.ResponseWriter, r *http.Request) {
	var input models.StatsUpdate
	if err := decodeJSON(r, &input); err != nil {
		s.fail(w, r, "Invalid request payload", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	tool, err := s.svc.UpdateToolStats(ctx, r.PathValue("id"), input)
	if err != nil {
		s.fail(w, r, "Failed to update statistics", err)
		return
	}
	response.Success(w, http.StatusOK, "Statistics updated successfully", tool.Stats)
}

func (s *server) recordQuery(w http.ResponseWriter, r *http.Request) {
	input := struct {
		Successful *bool `json:"successful"`
	}{}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &input); err != nil {
			s.fail(w, r, "Invalid request payload", err)
			return
		}
	}
	successful := input.Successful == nil || *input.Successful

	ctx, cancel := withTimeout(r)
	defer cancel()

	tool, err := s.svc.RecordQuery(ctx, r.PathValue("id"), successful)
	if err != nil {
		s.fail(w, r, "Failed to record query", err)
		return
	}
	response.Success(w, http.StatusOK, "Query recorded", tool.Stats)
}

func (s *server) recordMistake(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	tool, err := s.svc.RecordMistake(ctx, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "Failed to record mistake", err)
		return
	}
	response.Success(w, http.StatusOK, "Mistake recorded", tool.Stats)
}
