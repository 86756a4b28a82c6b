package models

import (
	"math"
	"testing"
	"time"

	"ai-mistake-tracker/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"GPT-4 Turbo!!":     "gpt-4-turbo",
		"  Claude 3 Opus  ": "claude-3-opus",
		"--Gemini__Pro--":   "gemini-pro",
		"Llama 2 (70B)":     "llama-2-70b",
		"!!!":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func newTestTool(t *testing.T) *AITool {
	t.Helper()
	tool, err := NewAITool(ToolInput{
		Name:        ptr("GPT-4 Turbo!!"),
		Description: ptr("OpenAI's flagship model."),
		Provider:    ptr("OpenAI"),
		Pricing:     &Pricing{Input: 0.01, Output: 0.03},
	}, t0)
	require.NoError(t, err)
	return tool
}

func TestNewAIToolDefaults(t *testing.T) {
	tool := newTestTool(t)
	assert.Equal(t, "gpt-4-turbo", tool.Slug)
	assert.Equal(t, "1.0.0", tool.Version)
	assert.Equal(t, ToolLanguageModel, tool.Category)
	assert.Equal(t, ToolActive, tool.Status)
	assert.Equal(t, "USD", tool.Pricing.Currency)
	assert.True(t, tool.Listed())

	_, err := NewAITool(ToolInput{Name: ptr("X")}, t0)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestApplyRenameRederivesSlug(t *testing.T) {
	tool := newTestTool(t)
	require.NoError(t, tool.Apply(ToolInput{Name: ptr("GPT 4o mini")}, t0))
	assert.Equal(t, "gpt-4o-mini", tool.Slug)

	assert.ErrorIs(t, tool.Apply(ToolInput{Name: ptr("%%")}, t0), apperr.ErrInvalidArgument)
	assert.ErrorIs(t, tool.Apply(ToolInput{Status: ptr(ToolStatus("retired"))}, t0), apperr.ErrInvalidArgument)
}

func TestMistakeRateBounds(t *testing.T) {
	tool := newTestTool(t)

	tool.RecordMistake(t0)
	assert.Equal(t, 0.0, tool.Stats.MistakeRate, "no queries means rate 0")
	assert.False(t, math.IsNaN(tool.Stats.MistakeRate))

	tool.RecordQuery(true, t0)
	tool.RecordQuery(false, t0)
	assert.Equal(t, int64(2), tool.Stats.TotalQueries)
	assert.Equal(t, int64(1), tool.Stats.SuccessfulQueries)
	assert.Equal(t, int64(1), tool.Stats.FailedQueries)
	assert.Equal(t, 50.0, tool.Stats.MistakeRate)

	tool.RecordMistake(t0)
	tool.RecordMistake(t0)
	assert.Equal(t, 100.0, tool.Stats.MistakeRate, "clamped when mistakes exceed queries")

	require.NoError(t, tool.ApplyStats(StatsUpdate{TotalQueries: ptr(int64(0))}, t0))
	assert.Equal(t, 0.0, tool.Stats.MistakeRate)

	require.NoError(t, tool.ApplyStats(StatsUpdate{TotalQueries: ptr(int64(200)), TotalMistakes: ptr(int64(3))}, t0))
	assert.InDelta(t, 1.5, tool.Stats.MistakeRate, 1e-9)

	assert.ErrorIs(t, tool.ApplyStats(StatsUpdate{ActiveUsers: ptr(int64(-1))}, t0), apperr.ErrInvalidArgument)
}

func TestRecordPerformanceMergesAndPrunes(t *testing.T) {
	tool := newTestTool(t)

	require.NoError(t, tool.RecordPerformance(MetricsUpdate{Accuracy: ptr(90.0), ResponseTime: ptr(1.2)}, t0))
	require.NoError(t, tool.RecordPerformance(MetricsUpdate{Reliability: ptr(99.0), TotalQueries: ptr(int64(10))}, t0.Add(10*24*time.Hour)))

	cur := tool.Performance.Current
	assert.Equal(t, 90.0, cur.Accuracy, "absent fields keep their value")
	assert.Equal(t, 1.2, cur.ResponseTime)
	assert.Equal(t, 99.0, cur.Reliability)
	require.Len(t, tool.Performance.Historical, 2)
	last := tool.Performance.Historical[1]
	assert.Equal(t, 90.0, last.Accuracy)
	assert.Equal(t, 99.0, last.Reliability)
	assert.Equal(t, int64(10), last.TotalQueries)

	later := t0.Add(35 * 24 * time.Hour)
	require.NoError(t, tool.RecordPerformance(MetricsUpdate{UserSatisfaction: ptr(4.5)}, later))

	cutoff := later.Add(-HistoryRetention)
	require.Len(t, tool.Performance.Historical, 2)
	for i, e := range tool.Performance.Historical {
		assert.True(t, e.Date.After(cutoff), "entry %d is older than the retention window", i)
		if i > 0 {
			assert.False(t, e.Date.Before(tool.Performance.Historical[i-1].Date))
		}
	}
	assert.True(t, tool.Performance.LastUpdated.Equal(later))
}

func TestMetricsUpdateValidate(t *testing.T) {
	bad := []MetricsUpdate{
		{Accuracy: ptr(101.0)},
		{Reliability: ptr(-1.0)},
		{UserSatisfaction: ptr(5.5)},
		{ResponseTime: ptr(-0.1)},
		{Cost: ptr(math.NaN())},
		{FailedQueries: ptr(int64(-3))},
	}
	tool := newTestTool(t)
	for _, m := range bad {
		assert.ErrorIs(t, tool.RecordPerformance(m, t0), apperr.ErrInvalidArgument)
	}
	assert.Empty(t, tool.Performance.Historical)
}

func TestToolRankingOrders(t *testing.T) {
	a := newTestTool(t)
	b := newTestTool(t)
	a.Performance.Current.Accuracy, b.Performance.Current.Accuracy = 90, 90
	a.Stats.MistakeRate, b.Stats.MistakeRate = 5, 2
	assert.True(t, TopPerformerLess(b, a))
	assert.False(t, TopPerformerLess(a, b))

	a.Stats.ActiveUsers, b.Stats.ActiveUsers = 100, 100
	a.Performance.Current.UserSatisfaction, b.Performance.Current.UserSatisfaction = 4.8, 4.1
	assert.True(t, TrendingToolLess(a, b))
}
