package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-mistake-tracker/pkg/mistake"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type bumps struct {
	calls map[string][]statColumn
	err   error
}

func (b *bumps) Increment(_ context.Context, userID string, col statColumn) error {
	if b.err != nil {
		return b.err
	}
	b.calls[userID] = append(b.calls[userID], col)
	return nil
}

type dispatchFixture struct {
	d     *dispatcher
	svc   *mistake.Service
	stats *bumps
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	svc := mistake.NewService(store.NewMemory())
	stats := &bumps{calls: map[string][]statColumn{}}
	return &dispatchFixture{
		d:     &dispatcher{tools: svc, reports: svc, stats: stats, log: zap.NewNop()},
		svc:   svc,
		stats: stats,
	}
}

func newTestTool(t *testing.T, svc *mistake.Service, name string) *models.AITool {
	t.Helper()
	desc, provider := "Model used in dispatcher tests.", "Acme"
	tool, err := svc.CreateTool(context.Background(), models.ToolInput{
		Name: &name, Description: &desc, Provider: &provider, Pricing: &models.Pricing{},
	})
	require.NoError(t, err)
	_, err = svc.RecordQuery(context.Background(), tool.ID.Hex(), true)
	require.NoError(t, err)
	_, err = svc.RecordQuery(context.Background(), tool.ID.Hex(), true)
	require.NoError(t, err)
	return tool
}

func TestVerifiedReportCountsToolMistake(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)
	tool := newTestTool(t, f.svc, "Claude-3")

	err := f.d.Handle(ctx, models.Event{
		Type: models.EventReportModerated, Status: models.StatusVerified,
		AITool: "Claude-3", ReporterID: "u1", ReportID: "r1",
	})
	require.NoError(t, err)

	got, err := f.svc.GetTool(ctx, tool.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Stats.TotalMistakes)
	assert.Equal(t, 50.0, got.Stats.MistakeRate)
	assert.Equal(t, []statColumn{statReportsVerified}, f.stats.calls["u1"])

	require.NoError(t, f.d.Handle(ctx, models.Event{
		Type: models.EventReportModerated, Status: models.StatusRejected, AITool: "Claude-3",
	}))
	got, err = f.svc.GetTool(ctx, tool.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Stats.TotalMistakes, "rejections do not count")
}

func TestUnknownToolIsDropped(t *testing.T) {
	f := newDispatchFixture(t)
	err := f.d.Handle(context.Background(), models.Event{
		Type: models.EventReportModerated, Status: models.StatusVerified, AITool: "PaLM-2",
	})
	assert.NoError(t, err, "a missing tool is not retried")
}

func TestUserDeletedAnonymizesReports(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)
	p := models.Principal{UserID: "u1", Name: "Ada", Role: models.RoleUser}
	r, err := f.svc.Submit(ctx, p, models.ReportInput{
		AITool:          "GPT-4",
		Category:        models.CategoryLogical,
		Severity:        models.SeverityMedium,
		UserQuery:       "Is 17 a prime number or not?",
		AIResponse:      "17 is not prime because it is odd.",
		CorrectedAnswer: "17 is prime; odd numbers can be prime.",
		Description:     "The model used a broken rule to decide primality.",
	})
	require.NoError(t, err)

	require.NoError(t, f.d.Handle(ctx, models.NewUserDeletedEvent("u1", time.Now())))

	who, err := f.svc.RevealReporter(ctx, r.ID.Hex())
	assert.Error(t, err)
	assert.Empty(t, who)
	mine, err := f.svc.Mine(ctx, p, "")
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestStatsCounters(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)

	require.NoError(t, f.d.Handle(ctx, models.Event{Type: models.EventReportCreated, ReporterID: "u1"}))
	require.NoError(t, f.d.Handle(ctx, models.Event{Type: models.EventReportCreated}))
	require.NoError(t, f.d.Handle(ctx, models.Event{Type: models.EventVoteChanged, ActorID: "u2", UserVote: models.Upvote}))
	require.NoError(t, f.d.Handle(ctx, models.Event{Type: models.EventVoteChanged, ActorID: "u2", UserVote: models.NoVote}))

	assert.Equal(t, []statColumn{statReportsSubmitted}, f.stats.calls["u1"])
	assert.Equal(t, []statColumn{statTotalVotes}, f.stats.calls["u2"])
	assert.Len(t, f.stats.calls, 2)

	f.stats.err = errors.New("connection reset")
	err := f.d.Handle(ctx, models.Event{Type: models.EventReportCreated, ReporterID: "u1"})
	assert.Error(t, err, "transient failures are returned for redelivery")
}
