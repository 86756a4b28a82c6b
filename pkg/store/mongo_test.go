package store

import (
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"time"

	"ai-mistake-tracker/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestReportFilterDoc(t *testing.T) {
	since := t0.Add(-time.Hour)
	cases := map[string]struct {
		filter ReportFilter
		want   bson.M
	}{
		"empty": {ReportFilter{}, bson.M{}},
		"trending": {
			ReportFilter{Status: models.StatusVerified, PublicOnly: true},
			bson.M{"status": models.StatusVerified, "is_public": true},
		},
		"everything": {
			ReportFilter{
				AITool:     "GPT-4",
				Category:   models.CategoryBias,
				Severity:   models.SeverityLow,
				ReporterID: "u1",
				VoterID:    "u2",
				Since:      since,
			},
			bson.M{
				"ai_tool":       "GPT-4",
				"category":      models.CategoryBias,
				"severity":      models.SeverityLow,
				"reporter_id":   "u1",
				"votes.user_id": "u2",
				"created_at":    bson.M{"$gte": since},
			},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, reportFilterDoc(tc.filter))
		})
	}
}

func TestToolFilterDoc(t *testing.T) {
	cases := map[string]struct {
		filter ToolFilter
		want   bson.M
	}{
		"status only": {
			ToolFilter{Status: models.ToolInactive},
			bson.M{"status": models.ToolInactive},
		},
		"listed": {
			ToolFilter{ListedOnly: true, Category: "multimodal"},
			bson.M{"status": models.ToolActive, "is_public": true, "category": models.ToolCategory("multimodal")},
		},
		"listed and active": {
			ToolFilter{ListedOnly: true, Status: models.ToolActive},
			bson.M{"status": models.ToolActive, "is_public": true},
		},
		"listed and inactive matches nothing": {
			ToolFilter{ListedOnly: true, Status: models.ToolInactive},
			bson.M{"status": bson.M{"$in": bson.A{}}, "is_public": true},
		},
		"names": {
			ToolFilter{Names: []string{"GPT-4", "Claude-3"}},
			bson.M{"name": bson.M{"$in": []string{"GPT-4", "Claude-3"}}},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, toolFilterDoc(tc.filter))
		})
	}

	inactive := &models.AITool{Status: models.ToolInactive, IsPublic: true}
	assert.False(t, matchTool(inactive, ToolFilter{ListedOnly: true, Status: models.ToolInactive}),
		"memory store agrees that no inactive tool is listed")
}

func TestAnonymizeFilterDoc(t *testing.T) {
	assert.Equal(t, bson.M{"reporter_id": "u1"}, anonymizeFilterDoc("u1", ""))
	assert.Equal(t,
		bson.M{"$or": bson.A{bson.M{"reporter_id": "u1"}, bson.M{"reporter_tag": "tag-u1"}}},
		anonymizeFilterDoc("u1", "tag-u1"),
	)
}

// sortByDoc orders encoded documents the way MongoDB applies a sort
// specification, comparing the dotted fields it names.
func sortByDoc(t *testing.T, docs []bson.Raw, spec bson.D) {
	t.Helper()
	slices.SortStableFunc(docs, func(a, b bson.Raw) int {
		for _, e := range spec {
			path := strings.Split(e.Key, ".")
			c := compareRaw(t, e.Key, a.Lookup(path...), b.Lookup(path...))
			if c != 0 {
				return c * e.Value.(int)
			}
		}
		return 0
	})
}

func compareRaw(t *testing.T, key string, a, b bson.RawValue) int {
	switch a.Type {
	case bsontype.Int32, bsontype.Int64, bsontype.Double:
		x, y := number(a), number(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case bsontype.DateTime:
		return a.Time().Compare(b.Time())
	case bsontype.ObjectID:
		return strings.Compare(a.ObjectID().Hex(), b.ObjectID().Hex())
	case bsontype.String:
		return strings.Compare(a.StringValue(), b.StringValue())
	}
	t.Fatalf("sort key %q has no comparable value (type %v)", key, a.Type)
	return 0
}

func number(v bson.RawValue) float64 {
	switch v.Type {
	case bsontype.Int32:
		return float64(v.Int32())
	case bsontype.Int64:
		return float64(v.Int64())
	}
	return v.Double()
}

func idsOf(t *testing.T, docs []bson.Raw) []string {
	t.Helper()
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Lookup("_id").ObjectID().Hex()
	}
	return out
}

func byLess[T any](less func(a, b T) bool) func(a, b T) int {
	return func(a, b T) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		}
		return 0
	}
}

func encode(t *testing.T, v any) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestReportSortDocMatchesMemoryOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	reports := make([]*models.MistakeReport, 40)
	for i := range reports {
		reports[i] = &models.MistakeReport{
			ID:        primitive.NewObjectID(),
			Votes:     []models.Vote{},
			VoteScore: rng.IntN(3) - 1,
			CreatedAt: t0.Add(time.Duration(rng.IntN(3)) * time.Minute),
		}
	}

	for _, s := range []ReportSort{SortNewest, SortOldest, SortMostVoted, SortLeastVoted} {
		t.Run(string(s), func(t *testing.T) {
			want := slices.Clone(reports)
			slices.SortFunc(want, byLess(func(a, b *models.MistakeReport) bool { return reportLess(a, b, s) }))
			wantIDs := make([]string, len(want))
			for i, r := range want {
				wantIDs[i] = r.ID.Hex()
			}

			docs := make([]bson.Raw, len(reports))
			for i, r := range reports {
				docs[i] = encode(t, r)
			}
			sortByDoc(t, docs, reportSortDoc(s))
			assert.Equal(t, wantIDs, idsOf(t, docs))
		})
	}

	trending := slices.Clone(reports)
	slices.SortFunc(trending, byLess(models.TrendingLess))
	docs := make([]bson.Raw, len(reports))
	for i, r := range reports {
		docs[i] = encode(t, r)
	}
	sortByDoc(t, docs, reportSortDoc(SortMostVoted))
	for i, r := range trending {
		assert.Equal(t, r.ID.Hex(), idsOf(t, docs)[i], "position %d", i)
	}
}

func TestToolSortDocMatchesMemoryOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	tools := make([]*models.AITool, 30)
	for i := range tools {
		tools[i] = &models.AITool{
			ID:   primitive.NewObjectID(),
			Name: []string{"Alpha", "Beta", "Gamma"}[rng.IntN(3)],
			Performance: models.Performance{
				Current: models.PerformanceSnapshot{
					Accuracy:         float64(80 + rng.IntN(3)*5),
					UserSatisfaction: float64(rng.IntN(3)),
				},
				LastUpdated: t0.Add(time.Duration(rng.IntN(2)) * time.Hour),
			},
			Stats: models.ToolStats{
				MistakeRate: float64(rng.IntN(3)) * 2.5,
				ActiveUsers: int64(rng.IntN(3) * 100),
			},
		}
	}

	for _, s := range []ToolSort{ToolSortName, ToolSortAccuracy, ToolSortMistakeRate, ToolSortPopularity, ToolSortRecentlyUpdated} {
		t.Run(string(s), func(t *testing.T) {
			want := slices.Clone(tools)
			slices.SortFunc(want, byLess(func(a, b *models.AITool) bool { return toolLess(a, b, s) }))
			wantIDs := make([]string, len(want))
			for i, tool := range want {
				wantIDs[i] = tool.ID.Hex()
			}

			docs := make([]bson.Raw, len(tools))
			for i, tool := range tools {
				docs[i] = encode(t, tool)
			}
			sortByDoc(t, docs, toolSortDoc(s))
			assert.Equal(t, wantIDs, idsOf(t, docs))
		})
	}

	byRank := func(less func(a, b *models.AITool) bool, s ToolSort) {
		want := slices.Clone(tools)
		slices.SortFunc(want, byLess(less))
		docs := make([]bson.Raw, len(tools))
		for i, tool := range tools {
			docs[i] = encode(t, tool)
		}
		sortByDoc(t, docs, toolSortDoc(s))
		got := idsOf(t, docs)
		for i, tool := range want {
			assert.Equal(t, tool.ID.Hex(), got[i], "%s position %d", s, i)
		}
	}
	byRank(models.TopPerformerLess, ToolSortAccuracy)
	byRank(models.TrendingToolLess, ToolSortPopularity)
}
