package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is a process-local Store. It is used by tests and by local runs
// without MongoDB; state lives only as long as the value.
type Memory struct {
	mu      sync.RWMutex
	reports map[primitive.ObjectID]*models.MistakeReport
	tools   map[primitive.ObjectID]*models.AITool
}

func NewMemory() *Memory {
	return &Memory{
		reports: make(map[primitive.ObjectID]*models.MistakeReport),
		tools:   make(map[primitive.ObjectID]*models.AITool),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) InsertReport(_ context.Context, r *models.MistakeReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	if _, ok := m.reports[r.ID]; ok {
		return apperr.InvalidArgument("report %s already exists", r.ID.Hex())
	}
	m.reports[r.ID] = cloneReport(r)
	return nil
}

func (m *Memory) GetReport(_ context.Context, id primitive.ObjectID) (*models.MistakeReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperr.NotFound("mistake report %s", id.Hex())
	}
	return cloneReport(r), nil
}

func (m *Memory) UpdateReport(_ context.Context, id primitive.ObjectID, fn func(*models.MistakeReport) error) (*models.MistakeReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.reports[id]
	if !ok {
		return nil, apperr.NotFound("mistake report %s", id.Hex())
	}
	next := cloneReport(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.DocVersion = cur.DocVersion + 1
	m.reports[id] = next
	return cloneReport(next), nil
}

func (m *Memory) IncrementReport(_ context.Context, id primitive.ObjectID, c ReportCounter) (*models.MistakeReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperr.NotFound("mistake report %s", id.Hex())
	}
	next := cloneReport(r)
	switch c {
	case CounterViews:
		next.Views++
	case CounterShares:
		next.Shares++
	default:
		return nil, apperr.InvalidArgument("unknown report counter %q", c)
	}
	next.DocVersion++
	m.reports[id] = next
	return cloneReport(next), nil
}

func (m *Memory) FindReports(_ context.Context, f ReportFilter, s ReportSort, skip, limit int) ([]*models.MistakeReport, error) {
	m.mu.RLock()
	matched := m.matchReports(f)
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return reportLess(matched[i], matched[j], s) })
	return paginate(matched, skip, limit), nil
}

func (m *Memory) CountReports(_ context.Context, f ReportFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.matchReports(f))), nil
}

func (m *Memory) GroupReports(_ context.Context, f ReportFilter, by GroupField) ([]GroupCount, error) {
	m.mu.RLock()
	matched := m.matchReports(f)
	m.mu.RUnlock()

	type acc struct {
		count int64
		score int64
	}
	groups := make(map[string]*acc)
	for _, r := range matched {
		key := groupKey(r, by)
		g, ok := groups[key]
		if !ok {
			g = &acc{}
			groups[key] = g
		}
		g.count++
		g.score += int64(r.VoteScore)
	}

	out := make([]GroupCount, 0, len(groups))
	for k, g := range groups {
		out = append(out, GroupCount{Key: k, Count: g.count, AvgVoteScore: float64(g.score) / float64(g.count)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (m *Memory) SumTotalVotes(_ context.Context, f ReportFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, r := range m.matchReports(f) {
		total += int64(r.TotalVotes)
	}
	return total, nil
}

func (m *Memory) CountVotesSince(_ context.Context, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, r := range m.reports {
		for _, v := range r.Votes {
			if !v.CreatedAt.Before(since) {
				n++
			}
		}
	}
	return n, nil
}

func (m *Memory) AnonymizeReporter(_ context.Context, userID, tag string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.reports {
		next := cloneReport(r)
		if next.AnonymizeReporter(userID, tag, now) {
			next.DocVersion = r.DocVersion + 1
			m.reports[id] = next
			n++
		}
	}
	return n, nil
}

func (m *Memory) matchReports(f ReportFilter) []*models.MistakeReport {
	out := make([]*models.MistakeReport, 0)
	for _, r := range m.reports {
		if matchReport(r, f) {
			out = append(out, cloneReport(r))
		}
	}
	return out
}

func matchReport(r *models.MistakeReport, f ReportFilter) bool {
	switch {
	case f.AITool != "" && r.AITool != f.AITool:
		return false
	case f.Category != "" && r.Category != f.Category:
		return false
	case f.Severity != "" && r.Severity != f.Severity:
		return false
	case f.Status != "" && r.Status != f.Status:
		return false
	case f.PublicOnly && !r.IsPublic:
		return false
	case f.ReporterID != "" && !r.IsReporter(f.ReporterID):
		return false
	case f.VoterID != "" && r.VoteOf(f.VoterID) == models.NoVote:
		return false
	case !f.Since.IsZero() && r.CreatedAt.Before(f.Since):
		return false
	}
	return true
}

func reportLess(a, b *models.MistakeReport, s ReportSort) bool {
	switch s {
	case SortOldest:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.Hex() < b.ID.Hex()
	case SortMostVoted:
		return models.TrendingLess(a, b)
	case SortLeastVoted:
		if a.VoteScore != b.VoteScore {
			return a.VoteScore < b.VoteScore
		}
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.Hex() > b.ID.Hex()
}

func groupKey(r *models.MistakeReport, by GroupField) string {
	switch by {
	case GroupByAITool:
		return r.AITool
	case GroupBySeverity:
		return string(r.Severity)
	default:
		return string(r.Category)
	}
}

func (m *Memory) InsertTool(_ context.Context, t *models.AITool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	if err := m.checkToolUnique(t); err != nil {
		return err
	}
	m.tools[t.ID] = cloneTool(t)
	return nil
}

func (m *Memory) GetTool(_ context.Context, id primitive.ObjectID) (*models.AITool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tools[id]
	if !ok {
		return nil, apperr.NotFound("AI tool %s", id.Hex())
	}
	return cloneTool(t), nil
}

func (m *Memory) GetToolBySlug(_ context.Context, slug string) (*models.AITool, error) {
	return m.findTool(func(t *models.AITool) bool { return t.Slug == slug }, "AI tool with slug %q", slug)
}

func (m *Memory) GetToolByName(_ context.Context, name string) (*models.AITool, error) {
	return m.findTool(func(t *models.AITool) bool { return t.Name == name }, "AI tool named %q", name)
}

func (m *Memory) findTool(pred func(*models.AITool) bool, format string, arg string) (*models.AITool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tools {
		if pred(t) {
			return cloneTool(t), nil
		}
	}
	return nil, apperr.NotFound(format, arg)
}

func (m *Memory) UpdateTool(_ context.Context, id primitive.ObjectID, fn func(*models.AITool) error) (*models.AITool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tools[id]
	if !ok {
		return nil, apperr.NotFound("AI tool %s", id.Hex())
	}
	next := cloneTool(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := m.checkToolUnique(next); err != nil {
		return nil, err
	}
	next.DocVersion = cur.DocVersion + 1
	m.tools[id] = next
	return cloneTool(next), nil
}

func (m *Memory) DeleteTool(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tools[id]; !ok {
		return apperr.NotFound("AI tool %s", id.Hex())
	}
	delete(m.tools, id)
	return nil
}

func (m *Memory) FindTools(_ context.Context, f ToolFilter, s ToolSort, limit int) ([]*models.AITool, error) {
	m.mu.RLock()
	matched := make([]*models.AITool, 0)
	for _, t := range m.tools {
		if matchTool(t, f) {
			matched = append(matched, cloneTool(t))
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return toolLess(matched[i], matched[j], s) })
	return paginate(matched, 0, limit), nil
}

func (m *Memory) CountTools(_ context.Context, f ToolFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, t := range m.tools {
		if matchTool(t, f) {
			n++
		}
	}
	return n, nil
}

// checkToolUnique enforces the unique name and slug indexes. Callers hold mu.
func (m *Memory) checkToolUnique(t *models.AITool) error {
	for id, other := range m.tools {
		if id == t.ID {
			continue
		}
		if other.Name == t.Name || other.Slug == t.Slug {
			return apperr.InvalidArgument("AI tool %q already exists", t.Name)
		}
	}
	return nil
}

func matchTool(t *models.AITool, f ToolFilter) bool {
	switch {
	case f.Category != "" && t.Category != f.Category:
		return false
	case f.Status != "" && t.Status != f.Status:
		return false
	case f.ListedOnly && !t.Listed():
		return false
	case !f.UpdatedSince.IsZero() && t.Performance.LastUpdated.Before(f.UpdatedSince):
		return false
	}
	if len(f.Names) > 0 {
		for _, n := range f.Names {
			if n == t.Name {
				return true
			}
		}
		return false
	}
	return true
}

func toolLess(a, b *models.AITool, s ToolSort) bool {
	switch s {
	case ToolSortName:
		if a.Name != b.Name {
			return a.Name < b.Name
		}
	case ToolSortMistakeRate:
		if a.Stats.MistakeRate != b.Stats.MistakeRate {
			return a.Stats.MistakeRate < b.Stats.MistakeRate
		}
	case ToolSortPopularity:
		return models.TrendingToolLess(a, b)
	case ToolSortRecentlyUpdated:
		if !a.Performance.LastUpdated.Equal(b.Performance.LastUpdated) {
			return a.Performance.LastUpdated.After(b.Performance.LastUpdated)
		}
	default:
		return models.TopPerformerLess(a, b)
	}
	return a.ID.Hex() < b.ID.Hex()
}

func paginate[T any](items []T, skip, limit int) []T {
	if skip >= len(items) {
		return []T{}
	}
	if skip > 0 {
		items = items[skip:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneReport(r *models.MistakeReport) *models.MistakeReport {
	c := *r
	if r.ReporterID != nil {
		id := *r.ReporterID
		c.ReporterID = &id
	}
	if r.VerifiedAt != nil {
		at := *r.VerifiedAt
		c.VerifiedAt = &at
	}
	c.Votes = append([]models.Vote(nil), r.Votes...)
	c.Tags = append([]string(nil), r.Tags...)
	c.Evidence = append([]models.Evidence(nil), r.Evidence...)
	return &c
}

func cloneTool(t *models.AITool) *models.AITool {
	c := *t
	c.Capabilities = append([]string(nil), t.Capabilities...)
	c.Performance.Historical = append([]models.PerformanceEntry(nil), t.Performance.Historical...)
	return &c
}
