package models

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"ai-mistake-tracker/pkg/apperr"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HistoryRetention bounds the age of performance history entries.
const HistoryRetention = 30 * 24 * time.Hour

type ToolCategory string

const (
	ToolLanguageModel   ToolCategory = "language-model"
	ToolImageGeneration ToolCategory = "image-generation"
	ToolCodeGeneration  ToolCategory = "code-generation"
	ToolMultimodal      ToolCategory = "multimodal"
	ToolOther           ToolCategory = "other"
)

func (c ToolCategory) Valid() bool {
	switch c {
	case ToolLanguageModel, ToolImageGeneration, ToolCodeGeneration, ToolMultimodal, ToolOther:
		return true
	}
	return false
}

type ToolStatus string

const (
	ToolActive      ToolStatus = "active"
	ToolInactive    ToolStatus = "inactive"
	ToolMaintenance ToolStatus = "maintenance"
	ToolDeprecated  ToolStatus = "deprecated"
)

func (s ToolStatus) Valid() bool {
	switch s {
	case ToolActive, ToolInactive, ToolMaintenance, ToolDeprecated:
		return true
	}
	return false
}

type Pricing struct {
	Input    float64 `bson:"input" json:"input"`
	Output   float64 `bson:"output" json:"output"`
	Currency string  `bson:"currency" json:"currency"`
	Unit     string  `bson:"unit" json:"unit"`
}

type PerformanceSnapshot struct {
	Accuracy         float64 `bson:"accuracy" json:"accuracy"`
	ResponseTime     float64 `bson:"response_time" json:"responseTime"`
	Reliability      float64 `bson:"reliability" json:"reliability"`
	UserSatisfaction float64 `bson:"user_satisfaction" json:"userSatisfaction"`
}

type PerformanceEntry struct {
	Date              time.Time `bson:"date" json:"date"`
	Accuracy          float64   `bson:"accuracy" json:"accuracy"`
	ResponseTime      float64   `bson:"response_time" json:"responseTime"`
	Cost              float64   `bson:"cost" json:"cost"`
	Reliability       float64   `bson:"reliability" json:"reliability"`
	UserSatisfaction  float64   `bson:"user_satisfaction" json:"userSatisfaction"`
	TotalQueries      int64     `bson:"total_queries" json:"totalQueries"`
	SuccessfulQueries int64     `bson:"successful_queries" json:"successfulQueries"`
	FailedQueries     int64     `bson:"failed_queries" json:"failedQueries"`
}

type Performance struct {
	Current     PerformanceSnapshot `bson:"current" json:"current"`
	Historical  []PerformanceEntry  `bson:"historical" json:"historical"`
	LastUpdated time.Time           `bson:"last_updated" json:"lastUpdated"`
}

type ToolStats struct {
	TotalQueries        int64   `bson:"total_queries" json:"totalQueries"`
	SuccessfulQueries   int64   `bson:"successful_queries" json:"successfulQueries"`
	FailedQueries       int64   `bson:"failed_queries" json:"failedQueries"`
	TotalMistakes       int64   `bson:"total_mistakes" json:"totalMistakes"`
	MistakeRate         float64 `bson:"mistake_rate" json:"mistakeRate"`
	AverageResponseTime float64 `bson:"average_response_time" json:"averageResponseTime"`
	TotalCost           float64 `bson:"total_cost" json:"totalCost"`
	ActiveUsers         int64   `bson:"active_users" json:"activeUsers"`
}

// RecomputeMistakeRate derives MistakeRate as a percentage in [0,100]. It is
// 0 when no queries have been recorded.
func (s *ToolStats) RecomputeMistakeRate() {
	if s.TotalQueries <= 0 {
		s.MistakeRate = 0
		return
	}
	rate := float64(s.TotalMistakes) / float64(s.TotalQueries) * 100
	if math.IsNaN(rate) || rate < 0 {
		rate = 0
	}
	s.MistakeRate = math.Min(rate, 100)
}

type AITool struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Slug         string             `bson:"slug" json:"slug"`
	Description  string             `bson:"description" json:"description"`
	Version      string             `bson:"version" json:"version"`
	Provider     string             `bson:"provider" json:"provider"`
	Category     ToolCategory       `bson:"category" json:"category"`
	Capabilities []string           `bson:"capabilities,omitempty" json:"capabilities,omitempty"`
	Pricing      Pricing            `bson:"pricing" json:"pricing"`
	Performance  Performance        `bson:"performance" json:"performance"`
	Stats        ToolStats          `bson:"stats" json:"stats"`
	Status       ToolStatus         `bson:"status" json:"status"`
	IsPublic     bool               `bson:"is_public" json:"isPublic"`
	Logo         string             `bson:"logo,omitempty" json:"logo,omitempty"`
	Website      string             `bson:"website,omitempty" json:"website,omitempty"`
	DocVersion   int64              `bson:"doc_version" json:"-"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updatedAt"`
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name, collapses every run of non-alphanumerics into a
// single hyphen and trims hyphens from both ends.
func Slugify(name string) string {
	s := nonAlnum.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}

// SetName renames the tool and re-derives its slug.
func (t *AITool) SetName(name string) error {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		return apperr.InvalidArgument("name must be between 2 and 100 characters")
	}
	slug := Slugify(name)
	if slug == "" {
		return apperr.InvalidArgument("name %q has no alphanumeric characters", name)
	}
	t.Name = name
	t.Slug = slug
	return nil
}

// ToolInput carries admin-editable tool fields. Nil pointers are left alone
// on update.
type ToolInput struct {
	Name         *string       `json:"name"`
	Description  *string       `json:"description"`
	Version      *string       `json:"version"`
	Provider     *string       `json:"provider"`
	Category     *ToolCategory `json:"category"`
	Capabilities []string      `json:"capabilities"`
	Pricing      *Pricing      `json:"pricing"`
	Status       *ToolStatus   `json:"status"`
	IsPublic     *bool         `json:"isPublic"`
	Logo         *string       `json:"logo"`
	Website      *string       `json:"website"`
}

// NewAITool validates a creation request. Name, description, provider and
// pricing are required.
func NewAITool(in ToolInput, now time.Time) (*AITool, error) {
	if in.Name == nil || in.Description == nil || in.Provider == nil || in.Pricing == nil {
		return nil, apperr.InvalidArgument("name, description, provider and pricing are required")
	}
	t := &AITool{
		ID:       primitive.NewObjectID(),
		Version:  "1.0.0",
		Category: ToolLanguageModel,
		Status:   ToolActive,
		IsPublic: true,
		Pricing:  Pricing{Currency: "USD", Unit: "per-1k-tokens"},
		Performance: Performance{
			Historical:  []PerformanceEntry{},
			LastUpdated: now,
		},
		CreatedAt: now,
	}
	if err := t.Apply(in, now); err != nil {
		return nil, err
	}
	return t, nil
}

// Apply merges in into t, re-deriving the slug when the name changes.
func (t *AITool) Apply(in ToolInput, now time.Time) error {
	if in.Name != nil && *in.Name != t.Name {
		if err := t.SetName(*in.Name); err != nil {
			return err
		}
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		if n := utf8.RuneCountInString(d); n < 10 || n > 500 {
			return apperr.InvalidArgument("description must be between 10 and 500 characters")
		}
		t.Description = d
	}
	if in.Version != nil && strings.TrimSpace(*in.Version) != "" {
		t.Version = strings.TrimSpace(*in.Version)
	}
	if in.Provider != nil {
		p := strings.TrimSpace(*in.Provider)
		if p == "" {
			return apperr.InvalidArgument("provider is required")
		}
		t.Provider = p
	}
	if in.Category != nil {
		if !in.Category.Valid() {
			return apperr.InvalidArgument("invalid category %q", *in.Category)
		}
		t.Category = *in.Category
	}
	if in.Capabilities != nil {
		t.Capabilities = in.Capabilities
	}
	if in.Pricing != nil {
		if in.Pricing.Input < 0 || in.Pricing.Output < 0 {
			return apperr.InvalidArgument("pricing must not be negative")
		}
		t.Pricing.Input = in.Pricing.Input
		t.Pricing.Output = in.Pricing.Output
		if in.Pricing.Currency != "" {
			t.Pricing.Currency = in.Pricing.Currency
		}
		if in.Pricing.Unit != "" {
			t.Pricing.Unit = in.Pricing.Unit
		}
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return apperr.InvalidArgument("invalid status %q", *in.Status)
		}
		t.Status = *in.Status
	}
	if in.IsPublic != nil {
		t.IsPublic = *in.IsPublic
	}
	if in.Logo != nil {
		t.Logo = *in.Logo
	}
	if in.Website != nil {
		t.Website = *in.Website
	}
	t.UpdatedAt = now
	return nil
}

// MetricsUpdate is a partial performance update. Absent fields keep their
// previous value in the current snapshot.
type MetricsUpdate struct {
	Accuracy          *float64 `json:"accuracy"`
	ResponseTime      *float64 `json:"responseTime"`
	Cost              *float64 `json:"cost"`
	Reliability       *float64 `json:"reliability"`
	UserSatisfaction  *float64 `json:"userSatisfaction"`
	TotalQueries      *int64   `json:"totalQueries"`
	SuccessfulQueries *int64   `json:"successfulQueries"`
	FailedQueries     *int64   `json:"failedQueries"`
}

func (m MetricsUpdate) Validate() error {
	if err := inRange("accuracy", m.Accuracy, 0, 100); err != nil {
		return err
	}
	if err := inRange("reliability", m.Reliability, 0, 100); err != nil {
		return err
	}
	if err := inRange("userSatisfaction", m.UserSatisfaction, 0, 5); err != nil {
		return err
	}
	if err := inRange("responseTime", m.ResponseTime, 0, math.MaxFloat64); err != nil {
		return err
	}
	if err := inRange("cost", m.Cost, 0, math.MaxFloat64); err != nil {
		return err
	}
	for name, v := range map[string]*int64{
		"totalQueries":      m.TotalQueries,
		"successfulQueries": m.SuccessfulQueries,
		"failedQueries":     m.FailedQueries,
	} {
		if v != nil && *v < 0 {
			return apperr.InvalidArgument("%s must not be negative", name)
		}
	}
	return nil
}

func inRange(name string, v *float64, min, max float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v < min || *v > max {
		return apperr.InvalidArgument("%s must be between %g and %g", name, min, max)
	}
	return nil
}

// RecordPerformance merges m into the current snapshot, appends a history
// entry stamped now with the resulting values and drops entries older than
// HistoryRetention.
func (t *AITool) RecordPerformance(m MetricsUpdate, now time.Time) error {
	if err := m.Validate(); err != nil {
		return err
	}
	cur := &t.Performance.Current
	setFloat(&cur.Accuracy, m.Accuracy)
	setFloat(&cur.ResponseTime, m.ResponseTime)
	setFloat(&cur.Reliability, m.Reliability)
	setFloat(&cur.UserSatisfaction, m.UserSatisfaction)

	entry := PerformanceEntry{
		Date:             now,
		Accuracy:         cur.Accuracy,
		ResponseTime:     cur.ResponseTime,
		Reliability:      cur.Reliability,
		UserSatisfaction: cur.UserSatisfaction,
	}
	setFloat(&entry.Cost, m.Cost)
	setInt(&entry.TotalQueries, m.TotalQueries)
	setInt(&entry.SuccessfulQueries, m.SuccessfulQueries)
	setInt(&entry.FailedQueries, m.FailedQueries)

	t.Performance.Historical = append(t.Performance.Historical, entry)
	t.PruneHistory(now)
	t.Performance.LastUpdated = now
	t.UpdatedAt = now
	return nil
}

// PruneHistory keeps entries no older than HistoryRetention relative to now,
// ordered by date.
func (t *AITool) PruneHistory(now time.Time) {
	cutoff := now.Add(-HistoryRetention)
	kept := make([]PerformanceEntry, 0, len(t.Performance.Historical))
	for _, e := range t.Performance.Historical {
		if e.Date.After(cutoff) {
			kept = append(kept, e)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Date.Before(kept[j].Date) })
	t.Performance.Historical = kept
}

// StatsUpdate is an admin override of cumulative counters.
type StatsUpdate struct {
	TotalQueries        *int64   `json:"totalQueries"`
	TotalMistakes       *int64   `json:"totalMistakes"`
	AverageResponseTime *float64 `json:"averageResponseTime"`
	TotalCost           *float64 `json:"totalCost"`
	ActiveUsers         *int64   `json:"activeUsers"`
}

func (t *AITool) ApplyStats(u StatsUpdate, now time.Time) error {
	for name, v := range map[string]*int64{
		"totalQueries":  u.TotalQueries,
		"totalMistakes": u.TotalMistakes,
		"activeUsers":   u.ActiveUsers,
	} {
		if v != nil && *v < 0 {
			return apperr.InvalidArgument("%s must not be negative", name)
		}
	}
	if err := inRange("averageResponseTime", u.AverageResponseTime, 0, math.MaxFloat64); err != nil {
		return err
	}
	if err := inRange("totalCost", u.TotalCost, 0, math.MaxFloat64); err != nil {
		return err
	}
	setInt(&t.Stats.TotalQueries, u.TotalQueries)
	setInt(&t.Stats.TotalMistakes, u.TotalMistakes)
	setInt(&t.Stats.ActiveUsers, u.ActiveUsers)
	setFloat(&t.Stats.AverageResponseTime, u.AverageResponseTime)
	setFloat(&t.Stats.TotalCost, u.TotalCost)
	t.Stats.RecomputeMistakeRate()
	t.UpdatedAt = now
	return nil
}

func (t *AITool) RecordQuery(successful bool, now time.Time) {
	t.Stats.TotalQueries++
	if successful {
		t.Stats.SuccessfulQueries++
	} else {
		t.Stats.FailedQueries++
	}
	t.Stats.RecomputeMistakeRate()
	t.UpdatedAt = now
}

func (t *AITool) RecordMistake(now time.Time) {
	t.Stats.TotalMistakes++
	t.Stats.RecomputeMistakeRate()
	t.UpdatedAt = now
}

// Listed reports whether the tool shows up in public rankings.
func (t *AITool) Listed() bool {
	return t.Status == ToolActive && t.IsPublic
}

// TopPerformerLess orders by accuracy desc, mistake rate asc, then id.
func TopPerformerLess(a, b *AITool) bool {
	if a.Performance.Current.Accuracy != b.Performance.Current.Accuracy {
		return a.Performance.Current.Accuracy > b.Performance.Current.Accuracy
	}
	if a.Stats.MistakeRate != b.Stats.MistakeRate {
		return a.Stats.MistakeRate < b.Stats.MistakeRate
	}
	return a.ID.Hex() < b.ID.Hex()
}

// TrendingToolLess orders by active users desc, satisfaction desc, then id.
func TrendingToolLess(a, b *AITool) bool {
	if a.Stats.ActiveUsers != b.Stats.ActiveUsers {
		return a.Stats.ActiveUsers > b.Stats.ActiveUsers
	}
	if a.Performance.Current.UserSatisfaction != b.Performance.Current.UserSatisfaction {
		return a.Performance.Current.UserSatisfaction > b.Performance.Current.UserSatisfaction
	}
	return a.ID.Hex() < b.ID.Hex()
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}
