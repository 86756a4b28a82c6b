package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"ai-mistake-tracker/pkg/apperr"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Category string

const (
	CategoryFactual Category = "factual"
	CategoryLogical Category = "logical"
	CategoryBias    Category = "bias"
	CategoryContext Category = "context"
	CategoryOther   Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryFactual, CategoryLogical, CategoryBias, CategoryContext, CategoryOther:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// AIToolNames is the closed set of tools a report can reference.
var AIToolNames = []string{"GPT-4", "Claude-3", "Gemini Pro", "Llama-2", "PaLM-2", "Other"}

func ValidAITool(name string) bool {
	for _, n := range AIToolNames {
		if n == name {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPending       Status = "pending"
	StatusInvestigating Status = "investigating"
	StatusVerified      Status = "verified"
	StatusRejected      Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInvestigating, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no moderation action may leave this status.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// CanTransitionTo encodes the moderation state machine:
// pending -> investigating|verified|rejected, investigating -> verified|rejected.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusInvestigating || next == StatusVerified || next == StatusRejected
	case StatusInvestigating:
		return next == StatusVerified || next == StatusRejected
	}
	return false
}

type Evidence struct {
	URL         string `bson:"url" json:"url"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
}

// MistakeReport is a user-submitted claim that an AI tool answered incorrectly.
// Upvotes, Downvotes, TotalVotes and VoteScore are derived from Votes and are
// only ever written by RecomputeVotes.
type MistakeReport struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ReporterID      *string            `bson:"reporter_id" json:"reporterId"`
	ReporterName    string             `bson:"reporter_name,omitempty" json:"reporterName,omitempty"`
	ReporterIDEnc   string             `bson:"reporter_id_enc,omitempty" json:"-"`
	ReporterTag     string             `bson:"reporter_tag,omitempty" json:"-"`
	AITool          string             `bson:"ai_tool" json:"aiTool"`
	Category        Category           `bson:"category" json:"category"`
	Severity        Severity           `bson:"severity" json:"severity"`
	UserQuery       string             `bson:"user_query" json:"userQuery"`
	AIResponse      string             `bson:"ai_response" json:"aiResponse"`
	CorrectedAnswer string             `bson:"corrected_answer" json:"correctedAnswer"`
	Description     string             `bson:"description" json:"description"`
	Impact          string             `bson:"impact,omitempty" json:"impact,omitempty"`
	Tags            []string           `bson:"tags,omitempty" json:"tags,omitempty"`
	Evidence        []Evidence         `bson:"evidence,omitempty" json:"evidence,omitempty"`
	Status          Status             `bson:"status" json:"status"`
	VerifiedBy      string             `bson:"verified_by,omitempty" json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time         `bson:"verified_at,omitempty" json:"verifiedAt,omitempty"`
	RejectionReason string             `bson:"rejection_reason,omitempty" json:"rejectionReason,omitempty"`
	Votes           []Vote             `bson:"votes" json:"-"`
	Upvotes         int                `bson:"upvotes" json:"upvotes"`
	Downvotes       int                `bson:"downvotes" json:"downvotes"`
	TotalVotes      int                `bson:"total_votes" json:"totalVotes"`
	VoteScore       int                `bson:"vote_score" json:"voteScore"`
	UserVote        VoteDirection      `bson:"-" json:"userVote,omitempty"`
	IsAnonymous     bool               `bson:"is_anonymous" json:"isAnonymous"`
	IsPublic        bool               `bson:"is_public" json:"isPublic"`
	Views           int64              `bson:"views" json:"views"`
	Shares          int64              `bson:"shares" json:"shares"`
	DocVersion      int64              `bson:"doc_version" json:"-"`
	CreatedAt       time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updatedAt"`
}

const (
	minQueryLen       = 10
	maxQueryLen       = 1000
	minResponseLen    = 10
	maxResponseLen    = 5000
	minDescriptionLen = 20
	maxDescriptionLen = 2000
	maxImpactLen      = 1000
	minReasonLen      = 10
	maxReasonLen      = 500
	maxTags           = 20
)

// ReportInput is the user-controlled part of a new report.
type ReportInput struct {
	AITool          string   `json:"aiTool"`
	Category        Category `json:"category"`
	Severity        Severity `json:"severity"`
	UserQuery       string   `json:"userQuery"`
	AIResponse      string   `json:"aiResponse"`
	CorrectedAnswer string   `json:"correctedAnswer"`
	Description     string   `json:"description"`
	Impact          string   `json:"impact"`
	Tags            []string `json:"tags"`
	IsAnonymous     bool     `json:"isAnonymous"`
	IsPrivate       bool     `json:"isPrivate"`
}

// Normalize trims free-text fields in place.
func (in *ReportInput) Normalize() {
	in.AITool = strings.TrimSpace(in.AITool)
	in.UserQuery = strings.TrimSpace(in.UserQuery)
	in.AIResponse = strings.TrimSpace(in.AIResponse)
	in.CorrectedAnswer = strings.TrimSpace(in.CorrectedAnswer)
	in.Description = strings.TrimSpace(in.Description)
	in.Impact = strings.TrimSpace(in.Impact)

	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	in.Tags = tags
}

func (in *ReportInput) Validate() error {
	if !ValidAITool(in.AITool) {
		return apperr.InvalidArgument("invalid AI tool %q", in.AITool)
	}
	if !in.Category.Valid() {
		return apperr.InvalidArgument("invalid category %q", in.Category)
	}
	if !in.Severity.Valid() {
		return apperr.InvalidArgument("invalid severity %q", in.Severity)
	}
	if err := checkLen("userQuery", in.UserQuery, minQueryLen, maxQueryLen); err != nil {
		return err
	}
	if err := checkLen("aiResponse", in.AIResponse, minResponseLen, maxResponseLen); err != nil {
		return err
	}
	if err := checkLen("correctedAnswer", in.CorrectedAnswer, minResponseLen, maxResponseLen); err != nil {
		return err
	}
	if err := checkLen("description", in.Description, minDescriptionLen, maxDescriptionLen); err != nil {
		return err
	}
	if err := checkLen("impact", in.Impact, 0, maxImpactLen); err != nil {
		return err
	}
	if len(in.Tags) > maxTags {
		return apperr.InvalidArgument("at most %d tags allowed", maxTags)
	}
	return nil
}

func checkLen(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min || n > max {
		return apperr.InvalidArgument("%s must be between %d and %d characters", field, min, max)
	}
	return nil
}

// NewMistakeReport builds a pending report. Unauthenticated callers always
// produce anonymous reports; authenticated callers asking for anonymity keep
// no plaintext reporter reference (the caller may store an encrypted one).
func NewMistakeReport(in ReportInput, by Principal, now time.Time) *MistakeReport {
	r := &MistakeReport{
		ID:              primitive.NewObjectID(),
		AITool:          in.AITool,
		Category:        in.Category,
		Severity:        in.Severity,
		UserQuery:       in.UserQuery,
		AIResponse:      in.AIResponse,
		CorrectedAnswer: in.CorrectedAnswer,
		Description:     in.Description,
		Impact:          in.Impact,
		Tags:            in.Tags,
		Status:          StatusPending,
		Votes:           []Vote{},
		IsPublic:        !in.IsPrivate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if by.Authenticated() && !in.IsAnonymous {
		id := by.UserID
		r.ReporterID = &id
		r.ReporterName = by.Name
	} else {
		r.IsAnonymous = true
	}
	return r
}

// IsReporter reports whether userID is the recorded (non-anonymous) reporter.
func (r *MistakeReport) IsReporter(userID string) bool {
	return userID != "" && r.ReporterID != nil && *r.ReporterID == userID
}

// AnonymizeReporter drops every link to userID, both the plain reporter id
// and a sealed identity carrying tag. It returns false when the report was
// not filed by that user.
func (r *MistakeReport) AnonymizeReporter(userID, tag string, now time.Time) bool {
	if !r.IsReporter(userID) && (tag == "" || r.ReporterTag != tag) {
		return false
	}
	r.ReporterID = nil
	r.ReporterName = ""
	r.ReporterIDEnc = ""
	r.ReporterTag = ""
	r.IsAnonymous = true
	r.UpdatedAt = now
	return true
}

func (r *MistakeReport) Investigate(now time.Time) error {
	if !r.Status.CanTransitionTo(StatusInvestigating) {
		return apperr.ErrInvalidTransition
	}
	r.Status = StatusInvestigating
	r.UpdatedAt = now
	return nil
}

func (r *MistakeReport) Verify(by string, now time.Time) error {
	if !r.Status.CanTransitionTo(StatusVerified) {
		return apperr.ErrInvalidTransition
	}
	r.Status = StatusVerified
	r.VerifiedBy = by
	r.VerifiedAt = &now
	r.UpdatedAt = now
	return nil
}

func (r *MistakeReport) Reject(by, reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if err := checkLen("reason", reason, minReasonLen, maxReasonLen); err != nil {
		return err
	}
	if !r.Status.CanTransitionTo(StatusRejected) {
		return apperr.ErrInvalidTransition
	}
	r.Status = StatusRejected
	r.RejectionReason = reason
	r.VerifiedBy = by
	r.VerifiedAt = &now
	r.UpdatedAt = now
	return nil
}

func (r *MistakeReport) AddEvidence(e Evidence, now time.Time) {
	r.Evidence = append(r.Evidence, e)
	r.UpdatedAt = now
}

// TrendingLess orders reports by vote score, then newest first, then id, so
// that no two distinct reports compare equal.
func TrendingLess(a, b *MistakeReport) bool {
	if a.VoteScore != b.VoteScore {
		return a.VoteScore > b.VoteScore
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.Hex() > b.ID.Hex()
}
