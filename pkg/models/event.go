package models

import "time"

type EventType string

const (
	EventReportCreated   EventType = "report.created"
	EventVoteChanged     EventType = "vote.changed"
	EventReportModerated EventType = "report.moderated"
	EventUserDeleted     EventType = "user.deleted"
)

// Event is the payload broadcast to other services. Its Type doubles as the
// routing key on the message bus.
type Event struct {
	Type        EventType     `json:"type"`
	ReportID    string        `json:"reportId,omitempty"`
	ReporterID  string        `json:"reporterId,omitempty"`
	Reporter    string        `json:"reporter,omitempty"`
	ActorID     string        `json:"actorId,omitempty"`
	AITool      string        `json:"aiTool,omitempty"`
	Category    Category      `json:"category,omitempty"`
	Severity    Severity      `json:"severity,omitempty"`
	Description string        `json:"description,omitempty"`
	Status      Status        `json:"status,omitempty"`
	Upvotes     int           `json:"upvotes"`
	Downvotes   int           `json:"downvotes"`
	VoteScore   int           `json:"voteScore"`
	UserVote    VoteDirection `json:"userVote,omitempty"`
	OccurredAt  time.Time     `json:"occurredAt"`
}

func reporterOf(r *MistakeReport) (id, name string) {
	if r.ReporterID != nil {
		id = *r.ReporterID
		name = r.ReporterName
	}
	if name == "" {
		name = "Anonymous User"
	}
	return id, name
}

func NewReportCreatedEvent(r *MistakeReport) Event {
	id, name := reporterOf(r)
	return Event{
		Type:        EventReportCreated,
		ReportID:    r.ID.Hex(),
		ReporterID:  id,
		Reporter:    name,
		AITool:      r.AITool,
		Category:    r.Category,
		Severity:    r.Severity,
		Description: r.Description,
		Status:      r.Status,
		OccurredAt:  r.CreatedAt,
	}
}

func NewVoteChangedEvent(r *MistakeReport, actorID string, vote VoteDirection, at time.Time) Event {
	return Event{
		Type:       EventVoteChanged,
		ReportID:   r.ID.Hex(),
		ActorID:    actorID,
		Status:     r.Status,
		Upvotes:    r.Upvotes,
		Downvotes:  r.Downvotes,
		VoteScore:  r.VoteScore,
		UserVote:   vote,
		OccurredAt: at,
	}
}

func NewReportModeratedEvent(r *MistakeReport, actorID string, at time.Time) Event {
	id, _ := reporterOf(r)
	return Event{
		Type:       EventReportModerated,
		ReportID:   r.ID.Hex(),
		ReporterID: id,
		ActorID:    actorID,
		AITool:     r.AITool,
		Category:   r.Category,
		Status:     r.Status,
		OccurredAt: at,
	}
}

func NewUserDeletedEvent(userID string, at time.Time) Event {
	return Event{Type: EventUserDeleted, ActorID: userID, OccurredAt: at}
}
