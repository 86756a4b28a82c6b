package models

import (
	"time"

	"ai-mistake-tracker/pkg/apperr"
)

type VoteDirection string

const (
	Upvote   VoteDirection = "upvote"
	Downvote VoteDirection = "downvote"
	NoVote   VoteDirection = "none"
)

func (d VoteDirection) Valid() bool {
	return d == Upvote || d == Downvote
}

func ParseVoteDirection(s string) (VoteDirection, error) {
	d := VoteDirection(s)
	if !d.Valid() {
		return "", apperr.InvalidArgument("vote must be either upvote or downvote, got %q", s)
	}
	return d, nil
}

// Vote is one entry of a report's vote ledger. The ledger holds at most one
// entry per user.
type Vote struct {
	UserID    string        `bson:"user_id" json:"userId"`
	Direction VoteDirection `bson:"vote" json:"vote"`
	CreatedAt time.Time     `bson:"created_at" json:"createdAt"`
}

// AddVote replaces any prior vote by userID with a new one and refreshes the
// derived counters.
func (r *MistakeReport) AddVote(userID string, dir VoteDirection, now time.Time) error {
	if userID == "" {
		return apperr.Unauthorized("voting requires an authenticated user")
	}
	if !dir.Valid() {
		return apperr.InvalidArgument("vote must be either upvote or downvote, got %q", dir)
	}
	r.Votes = append(r.votesWithout(userID), Vote{UserID: userID, Direction: dir, CreatedAt: now})
	r.RecomputeVotes()
	r.UpdatedAt = now
	return nil
}

// RemoveVote drops userID's vote. Removing a vote that does not exist is not
// an error; the return value tells whether anything changed.
func (r *MistakeReport) RemoveVote(userID string, now time.Time) bool {
	before := len(r.Votes)
	r.Votes = r.votesWithout(userID)
	r.RecomputeVotes()
	if len(r.Votes) == before {
		return false
	}
	r.UpdatedAt = now
	return true
}

// VoteOf returns userID's vote direction or NoVote.
func (r *MistakeReport) VoteOf(userID string) VoteDirection {
	if userID == "" {
		return NoVote
	}
	for _, v := range r.Votes {
		if v.UserID == userID {
			return v.Direction
		}
	}
	return NoVote
}

// RecomputeVotes derives the cached counters from the ledger.
func (r *MistakeReport) RecomputeVotes() {
	up, down := 0, 0
	for _, v := range r.Votes {
		switch v.Direction {
		case Upvote:
			up++
		case Downvote:
			down++
		}
	}
	r.Upvotes = up
	r.Downvotes = down
	r.TotalVotes = up + down
	r.VoteScore = up - down
}

func (r *MistakeReport) votesWithout(userID string) []Vote {
	kept := make([]Vote, 0, len(r.Votes)+1)
	for _, v := range r.Votes {
		if v.UserID != userID {
			kept = append(kept, v)
		}
	}
	return kept
}
