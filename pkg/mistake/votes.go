package mistake

import (
	"context"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/models"
)

// Vote records p's vote on report id, replacing any earlier vote by p. The
// ledger edit and the counter recomputation are one atomic store update.
func (s *Service) Vote(ctx context.Context, p models.Principal, id string, dir models.VoteDirection) (*models.MistakeReport, error) {
	if !p.Authenticated() {
		return nil, apperr.Unauthorized("voting requires an authenticated user")
	}
	if !dir.Valid() {
		return nil, apperr.InvalidArgument("vote must be either upvote or downvote, got %q", dir)
	}
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	r, err := s.store.UpdateReport(ctx, oid, func(r *models.MistakeReport) error {
		return r.AddVote(p.UserID, dir, now)
	})
	if err != nil {
		return nil, err
	}
	r.UserVote = dir
	s.emit(ctx, models.NewVoteChangedEvent(r, p.UserID, dir, now))
	return r, nil
}

// Unvote removes p's vote from report id. Removing a missing vote succeeds.
func (s *Service) Unvote(ctx context.Context, p models.Principal, id string) (*models.MistakeReport, error) {
	if !p.Authenticated() {
		return nil, apperr.Unauthorized("voting requires an authenticated user")
	}
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	changed := false
	r, err := s.store.UpdateReport(ctx, oid, func(r *models.MistakeReport) error {
		changed = r.RemoveVote(p.UserID, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.UserVote = models.NoVote
	if changed {
		s.emit(ctx, models.NewVoteChangedEvent(r, p.UserID, models.NoVote, now))
	}
	return r, nil
}

// UserVote returns p's current vote on report id, or NoVote.
func (s *Service) UserVote(ctx context.Context, p models.Principal, id string) (models.VoteDirection, error) {
	oid, err := ParseID(id)
	if err != nil {
		return "", err
	}
	r, err := s.store.GetReport(ctx, oid)
	if err != nil {
		return "", err
	}
	return r.VoteOf(p.UserID), nil
}
