package models

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"ai-mistake-tracker/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestReport() *MistakeReport {
	return &MistakeReport{Status: StatusPending, Votes: []Vote{}, CreatedAt: t0}
}

func assertLedgerConsistent(t *testing.T, r *MistakeReport) {
	t.Helper()
	seen := make(map[string]bool)
	up, down := 0, 0
	for _, v := range r.Votes {
		require.False(t, seen[v.UserID], "duplicate vote for %s", v.UserID)
		seen[v.UserID] = true
		switch v.Direction {
		case Upvote:
			up++
		case Downvote:
			down++
		default:
			t.Fatalf("ledger holds invalid direction %q", v.Direction)
		}
	}
	assert.Equal(t, up, r.Upvotes)
	assert.Equal(t, down, r.Downvotes)
	assert.Equal(t, up+down, r.TotalVotes)
	assert.Equal(t, up-down, r.VoteScore)
}

func TestVoteLedgerRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	users := []string{"u1", "u2", "u3", "u4", "u5"}

	for round := 0; round < 200; round++ {
		r := newTestReport()
		want := make(map[string]VoteDirection)
		for step := 0; step < 40; step++ {
			u := users[rng.IntN(len(users))]
			switch rng.IntN(3) {
			case 0:
				require.NoError(t, r.AddVote(u, Upvote, t0))
				want[u] = Upvote
			case 1:
				require.NoError(t, r.AddVote(u, Downvote, t0))
				want[u] = Downvote
			default:
				r.RemoveVote(u, t0)
				delete(want, u)
			}
			assertLedgerConsistent(t, r)
		}
		for _, u := range users {
			expected, ok := want[u]
			if !ok {
				expected = NoVote
			}
			assert.Equal(t, expected, r.VoteOf(u), fmt.Sprintf("round %d user %s", round, u))
		}
	}
}

func TestAddVoteIdempotent(t *testing.T) {
	once := newTestReport()
	require.NoError(t, once.AddVote("u1", Upvote, t0))

	twice := newTestReport()
	require.NoError(t, twice.AddVote("u1", Upvote, t0))
	require.NoError(t, twice.AddVote("u1", Upvote, t0))

	assert.Equal(t, once.Votes, twice.Votes)
	assert.Equal(t, 1, twice.Upvotes)
	assert.Equal(t, 1, twice.VoteScore)
}

func TestAddVoteFlip(t *testing.T) {
	r := newTestReport()
	require.NoError(t, r.AddVote("u1", Upvote, t0))
	require.NoError(t, r.AddVote("u2", Upvote, t0))
	before := r.VoteScore

	require.NoError(t, r.AddVote("u1", Downvote, t0.Add(time.Minute)))

	assert.Equal(t, 1, r.Upvotes)
	assert.Equal(t, 1, r.Downvotes)
	assert.Equal(t, before-2, r.VoteScore)
	assert.Equal(t, Downvote, r.VoteOf("u1"))
	assert.Len(t, r.Votes, 2)
}

func TestAddVoteRejectsBadInput(t *testing.T) {
	r := newTestReport()
	err := r.AddVote("u1", VoteDirection("sideways"), t0)
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
	err = r.AddVote("u1", NoVote, t0)
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
	err = r.AddVote("", Upvote, t0)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
	assert.Empty(t, r.Votes)
}

func TestRemoveVoteMissingIsNoop(t *testing.T) {
	r := newTestReport()
	require.NoError(t, r.AddVote("u1", Downvote, t0))

	assert.False(t, r.RemoveVote("u2", t0))
	assert.Equal(t, -1, r.VoteScore)

	assert.True(t, r.RemoveVote("u1", t0))
	assert.Equal(t, 0, r.TotalVotes)
	assert.Equal(t, NoVote, r.VoteOf("u1"))
}

func TestParseVoteDirection(t *testing.T) {
	d, err := ParseVoteDirection("upvote")
	require.NoError(t, err)
	assert.Equal(t, Upvote, d)

	_, err = ParseVoteDirection("none")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
