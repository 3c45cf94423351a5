package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/clubchat/types"
)

func TestToggleReaction(t *testing.T) {
	reactions := types.ReactionMap{}
	reactions, err := ToggleReaction(reactions, "p", "👍")
	require.NoError(t, err)
	assert.Equal(t, "👍", reactions["p"])

	reactions, err = ToggleReaction(reactions, "p", "👍")
	require.NoError(t, err)
	_, ok := reactions["p"]
	assert.False(t, ok)

	reactions, _ = ToggleReaction(reactions, "p", "👍")
	reactions, _ = ToggleReaction(reactions, "p", "❤️")
	assert.Equal(t, "❤️", reactions["p"])
	assert.Len(t, reactions, 1)

	// other participants are keyed separately
	reactions, _ = ToggleReaction(reactions, "q", "❤️")
	assert.Equal(t, map[string]int{"❤️": 2}, reactions.Counts())
}

func TestToggleReactionDoesNotModifyInput(t *testing.T) {
	in := types.ReactionMap{"p": "👍"}
	out, err := ToggleReaction(in, "p", "👍")
	require.NoError(t, err)
	assert.Equal(t, "👍", in["p"])
	assert.Empty(t, out)

	out, err = ToggleReaction(nil, "p", "🎉")
	require.NoError(t, err)
	assert.Equal(t, "🎉", out["p"])

	_, err = ToggleReaction(in, "p", " ")
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
}

func newPoll(t *testing.T, options ...string) *types.Poll {
	poll, err := types.NewPoll(types.PollSpec{Question: "When do we train?", Options: options})
	require.NoError(t, err)
	return poll
}

func TestVoteIsExclusive(t *testing.T) {
	poll := newPoll(t, "Mon", "Wed", "Fri")
	poll, err := Vote(poll, "p", 0)
	require.NoError(t, err)
	poll, err = Vote(poll, "p", 2)
	require.NoError(t, err)

	for j := range poll.Options {
		if j == 2 {
			assert.True(t, poll.Votes[j].Contains("p"))
		} else {
			assert.False(t, poll.Votes[j].Contains("p"))
		}
	}
	assert.Equal(t, 2, VoteOf(poll, "p"))
	assert.Equal(t, 1, TotalVotes(poll))

	// voting the same option again is not a toggle
	poll, err = Vote(poll, "p", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, VoteOf(poll, "p"))
	assert.Equal(t, 1, TotalVotes(poll))
}

func TestVoteInvalidOption(t *testing.T) {
	poll := newPoll(t, "A", "B")
	poll, err := Vote(poll, "u1", 0)
	require.NoError(t, err)
	before := poll.Copy()

	for _, option := range []int{-1, 2, 17} {
		res, err := Vote(poll, "u1", option)
		assert.True(t, errors.Is(err, types.ErrInvalidOption))
		assert.Nil(t, res)
		assert.Equal(t, before, poll)
	}

	_, err = Vote(nil, "u1", 0)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
}

func TestPercentage(t *testing.T) {
	poll := newPoll(t, "A", "B")
	assert.Equal(t, 0.0, Percentage(poll, 0))
	assert.Equal(t, 0, TotalVotes(poll))

	poll, err := Vote(poll, "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, 100.0, Percentage(poll, 0))
	assert.Equal(t, 0.0, Percentage(poll, 1))
	assert.Equal(t, 1, TotalVotes(poll))

	poll, _ = Vote(poll, "u2", 1)
	poll, _ = Vote(poll, "u3", 1)
	poll, _ = Vote(poll, "u4", 1)
	assert.Equal(t, 25.0, Percentage(poll, 0))
	assert.Equal(t, 75.0, Percentage(poll, 1))
	assert.Equal(t, 0.0, Percentage(poll, 5))
	assert.Equal(t, -1, VoteOf(poll, "nobody"))
}
