package engine

import (
	"fmt"

	"github.com/tcriess/clubchat/types"
)

// Vote returns a copy of poll in which participantId voted for option. The voter is removed from every
// other option first, voting for the current choice again leaves the tally as it is. An option
// outside the poll's range fails with ErrInvalidOption and poll is left untouched.
func Vote(poll *types.Poll, participantId string, option int) (*types.Poll, error) {
	if poll == nil {
		return nil, fmt.Errorf("%w: message has no poll", types.ErrInvalidArgument)
	}
	if option < 0 || option >= len(poll.Options) {
		return nil, fmt.Errorf("%w: option %d of %d", types.ErrInvalidOption, option, len(poll.Options))
	}
	if participantId == "" {
		return nil, fmt.Errorf("%w: vote needs a participant", types.ErrInvalidArgument)
	}
	res := poll.Copy()
	for len(res.Votes) < len(res.Options) {
		res.Votes = append(res.Votes, types.VoterSet{})
	}
	for i := range res.Votes {
		res.Votes[i] = res.Votes[i].Without(participantId)
	}
	res.Votes[option] = res.Votes[option].With(participantId)
	return res, nil
}

// TotalVotes is the number of votes across all options.
func TotalVotes(poll *types.Poll) int {
	if poll == nil {
		return 0
	}
	total := 0
	for _, v := range poll.Votes {
		total += len(v)
	}
	return total
}

// Percentage is the share of votes for option in percent, 0 if nobody voted yet.
func Percentage(poll *types.Poll, option int) float64 {
	total := TotalVotes(poll)
	if total == 0 || option < 0 || option >= len(poll.Votes) {
		return 0
	}
	return float64(len(poll.Votes[option])) / float64(total) * 100
}

// VoteOf returns the option participantId voted for, or -1.
func VoteOf(poll *types.Poll, participantId string) int {
	if poll == nil {
		return -1
	}
	for i, v := range poll.Votes {
		if v.Contains(participantId) {
			return i
		}
	}
	return -1
}
