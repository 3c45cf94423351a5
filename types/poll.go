package types

import (
	"fmt"
	"sort"
)

const (
	MinPollOptions = 2
	MaxPollOptions = 6
)

// VoterSet is a sorted set of participant ids.
type VoterSet []string

func (s VoterSet) Contains(participantId string) bool {
	i := sort.SearchStrings(s, participantId)
	return i < len(s) && s[i] == participantId
}

// With returns a new set that also contains participantId.
func (s VoterSet) With(participantId string) VoterSet {
	if s.Contains(participantId) {
		return s.copy()
	}
	res := append(s.copy(), participantId)
	sort.Strings(res)
	return res
}

// Without returns a new set that does not contain participantId.
func (s VoterSet) Without(participantId string) VoterSet {
	res := make(VoterSet, 0, len(s))
	for _, v := range s {
		if v != participantId {
			res = append(res, v)
		}
	}
	return res
}

func (s VoterSet) copy() VoterSet {
	res := make(VoterSet, len(s))
	copy(res, s)
	return res
}

// Poll is the payload of a poll message. Votes is parallel to Options: Votes[i] holds the voters of
// option i. A voter occupies at most one set.
type Poll struct {
	Question string     `json:"question"`
	Options  []string   `json:"options"`
	Votes    []VoterSet `json:"votes"`
}

// PollSpec is the input for creating a poll.
type PollSpec struct {
	Question string   `json:"question" mapstructure:"question" validate:"required,max=500"`
	Options  []string `json:"options" mapstructure:"options" validate:"min=2,max=6,dive,required,max=200"`
}

func NewPoll(spec PollSpec) (*Poll, error) {
	if err := ValidateStruct(spec); err != nil {
		return nil, err
	}
	options := make([]string, len(spec.Options))
	copy(options, spec.Options)
	votes := make([]VoterSet, len(options))
	for i := range votes {
		votes[i] = VoterSet{}
	}
	return &Poll{
		Question: spec.Question,
		Options:  options,
		Votes:    votes,
	}, nil
}

func (p *Poll) Validate() error {
	if len(p.Options) < MinPollOptions || len(p.Options) > MaxPollOptions {
		return fmt.Errorf("%w: a poll needs %d to %d options", ErrInvalidArgument, MinPollOptions, MaxPollOptions)
	}
	if len(p.Votes) != len(p.Options) {
		return fmt.Errorf("%w: poll tally does not match its options", ErrInvalidArgument)
	}
	return nil
}

func (p *Poll) Copy() *Poll {
	res := &Poll{
		Question: p.Question,
		Options:  make([]string, len(p.Options)),
		Votes:    make([]VoterSet, len(p.Votes)),
	}
	copy(res.Options, p.Options)
	for i, v := range p.Votes {
		res.Votes[i] = v.copy()
	}
	return res
}
