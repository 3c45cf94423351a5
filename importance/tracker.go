package importance

import (
	"fmt"
	"sort"
	"time"

	"github.com/tcriess/clubchat/types"
)

// MarkImportant flags msg as important. The flag is never removed, marking an important message again
// changes nothing (existing acknowledgments are kept). It reports whether msg changed.
func MarkImportant(msg *types.Message) bool {
	if msg.Important {
		return false
	}
	msg.Important = true
	if msg.ReadBy == nil {
		msg.ReadBy = types.ReadSet{}
	}
	return true
}

// Acknowledge records that participantId has read the important message msg. The first
// acknowledgment wins, later ones change nothing. It reports whether msg changed.
func Acknowledge(msg *types.Message, participantId string, at time.Time) (bool, error) {
	if participantId == "" {
		return false, fmt.Errorf("%w: acknowledgment needs a participant", types.ErrInvalidArgument)
	}
	if !msg.Important {
		return false, fmt.Errorf("%w: message %s is not important", types.ErrInvalidArgument, msg.Id)
	}
	if msg.ReadBy.Has(participantId) {
		return false, nil
	}
	if msg.ReadBy == nil {
		msg.ReadBy = types.ReadSet{}
	}
	msg.ReadBy[participantId] = at.UTC()
	return true, nil
}

// UnreadImportantFor returns the important messages participantId has not acknowledged yet, oldest
// first.
func UnreadImportantFor(messages []types.Message, participantId string) []types.Message {
	res := make([]types.Message, 0)
	for _, m := range messages {
		if m.Important && !m.ReadBy.Has(participantId) {
			res = append(res, m)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Created.Before(res[j].Created)
	})
	return res
}

// NextUnread returns the oldest important message participantId has not acknowledged.
func NextUnread(messages []types.Message, participantId string) (types.Message, bool) {
	unread := UnreadImportantFor(messages, participantId)
	if len(unread) == 0 {
		return types.Message{}, false
	}
	return unread[0], true
}
