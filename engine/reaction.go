package engine

import (
	"fmt"
	"strings"

	"github.com/tcriess/clubchat/types"
)

// ToggleReaction returns the reactions after participantId reacted with emoji. Reacting with the
// emoji already set removes the reaction, any other emoji replaces the previous one. The input map
// is not modified.
func ToggleReaction(reactions types.ReactionMap, participantId, emoji string) (types.ReactionMap, error) {
	emoji = strings.TrimSpace(emoji)
	if participantId == "" || emoji == "" {
		return nil, fmt.Errorf("%w: reaction needs a participant and an emoji", types.ErrInvalidArgument)
	}
	res := reactions.Copy()
	if res[participantId] == emoji {
		delete(res, participantId)
	} else {
		res[participantId] = emoji
	}
	return res, nil
}
