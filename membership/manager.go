package membership

import (
	"fmt"
	"strings"

	"github.com/tcriess/clubchat/types"
)

// AddMember appends participantId to the members of chat. It reports false if participantId already was
// a member.
func AddMember(chat *types.Chat, participantId string) (bool, error) {
	participantId = strings.TrimSpace(participantId)
	if participantId == "" {
		return false, fmt.Errorf("%w: empty participant id", types.ErrInvalidArgument)
	}
	if chat.HasMember(participantId) {
		return false, nil
	}
	chat.Members = append(chat.Members, participantId)
	return true, nil
}

// RemoveMember removes participantId from the members of chat. The creator cannot be removed. Past
// reactions, votes and read receipts of the removed member are kept.
func RemoveMember(chat *types.Chat, participantId string) (bool, error) {
	participantId = strings.TrimSpace(participantId)
	if participantId == "" {
		return false, fmt.Errorf("%w: empty participant id", types.ErrInvalidArgument)
	}
	if participantId == chat.CreatorId {
		return false, types.ErrCannotRemoveCreator
	}
	members := make([]string, 0, len(chat.Members))
	removed := false
	for _, m := range chat.Members {
		if m == participantId {
			removed = true
			continue
		}
		members = append(members, m)
	}
	if removed {
		chat.Members = members
	}
	return removed, nil
}

// EnsureCreator normalizes the member list of a new chat: the creator comes first, duplicates and
// empty ids are dropped.
func EnsureCreator(chat *types.Chat) error {
	if chat.CreatorId == "" {
		return fmt.Errorf("%w: chat without creator", types.ErrInvalidArgument)
	}
	seen := map[string]bool{chat.CreatorId: true}
	members := []string{chat.CreatorId}
	for _, m := range chat.Members {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		members = append(members, m)
	}
	chat.Members = members
	return nil
}
