package types

import (
	"time"
)

// Chat is a titled conversation thread with a fixed creator and an ordered member list.
type Chat struct {
	Id            string    `json:"id"`
	Title         string    `json:"title"`
	CreatorId     string    `json:"creator_id"`
	Members       []string  `json:"members"`
	ClubId        string    `json:"club_id,omitempty"`
	TeamId        string    `json:"team_id,omitempty"`
	Closed        bool      `json:"closed"`
	ClosedAt      time.Time `json:"closed_at,omitempty"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	Created       time.Time `json:"created"`
	Updated       time.Time `json:"updated"`
	Version       int64     `json:"version"`
}

// ChatSpec is the input for creating a chat.
type ChatSpec struct {
	Title     string   `json:"title" mapstructure:"title" validate:"max=200"`
	CreatorId string   `json:"creator_id" mapstructure:"-" validate:"required"`
	Members   []string `json:"members" mapstructure:"members" validate:"dive,required"`
	ClubId    string   `json:"club_id" mapstructure:"club_id"`
	TeamId    string   `json:"team_id" mapstructure:"team_id"`
}

// HasMember reports whether participantId is in the member list.
func (c *Chat) HasMember(participantId string) bool {
	for _, m := range c.Members {
		if m == participantId {
			return true
		}
	}
	return false
}

// CanView reports whether p may open the chat: members and super-privileged participants.
func (c *Chat) CanView(p Participant) bool {
	return p.IsSuper() || c.HasMember(p.Id)
}

// Copy returns a deep copy, the member slice is not shared.
func (c Chat) Copy() Chat {
	members := make([]string, len(c.Members))
	copy(members, c.Members)
	c.Members = members
	return c
}

// previewLength is the maximum number of runes kept in the denormalized last message preview.
const previewLength = 80

// SetLastMessage updates the denormalized preview fields from msg.
func (c *Chat) SetLastMessage(msg *Message) {
	text := msg.Text
	if msg.Poll != nil {
		text = msg.Poll.Question
	}
	r := []rune(text)
	if len(r) > previewLength {
		text = string(r[:previewLength-1]) + "…"
	}
	c.LastMessage = text
	c.LastMessageAt = msg.Created
}
