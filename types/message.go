package types

import (
	"fmt"
	"strings"
	"time"
)

// MessageKind discriminates the message variants.
type MessageKind string

const (
	MessageKindPlain MessageKind = "plain"
	MessageKindPoll  MessageKind = "poll"
)

// maxTextLength is the maximum number of runes in a plain message body.
const maxTextLength = 4096

// Message is owned by exactly one chat. Use NewPlainMessage or NewPollMessage to create one, they are
// the only way to obtain a message for which Validate holds.
type Message struct {
	Id        string      `json:"id"`
	ChatId    string      `json:"chat_id"`
	SenderId  string      `json:"sender_id"`
	Text      string      `json:"text"`
	Created   time.Time   `json:"created"`
	Kind      MessageKind `json:"kind"`
	Poll      *Poll       `json:"poll,omitempty"`
	Important bool        `json:"important"`
	Reactions ReactionMap `json:"reactions"`
	ReadBy    ReadSet     `json:"read_by"`
	Version   int64       `json:"version" hash:"ignore"`
}

// NewPlainMessage creates a text message sent by senderId at the given time.
func NewPlainMessage(chatId, senderId, text string, at time.Time) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidArgument)
	}
	if len([]rune(text)) > maxTextLength {
		return nil, fmt.Errorf("%w: message too long", ErrInvalidArgument)
	}
	return &Message{
		Id:        NewId(),
		ChatId:    chatId,
		SenderId:  senderId,
		Text:      text,
		Created:   at.UTC(),
		Kind:      MessageKindPlain,
		Reactions: ReactionMap{},
		ReadBy:    ReadSet{},
	}, nil
}

// NewPollMessage creates a poll message with an empty tally.
func NewPollMessage(chatId, senderId string, spec PollSpec, at time.Time) (*Message, error) {
	poll, err := NewPoll(spec)
	if err != nil {
		return nil, err
	}
	return &Message{
		Id:        NewId(),
		ChatId:    chatId,
		SenderId:  senderId,
		Created:   at.UTC(),
		Kind:      MessageKindPoll,
		Poll:      poll,
		Reactions: ReactionMap{},
		ReadBy:    ReadSet{},
	}, nil
}

func (m *Message) IsPoll() bool {
	return m.Kind == MessageKindPoll
}

// Validate checks the variant invariant: a poll message carries a well-formed poll, a plain message
// carries none.
func (m *Message) Validate() error {
	switch m.Kind {
	case MessageKindPlain:
		if m.Poll != nil {
			return fmt.Errorf("%w: plain message with poll payload", ErrInvalidArgument)
		}
	case MessageKindPoll:
		if m.Poll == nil {
			return fmt.Errorf("%w: poll message without poll payload", ErrInvalidArgument)
		}
		return m.Poll.Validate()
	default:
		return fmt.Errorf("%w: unknown message kind %q", ErrInvalidArgument, m.Kind)
	}
	return nil
}

// Copy returns a deep copy of the message.
func (m Message) Copy() Message {
	m.Reactions = m.Reactions.Copy()
	m.ReadBy = m.ReadBy.Copy()
	if m.Poll != nil {
		m.Poll = m.Poll.Copy()
	}
	return m
}

// Snapshot is the unit of subscription delivery: the complete current state of one chat. Messages are
// sorted ascending by creation time. Deleted is set (and Chat is nil) once the chat no longer exists.
type Snapshot struct {
	Chat     *Chat     `json:"chat"`
	Messages []Message `json:"messages"`
	Deleted  bool      `json:"deleted"`
}
