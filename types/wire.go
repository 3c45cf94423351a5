package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

const (
	WireEventSend         = "send"
	WireEventPoll         = "poll"
	WireEventReact        = "react"
	WireEventVote         = "vote"
	WireEventImportant    = "important"
	WireEventAck          = "ack"
	WireEventAddMember    = "add_member"
	WireEventRemoveMember = "remove_member"
	WireEventClose        = "close"
	WireEventDelete       = "delete"

	WireEventView  = "view"
	WireEventError = "error"
)

// JSON-serialized WebsocketMessage is what is actually sent via the Websocket connection
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// The action payloads sent from the client, decoded with mapstructure.

type SendAction struct {
	Text string `mapstructure:"text"`
}

type VoteAction struct {
	MessageId string      `mapstructure:"message_id"`
	Option    interface{} `mapstructure:"option"`
}

// OptionIndex returns the chosen option. A missing option, or one that is not an integer, is
// ErrInvalidOption.
func (a VoteAction) OptionIndex() (int, error) {
	switch o := a.Option.(type) {
	case int:
		return o, nil
	case int64:
		return int(o), nil
	case float64:
		if o == math.Trunc(o) && !math.IsInf(o, 0) {
			return int(o), nil
		}
	case json.Number:
		if i, err := o.Int64(); err == nil {
			return int(i), nil
		}
	case string:
		if i, err := strconv.Atoi(o); err == nil {
			return i, nil
		}
	case nil:
		return 0, fmt.Errorf("%w: no option chosen", ErrInvalidOption)
	}
	return 0, fmt.Errorf("%w: %v is not an option index", ErrInvalidOption, a.Option)
}

type ReactAction struct {
	MessageId string `mapstructure:"message_id"`
	Emoji     string `mapstructure:"emoji"`
}

// MessageAction is the payload of "important" and "ack".
type MessageAction struct {
	MessageId string `mapstructure:"message_id"`
}

// MemberAction is the payload of "add_member" and "remove_member".
type MemberAction struct {
	ParticipantId string `mapstructure:"participant_id"`
}

// ErrorMessage is sent back to the client when an action fails.
type ErrorMessage struct {
	Action  string `json:"action"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}
