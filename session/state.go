package session

import (
	"github.com/tcriess/clubchat/types"
)

// State is the lifecycle state of a mounted chat view.
type State int

const (
	// Loading is entered after the access check, until the first snapshot arrives.
	Loading State = iota
	// Ready means the view shows the latest snapshot. Every further snapshot keeps it Ready.
	Ready
	// Closed is terminal: the chat was closed or deleted, or the participant lost access.
	Closed
	// Error is terminal: the subscription failed. A fresh mount is needed to get updates again.
	Error
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	case Error:
		return "error"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) terminal() bool {
	return s == Closed || s == Error
}

// View is what the presentation layer renders. Messages are ascending by creation time,
// UnreadImportant holds the important messages the participant has not acknowledged, oldest first.
type View struct {
	State           State           `json:"state"`
	Chat            *types.Chat     `json:"chat,omitempty"`
	Messages        []types.Message `json:"messages"`
	UnreadImportant []types.Message `json:"unread_important"`
	Deleted         bool            `json:"deleted,omitempty"`
	ErrorKind       types.Kind      `json:"error_kind,omitempty"`
	Err             error           `json:"-"`
}
