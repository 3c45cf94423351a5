package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/tcriess/clubchat/engine"
	"github.com/tcriess/clubchat/importance"
	"github.com/tcriess/clubchat/membership"
	"github.com/tcriess/clubchat/types"
)

// Send posts a plain text message.
func (s *Session) Send(ctx context.Context, text string) (*types.Message, error) {
	var msg *types.Message
	err := s.do("send", func() error {
		var err error
		msg, err = types.NewPlainMessage(s.chatId, s.participant.Id, text, now())
		if err != nil {
			return err
		}
		return s.appendMessage(ctx, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// SendPoll posts a poll message.
func (s *Session) SendPoll(ctx context.Context, spec types.PollSpec) (*types.Message, error) {
	var msg *types.Message
	err := s.do("poll", func() error {
		var err error
		msg, err = types.NewPollMessage(s.chatId, s.participant.Id, spec, now())
		if err != nil {
			return err
		}
		return s.appendMessage(ctx, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// React toggles the participant's reaction on a message.
func (s *Session) React(ctx context.Context, messageId, emoji string) error {
	return s.do("react", func() error {
		return s.patchMessage(ctx, messageId, func(m *types.Message) error {
			reactions, err := engine.ToggleReaction(m.Reactions, s.participant.Id, emoji)
			if err != nil {
				return err
			}
			m.Reactions = reactions
			return nil
		})
	})
}

// Vote casts the participant's vote on a poll message, replacing an earlier vote. An out of range
// option is rejected with ErrInvalidOption before anything is written.
func (s *Session) Vote(ctx context.Context, messageId string, option int) error {
	return s.do("vote", func() error {
		return s.patchMessage(ctx, messageId, func(m *types.Message) error {
			if !m.IsPoll() {
				return fmt.Errorf("%w: message %s is not a poll", types.ErrInvalidArgument, m.Id)
			}
			poll, err := engine.Vote(m.Poll, s.participant.Id, option)
			if err != nil {
				return err
			}
			m.Poll = poll
			return nil
		})
	})
}

// MarkImportant flags a message as important. Any member may do that, marking an important message
// again is a no-op.
func (s *Session) MarkImportant(ctx context.Context, messageId string) error {
	return s.do("important", func() error {
		return s.patchMessage(ctx, messageId, func(m *types.Message) error {
			importance.MarkImportant(m)
			return nil
		})
	})
}

// Acknowledge records that the participant read an important message.
func (s *Session) Acknowledge(ctx context.Context, messageId string) error {
	at := now()
	return s.do("ack", func() error {
		return s.patchMessage(ctx, messageId, func(m *types.Message) error {
			_, err := importance.Acknowledge(m, s.participant.Id, at)
			return err
		})
	})
}

// AddMember adds a participant to the chat. Only managers of the chat may do that.
func (s *Session) AddMember(ctx context.Context, participantId string) error {
	return s.do("add_member", func() error {
		if _, err := s.requireManager(); err != nil {
			return err
		}
		_, err := s.store.UpdateChat(ctx, s.chatId, func(chat *types.Chat) error {
			_, err := membership.AddMember(chat, participantId)
			return err
		})
		return err
	})
}

// RemoveMember removes a participant from the chat. Managers may remove anyone but the creator, every
// member may leave.
func (s *Session) RemoveMember(ctx context.Context, participantId string) error {
	participantId = strings.TrimSpace(participantId)
	return s.do("remove_member", func() error {
		if participantId != s.participant.Id {
			if _, err := s.requireManager(); err != nil {
				return err
			}
		}
		_, err := s.store.UpdateChat(ctx, s.chatId, func(chat *types.Chat) error {
			_, err := membership.RemoveMember(chat, participantId)
			return err
		})
		return err
	})
}

// CloseChat closes the chat for everyone. Only managers of the chat may do that.
func (s *Session) CloseChat(ctx context.Context) error {
	return s.do("close", func() error {
		if _, err := s.requireManager(); err != nil {
			return err
		}
		return s.store.CloseChat(ctx, s.chatId)
	})
}

// DeleteChat deletes the chat and its messages permanently. Only managers of the chat may do that.
func (s *Session) DeleteChat(ctx context.Context) error {
	return s.do("delete", func() error {
		if _, err := s.requireManager(); err != nil {
			return err
		}
		return s.store.DeleteChat(ctx, s.chatId)
	})
}
