package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tcriess/clubchat/feed"
	"github.com/tcriess/clubchat/filter"
	"github.com/tcriess/clubchat/globals"
	"github.com/tcriess/clubchat/importance"
	"github.com/tcriess/clubchat/metrics"
	"github.com/tcriess/clubchat/store"
	"github.com/tcriess/clubchat/types"
)

var errNotMounted = fmt.Errorf("%w: session is not mounted", types.ErrInvalidArgument)

// Session is the controller of one participant's view of one chat. It owns the message list for the
// lifetime of one mount. Actions patch the local state optimistically and then persist; the next
// snapshot from the store always replaces the local state.
type Session struct {
	store       *store.Store
	rules       *filter.Rules
	participant types.Participant
	chatId      string

	mu        sync.Mutex
	state     State
	chat      *types.Chat
	messages  []types.Message
	deleted   bool
	err       error
	seq       uint64 // incremented with every received snapshot
	sub       *feed.Subscription
	mounted   bool
	unmounted bool
	listeners []func(View)

	// publishMu serializes listener invocations so views arrive in order.
	publishMu sync.Mutex
}

func New(st *store.Store, rules *filter.Rules, p types.Participant, chatId string) *Session {
	return &Session{
		store:       st,
		rules:       rules,
		participant: p,
		chatId:      chatId,
		state:       Loading,
		messages:    []types.Message{},
	}
}

// OnChange registers fn to receive every new view, starting with the current one. Listeners must not
// call actions or Unmount of the session synchronously.
func (s *Session) OnChange(fn func(View)) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		return
	}
	s.listeners = append(s.listeners, fn)
	v := s.viewLocked()
	s.mu.Unlock()
	fn(v)
}

func (s *Session) Participant() types.Participant {
	return s.participant
}

func (s *Session) ChatId() string {
	return s.chatId
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	messages := make([]types.Message, len(s.messages))
	for i, m := range s.messages {
		messages[i] = m.Copy()
	}
	v := View{
		State:           s.state,
		Messages:        messages,
		UnreadImportant: importance.UnreadImportantFor(messages, s.participant.Id),
		Deleted:         s.deleted,
		Err:             s.err,
		ErrorKind:       types.KindOf(s.err),
	}
	if s.chat != nil {
		chat := s.chat.Copy()
		v.Chat = &chat
	}
	return v
}

func (s *Session) publish() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		return
	}
	v := s.viewLocked()
	listeners := make([]func(View), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(v)
	}
}

// Mount checks access and opens the subscription. A participant who is neither a member nor
// super-privileged gets ErrForbidden and no subscription is opened.
func (s *Session) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return fmt.Errorf("%w: session already mounted", types.ErrInvalidArgument)
	}
	s.mounted = true
	s.mu.Unlock()

	chat, err := s.store.GetChat(ctx, s.chatId)
	if err != nil {
		s.fail(err)
		return types.Classify(err)
	}
	if !s.canView(chat) {
		globals.AppLogger.Info("access to chat denied", "chat", s.chatId, "participant", s.participant.Id)
		err = fmt.Errorf("%w: %s is not a member of chat %s", types.ErrForbidden, s.participant.Id, s.chatId)
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.chat = chat
	s.mu.Unlock()
	s.publish()

	sub := s.store.SubscribeMessages(s.chatId, s.onUpdate)
	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// canView reports whether the participant may see chat: members, and whoever the super rule matches.
func (s *Session) canView(chat *types.Chat) bool {
	return s.rules.IsSuper(s.participant) || chat.HasMember(s.participant.Id)
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = Error
	s.err = types.Classify(err)
	s.mu.Unlock()
}

// Unmount stops the subscription. No view is published after Unmount returns. Calling it again is a
// no-op.
func (s *Session) Unmount() {
	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		return
	}
	s.unmounted = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
	// wait for a publish in progress
	s.publishMu.Lock()
	s.publishMu.Unlock()
}

func (s *Session) onUpdate(u feed.Update) {
	s.mu.Lock()
	if s.unmounted || s.state.terminal() {
		s.mu.Unlock()
		return
	}
	switch {
	case u.Err != nil:
		globals.AppLogger.Warn("chat subscription failed", "chat", s.chatId, "participant", s.participant.Id, "error", u.Err)
		s.state = Error
		s.err = types.Classify(u.Err)
	case u.Snapshot.Deleted:
		s.state = Closed
		s.deleted = true
		s.chat = nil
		s.messages = []types.Message{}
	default:
		s.seq++
		s.chat = u.Snapshot.Chat
		s.messages = u.Snapshot.Messages
		if s.messages == nil {
			s.messages = []types.Message{}
		}
		if s.chat.Closed || !s.canView(s.chat) {
			s.state = Closed
		} else {
			s.state = Ready
		}
	}
	s.mu.Unlock()
	s.publish()
}

// usable checks that actions may be performed in the current state.
func (s *Session) usable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.mounted || s.unmounted:
		return errNotMounted
	case s.state == Closed:
		return fmt.Errorf("%w: chat %s is closed", types.ErrForbidden, s.chatId)
	case s.state == Error:
		if s.err != nil {
			return s.err
		}
		return types.ErrStorageUnavailable
	}
	return nil
}

func (s *Session) currentChat() *types.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chat == nil {
		return nil
	}
	chat := s.chat.Copy()
	return &chat
}

// do runs an action and classifies its error.
func (s *Session) do(action string, fn func() error) error {
	err := s.usable()
	if err == nil {
		err = fn()
	}
	err = types.Classify(err)
	result := "ok"
	if err != nil {
		result = string(types.KindOf(err))
		globals.AppLogger.Debug("chat action failed", "action", action, "chat", s.chatId, "participant", s.participant.Id, "error", err)
	}
	metrics.ActionsTotal.WithLabelValues(action, result).Inc()
	return err
}

// patchLocal applies fn to the local copy of a message and publishes the result. An error of fn is
// returned before anything is written. The returned function restores the previous state unless a
// newer snapshot arrived in between. If the message is not known locally nothing happens.
func (s *Session) patchLocal(messageId string, fn func(*types.Message) error) (func(), error) {
	s.mu.Lock()
	idx := -1
	for i := range s.messages {
		if s.messages[i].Id == messageId {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return func() {}, nil
	}
	old := s.messages[idx]
	patched := old.Copy()
	if err := fn(&patched); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	messages := make([]types.Message, len(s.messages))
	copy(messages, s.messages)
	messages[idx] = patched
	s.messages = messages
	seq := s.seq
	s.mu.Unlock()
	s.publish()

	return func() {
		s.mu.Lock()
		if s.seq != seq {
			s.mu.Unlock()
			return
		}
		for i := range s.messages {
			if s.messages[i].Id == messageId {
				messages := make([]types.Message, len(s.messages))
				copy(messages, s.messages)
				messages[i] = old
				s.messages = messages
				break
			}
		}
		s.mu.Unlock()
		s.publish()
	}, nil
}

// appendLocal adds a message that is about to be stored. The returned function removes it again unless
// a newer snapshot arrived in between.
func (s *Session) appendLocal(msg types.Message) func() {
	s.mu.Lock()
	messages := make([]types.Message, len(s.messages), len(s.messages)+1)
	copy(messages, s.messages)
	s.messages = append(messages, msg)
	seq := s.seq
	s.mu.Unlock()
	s.publish()

	return func() {
		s.mu.Lock()
		if s.seq != seq {
			s.mu.Unlock()
			return
		}
		messages := make([]types.Message, 0, len(s.messages))
		for _, m := range s.messages {
			if m.Id != msg.Id {
				messages = append(messages, m)
			}
		}
		s.messages = messages
		s.mu.Unlock()
		s.publish()
	}
}

// patchMessage patches the local copy and then the stored message with the same function.
func (s *Session) patchMessage(ctx context.Context, messageId string, fn func(*types.Message) error) error {
	restore, err := s.patchLocal(messageId, fn)
	if err != nil {
		return err
	}
	if _, err = s.store.PatchMessage(ctx, s.chatId, messageId, fn); err != nil {
		restore()
		return err
	}
	return nil
}

func (s *Session) appendMessage(ctx context.Context, msg *types.Message) error {
	remove := s.appendLocal(*msg)
	if err := s.store.AppendMessage(ctx, *msg); err != nil {
		remove()
		return err
	}
	return nil
}

func (s *Session) requireManager() (*types.Chat, error) {
	chat := s.currentChat()
	if chat == nil {
		return nil, fmt.Errorf("%w: chat %s", types.ErrNotFound, s.chatId)
	}
	if !s.rules.CanManage(s.participant, chat) {
		return nil, fmt.Errorf("%w: %s may not manage chat %s", types.ErrForbidden, s.participant.Id, s.chatId)
	}
	return chat, nil
}

func now() time.Time {
	return time.Now().UTC()
}
