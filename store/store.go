package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/feed"
	"github.com/tcriess/clubchat/globals"
	"github.com/tcriess/clubchat/membership"
	"github.com/tcriess/clubchat/persistence"
	"github.com/tcriess/clubchat/types"
)

// Store is the chat and message repository used by the session controller. It wraps the persister,
// announces every mutation through the notifier and delivers snapshots to subscribers.
// All returned errors are classified (see types.KindOf).
type Store struct {
	persister persistence.Persister
	notifier  feed.Notifier
	registry  *feed.Registry
	chats     *lru.Cache

	stopNotifications func()
}

func New(cfg *config.Config, persister persistence.Persister, notifier feed.Notifier) (*Store, error) {
	size := cfg.ChatCacheSize
	if size <= 0 {
		size = 1
	}
	chats, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	s := &Store{
		persister: persister,
		notifier:  notifier,
		chats:     chats,
	}
	s.registry = feed.NewRegistry(s.loadSnapshot, cfg.FeedConfig.SubscriberQueue)
	stop, err := notifier.Subscribe(func(chatId string) {
		s.chats.Remove(chatId)
		s.registry.Refresh(chatId)
	})
	if err != nil {
		return nil, fmt.Errorf("could not subscribe to chat changes: %w", err)
	}
	s.stopNotifications = stop
	return s, nil
}

// Close stops all subscriptions. The persister and the notifier are not closed.
func (s *Store) Close() {
	s.stopNotifications()
	s.registry.Close()
}

func (s *Store) changed(ctx context.Context, chatId string) {
	s.chats.Remove(chatId)
	if err := s.notifier.Notify(ctx, chatId); err != nil {
		globals.AppLogger.Warn("could not announce chat change", "chat", chatId, "error", err)
		s.registry.Refresh(chatId)
	}
}

func (s *Store) loadSnapshot(ctx context.Context, chatId string) (*types.Snapshot, error) {
	chat, err := s.persister.GetChat(ctx, chatId)
	if errors.Is(err, types.ErrNotFound) {
		return &types.Snapshot{Deleted: true, Messages: []types.Message{}}, nil
	}
	if err != nil {
		return nil, types.Classify(err)
	}
	messages, err := s.persister.GetMessages(ctx, chatId)
	if errors.Is(err, types.ErrNotFound) {
		return &types.Snapshot{Deleted: true, Messages: []types.Message{}}, nil
	}
	if err != nil {
		return nil, types.Classify(err)
	}
	return &types.Snapshot{Chat: chat, Messages: messages}, nil
}

// CreateChat stores a new chat and returns its id. The creator is always the first member.
func (s *Store) CreateChat(ctx context.Context, spec types.ChatSpec) (string, error) {
	if err := types.ValidateStruct(spec); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	chat := types.Chat{
		Id:        types.NewId(),
		Title:     spec.Title,
		CreatorId: spec.CreatorId,
		Members:   spec.Members,
		ClubId:    spec.ClubId,
		TeamId:    spec.TeamId,
		Created:   now,
		Updated:   now,
	}
	if chat.Title == "" {
		chat.Title = defaultTitle(chat)
	}
	if err := membership.EnsureCreator(&chat); err != nil {
		return "", err
	}
	if err := s.persister.StoreChat(ctx, chat); err != nil {
		return "", types.Classify(err)
	}
	globals.AppLogger.Info("chat created", "chat", chat.Id, "creator", chat.CreatorId)
	return chat.Id, nil
}

func defaultTitle(chat types.Chat) string {
	switch {
	case chat.TeamId != "":
		return "Team " + chat.TeamId
	case chat.ClubId != "":
		return "Club " + chat.ClubId
	}
	return "Chat"
}

// GetChat returns the chat or an error wrapping types.ErrNotFound.
func (s *Store) GetChat(ctx context.Context, chatId string) (*types.Chat, error) {
	if v, ok := s.chats.Get(chatId); ok {
		chat := v.(types.Chat).Copy()
		return &chat, nil
	}
	chat, err := s.persister.GetChat(ctx, chatId)
	if err != nil {
		return nil, types.Classify(err)
	}
	s.chats.Add(chatId, chat.Copy())
	return chat, nil
}

// Chats returns all chats, oldest first.
func (s *Store) Chats(ctx context.Context) ([]*types.Chat, error) {
	chats, err := s.persister.GetChats(ctx)
	if err != nil {
		return nil, types.Classify(err)
	}
	return chats, nil
}

// ListChats returns the chats p may view, most recently active first. Closed chats are only included
// if includeClosed is set.
func (s *Store) ListChats(ctx context.Context, p types.Participant, includeClosed bool) ([]*types.Chat, error) {
	chats, err := s.Chats(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]*types.Chat, 0, len(chats))
	for _, chat := range chats {
		if chat.Closed && !includeClosed {
			continue
		}
		if !chat.CanView(p) {
			continue
		}
		res = append(res, chat)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return lastActivity(res[i]).After(lastActivity(res[j]))
	})
	return res, nil
}

func lastActivity(chat *types.Chat) time.Time {
	if chat.LastMessageAt.After(chat.Created) {
		return chat.LastMessageAt
	}
	return chat.Created
}

// SubscribeMessages delivers the complete current state of the chat to onUpdate, and again after
// every change. A deleted chat is delivered as a snapshot with Deleted set.
func (s *Store) SubscribeMessages(chatId string, onUpdate func(feed.Update)) *feed.Subscription {
	return s.registry.Subscribe(chatId, onUpdate)
}

// AppendMessage stores msg in its chat and updates the chat's last message preview.
func (s *Store) AppendMessage(ctx context.Context, msg types.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := s.persister.StoreMessage(ctx, msg); err != nil {
		return types.Classify(err)
	}
	_, err := s.persister.UpdateChat(ctx, msg.ChatId, func(chat *types.Chat) error {
		if msg.Created.Before(chat.LastMessageAt) {
			return nil
		}
		chat.SetLastMessage(&msg)
		chat.Updated = time.Now().UTC()
		return nil
	})
	if err != nil {
		globals.AppLogger.Warn("could not update last message preview", "chat", msg.ChatId, "error", err)
	}
	s.changed(ctx, msg.ChatId)
	return nil
}

// PatchMessage applies fn to the stored message atomically. The result must still be a valid message
// of the same kind, otherwise nothing is written.
func (s *Store) PatchMessage(ctx context.Context, chatId, messageId string, fn func(*types.Message) error) (*types.Message, error) {
	msg, err := s.persister.UpdateMessage(ctx, chatId, messageId, func(m *types.Message) error {
		id, kind, sender, created := m.Id, m.Kind, m.SenderId, m.Created
		if err := fn(m); err != nil {
			return err
		}
		if m.Id != id || m.ChatId != chatId || m.Kind != kind || m.SenderId != sender || !m.Created.Equal(created) {
			return fmt.Errorf("%w: message identity cannot be changed", types.ErrInvalidArgument)
		}
		return m.Validate()
	})
	if err != nil {
		return nil, types.Classify(err)
	}
	s.changed(ctx, chatId)
	return msg, nil
}

// UpdateChat applies fn to the stored chat atomically. The creator cannot be changed and stays a
// member.
func (s *Store) UpdateChat(ctx context.Context, chatId string, fn func(*types.Chat) error) (*types.Chat, error) {
	chat, err := s.persister.UpdateChat(ctx, chatId, func(c *types.Chat) error {
		id, creator := c.Id, c.CreatorId
		if err := fn(c); err != nil {
			return err
		}
		if c.Id != id || c.CreatorId != creator {
			return fmt.Errorf("%w: chat identity cannot be changed", types.ErrInvalidArgument)
		}
		if !c.HasMember(creator) {
			return types.ErrCannotRemoveCreator
		}
		c.Updated = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, types.Classify(err)
	}
	s.changed(ctx, chatId)
	return chat, nil
}

// CloseChat hides the chat from active lists. Closing a closed chat changes nothing.
func (s *Store) CloseChat(ctx context.Context, chatId string) error {
	_, err := s.UpdateChat(ctx, chatId, func(chat *types.Chat) error {
		if !chat.Closed {
			chat.Closed = true
			chat.ClosedAt = time.Now().UTC()
		}
		return nil
	})
	return err
}

// DeleteChat removes the chat and all of its messages permanently.
func (s *Store) DeleteChat(ctx context.Context, chatId string) error {
	if err := s.persister.DeleteChat(ctx, chatId); err != nil {
		return types.Classify(err)
	}
	globals.AppLogger.Info("chat deleted", "chat", chatId)
	s.changed(ctx, chatId)
	return nil
}
