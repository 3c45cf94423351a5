package persistence

import (
	"fmt"
	"sort"

	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/types"
)

// NewPersister creates the backend selected by persistence.type.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "", "buntdb":
		return NewBuntPersister(cfg)
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	case "mongo":
		return NewMongoPersister(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}

func chatNotFound(chatId string) error {
	return fmt.Errorf("chat %s: %w", chatId, types.ErrNotFound)
}

func messageNotFound(messageId string) error {
	return fmt.Errorf("message %s: %w", messageId, types.ErrNotFound)
}

func sortMessages(messages []types.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Created.Equal(messages[j].Created) {
			return messages[i].Id < messages[j].Id
		}
		return messages[i].Created.Before(messages[j].Created)
	})
}

func sortChats(chats []*types.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		if chats[i].Created.Equal(chats[j].Created) {
			return chats[i].Id < chats[j].Id
		}
		return chats[i].Created.Before(chats[j].Created)
	})
}
