package persistence

import (
	"context"

	"github.com/tcriess/clubchat/types"
)

// Persister is the document storage substrate. Chats and messages are documents keyed by id, every
// mutation is atomic per document. Update functions receive the current document and may mutate it;
// returning an error aborts the update without writing anything. Missing documents are reported with
// an error wrapping types.ErrNotFound.
type Persister interface {
	StoreChat(ctx context.Context, chat types.Chat) error
	GetChat(ctx context.Context, chatId string) (*types.Chat, error)
	GetChats(ctx context.Context) ([]*types.Chat, error)
	UpdateChat(ctx context.Context, chatId string, fn func(*types.Chat) error) (*types.Chat, error)
	// DeleteChat removes the chat and all of its messages.
	DeleteChat(ctx context.Context, chatId string) error

	// StoreMessage fails with types.ErrNotFound if the owning chat does not exist.
	StoreMessage(ctx context.Context, msg types.Message) error
	// GetMessages returns the messages of a chat sorted ascending by creation time (ties by id).
	GetMessages(ctx context.Context, chatId string) ([]types.Message, error)
	UpdateMessage(ctx context.Context, chatId, messageId string, fn func(*types.Message) error) (*types.Message, error)

	Close() error
}
