package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/types"
)

// persisterFactories are the backends that can run without external services.
func persisterFactories(t *testing.T) map[string]func() Persister {
	return map[string]func() Persister{
		"buntdb": func() Persister {
			p, err := NewBuntPersister(&config.Config{PersistenceConfig: config.PersistenceConfig{DSN: ":memory:"}})
			require.NoError(t, err)
			return p
		},
		"sqlite": func() Persister {
			cfg := &config.Config{PersistenceConfig: config.PersistenceConfig{
				Type: "sqlite",
				DSN:  filepath.Join(t.TempDir(), "test.db"),
			}}
			p, err := NewGormPersister(cfg)
			require.NoError(t, err)
			return p
		},
	}
}

func testChat(id string, created time.Time) types.Chat {
	return types.Chat{
		Id:        id,
		Title:     "U17 training",
		CreatorId: "coach@example.com",
		Members:   []string{"coach@example.com", "player@example.com"},
		Created:   created,
		Updated:   created,
	}
}

func TestPersisters(t *testing.T) {
	ctx := context.Background()
	for name, factory := range persisterFactories(t) {
		t.Run(name, func(t *testing.T) {
			p := factory()
			defer p.Close()
			now := time.Now().UTC().Truncate(time.Millisecond)

			require.NoError(t, p.StoreChat(ctx, testChat("c1", now)))
			require.NoError(t, p.StoreChat(ctx, testChat("c2", now.Add(time.Second))))

			chat, err := p.GetChat(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, "U17 training", chat.Title)
			assert.Equal(t, []string{"coach@example.com", "player@example.com"}, chat.Members)

			chats, err := p.GetChats(ctx)
			require.NoError(t, err)
			require.Len(t, chats, 2)
			assert.Equal(t, "c1", chats[0].Id)
			assert.Equal(t, "c2", chats[1].Id)

			_, err = p.GetChat(ctx, "missing")
			assert.True(t, errors.Is(err, types.ErrNotFound))

			// messages are delivered in creation order regardless of insertion order
			m2, err := types.NewPlainMessage("c1", "player@example.com", "second", now.Add(2*time.Second))
			require.NoError(t, err)
			m1, err := types.NewPollMessage("c1", "coach@example.com", types.PollSpec{
				Question: "Saturday?",
				Options:  []string{"yes", "no"},
			}, now.Add(time.Second))
			require.NoError(t, err)
			require.NoError(t, p.StoreMessage(ctx, *m2))
			require.NoError(t, p.StoreMessage(ctx, *m1))

			other, err := types.NewPlainMessage("c2", "coach@example.com", "other chat", now)
			require.NoError(t, err)
			require.NoError(t, p.StoreMessage(ctx, *other))

			orphan, err := types.NewPlainMessage("missing", "coach@example.com", "orphan", now)
			require.NoError(t, err)
			err = p.StoreMessage(ctx, *orphan)
			assert.True(t, errors.Is(err, types.ErrNotFound))

			messages, err := p.GetMessages(ctx, "c1")
			require.NoError(t, err)
			require.Len(t, messages, 2)
			assert.Equal(t, m1.Id, messages[0].Id)
			assert.Equal(t, m2.Id, messages[1].Id)
			require.NotNil(t, messages[0].Poll)
			assert.Equal(t, []string{"yes", "no"}, messages[0].Poll.Options)
			assert.Nil(t, messages[1].Poll)

			updated, err := p.UpdateMessage(ctx, "c1", m2.Id, func(m *types.Message) error {
				m.Reactions["coach@example.com"] = "👍"
				m.Important = true
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), updated.Version)
			messages, err = p.GetMessages(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, "👍", messages[1].Reactions["coach@example.com"])
			assert.True(t, messages[1].Important)

			// an update function error aborts the write
			_, err = p.UpdateMessage(ctx, "c1", m2.Id, func(m *types.Message) error {
				m.Important = false
				return types.ErrForbidden
			})
			assert.True(t, errors.Is(err, types.ErrForbidden))
			messages, err = p.GetMessages(ctx, "c1")
			require.NoError(t, err)
			assert.True(t, messages[1].Important)

			_, err = p.UpdateMessage(ctx, "c1", "missing", func(m *types.Message) error { return nil })
			assert.True(t, errors.Is(err, types.ErrNotFound))

			chat, err = p.UpdateChat(ctx, "c1", func(c *types.Chat) error {
				c.Closed = true
				return nil
			})
			require.NoError(t, err)
			assert.True(t, chat.Closed)
			chat, err = p.GetChat(ctx, "c1")
			require.NoError(t, err)
			assert.True(t, chat.Closed)
			assert.Equal(t, int64(1), chat.Version)

			require.NoError(t, p.DeleteChat(ctx, "c1"))
			_, err = p.GetChat(ctx, "c1")
			assert.True(t, errors.Is(err, types.ErrNotFound))
			_, err = p.GetMessages(ctx, "c1")
			assert.True(t, errors.Is(err, types.ErrNotFound))
			err = p.DeleteChat(ctx, "c1")
			assert.True(t, errors.Is(err, types.ErrNotFound))

			messages, err = p.GetMessages(ctx, "c2")
			require.NoError(t, err)
			assert.Len(t, messages, 1)
		})
	}
}

func TestBuntPersisterFileLock(t *testing.T) {
	cfg := &config.Config{PersistenceConfig: config.PersistenceConfig{DSN: filepath.Join(t.TempDir(), "chat.db")}}
	p, err := NewBuntPersister(cfg)
	require.NoError(t, err)

	_, err = NewBuntPersister(cfg)
	assert.Error(t, err)

	require.NoError(t, p.Close())
	p, err = NewBuntPersister(cfg)
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestNewPersisterUnknownType(t *testing.T) {
	_, err := NewPersister(&config.Config{PersistenceConfig: config.PersistenceConfig{Type: "firestore"}})
	assert.Error(t, err)
}
