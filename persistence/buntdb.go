package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/globals"
	"github.com/tcriess/clubchat/types"
	"github.com/tidwall/buntdb"
)

const (
	chatKeyPrefix    = "chat:"
	messageKeyPrefix = "msg:"
)

type BuntDBPersist struct {
	db   *buntdb.DB
	lock *flock.Flock
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	fileName := cfg.PersistenceConfig.DSN
	if fileName == "" {
		fileName = ":memory:"
	}
	var lock *flock.Flock
	if fileName != ":memory:" {
		lockPath := cfg.PersistenceConfig.FlockPath
		if lockPath == "" {
			lockPath = fileName + ".lock"
		}
		lock = flock.New(lockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, fmt.Errorf("database %s is in use by another process", fileName)
		}
	}
	db, err := buntdb.Open(fileName)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, err
	}
	return &BuntDBPersist{db: db, lock: lock}, nil
}

func chatKey(chatId string) string {
	return chatKeyPrefix + chatId
}

func messageKey(chatId, messageId string) string {
	return messageKeyPrefix + chatId + ":" + messageId
}

func getJSON(tx *buntdb.Tx, key string, v interface{}) error {
	raw, err := tx.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}

func setJSON(tx *buntdb.Tx, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(key, string(raw), nil)
	return err
}

func (p *BuntDBPersist) StoreChat(_ context.Context, chat types.Chat) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		return setJSON(tx, chatKey(chat.Id), chat)
	})
}

func (p *BuntDBPersist) GetChat(_ context.Context, chatId string) (*types.Chat, error) {
	chat := &types.Chat{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		return getJSON(tx, chatKey(chatId), chat)
	})
	if err == buntdb.ErrNotFound {
		return nil, chatNotFound(chatId)
	}
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (p *BuntDBPersist) GetChats(_ context.Context) ([]*types.Chat, error) {
	chats := make([]*types.Chat, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(chatKeyPrefix+"*", func(key, val string) bool {
			chat := &types.Chat{}
			if err := json.Unmarshal([]byte(val), chat); err != nil {
				globals.AppLogger.Error("could not unmarshal chat", "key", key, "error", err)
				return true
			}
			chats = append(chats, chat)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	sortChats(chats)
	return chats, nil
}

func (p *BuntDBPersist) UpdateChat(_ context.Context, chatId string, fn func(*types.Chat) error) (*types.Chat, error) {
	chat := &types.Chat{}
	err := p.db.Update(func(tx *buntdb.Tx) error {
		err := getJSON(tx, chatKey(chatId), chat)
		if err == buntdb.ErrNotFound {
			return chatNotFound(chatId)
		}
		if err != nil {
			return err
		}
		if err := fn(chat); err != nil {
			return err
		}
		chat.Version++
		return setJSON(tx, chatKey(chatId), chat)
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (p *BuntDBPersist) DeleteChat(_ context.Context, chatId string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(chatKey(chatId))
		if err == buntdb.ErrNotFound {
			return chatNotFound(chatId)
		}
		if err != nil {
			return err
		}
		keys := make([]string, 0)
		err = tx.AscendKeys(messageKey(chatId, "*"), func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
		if err != nil {
			return err
		}
		// keys cannot be deleted while iterating
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

func (p *BuntDBPersist) StoreMessage(_ context.Context, msg types.Message) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(chatKey(msg.ChatId)); err == buntdb.ErrNotFound {
			return chatNotFound(msg.ChatId)
		} else if err != nil {
			return err
		}
		return setJSON(tx, messageKey(msg.ChatId, msg.Id), msg)
	})
}

func (p *BuntDBPersist) GetMessages(_ context.Context, chatId string) ([]types.Message, error) {
	messages := make([]types.Message, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(chatKey(chatId)); err == buntdb.ErrNotFound {
			return chatNotFound(chatId)
		} else if err != nil {
			return err
		}
		return tx.AscendKeys(messageKey(chatId, "*"), func(key, val string) bool {
			msg := types.Message{}
			if err := json.Unmarshal([]byte(val), &msg); err != nil {
				globals.AppLogger.Error("could not unmarshal message", "key", key, "error", err)
				return true
			}
			messages = append(messages, msg)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	sortMessages(messages)
	return messages, nil
}

func (p *BuntDBPersist) UpdateMessage(_ context.Context, chatId, messageId string, fn func(*types.Message) error) (*types.Message, error) {
	msg := &types.Message{}
	err := p.db.Update(func(tx *buntdb.Tx) error {
		err := getJSON(tx, messageKey(chatId, messageId), msg)
		if err == buntdb.ErrNotFound {
			return messageNotFound(messageId)
		}
		if err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
		msg.Version++
		return setJSON(tx, messageKey(chatId, messageId), msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (p *BuntDBPersist) Close() error {
	err := p.db.Close()
	if p.lock != nil {
		if uerr := p.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}
	return err
}
