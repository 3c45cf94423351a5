package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/types"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type chatRecord struct {
	Id            string `gorm:"primaryKey"`
	Title         string
	CreatorId     string `gorm:"index"`
	Members       datatypes.JSON
	ClubId        string
	TeamId        string
	Closed        bool
	ClosedAt      time.Time
	LastMessage   string
	LastMessageAt time.Time
	Created       time.Time
	Updated       time.Time
	Version       int64
}

func (chatRecord) TableName() string {
	return "chats"
}

type messageRecord struct {
	Id        string    `gorm:"primaryKey"`
	ChatId    string    `gorm:"index:messages_chat_created_idx,priority:1"`
	Created   time.Time `gorm:"index:messages_chat_created_idx,priority:2"`
	SenderId  string
	Text      string
	Kind      string
	Poll      datatypes.JSON
	Important bool
	Reactions types.ReactionMap
	ReadBy    types.ReadSet
	Version   int64
}

func (messageRecord) TableName() string {
	return "messages"
}

func newChatRecord(chat *types.Chat) (*chatRecord, error) {
	members, err := json.Marshal(chat.Members)
	if err != nil {
		return nil, err
	}
	return &chatRecord{
		Id:            chat.Id,
		Title:         chat.Title,
		CreatorId:     chat.CreatorId,
		Members:       datatypes.JSON(members),
		ClubId:        chat.ClubId,
		TeamId:        chat.TeamId,
		Closed:        chat.Closed,
		ClosedAt:      chat.ClosedAt,
		LastMessage:   chat.LastMessage,
		LastMessageAt: chat.LastMessageAt,
		Created:       chat.Created,
		Updated:       chat.Updated,
		Version:       chat.Version,
	}, nil
}

func (r *chatRecord) toChat() (*types.Chat, error) {
	members := make([]string, 0)
	if len(r.Members) > 0 {
		if err := json.Unmarshal(r.Members, &members); err != nil {
			return nil, err
		}
	}
	return &types.Chat{
		Id:            r.Id,
		Title:         r.Title,
		CreatorId:     r.CreatorId,
		Members:       members,
		ClubId:        r.ClubId,
		TeamId:        r.TeamId,
		Closed:        r.Closed,
		ClosedAt:      r.ClosedAt,
		LastMessage:   r.LastMessage,
		LastMessageAt: r.LastMessageAt,
		Created:       r.Created,
		Updated:       r.Updated,
		Version:       r.Version,
	}, nil
}

func newMessageRecord(msg *types.Message) (*messageRecord, error) {
	poll := []byte("null")
	if msg.Poll != nil {
		var err error
		poll, err = json.Marshal(msg.Poll)
		if err != nil {
			return nil, err
		}
	}
	return &messageRecord{
		Id:        msg.Id,
		ChatId:    msg.ChatId,
		Created:   msg.Created,
		SenderId:  msg.SenderId,
		Text:      msg.Text,
		Kind:      string(msg.Kind),
		Poll:      datatypes.JSON(poll),
		Important: msg.Important,
		Reactions: msg.Reactions,
		ReadBy:    msg.ReadBy,
		Version:   msg.Version,
	}, nil
}

func (r *messageRecord) toMessage() (*types.Message, error) {
	msg := &types.Message{
		Id:        r.Id,
		ChatId:    r.ChatId,
		SenderId:  r.SenderId,
		Text:      r.Text,
		Created:   r.Created,
		Kind:      types.MessageKind(r.Kind),
		Important: r.Important,
		Reactions: r.Reactions,
		ReadBy:    r.ReadBy,
		Version:   r.Version,
	}
	if len(r.Poll) > 0 && string(r.Poll) != "null" {
		poll := &types.Poll{}
		if err := json.Unmarshal(r.Poll, poll); err != nil {
			return nil, err
		}
		msg.Poll = poll
	}
	if msg.Reactions == nil {
		msg.Reactions = types.ReactionMap{}
	}
	if msg.ReadBy == nil {
		msg.ReadBy = types.ReadSet{}
	}
	return msg, nil
}

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	p := GormPersist{db: db}
	return &p, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("no dsn configured for %s", cfg.PersistenceConfig.Type)
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	err = db.Migrator().AutoMigrate(&chatRecord{}, &messageRecord{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// forUpdate adds a row lock where the dialect supports it, sqlite serializes writers anyway.
func (p *GormPersist) forUpdate(tx *gorm.DB) *gorm.DB {
	if p.db.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func (p *GormPersist) StoreChat(ctx context.Context, chat types.Chat) error {
	rec, err := newChatRecord(&chat)
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
}

func (p *GormPersist) GetChat(ctx context.Context, chatId string) (*types.Chat, error) {
	rec := chatRecord{}
	err := p.db.WithContext(ctx).First(&rec, "id = ?", chatId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, chatNotFound(chatId)
	}
	if err != nil {
		return nil, err
	}
	return rec.toChat()
}

func (p *GormPersist) GetChats(ctx context.Context) ([]*types.Chat, error) {
	recs := make([]chatRecord, 0)
	err := p.db.WithContext(ctx).Order("created").Order("id").Find(&recs).Error
	if err != nil {
		return nil, err
	}
	chats := make([]*types.Chat, 0, len(recs))
	for i := range recs {
		chat, err := recs[i].toChat()
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

func (p *GormPersist) UpdateChat(ctx context.Context, chatId string, fn func(*types.Chat) error) (*types.Chat, error) {
	var chat *types.Chat
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := chatRecord{}
		err := p.forUpdate(tx).First(&rec, "id = ?", chatId).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chatNotFound(chatId)
		}
		if err != nil {
			return err
		}
		chat, err = rec.toChat()
		if err != nil {
			return err
		}
		if err := fn(chat); err != nil {
			return err
		}
		chat.Version++
		newRec, err := newChatRecord(chat)
		if err != nil {
			return err
		}
		return tx.Save(newRec).Error
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (p *GormPersist) DeleteChat(ctx context.Context, chatId string) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&chatRecord{}, "id = ?", chatId)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return chatNotFound(chatId)
		}
		return tx.Delete(&messageRecord{}, "chat_id = ?", chatId).Error
	})
}

func (p *GormPersist) StoreMessage(ctx context.Context, msg types.Message) error {
	rec, err := newMessageRecord(&msg)
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&chatRecord{}).Where("id = ?", msg.ChatId).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return chatNotFound(msg.ChatId)
		}
		return tx.Create(rec).Error
	})
}

func (p *GormPersist) GetMessages(ctx context.Context, chatId string) ([]types.Message, error) {
	var count int64
	db := p.db.WithContext(ctx)
	if err := db.Model(&chatRecord{}).Where("id = ?", chatId).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, chatNotFound(chatId)
	}
	recs := make([]messageRecord, 0)
	err := db.Where("chat_id = ?", chatId).Order("created").Order("id").Find(&recs).Error
	if err != nil {
		return nil, err
	}
	messages := make([]types.Message, 0, len(recs))
	for i := range recs {
		msg, err := recs[i].toMessage()
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	// the database orders by its own time representation, keep the in-memory order authoritative
	sortMessages(messages)
	return messages, nil
}

func (p *GormPersist) UpdateMessage(ctx context.Context, chatId, messageId string, fn func(*types.Message) error) (*types.Message, error) {
	var msg *types.Message
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := messageRecord{}
		err := p.forUpdate(tx).First(&rec, "id = ? AND chat_id = ?", messageId, chatId).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return messageNotFound(messageId)
		}
		if err != nil {
			return err
		}
		msg, err = rec.toMessage()
		if err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
		msg.Version++
		newRec, err := newMessageRecord(msg)
		if err != nil {
			return err
		}
		return tx.Save(newRec).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (p *GormPersist) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
