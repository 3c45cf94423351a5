package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoConnectTimeout = 10 * time.Second
	// maxCASAttempts bounds the compare-and-swap loop of a single document update. It resolves
	// concurrent writers on the same document, it is not a retry of a failed operation.
	maxCASAttempts = 5
)

var errConcurrentUpdate = errors.New("document was modified concurrently")

type chatDoc struct {
	Id            string    `bson:"_id"`
	Title         string    `bson:"title"`
	CreatorId     string    `bson:"creator_id"`
	Members       []string  `bson:"members"`
	ClubId        string    `bson:"club_id,omitempty"`
	TeamId        string    `bson:"team_id,omitempty"`
	Closed        bool      `bson:"closed"`
	ClosedAt      time.Time `bson:"closed_at"`
	LastMessage   string    `bson:"last_message,omitempty"`
	LastMessageAt time.Time `bson:"last_message_at"`
	Created       time.Time `bson:"created"`
	Updated       time.Time `bson:"updated"`
	Version       int64     `bson:"version"`
}

// participant ids are e-mail addresses, so maps keyed by them are stored as arrays of entries
// instead of sub-documents with dotted field names.
type reactionDoc struct {
	ParticipantId string `bson:"participant_id"`
	Emoji         string `bson:"emoji"`
}

type readDoc struct {
	ParticipantId string    `bson:"participant_id"`
	At            time.Time `bson:"at"`
}

type pollDoc struct {
	Question string     `bson:"question"`
	Options  []string   `bson:"options"`
	Votes    [][]string `bson:"votes"`
}

type messageDoc struct {
	Id        string        `bson:"_id"`
	ChatId    string        `bson:"chat_id"`
	SenderId  string        `bson:"sender_id"`
	Text      string        `bson:"text"`
	Created   time.Time     `bson:"created"`
	Kind      string        `bson:"kind"`
	Poll      *pollDoc      `bson:"poll,omitempty"`
	Important bool          `bson:"important"`
	Reactions []reactionDoc `bson:"reactions"`
	ReadBy    []readDoc     `bson:"read_by"`
	Version   int64         `bson:"version"`
}

func newChatDoc(chat *types.Chat) *chatDoc {
	return &chatDoc{
		Id:            chat.Id,
		Title:         chat.Title,
		CreatorId:     chat.CreatorId,
		Members:       chat.Members,
		ClubId:        chat.ClubId,
		TeamId:        chat.TeamId,
		Closed:        chat.Closed,
		ClosedAt:      chat.ClosedAt,
		LastMessage:   chat.LastMessage,
		LastMessageAt: chat.LastMessageAt,
		Created:       chat.Created,
		Updated:       chat.Updated,
		Version:       chat.Version,
	}
}

func (d *chatDoc) toChat() *types.Chat {
	members := d.Members
	if members == nil {
		members = make([]string, 0)
	}
	return &types.Chat{
		Id:            d.Id,
		Title:         d.Title,
		CreatorId:     d.CreatorId,
		Members:       members,
		ClubId:        d.ClubId,
		TeamId:        d.TeamId,
		Closed:        d.Closed,
		ClosedAt:      d.ClosedAt,
		LastMessage:   d.LastMessage,
		LastMessageAt: d.LastMessageAt,
		Created:       d.Created,
		Updated:       d.Updated,
		Version:       d.Version,
	}
}

func newMessageDoc(msg *types.Message) *messageDoc {
	doc := &messageDoc{
		Id:        msg.Id,
		ChatId:    msg.ChatId,
		SenderId:  msg.SenderId,
		Text:      msg.Text,
		Created:   msg.Created,
		Kind:      string(msg.Kind),
		Important: msg.Important,
		Reactions: make([]reactionDoc, 0, len(msg.Reactions)),
		ReadBy:    make([]readDoc, 0, len(msg.ReadBy)),
		Version:   msg.Version,
	}
	if msg.Poll != nil {
		votes := make([][]string, len(msg.Poll.Votes))
		for i, v := range msg.Poll.Votes {
			votes[i] = []string(v)
		}
		doc.Poll = &pollDoc{
			Question: msg.Poll.Question,
			Options:  msg.Poll.Options,
			Votes:    votes,
		}
	}
	for p, emoji := range msg.Reactions {
		doc.Reactions = append(doc.Reactions, reactionDoc{ParticipantId: p, Emoji: emoji})
	}
	sort.Slice(doc.Reactions, func(i, j int) bool {
		return doc.Reactions[i].ParticipantId < doc.Reactions[j].ParticipantId
	})
	for p, at := range msg.ReadBy {
		doc.ReadBy = append(doc.ReadBy, readDoc{ParticipantId: p, At: at})
	}
	sort.Slice(doc.ReadBy, func(i, j int) bool {
		return doc.ReadBy[i].ParticipantId < doc.ReadBy[j].ParticipantId
	})
	return doc
}

func (d *messageDoc) toMessage() *types.Message {
	msg := &types.Message{
		Id:        d.Id,
		ChatId:    d.ChatId,
		SenderId:  d.SenderId,
		Text:      d.Text,
		Created:   d.Created,
		Kind:      types.MessageKind(d.Kind),
		Important: d.Important,
		Reactions: make(types.ReactionMap, len(d.Reactions)),
		ReadBy:    make(types.ReadSet, len(d.ReadBy)),
		Version:   d.Version,
	}
	if d.Poll != nil {
		votes := make([]types.VoterSet, len(d.Poll.Votes))
		for i, v := range d.Poll.Votes {
			votes[i] = types.VoterSet(v)
			if votes[i] == nil {
				votes[i] = types.VoterSet{}
			}
		}
		msg.Poll = &types.Poll{
			Question: d.Poll.Question,
			Options:  d.Poll.Options,
			Votes:    votes,
		}
	}
	for _, r := range d.Reactions {
		msg.Reactions[r.ParticipantId] = r.Emoji
	}
	for _, r := range d.ReadBy {
		msg.ReadBy[r.ParticipantId] = r.At
	}
	return msg
}

type MongoPersist struct {
	client   *mongo.Client
	chats    *mongo.Collection
	messages *mongo.Collection
}

func NewMongoPersister(cfg *config.Config) (Persister, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("no mongo uri configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.PersistenceConfig.DSN))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	db := client.Database(cfg.PersistenceConfig.Database)
	p := &MongoPersist{
		client:   client,
		chats:    db.Collection("chats"),
		messages: db.Collection("messages"),
	}
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "created", Value: 1}},
		Options: options.Index().SetName("chat_created_idx"),
	}
	if _, err := p.messages.Indexes().CreateOne(ctx, ix); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return p, nil
}

func (p *MongoPersist) StoreChat(ctx context.Context, chat types.Chat) error {
	opts := options.Replace().SetUpsert(true)
	_, err := p.chats.ReplaceOne(ctx, bson.M{"_id": chat.Id}, newChatDoc(&chat), opts)
	return err
}

func (p *MongoPersist) GetChat(ctx context.Context, chatId string) (*types.Chat, error) {
	doc := chatDoc{}
	err := p.chats.FindOne(ctx, bson.M{"_id": chatId}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, chatNotFound(chatId)
	}
	if err != nil {
		return nil, err
	}
	return doc.toChat(), nil
}

func (p *MongoPersist) GetChats(ctx context.Context) ([]*types.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := p.chats.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	chats := make([]*types.Chat, 0)
	for cur.Next(ctx) {
		doc := chatDoc{}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		chats = append(chats, doc.toChat())
	}
	return chats, cur.Err()
}

func (p *MongoPersist) UpdateChat(ctx context.Context, chatId string, fn func(*types.Chat) error) (*types.Chat, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		doc := chatDoc{}
		err := p.chats.FindOne(ctx, bson.M{"_id": chatId}).Decode(&doc)
		if err == mongo.ErrNoDocuments {
			return nil, chatNotFound(chatId)
		}
		if err != nil {
			return nil, err
		}
		chat := doc.toChat()
		prev := chat.Version
		if err := fn(chat); err != nil {
			return nil, err
		}
		chat.Version = prev + 1
		res, err := p.chats.ReplaceOne(ctx, bson.M{"_id": chatId, "version": prev}, newChatDoc(chat))
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 1 {
			return chat, nil
		}
	}
	return nil, fmt.Errorf("chat %s: %w", chatId, errConcurrentUpdate)
}

func (p *MongoPersist) DeleteChat(ctx context.Context, chatId string) error {
	res, err := p.chats.DeleteOne(ctx, bson.M{"_id": chatId})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return chatNotFound(chatId)
	}
	_, err = p.messages.DeleteMany(ctx, bson.M{"chat_id": chatId})
	return err
}

func (p *MongoPersist) StoreMessage(ctx context.Context, msg types.Message) error {
	count, err := p.chats.CountDocuments(ctx, bson.M{"_id": msg.ChatId})
	if err != nil {
		return err
	}
	if count == 0 {
		return chatNotFound(msg.ChatId)
	}
	_, err = p.messages.InsertOne(ctx, newMessageDoc(&msg))
	return err
}

func (p *MongoPersist) GetMessages(ctx context.Context, chatId string) ([]types.Message, error) {
	count, err := p.chats.CountDocuments(ctx, bson.M{"_id": chatId})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, chatNotFound(chatId)
	}
	opts := options.Find().SetSort(bson.D{{Key: "created", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := p.messages.Find(ctx, bson.M{"chat_id": chatId}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	messages := make([]types.Message, 0)
	for cur.Next(ctx) {
		doc := messageDoc{}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		messages = append(messages, *doc.toMessage())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	sortMessages(messages)
	return messages, nil
}

func (p *MongoPersist) UpdateMessage(ctx context.Context, chatId, messageId string, fn func(*types.Message) error) (*types.Message, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		doc := messageDoc{}
		err := p.messages.FindOne(ctx, bson.M{"_id": messageId, "chat_id": chatId}).Decode(&doc)
		if err == mongo.ErrNoDocuments {
			return nil, messageNotFound(messageId)
		}
		if err != nil {
			return nil, err
		}
		msg := doc.toMessage()
		prev := msg.Version
		if err := fn(msg); err != nil {
			return nil, err
		}
		msg.Version = prev + 1
		res, err := p.messages.ReplaceOne(ctx, bson.M{"_id": messageId, "version": prev}, newMessageDoc(msg))
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 1 {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("message %s: %w", messageId, errConcurrentUpdate)
}

func (p *MongoPersist) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return p.client.Disconnect(ctx)
}
