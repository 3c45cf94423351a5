package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/globals"
)

// RedisNotifier publishes change announcements on a redis channel, so that all server instances
// sharing the store see each other's writes.
type RedisNotifier struct {
	client  *redis.Client
	channel string

	pubsubs []*redis.PubSub
	sync.Mutex
}

func NewRedisNotifier(cfg *config.Config) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.FeedConfig.RedisAddr,
		Password: cfg.FeedConfig.RedisPassword,
		DB:       cfg.FeedConfig.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisNotifier{client: client, channel: cfg.FeedConfig.RedisChannel}, nil
}

func (n *RedisNotifier) Notify(ctx context.Context, chatId string) error {
	return n.client.Publish(ctx, n.channel, chatId).Err()
}

func (n *RedisNotifier) Subscribe(fn func(chatId string)) (func(), error) {
	ctx := context.Background()
	pubsub := n.client.Subscribe(ctx, n.channel)
	// wait for the subscription to be confirmed, otherwise early announcements get lost
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	n.Lock()
	n.pubsubs = append(n.pubsubs, pubsub)
	n.Unlock()

	go func() {
		for msg := range pubsub.Channel() {
			fn(msg.Payload)
		}
		globals.AppLogger.Debug("redis subscription ended", "channel", n.channel)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				globals.AppLogger.Warn("could not close redis subscription", "error", err)
			}
		})
	}, nil
}

func (n *RedisNotifier) Close() error {
	n.Lock()
	pubsubs := n.pubsubs
	n.pubsubs = nil
	n.Unlock()
	for _, ps := range pubsubs {
		_ = ps.Close()
	}
	return n.client.Close()
}

// NewNotifier creates the notifier selected by the configuration.
func NewNotifier(cfg *config.Config) (Notifier, error) {
	switch cfg.FeedConfig.Notifier {
	case "", "local":
		return NewLocalNotifier(), nil
	case "redis":
		n, err := NewRedisNotifier(cfg)
		if err != nil {
			return nil, err
		}
		return n, nil
	}
	return nil, fmt.Errorf("unknown notifier type: %s", cfg.FeedConfig.Notifier)
}
