package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/globals"
	"github.com/tcriess/clubchat/metrics"
	"github.com/tcriess/clubchat/types"
)

// ChatStore is the part of the store the purge job needs.
type ChatStore interface {
	Chats(ctx context.Context) ([]*types.Chat, error)
	DeleteChat(ctx context.Context, chatId string) error
}

// Purge deletes all chats that were closed before the given time and returns their number.
func Purge(ctx context.Context, st ChatStore, closedBefore time.Time) (int, error) {
	chats, err := st.Chats(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, chat := range chats {
		if !chat.Closed || chat.ClosedAt.IsZero() || !chat.ClosedAt.Before(closedBefore) {
			continue
		}
		if err := st.DeleteChat(ctx, chat.Id); err != nil {
			if types.KindOf(err) == types.KindNotFound {
				continue
			}
			return n, err
		}
		n++
		metrics.ChatsPurged.Inc()
	}
	return n, nil
}

// Runner runs Purge on the configured schedule.
type Runner struct {
	cron *cron.Cron
}

// NewRunner schedules the purge job. It returns nil if no TTL is configured.
func NewRunner(cfg config.RetentionConfig, st ChatStore) (*Runner, error) {
	if cfg.ClosedChatTTL <= 0 {
		return nil, nil
	}
	cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	ttl := cfg.ClosedChatTTL
	_, err := cronRunner.AddFunc(cfg.Cron, func() {
		n, err := Purge(context.Background(), st, time.Now().UTC().Add(-ttl))
		if err != nil {
			globals.AppLogger.Error("could not purge closed chats", "error", err)
			return
		}
		if n > 0 {
			globals.AppLogger.Info("purged closed chats", "count", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", cfg.Cron, err)
	}
	return &Runner{cron: cronRunner}, nil
}

func (r *Runner) Start() {
	if r == nil {
		return
	}
	r.cron.Start()
}

// Stop stops the schedule and waits for a running purge.
func (r *Runner) Stop() {
	if r == nil {
		return
	}
	<-r.cron.Stop().Done()
}
