package feed

import (
	"context"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/tcriess/clubchat/globals"
	"github.com/tcriess/clubchat/metrics"
	"github.com/tcriess/clubchat/types"
)

const registerChannelSize = 16

// LoadFunc reads the complete current state of a chat.
type LoadFunc func(ctx context.Context, chatId string) (*types.Snapshot, error)

// Update is what a subscriber receives: either a full snapshot or the error that prevented loading one.
type Update struct {
	Snapshot *types.Snapshot
	Err      error
}

// Hub fans out snapshots of one chat. There is one hub per watched chat, it lives as long as the chat
// has subscribers.
type Hub struct {
	chatId string
	load   LoadFunc

	// Registered subscriptions, only touched by the Run loop.
	subscribers map[*Subscription]struct{}

	register   chan *Subscription
	unregister chan *Subscription

	// refresh is buffered with size 1, pending refreshes coalesce into one load.
	refresh chan struct{}

	stop chan struct{}
	done chan struct{}

	lastHash uint64
	hasLast  bool
}

func newHub(chatId string, load LoadFunc) *Hub {
	return &Hub{
		chatId:      chatId,
		load:        load,
		subscribers: make(map[*Subscription]struct{}),
		register:    make(chan *Subscription, registerChannelSize),
		unregister:  make(chan *Subscription, registerChannelSize),
		refresh:     make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Refresh schedules a reload of the chat. It never blocks.
func (h *Hub) Refresh() {
	select {
	case h.refresh <- struct{}{}:
	default:
	}
}

func (h *Hub) loadUpdate() (Update, uint64, bool) {
	snapshot, err := h.load(context.Background(), h.chatId)
	if err != nil {
		globals.AppLogger.Error("could not load chat snapshot", "chat", h.chatId, "error", err)
		return Update{Err: err}, 0, false
	}
	hash, err := hashstructure.Hash(snapshot, hashstructure.FormatV2, nil)
	if err != nil {
		globals.AppLogger.Warn("could not hash chat snapshot", "chat", h.chatId, "error", err)
		return Update{Snapshot: snapshot}, 0, false
	}
	return Update{Snapshot: snapshot}, hash, true
}

// Run is the hub event loop handling register, unregister and refresh events.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case sub := <-h.register:
			select {
			case <-sub.done:
				// unsubscribed before the registration got here
				continue
			default:
			}
			h.subscribers[sub] = struct{}{}
			metrics.ActiveSubscriptions.Inc()
			// a new subscriber always starts with the current state
			u, hash, ok := h.loadUpdate()
			sub.push(u)
			if u.Err == nil && (!ok || !h.hasLast || hash != h.lastHash) {
				h.broadcast(u, sub)
			}
			h.lastHash, h.hasLast = hash, ok

		case sub := <-h.unregister:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				metrics.ActiveSubscriptions.Dec()
			}

		case <-h.refresh:
			if len(h.subscribers) == 0 {
				continue
			}
			u, hash, ok := h.loadUpdate()
			if ok && h.hasLast && hash == h.lastHash {
				metrics.SnapshotsSkipped.Inc()
				continue
			}
			h.lastHash, h.hasLast = hash, ok
			h.broadcast(u, nil)

		case <-h.stop:
			for sub := range h.subscribers {
				delete(h.subscribers, sub)
				metrics.ActiveSubscriptions.Dec()
			}
			return
		}
	}
}

func (h *Hub) broadcast(u Update, skip *Subscription) {
	for sub := range h.subscribers {
		if sub == skip {
			continue
		}
		sub.push(u)
	}
}
