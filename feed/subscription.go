package feed

import (
	"sync"

	"github.com/tcriess/clubchat/metrics"
)

// Subscription delivers updates of one chat to a callback, one at a time and in order. If the
// callback falls behind, the oldest queued updates are dropped: every update is a complete snapshot,
// so only the latest one matters.
type Subscription struct {
	registry *Registry
	hub      *Hub
	callback func(Update)
	queue    chan Update

	// mu is held while the callback runs, Unsubscribe takes it to wait for an in-flight callback.
	mu      sync.Mutex
	stopped bool

	once sync.Once
	done chan struct{}
}

func newSubscription(registry *Registry, hub *Hub, queueSize int, callback func(Update)) *Subscription {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Subscription{
		registry: registry,
		hub:      hub,
		callback: callback,
		queue:    make(chan Update, queueSize),
		done:     make(chan struct{}),
	}
}

// push enqueues u without blocking. It is only called from the hub's Run loop.
func (s *Subscription) push(u Update) {
	select {
	case s.queue <- u:
		return
	default:
	}
	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- u:
	default:
	}
}

func (s *Subscription) loop() {
	for {
		select {
		case <-s.done:
			return
		case u := <-s.queue:
			s.deliver(u)
		}
	}
}

func (s *Subscription) deliver(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.callback(u)
	metrics.SnapshotsDelivered.Inc()
}

// Unsubscribe stops the delivery. When it returns, no callback is running and none will run again.
// Redundant calls are no-ops. It must not be called from within the callback.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.done)
		s.registry.unsubscribe(s)
	})
}
