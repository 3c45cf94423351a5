package feed

import (
	"context"
	"sync"
)

// Notifier announces that a chat changed. Every process serving the chat refreshes its hub when it
// receives the announcement.
type Notifier interface {
	Notify(ctx context.Context, chatId string) error
	// Subscribe registers fn for change announcements. The returned function removes it again.
	Subscribe(fn func(chatId string)) (func(), error)
	Close() error
}

// LocalNotifier delivers announcements within the process only.
type LocalNotifier struct {
	listeners map[int]func(string)
	next      int
	sync.RWMutex
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: make(map[int]func(string))}
}

func (n *LocalNotifier) Notify(_ context.Context, chatId string) error {
	n.RLock()
	fns := make([]func(string), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.RUnlock()
	for _, fn := range fns {
		fn(chatId)
	}
	return nil
}

func (n *LocalNotifier) Subscribe(fn func(chatId string)) (func(), error) {
	n.Lock()
	defer n.Unlock()
	id := n.next
	n.next++
	n.listeners[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			n.Lock()
			delete(n.listeners, id)
			n.Unlock()
		})
	}, nil
}

func (n *LocalNotifier) Close() error {
	n.Lock()
	n.listeners = make(map[int]func(string))
	n.Unlock()
	return nil
}
