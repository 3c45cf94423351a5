package feed

import (
	"sync"
)

// Registry keeps one Hub per chat that currently has subscribers.
type Registry struct {
	load      LoadFunc
	queueSize int

	hubs map[string]*registeredHub
	sync.Mutex
}

type registeredHub struct {
	*Hub
	refs int
}

func NewRegistry(load LoadFunc, queueSize int) *Registry {
	return &Registry{
		load:      load,
		queueSize: queueSize,
		hubs:      make(map[string]*registeredHub),
	}
}

// Subscribe starts delivering updates of chatId to callback. The first update carries the current
// state of the chat.
func (r *Registry) Subscribe(chatId string, callback func(Update)) *Subscription {
	r.Lock()
	rh, ok := r.hubs[chatId]
	if !ok {
		rh = &registeredHub{Hub: newHub(chatId, r.load)}
		r.hubs[chatId] = rh
		go rh.Run()
	}
	rh.refs++
	r.Unlock()

	sub := newSubscription(r, rh.Hub, r.queueSize, callback)
	go sub.loop()
	select {
	case rh.register <- sub:
	case <-rh.done:
	}
	return sub
}

func (r *Registry) unsubscribe(sub *Subscription) {
	r.Lock()
	rh, ok := r.hubs[sub.hub.chatId]
	last := false
	if ok && rh.Hub == sub.hub {
		rh.refs--
		if rh.refs == 0 {
			delete(r.hubs, sub.hub.chatId)
			last = true
		}
	}
	r.Unlock()

	select {
	case sub.hub.unregister <- sub:
	case <-sub.hub.done:
	}
	if last {
		close(sub.hub.stop)
	}
}

// Refresh makes the hub of chatId (if any) reload and deliver the chat's state.
func (r *Registry) Refresh(chatId string) {
	r.Lock()
	rh, ok := r.hubs[chatId]
	r.Unlock()
	if ok {
		rh.Refresh()
	}
}

// Subscribers returns the number of open subscriptions for chatId.
func (r *Registry) Subscribers(chatId string) int {
	r.Lock()
	defer r.Unlock()
	if rh, ok := r.hubs[chatId]; ok {
		return rh.refs
	}
	return 0
}

// Close stops all hubs. Open subscriptions stop receiving updates.
func (r *Registry) Close() {
	r.Lock()
	hubs := r.hubs
	r.hubs = make(map[string]*registeredHub)
	r.Unlock()
	for _, rh := range hubs {
		close(rh.stop)
		<-rh.done
	}
}
