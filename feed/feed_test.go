package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/types"
)

type fakeSource struct {
	title string
	err   error
	loads int
	sync.Mutex
}

func (f *fakeSource) set(title string, err error) {
	f.Lock()
	defer f.Unlock()
	f.title, f.err = title, err
}

func (f *fakeSource) load(_ context.Context, chatId string) (*types.Snapshot, error) {
	f.Lock()
	defer f.Unlock()
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return &types.Snapshot{Chat: &types.Chat{Id: chatId, Title: f.title}, Messages: []types.Message{}}, nil
}

type recorder struct {
	updates chan Update
}

func newRecorder() *recorder {
	return &recorder{updates: make(chan Update, 64)}
}

func (r *recorder) callback(u Update) {
	r.updates <- u
}

func (r *recorder) next(t *testing.T) Update {
	t.Helper()
	select {
	case u := <-r.updates:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}
	return Update{}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case u := <-r.updates:
		t.Fatalf("unexpected update: %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeDeliversCurrentState(t *testing.T) {
	src := &fakeSource{title: "first"}
	reg := NewRegistry(src.load, 4)
	defer reg.Close()

	rec := newRecorder()
	sub := reg.Subscribe("c1", rec.callback)
	defer sub.Unsubscribe()

	u := rec.next(t)
	require.NoError(t, u.Err)
	assert.Equal(t, "first", u.Snapshot.Chat.Title)

	src.set("second", nil)
	reg.Refresh("c1")
	u = rec.next(t)
	assert.Equal(t, "second", u.Snapshot.Chat.Title)
}

func TestRefreshWithoutChangeIsSkipped(t *testing.T) {
	src := &fakeSource{title: "same"}
	reg := NewRegistry(src.load, 4)
	defer reg.Close()

	rec := newRecorder()
	sub := reg.Subscribe("c1", rec.callback)
	defer sub.Unsubscribe()
	rec.next(t)

	reg.Refresh("c1")
	rec.none(t)
}

func TestSecondSubscriberGetsSnapshot(t *testing.T) {
	src := &fakeSource{title: "shared"}
	reg := NewRegistry(src.load, 4)
	defer reg.Close()

	rec1, rec2 := newRecorder(), newRecorder()
	sub1 := reg.Subscribe("c1", rec1.callback)
	defer sub1.Unsubscribe()
	rec1.next(t)

	sub2 := reg.Subscribe("c1", rec2.callback)
	defer sub2.Unsubscribe()
	u := rec2.next(t)
	assert.Equal(t, "shared", u.Snapshot.Chat.Title)
	// the state did not change, so the first subscriber gets nothing new
	rec1.none(t)
	assert.Equal(t, 2, reg.Subscribers("c1"))
}

func TestLoadErrorIsDelivered(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	reg := NewRegistry(src.load, 4)
	defer reg.Close()

	rec := newRecorder()
	sub := reg.Subscribe("c1", rec.callback)
	defer sub.Unsubscribe()
	u := rec.next(t)
	assert.Error(t, u.Err)
	assert.Nil(t, u.Snapshot)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	src := &fakeSource{title: "a"}
	reg := NewRegistry(src.load, 4)
	defer reg.Close()

	rec := newRecorder()
	sub := reg.Subscribe("c1", rec.callback)
	rec.next(t)

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, reg.Subscribers("c1"))

	src.set("b", nil)
	reg.Refresh("c1")
	rec.none(t)
}

func TestUnsubscribeWaitsForCallback(t *testing.T) {
	src := &fakeSource{title: "a"}
	reg := NewRegistry(src.load, 4)
	defer reg.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished bool
	var once sync.Once
	sub := reg.Subscribe("c1", func(u Update) {
		once.Do(func() { close(entered) })
		<-release
		finished = true
	})
	<-entered

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	sub.Unsubscribe()
	assert.True(t, finished)
}

func TestSlowSubscriberGetsLatest(t *testing.T) {
	src := &fakeSource{title: "v0"}
	reg := NewRegistry(src.load, 1)
	defer reg.Close()

	block := make(chan struct{})
	updates := make(chan string, 16)
	sub := reg.Subscribe("c1", func(u Update) {
		<-block
		updates <- u.Snapshot.Chat.Title
	})
	defer sub.Unsubscribe()

	for _, title := range []string{"v1", "v2", "v3"} {
		src.set(title, nil)
		reg.Refresh("c1")
		time.Sleep(20 * time.Millisecond)
	}
	close(block)

	var last string
	timeout := time.After(2 * time.Second)
	for last != "v3" {
		select {
		case last = <-updates:
		case <-timeout:
			t.Fatalf("latest snapshot not delivered, last was %q", last)
		}
	}
}

func TestLocalNotifier(t *testing.T) {
	n := NewLocalNotifier()
	var got []string
	stop, err := n.Subscribe(func(chatId string) { got = append(got, chatId) })
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), "c1"))
	stop()
	stop()
	require.NoError(t, n.Notify(context.Background(), "c2"))
	assert.Equal(t, []string{"c1"}, got)
	assert.NoError(t, n.Close())
}

func TestNewNotifierUnknownType(t *testing.T) {
	_, err := NewNotifier(&config.Config{FeedConfig: config.FeedConfig{Notifier: "carrier-pigeon"}})
	assert.Error(t, err)
}

func TestRedisNotifierUnreachable(t *testing.T) {
	cfg := &config.Config{FeedConfig: config.FeedConfig{
		Notifier:     "redis",
		RedisAddr:    "127.0.0.1:1",
		RedisChannel: "clubchat:test",
	}}
	n, err := NewNotifier(cfg)
	require.Error(t, err)
	assert.True(t, n == nil)
	assert.Contains(t, err.Error(), "redis ping")
}
