package importance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/clubchat/types"
)

var t0 = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

func message(t *testing.T, text string, at time.Time) types.Message {
	m, err := types.NewPlainMessage("c1", "coach", text, at)
	require.NoError(t, err)
	return *m
}

func TestMarkImportantTwice(t *testing.T) {
	m := message(t, "bring your passport", t0)
	assert.True(t, MarkImportant(&m))
	_, err := Acknowledge(&m, "p", t0.Add(time.Minute))
	require.NoError(t, err)

	assert.False(t, MarkImportant(&m))
	assert.True(t, m.Important)
	assert.True(t, m.ReadBy.Has("p"))
}

func TestAcknowledgeKeepsFirstTimestamp(t *testing.T) {
	m := message(t, "match moved to 11:00", t0)
	MarkImportant(&m)

	changed, err := Acknowledge(&m, "p", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = Acknowledge(&m, "p", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, t0.Add(time.Minute), m.ReadBy["p"])

	plain := message(t, "hello", t0)
	_, err = Acknowledge(&plain, "p", t0)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
	_, err = Acknowledge(&m, "", t0)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
}

func TestUnreadImportantFor(t *testing.T) {
	m1 := message(t, "m1", t0)
	m1.Important = true
	m2 := message(t, "m2", t0.Add(time.Minute))
	m2.Important = true
	m2.ReadBy["p"] = t0.Add(2 * time.Minute)

	assert.Equal(t, []types.Message{m1}, UnreadImportantFor([]types.Message{m1, m2}, "p"))
	assert.Equal(t, []types.Message{m1, m2}, UnreadImportantFor([]types.Message{m2, m1}, "q"))
}

func TestUnreadImportantForProperties(t *testing.T) {
	var messages []types.Message
	for i := 0; i < 10; i++ {
		m := message(t, "msg", t0.Add(time.Duration(10-i)*time.Minute))
		m.Important = i%2 == 0
		if i%3 == 0 {
			m.ReadBy["p"] = t0
		}
		messages = append(messages, m)
	}
	for _, participant := range []string{"p", "q"} {
		unread := UnreadImportantFor(messages, participant)
		for i, m := range unread {
			assert.True(t, m.Important)
			assert.False(t, m.ReadBy.Has(participant))
			if i > 0 {
				assert.False(t, m.Created.Before(unread[i-1].Created))
			}
		}
		for _, m := range messages {
			if m.Important && len(m.ReadBy) == 0 {
				assert.Contains(t, unread, m)
			}
		}
	}
}

func TestNextUnread(t *testing.T) {
	m1 := message(t, "m1", t0)
	m2 := message(t, "m2", t0.Add(time.Minute))
	_, ok := NextUnread([]types.Message{m1, m2}, "p")
	assert.False(t, ok)

	MarkImportant(&m2)
	next, ok := NextUnread([]types.Message{m1, m2}, "p")
	require.True(t, ok)
	assert.Equal(t, m2.Id, next.Id)
}
