package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/clubchat/types"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMessageDocRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 9, 17, 30, 0, 0, time.UTC)
	msg := &types.Message{
		Id:        "m1",
		ChatId:    "c1",
		SenderId:  "coach@example.com",
		Created:   at,
		Kind:      types.MessageKindPoll,
		Important: true,
		Poll: &types.Poll{
			Question: "Bus or car?",
			Options:  []string{"bus", "car"},
			Votes:    []types.VoterSet{{"a@example.com", "b@example.com"}, nil},
		},
		Reactions: types.ReactionMap{"b@example.com": "👍", "a@example.com": "🎉"},
		ReadBy:    types.ReadSet{"a@example.com": at.Add(time.Minute)},
		Version:   3,
	}

	doc := newMessageDoc(msg)
	// entries are sorted, so the stored document does not depend on map order
	assert.Equal(t, []reactionDoc{
		{ParticipantId: "a@example.com", Emoji: "🎉"},
		{ParticipantId: "b@example.com", Emoji: "👍"},
	}, doc.Reactions)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	loaded := messageDoc{}
	require.NoError(t, bson.Unmarshal(raw, &loaded))

	got := loaded.toMessage()
	assert.Equal(t, msg.Reactions, got.Reactions)
	require.Len(t, got.ReadBy, 1)
	assert.True(t, at.Add(time.Minute).Equal(got.ReadBy["a@example.com"]))
	require.NotNil(t, got.Poll)
	assert.Equal(t, types.VoterSet{"a@example.com", "b@example.com"}, got.Poll.Votes[0])
	// a nil voter set comes back empty, never nil
	assert.NotNil(t, got.Poll.Votes[1])
	assert.Empty(t, got.Poll.Votes[1])
	assert.NoError(t, got.Validate())
	assert.True(t, at.Equal(got.Created))
	assert.Equal(t, int64(3), got.Version)
	assert.True(t, got.Important)
}

func TestPlainMessageDocHasNoPoll(t *testing.T) {
	msg, err := types.NewPlainMessage("c1", "coach@example.com", "see you", time.Now())
	require.NoError(t, err)
	doc := newMessageDoc(msg)
	assert.Nil(t, doc.Poll)
	assert.Empty(t, doc.Reactions)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	loaded := messageDoc{}
	require.NoError(t, bson.Unmarshal(raw, &loaded))
	got := loaded.toMessage()
	assert.Nil(t, got.Poll)
	assert.NotNil(t, got.Reactions)
	assert.NotNil(t, got.ReadBy)
	assert.NoError(t, got.Validate())
}

func TestChatDocRoundTrip(t *testing.T) {
	chat := &types.Chat{Id: "c1", Title: "U17", CreatorId: "coach", TeamId: "u17", Version: 2}
	raw, err := bson.Marshal(newChatDoc(chat))
	require.NoError(t, err)
	loaded := chatDoc{}
	require.NoError(t, bson.Unmarshal(raw, &loaded))

	got := loaded.toChat()
	assert.Equal(t, "u17", got.TeamId)
	assert.Equal(t, int64(2), got.Version)
	assert.NotNil(t, got.Members)
	assert.Empty(t, got.Members)
}
