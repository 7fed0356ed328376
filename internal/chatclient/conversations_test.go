package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keikkaduuni/internal/wire"
)

func conv(id int64, last *wire.Message, unread bool) wire.Conversation {
	return wire.Conversation{ID: id, LastMessage: last, IsUnread: unread, UpdatedAt: t0}
}

func ptr(m wire.Message) *wire.Message { return &m }

func TestConversationListPollSequence(t *testing.T) {
	l := NewConversationList()
	slow := l.BeginPoll()
	fast := l.BeginPoll()

	require.True(t, l.ApplyPoll(fast, []wire.Conversation{conv(1, nil, true)}))
	assert.False(t, l.ApplyPoll(slow, []wire.Conversation{conv(1, nil, false)}), "late response is stale")

	c, ok := l.Get(1)
	require.True(t, ok)
	assert.True(t, c.IsUnread)
}

func TestConversationListPushThenPoll(t *testing.T) {
	l := NewConversationList()
	l.ApplyPoll(l.BeginPoll(), []wire.Conversation{conv(7, ptr(msg(1, 1, 1)), false)})

	seq := l.BeginPoll()
	l.ApplyNewMessage(msg(2, 5, 2), 1, 0)
	assert.Equal(t, []int64{7}, l.Dirty())

	// The poll was answered before message 2 existed.
	l.ApplyPoll(seq, []wire.Conversation{conv(7, ptr(msg(1, 1, 1)), false)})
	c, _ := l.Get(7)
	assert.Equal(t, int64(2), c.LastMessage.ID)
	assert.True(t, c.IsUnread)
	assert.Equal(t, []int64{7}, l.Dirty())

	l.ApplyPoll(l.BeginPoll(), []wire.Conversation{conv(7, ptr(msg(2, 5, 2)), true)})
	assert.Empty(t, l.Dirty())
}

func TestConversationListOpenNeverUnread(t *testing.T) {
	l := NewConversationList()
	l.ApplyPoll(l.BeginPoll(), []wire.Conversation{conv(7, nil, false), conv(8, nil, false)})

	l.ApplyNewMessage(msg(1, 1, 2), 1, 7)
	c, _ := l.Get(7)
	assert.False(t, c.IsUnread)

	own := msg(2, 2, 1)
	own.ConversationID = 8
	l.ApplyNewMessage(own, 1, 7)
	c, _ = l.Get(8)
	assert.False(t, c.IsUnread, "own message")

	l.MarkUnread(8)
	c, _ = l.Get(8)
	assert.True(t, c.IsUnread)
	l.MarkReadLocal(8, 0)
	c, _ = l.Get(8)
	assert.False(t, c.IsUnread)
}

func TestConversationListSorted(t *testing.T) {
	l := NewConversationList()
	empty := conv(3, nil, false)
	empty.UpdatedAt = t0.Add(3 * time.Second)
	l.ApplyPoll(l.BeginPoll(), []wire.Conversation{
		conv(1, ptr(msg(10, 1, 2)), false),
		conv(2, ptr(msg(11, 5, 2)), false),
		empty,
		conv(4, ptr(msg(12, 5, 2)), false),
	})

	var got []int64
	for _, c := range l.Sorted() {
		got = append(got, c.ID)
	}
	assert.Equal(t, []int64{4, 2, 3, 1}, got)
}

func TestConversationListLocalReadSticks(t *testing.T) {
	l := NewConversationList()
	l.ApplyPoll(l.BeginPoll(), []wire.Conversation{conv(3, ptr(msg(5, 5, 2)), true)})
	l.MarkReadLocal(3, 5)

	// Mark-read has not reached the server yet.
	l.ApplyPoll(l.BeginPoll(), []wire.Conversation{conv(3, ptr(msg(5, 5, 2)), true)})
	c, _ := l.Get(3)
	assert.False(t, c.IsUnread)

	l.ApplyPoll(l.BeginPoll(), []wire.Conversation{conv(3, ptr(msg(6, 6, 2)), true)})
	c, _ = l.Get(3)
	assert.True(t, c.IsUnread, "a newer message makes it unread again")

	l.MarkReadLocal(3, 6)
	l.MarkUnread(3)
	l.ApplyPoll(l.BeginPoll(), []wire.Conversation{conv(3, ptr(msg(6, 6, 2)), true)})
	c, _ = l.Get(3)
	assert.True(t, c.IsUnread, "pushed unread wins over the local read")
}
