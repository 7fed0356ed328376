package chatclient

import (
	"sort"
	"sync"
	"time"

	"keikkaduuni/internal/wire"
)

// ConversationList is the local conversation list. Polls replace it
// wholesale, pushes patch it in between.
type ConversationList struct {
	mu    sync.Mutex
	byID  map[int64]*wire.Conversation
	dirty map[int64]struct{}
	// conversation id -> newest message id seen when read locally
	opened  map[int64]int64
	issued  uint64
	applied uint64
}

func NewConversationList() *ConversationList {
	return &ConversationList{
		byID:   make(map[int64]*wire.Conversation),
		dirty:  make(map[int64]struct{}),
		opened: make(map[int64]int64),
	}
}

// BeginPoll returns the sequence number to pass to ApplyPoll with the
// response of the poll being started.
func (l *ConversationList) BeginPoll() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issued++
	return l.issued
}

// ApplyPoll merges a poll response. A response older than one already
// applied is discarded and false is returned. A conversation whose local
// last message is newer than the polled one keeps its pushed state, since
// the push happened after the poll was answered. A conversation read
// locally stays read until the server reports a newer message, even if the
// mark-read request has not landed.
func (l *ConversationList) ApplyPoll(seq uint64, convs []wire.Conversation) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq <= l.applied {
		return false
	}
	l.applied = seq

	next := make(map[int64]*wire.Conversation, len(convs))
	for i := range convs {
		c := convs[i]
		if local, ok := l.byID[c.ID]; ok && newerMessage(local.LastMessage, c.LastMessage) {
			c.LastMessage = local.LastMessage
			c.IsUnread = local.IsUnread
			if local.UpdatedAt.After(c.UpdatedAt) {
				c.UpdatedAt = local.UpdatedAt
			}
		} else {
			delete(l.dirty, c.ID)
		}
		if seen, ok := l.opened[c.ID]; ok {
			switch {
			case !c.IsUnread:
				delete(l.opened, c.ID)
			case c.LastMessage == nil || c.LastMessage.ID <= seen:
				c.IsUnread = false
			default:
				delete(l.opened, c.ID)
			}
		}
		next[c.ID] = &c
	}
	l.byID = next
	return true
}

// ApplyNewMessage records a pushed message. openID is the conversation the
// user is looking at; it never turns unread. Unknown conversations are only
// marked dirty for the next poll.
func (l *ConversationList) ApplyNewMessage(m wire.Message, viewerID, openID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dirty[m.ConversationID] = struct{}{}

	c, ok := l.byID[m.ConversationID]
	if !ok {
		return
	}
	if newerMessage(&m, c.LastMessage) {
		msg := m
		c.LastMessage = &msg
		if m.CreatedAt.After(c.UpdatedAt) {
			c.UpdatedAt = m.CreatedAt
		}
	}
	if m.SenderID != viewerID && m.ConversationID != openID {
		c.IsUnread = true
		delete(l.opened, m.ConversationID)
	}
}

// MarkUnread applies a conversation-unread push.
func (l *ConversationList) MarkUnread(conversationID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dirty[conversationID] = struct{}{}
	delete(l.opened, conversationID)
	if c, ok := l.byID[conversationID]; ok {
		c.IsUnread = true
	}
}

// MarkReadLocal clears the unread flag without waiting for the server.
// lastMessageID is the newest message the user has seen.
func (l *ConversationList) MarkReadLocal(conversationID, lastMessageID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.byID[conversationID]
	if ok && c.LastMessage != nil && c.LastMessage.ID > lastMessageID {
		lastMessageID = c.LastMessage.ID
	}
	l.opened[conversationID] = lastMessageID
	if ok {
		c.IsUnread = false
	}
}

// Touch marks a conversation dirty.
func (l *ConversationList) Touch(conversationID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dirty[conversationID] = struct{}{}
}

func (l *ConversationList) Get(id int64) (wire.Conversation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.byID[id]
	if !ok {
		return wire.Conversation{}, false
	}
	return *c, true
}

// Dirty lists conversations changed by pushes since the last poll that
// covered them.
func (l *ConversationList) Dirty() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int64, 0, len(l.dirty))
	for id := range l.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Sorted returns the conversations by last activity, newest first.
func (l *ConversationList) Sorted() []wire.Conversation {
	l.mu.Lock()
	res := make([]wire.Conversation, 0, len(l.byID))
	for _, c := range l.byID {
		res = append(res, *c)
	}
	l.mu.Unlock()

	sort.Slice(res, func(i, j int) bool {
		ti, tj := activity(res[i]), activity(res[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return res[i].ID > res[j].ID
	})
	return res
}

func activity(c wire.Conversation) time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.CreatedAt
	}
	return c.UpdatedAt
}

// newerMessage reports whether a is strictly newer than b.
func newerMessage(a, b *wire.Message) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	case !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
