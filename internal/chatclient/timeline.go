package chatclient

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"keikkaduuni/internal/wire"
)

// EntryState tracks an entry through the optimistic send protocol.
type EntryState int

const (
	EntryConfirmed EntryState = iota
	EntryPending
	EntryFailed
)

func (s EntryState) String() string {
	switch s {
	case EntryPending:
		return "pending"
	case EntryFailed:
		return "failed"
	}
	return "confirmed"
}

// Entry is one row of the open conversation. Local entries have a TempID
// and a zero Message.ID until confirmed.
type Entry struct {
	TempID      string
	Message     wire.Message
	State       EntryState
	Attachments []Attachment
}

// Timeline is the message list of the open conversation. Confirmed
// messages are kept ordered by (createdAt, id); local entries follow them
// in the order they were sent.
type Timeline struct {
	mu             sync.Mutex
	conversationID int64
	viewerID       int64
	confirmed      []wire.Message
	local          []*Entry
	issued         uint64
	applied        uint64
	// message id -> merge sequence current when it arrived outside a poll
	fresh map[int64]uint64
}

func NewTimeline(conversationID, viewerID int64) *Timeline {
	return &Timeline{conversationID: conversationID, viewerID: viewerID, fresh: make(map[int64]uint64)}
}

func (t *Timeline) ConversationID() int64 { return t.conversationID }

// AddPending appends an optimistic entry and returns a copy of it.
func (t *Timeline) AddPending(content string, files []Attachment, now time.Time) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &Entry{
		TempID: uuid.NewString(),
		Message: wire.Message{
			ConversationID: t.conversationID,
			SenderID:       t.viewerID,
			Content:        content,
			Attachments:    []string{},
			CreatedAt:      now,
		},
		State:       EntryPending,
		Attachments: files,
	}
	for _, f := range files {
		e.Message.Attachments = append(e.Message.Attachments, "local:"+f.Name)
	}
	t.local = append(t.local, e)
	return *e
}

// Confirm swaps the pending entry for the stored message. If a push
// already delivered that message the pending entry is simply dropped.
func (t *Timeline) Confirm(tempID string, m wire.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocal(tempID)
	if t.insertConfirmed(m) {
		t.fresh[m.ID] = t.issued
	}
}

// Fail flags a pending entry for retry. It stays in the timeline.
func (t *Timeline) Fail(tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e := t.findLocal(tempID); e != nil {
		e.State = EntryFailed
	}
}

// BeginRetry moves a failed entry back to pending and returns it.
func (t *Timeline) BeginRetry(tempID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.findLocal(tempID)
	if e == nil || e.State != EntryFailed {
		return Entry{}, false
	}
	e.State = EntryPending
	return *e, true
}

// ApplyPush adds a pushed message unless it is already present.
func (t *Timeline) ApplyPush(m wire.Message) bool {
	if m.ConversationID != t.conversationID {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.insertConfirmed(m) {
		return false
	}
	t.fresh[m.ID] = t.issued
	return true
}

// BeginMerge returns the sequence number for a MergeServer call.
func (t *Timeline) BeginMerge() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.issued++
	return t.issued
}

// MergeServer reconciles the newest page from a poll. Messages are keyed by
// id and local entries are untouched. A confirmed message at or after the
// page's oldest message that the server no longer returns is dropped as
// deleted, unless it arrived after the poll was issued. Stale responses are
// discarded.
func (t *Timeline) MergeServer(seq uint64, page []wire.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq <= t.applied {
		return false
	}
	t.applied = seq

	inPage := make(map[int64]struct{}, len(page))
	var oldest *wire.Message
	for i := range page {
		inPage[page[i].ID] = struct{}{}
		if oldest == nil || before(page[i], *oldest) {
			oldest = &page[i]
		}
	}
	t.confirmed = slices.DeleteFunc(t.confirmed, func(m wire.Message) bool {
		if _, ok := inPage[m.ID]; ok {
			return false
		}
		if at, ok := t.fresh[m.ID]; ok && at >= seq {
			return false
		}
		return oldest == nil || !before(m, *oldest)
	})
	for _, m := range page {
		t.insertConfirmed(m)
	}
	for id, at := range t.fresh {
		if at < seq {
			delete(t.fresh, id)
		}
	}
	return true
}

// Prepend adds older history and reports how many messages were new.
func (t *Timeline) Prepend(older []wire.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	added := 0
	for _, m := range older {
		if t.insertConfirmed(m) {
			added++
		}
	}
	return added
}

// Remove drops a deleted message.
func (t *Timeline) Remove(messageID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.confirmed = slices.DeleteFunc(t.confirmed, func(m wire.Message) bool { return m.ID == messageID })
	delete(t.fresh, messageID)
}

// Entries returns a snapshot in display order.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := make([]Entry, 0, len(t.confirmed)+len(t.local))
	for _, m := range t.confirmed {
		res = append(res, Entry{Message: m, State: EntryConfirmed})
	}
	for _, e := range t.local {
		res = append(res, *e)
	}
	return res
}

// Len is the number of entries.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.confirmed) + len(t.local)
}

func (t *Timeline) insertConfirmed(m wire.Message) bool {
	i, found := slices.BinarySearchFunc(t.confirmed, m, compareMessages)
	if found {
		t.confirmed[i] = m
		return false
	}
	// The id may already be present under another timestamp.
	if slices.ContainsFunc(t.confirmed, func(c wire.Message) bool { return c.ID == m.ID }) {
		return false
	}
	t.confirmed = slices.Insert(t.confirmed, i, m)
	return true
}

func (t *Timeline) findLocal(tempID string) *Entry {
	for _, e := range t.local {
		if e.TempID == tempID {
			return e
		}
	}
	return nil
}

func (t *Timeline) removeLocal(tempID string) {
	t.local = slices.DeleteFunc(t.local, func(e *Entry) bool { return e.TempID == tempID })
}

func compareMessages(a, b wire.Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func before(a, b wire.Message) bool {
	return compareMessages(a, b) < 0
}
