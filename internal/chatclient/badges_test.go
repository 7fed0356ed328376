package chatclient

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"keikkaduuni/internal/wire"
)

type fakeMarker struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeMarker) record(kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	return f.err
}

func (f *fakeMarker) MarkBookingRead(context.Context, int64) error { return f.record("booking") }
func (f *fakeMarker) MarkOfferRead(context.Context, int64) error   { return f.record("offer") }

func (f *fakeMarker) MarkConversationRead(context.Context, int64) error {
	return f.record("conversation")
}

func TestBadgesCountOwnUnread(t *testing.T) {
	b := NewBadges(1, &fakeMarker{}, zaptest.NewLogger(t))
	b.Update(
		[]wire.Booking{
			{ID: 1, ServiceID: 10, OwnerID: 1},
			{ID: 2, ServiceID: 10, OwnerID: 1, IsRead: true},
			{ID: 3, ServiceID: 11, OwnerID: 2},
		},
		[]wire.Offer{{ID: 4, TarveID: 20, OwnerID: 1}},
		[]wire.Conversation{conv(7, nil, true), conv(8, nil, false)},
	)

	assert.Equal(t, BadgeCounts{Bookings: 1, Offers: 1, Conversations: 1}, b.Counts())
	assert.True(t, b.ServiceHasUnread(10))
	assert.False(t, b.ServiceHasUnread(11), "outgoing request")
	assert.True(t, b.NeedHasUnread(20))
	assert.True(t, b.IsConversationUnread(7))
	assert.False(t, b.IsConversationUnread(8))
}

func TestBadgesOpenedStayCleared(t *testing.T) {
	marker := &fakeMarker{err: errors.New("server down")}
	b := NewBadges(1, marker, zaptest.NewLogger(t))
	bookings := []wire.Booking{{ID: 1, ServiceID: 10, OwnerID: 1}}
	offers := []wire.Offer{{ID: 4, TarveID: 20, OwnerID: 1}}
	convs := []wire.Conversation{conv(7, ptr(msg(5, 5, 2)), true)}
	b.Update(bookings, offers, convs)

	b.OpenBooking(context.Background(), 1)
	b.OpenOffer(context.Background(), 4)
	b.OpenConversation(context.Background(), 7, 5)
	b.Wait()
	assert.ElementsMatch(t, []string{"booking", "offer", "conversation"}, marker.calls)

	// Mark-read failed, so the server still says unread.
	b.Update(bookings, offers, convs)
	assert.Equal(t, BadgeCounts{}, b.Counts())

	convs = []wire.Conversation{conv(7, ptr(msg(6, 6, 2)), true)}
	b.Update(bookings, offers, convs)
	assert.True(t, b.IsConversationUnread(7), "a newer message brings it back")
}

func TestBadgesPushedUnread(t *testing.T) {
	b := NewBadges(1, &fakeMarker{}, zaptest.NewLogger(t))
	b.OpenConversation(context.Background(), 7, 5)
	b.ConversationUnread(7)
	assert.True(t, b.IsConversationUnread(7))
	b.Wait()
}
