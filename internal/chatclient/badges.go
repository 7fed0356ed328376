package chatclient

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"keikkaduuni/internal/wire"
)

// ReadMarker persists read state on the server.
type ReadMarker interface {
	MarkBookingRead(ctx context.Context, id int64) error
	MarkOfferRead(ctx context.Context, id int64) error
	MarkConversationRead(ctx context.Context, conversationID int64) error
}

// BadgeCounts is the number of unread items per tab.
type BadgeCounts struct {
	Bookings      int
	Offers        int
	Conversations int
}

// Badges derives unread badges from polled snapshots. Opening an item
// clears its badge at once and marks it read in the background; a failed
// mark-read is logged and the badge stays cleared.
type Badges struct {
	viewerID int64
	marker   ReadMarker
	log      *zap.Logger

	mu sync.Mutex
	// listing id -> unread incoming request ids
	bookingsByService map[int64]map[int64]struct{}
	offersByNeed      map[int64]map[int64]struct{}
	conversations     map[int64]struct{}

	openedBookings map[int64]struct{}
	openedOffers   map[int64]struct{}
	// conversation id -> newest message id seen when opened
	openedConversations map[int64]int64

	wg sync.WaitGroup
}

func NewBadges(viewerID int64, marker ReadMarker, log *zap.Logger) *Badges {
	return &Badges{
		viewerID:            viewerID,
		marker:              marker,
		log:                 log,
		bookingsByService:   make(map[int64]map[int64]struct{}),
		offersByNeed:        make(map[int64]map[int64]struct{}),
		conversations:       make(map[int64]struct{}),
		openedBookings:      make(map[int64]struct{}),
		openedOffers:        make(map[int64]struct{}),
		openedConversations: make(map[int64]int64),
	}
}

// Update recomputes the badges from a poll. Items opened locally stay
// cleared even if the server has not caught up; a conversation comes back
// once a message newer than the one seen at open time arrives.
func (b *Badges) Update(bookings []wire.Booking, offers []wire.Offer, convs []wire.Conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bookingsByService = make(map[int64]map[int64]struct{})
	for _, bk := range bookings {
		if bk.OwnerID != b.viewerID || bk.IsRead {
			continue
		}
		if _, ok := b.openedBookings[bk.ID]; ok {
			continue
		}
		addTo(b.bookingsByService, bk.ServiceID, bk.ID)
	}

	b.offersByNeed = make(map[int64]map[int64]struct{})
	for _, o := range offers {
		if o.OwnerID != b.viewerID || o.IsRead {
			continue
		}
		if _, ok := b.openedOffers[o.ID]; ok {
			continue
		}
		addTo(b.offersByNeed, o.TarveID, o.ID)
	}

	b.conversations = make(map[int64]struct{})
	for _, c := range convs {
		if !c.IsUnread {
			delete(b.openedConversations, c.ID)
			continue
		}
		if seen, ok := b.openedConversations[c.ID]; ok && (c.LastMessage == nil || c.LastMessage.ID <= seen) {
			continue
		}
		delete(b.openedConversations, c.ID)
		b.conversations[c.ID] = struct{}{}
	}
}

// ConversationUnread flags a conversation from a push.
func (b *Badges) ConversationUnread(conversationID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.openedConversations, conversationID)
	b.conversations[conversationID] = struct{}{}
}

func (b *Badges) ServiceHasUnread(serviceID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bookingsByService[serviceID]) > 0
}

func (b *Badges) NeedHasUnread(tarveID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.offersByNeed[tarveID]) > 0
}

func (b *Badges) IsConversationUnread(conversationID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[conversationID]
	return ok
}

func (b *Badges) Counts() BadgeCounts {
	b.mu.Lock()
	defer b.mu.Unlock()
	res := BadgeCounts{Conversations: len(b.conversations)}
	for _, set := range b.bookingsByService {
		res.Bookings += len(set)
	}
	for _, set := range b.offersByNeed {
		res.Offers += len(set)
	}
	return res
}

func (b *Badges) OpenBooking(ctx context.Context, id int64) {
	b.mu.Lock()
	b.openedBookings[id] = struct{}{}
	removeFrom(b.bookingsByService, id)
	b.mu.Unlock()

	b.markInBackground(ctx, "booking", id, b.marker.MarkBookingRead)
}

func (b *Badges) OpenOffer(ctx context.Context, id int64) {
	b.mu.Lock()
	b.openedOffers[id] = struct{}{}
	removeFrom(b.offersByNeed, id)
	b.mu.Unlock()

	b.markInBackground(ctx, "offer", id, b.marker.MarkOfferRead)
}

// OpenConversation clears the conversation badge. lastMessageID is the
// newest message the user is looking at.
func (b *Badges) OpenConversation(ctx context.Context, id, lastMessageID int64) {
	b.mu.Lock()
	b.openedConversations[id] = lastMessageID
	delete(b.conversations, id)
	b.mu.Unlock()

	b.markInBackground(ctx, "conversation", id, b.marker.MarkConversationRead)
}

// Wait blocks until background mark-read calls have finished.
func (b *Badges) Wait() {
	b.wg.Wait()
}

func (b *Badges) markInBackground(ctx context.Context, kind string, id int64, mark func(context.Context, int64) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := mark(ctx, id); err != nil {
			b.log.Warn("mark read failed", zap.String("kind", kind), zap.Int64("id", id), zap.Error(err))
		}
	}()
}

func addTo(m map[int64]map[int64]struct{}, key, id int64) {
	set := m[key]
	if set == nil {
		set = make(map[int64]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

func removeFrom(m map[int64]map[int64]struct{}, id int64) {
	for key, set := range m {
		delete(set, id)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}
