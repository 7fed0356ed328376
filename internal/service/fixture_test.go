package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/service"
	"keikkaduuni/internal/store/sqlite"
)

type emitted struct {
	Room  string
	Event string
	Data  any
}

// recorder is a Notifier that keeps everything it is asked to deliver.
type recorder struct {
	mu     sync.Mutex
	events []emitted
	joins  map[string][]int64
}

func newRecorder() *recorder {
	return &recorder{joins: make(map[string][]int64)}
}

func (r *recorder) Emit(room, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{Room: room, Event: event, Data: data})
}

func (r *recorder) JoinUsers(room string, userIDs ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins[room] = append(r.joins[room], userIDs...)
}

func (r *recorder) find(room, event string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.events {
		if e.Room == room && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) joined(room string) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.joins[room]...)
}

type fixture struct {
	ctx    context.Context
	store  *domain.Store
	notify *recorder

	conversations *service.ConversationService
	messages      *service.MessageService
	notifications *service.NotificationService
	bookings      *service.BookingService
	offers        *service.OfferService

	alice, bob, carol *domain.User
	// aliceService is a service listing owned by alice; aliceNeed a need.
	aliceService, aliceNeed *domain.Listing
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	store := sqlite.NewStore(db)
	log := zaptest.NewLogger(t)
	rec := newRecorder()

	f := &fixture{ctx: context.Background(), store: store, notify: rec}
	f.conversations = service.NewConversationService(store, rec, log)
	f.messages = service.NewMessageService(store, rec, log)
	f.notifications = service.NewNotificationService(store.Notifications, rec)
	f.bookings = service.NewBookingService(store, f.conversations, f.notifications, rec, log)
	f.offers = service.NewOfferService(store, f.notifications, rec, log)

	f.alice = f.user(t, "Aino", "aino@example.com")
	f.bob = f.user(t, "Bertta", "bertta@example.com")
	f.carol = f.user(t, "Cecilia", "cecilia@example.com")
	f.aliceService = f.listing(t, domain.ListingService, f.alice.ID, "Nurmikon leikkuu")
	f.aliceNeed = f.listing(t, domain.ListingTarve, f.alice.ID, "Muuttoapu")
	return f
}

func (f *fixture) user(t *testing.T, name, email string) *domain.User {
	t.Helper()
	u := &domain.User{Name: name, Email: email, HashedPassword: "x"}
	require.NoError(t, f.store.Users.Create(f.ctx, u))
	return u
}

func (f *fixture) listing(t *testing.T, kind domain.ListingKind, ownerID int64, title string) *domain.Listing {
	t.Helper()
	l := &domain.Listing{Kind: kind, OwnerID: ownerID, Title: title}
	require.NoError(t, f.store.Listings.Create(f.ctx, l))
	return l
}

// conversation opens the alice/bob conversation about aliceService.
func (f *fixture) conversation(t *testing.T) int64 {
	t.Helper()
	conv, _, err := f.conversations.GetOrCreate(f.ctx, f.bob.ID, service.GetOrCreateInput{
		OtherUserID: f.alice.ID,
		Listing:     domain.ListingRef{ServiceID: &f.aliceService.ID},
	})
	require.NoError(t, err)
	return conv.ID
}

func (f *fixture) send(t *testing.T, conversationID, senderID int64, content string) int64 {
	t.Helper()
	msg, err := f.messages.Create(f.ctx, senderID, service.MessageCreateInput{
		ConversationID: conversationID,
		Content:        content,
	})
	require.NoError(t, err)
	return msg.ID
}

func (f *fixture) visibleIDs(t *testing.T, userID int64) []int64 {
	t.Helper()
	convs, err := f.conversations.List(f.ctx, userID)
	require.NoError(t, err)
	ids := make([]int64, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	return ids
}
