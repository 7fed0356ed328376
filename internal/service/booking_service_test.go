package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/service"
	"keikkaduuni/internal/wire"
)

func TestPaymentCreatesConversationOnce(t *testing.T) {
	f := newFixture(t)

	b, err := f.bookings.Create(f.ctx, f.bob.ID, service.BookingCreateInput{ServiceID: f.aliceService.ID, Message: "Ensi viikolla?"})
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, b.OwnerID)
	assert.Empty(t, f.visibleIDs(t, f.bob.ID), "no conversation before payment")

	_, err = f.bookings.UpdateStatus(f.ctx, b.ID, f.alice.ID, domain.StatusApproved)
	require.NoError(t, err)

	res, err := f.bookings.Pay(f.ctx, b.ID, f.bob.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Booking.PaymentCompleted)
	require.NotNil(t, res.Conversation.ServiceID)
	assert.Equal(t, f.aliceService.ID, *res.Conversation.ServiceID)

	assert.Equal(t, []int64{res.Conversation.ID}, f.visibleIDs(t, f.alice.ID))
	assert.Equal(t, []int64{res.Conversation.ID}, f.visibleIDs(t, f.bob.ID))

	notes, err := f.notifications.List(f.ctx, f.alice.ID)
	require.NoError(t, err)
	var payments []*domain.Notification
	for _, n := range notes {
		if n.Type == domain.NotificationPayment {
			payments = append(payments, n)
		}
	}
	require.Len(t, payments, 1)
	assert.Equal(t, fmt.Sprintf("/messages/%d", res.Conversation.ID), payments[0].Link)

	again, err := f.bookings.Pay(f.ctx, b.ID, f.bob.ID)
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, res.Conversation.ID, again.Conversation.ID)

	notes, err = f.notifications.List(f.ctx, f.alice.ID)
	require.NoError(t, err)
	count := 0
	for _, n := range notes {
		if n.Type == domain.NotificationPayment {
			count++
		}
	}
	assert.Equal(t, 1, count, "repeated payment does not notify again")
	assert.NotEmpty(t, f.notify.find(wire.UserRoom(f.alice.ID), wire.EventNotificationCreated))
	assert.NotEmpty(t, f.notify.find(wire.UserRoom(f.bob.ID), wire.EventBookingUpdated))
}

// flakyNotifications fails the first insert and passes the rest through.
type flakyNotifications struct {
	domain.NotificationRepository
	mu     sync.Mutex
	failed bool
}

func (r *flakyNotifications) CreateOnce(ctx context.Context, n *domain.Notification) (bool, error) {
	r.mu.Lock()
	fail := !r.failed
	r.failed = true
	r.mu.Unlock()
	if fail {
		return false, errors.New("store unavailable")
	}
	return r.NotificationRepository.CreateOnce(ctx, n)
}

func TestPaymentRetryAfterNotificationFailure(t *testing.T) {
	f := newFixture(t)
	notifications := service.NewNotificationService(&flakyNotifications{NotificationRepository: f.store.Notifications}, f.notify)
	bookings := service.NewBookingService(f.store, f.conversations, notifications, f.notify, zaptest.NewLogger(t))

	b, err := bookings.Create(f.ctx, f.bob.ID, service.BookingCreateInput{ServiceID: f.aliceService.ID})
	require.NoError(t, err)
	_, err = bookings.UpdateStatus(f.ctx, b.ID, f.alice.ID, domain.StatusApproved)
	require.NoError(t, err)

	_, err = bookings.Pay(f.ctx, b.ID, f.bob.ID)
	require.ErrorContains(t, err, "store unavailable")
	unpaid, err := f.store.Bookings.GetByID(f.ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, unpaid.PaymentCompleted, "a failed payment leaves the booking unpaid")

	res, err := bookings.Pay(f.ctx, b.ID, f.bob.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	_, err = bookings.Pay(f.ctx, b.ID, f.bob.ID)
	require.NoError(t, err)

	notes, err := notifications.List(f.ctx, f.alice.ID)
	require.NoError(t, err)
	var payments []*domain.Notification
	for _, n := range notes {
		if n.Type == domain.NotificationPayment {
			payments = append(payments, n)
		}
	}
	require.Len(t, payments, 1)
	assert.Equal(t, fmt.Sprintf("/messages/%d", res.Conversation.ID), payments[0].Link)
}

func TestPaymentReusesExistingConversation(t *testing.T) {
	f := newFixture(t)
	existing := f.conversation(t)

	b, err := f.bookings.Create(f.ctx, f.bob.ID, service.BookingCreateInput{ServiceID: f.aliceService.ID})
	require.NoError(t, err)
	_, err = f.bookings.UpdateStatus(f.ctx, b.ID, f.alice.ID, domain.StatusApproved)
	require.NoError(t, err)

	res, err := f.bookings.Pay(f.ctx, b.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, existing, res.Conversation.ID)
}

func TestPaymentRules(t *testing.T) {
	f := newFixture(t)
	b, err := f.bookings.Create(f.ctx, f.bob.ID, service.BookingCreateInput{ServiceID: f.aliceService.ID})
	require.NoError(t, err)

	_, err = f.bookings.Pay(f.ctx, b.ID, f.bob.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "pending bookings cannot be paid")

	_, err = f.bookings.UpdateStatus(f.ctx, b.ID, f.alice.ID, domain.StatusApproved)
	require.NoError(t, err)
	_, err = f.bookings.Pay(f.ctx, b.ID, f.alice.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden, "only the customer pays")
	_, err = f.bookings.Pay(f.ctx, 9999, f.bob.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookingReadAndStatus(t *testing.T) {
	f := newFixture(t)

	_, err := f.bookings.Create(f.ctx, f.alice.ID, service.BookingCreateInput{ServiceID: f.aliceService.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "own service")

	b, err := f.bookings.Create(f.ctx, f.bob.ID, service.BookingCreateInput{ServiceID: f.aliceService.ID})
	require.NoError(t, err)
	assert.False(t, b.IsRead)

	_, err = f.bookings.MarkRead(f.ctx, b.ID, f.bob.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	read, err := f.bookings.MarkRead(f.ctx, b.ID, f.alice.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	_, err = f.bookings.UpdateStatus(f.ctx, b.ID, f.alice.ID, domain.RequestStatus("maybe"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.bookings.UpdateStatus(f.ctx, b.ID, f.bob.ID, domain.StatusApproved)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	rejected, err := f.bookings.UpdateStatus(f.ctx, b.ID, f.alice.ID, domain.StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)

	list, err := f.bookings.List(f.ctx, f.bob.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, f.bookings.Delete(f.ctx, b.ID, f.carol.ID), domain.ErrForbidden)
	require.NoError(t, f.bookings.Delete(f.ctx, b.ID, f.bob.ID))
	gone := f.notify.find(wire.UserRoom(f.alice.ID), wire.EventBookingDeleted)
	require.Len(t, gone, 1)
	assert.Equal(t, wire.Deleted{ID: b.ID}, gone[0].Data)
}

func TestOfferLifecycle(t *testing.T) {
	f := newFixture(t)

	_, err := f.offers.Create(f.ctx, f.bob.ID, service.OfferCreateInput{TarveID: f.aliceNeed.ID, Price: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	o, err := f.offers.Create(f.ctx, f.bob.ID, service.OfferCreateInput{TarveID: f.aliceNeed.ID, Message: "Autan", Price: 4500})
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, o.OwnerID)
	assert.Equal(t, domain.StatusPending, o.Status)

	_, err = f.offers.UpdateStatus(f.ctx, o.ID, f.bob.ID, domain.StatusApproved)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	approved, err := f.offers.UpdateStatus(f.ctx, o.ID, f.alice.ID, domain.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)

	for _, uid := range []int64{f.alice.ID, f.bob.ID} {
		assert.NotEmpty(t, f.notify.find(wire.UserRoom(uid), wire.EventOfferUpdated))
	}

	read, err := f.offers.MarkRead(f.ctx, o.ID, f.alice.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	require.NoError(t, f.offers.Delete(f.ctx, o.ID, f.alice.ID))
	assert.Len(t, f.notify.find(wire.UserRoom(f.bob.ID), wire.EventOfferDeleted), 1)
	_, err = f.offers.MarkRead(f.ctx, o.ID, f.alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotificationMarkRead(t *testing.T) {
	f := newFixture(t)
	n, err := f.notifications.Push(f.ctx, f.alice.ID, domain.NotificationPayment, "maksettu", "/messages/1")
	require.NoError(t, err)

	assert.ErrorIs(t, f.notifications.MarkRead(f.ctx, n.ID, f.bob.ID), domain.ErrNotFound)
	require.NoError(t, f.notifications.MarkRead(f.ctx, n.ID, f.alice.ID))

	list, err := f.notifications.List(f.ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsRead)
}
