package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/wire"
)

// BookingService covers the booking transitions that feed conversations,
// badges and notifications.
type BookingService struct {
	store         *domain.Store
	conversations *ConversationService
	notifications *NotificationService
	notify        Notifier
	log           *zap.Logger
}

func NewBookingService(
	store *domain.Store,
	conversations *ConversationService,
	notifications *NotificationService,
	notify Notifier,
	log *zap.Logger,
) *BookingService {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &BookingService{
		store:         store,
		conversations: conversations,
		notifications: notifications,
		notify:        notify,
		log:           log,
	}
}

type BookingCreateInput struct {
	ServiceID int64
	Message   string
}

func (s *BookingService) Create(ctx context.Context, customerID int64, in BookingCreateInput) (*domain.Booking, error) {
	listing, err := s.store.Listings.GetByID(ctx, domain.ListingService, in.ServiceID)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID == customerID {
		return nil, domain.NewValidationError("serviceId", "cannot book your own service")
	}

	b := &domain.Booking{ServiceID: in.ServiceID, CustomerID: customerID, Message: in.Message}
	if err := s.store.Bookings.Create(ctx, b); err != nil {
		return nil, err
	}

	if _, err := s.notifications.Push(ctx, b.OwnerID, domain.NotificationBooking,
		fmt.Sprintf("New booking request for %q", listing.Title), "/bookings"); err != nil {
		s.log.Warn("booking notification failed", zap.Int64("booking_id", b.ID), zap.Error(err))
	}
	s.emitUpdated(b)
	return b, nil
}

func (s *BookingService) List(ctx context.Context, userID int64) ([]*domain.Booking, error) {
	return s.store.Bookings.ListForUser(ctx, userID)
}

// UpdateStatus lets the service owner approve or reject a booking.
func (s *BookingService) UpdateStatus(ctx context.Context, id, userID int64, status domain.RequestStatus) (*domain.Booking, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("status", "must be pending, approved or rejected")
	}
	b, err := s.store.Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.OwnerID != userID {
		return nil, domain.Forbiddenf("only the service owner can change booking %d", id)
	}
	if err := s.store.Bookings.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.reloadAndEmit(ctx, id)
}

// MarkRead records that the owner has seen the booking.
func (s *BookingService) MarkRead(ctx context.Context, id, userID int64) (*domain.Booking, error) {
	b, err := s.store.Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.OwnerID != userID {
		return nil, domain.Forbiddenf("only the service owner can read booking %d", id)
	}
	if err := s.store.Bookings.MarkRead(ctx, id); err != nil {
		return nil, err
	}
	return s.reloadAndEmit(ctx, id)
}

type PaymentResult struct {
	Booking      *domain.Booking
	Conversation *domain.Conversation
	// Changed is false when the booking was already paid.
	Changed bool
}

// Pay confirms payment for an approved booking. The customer and the
// service owner get a conversation about the service, and the owner is
// notified with a link to it. The conversation and notification are in
// place before the booking is flagged paid, so a failed call can be
// retried and repeated calls are harmless.
func (s *BookingService) Pay(ctx context.Context, id, userID int64) (*PaymentResult, error) {
	b, err := s.store.Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != userID {
		return nil, domain.Forbiddenf("only the customer can pay booking %d", id)
	}
	if b.Status != domain.StatusApproved {
		return nil, domain.NewValidationError("status", "booking must be approved before payment")
	}

	conv, _, err := s.conversations.EnsureForBooking(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}

	if !b.PaymentCompleted {
		link := fmt.Sprintf("/messages/%d", conv.ID)
		if _, err := s.notifications.PushOnce(ctx, paymentNotificationKey(b.ID), b.OwnerID, domain.NotificationPayment,
			fmt.Sprintf("Payment completed for booking #%d", b.ID), link); err != nil {
			return nil, fmt.Errorf("payment notification: %w", err)
		}
	}

	changed, err := s.store.Bookings.MarkPaid(ctx, id)
	if err != nil {
		return nil, err
	}

	paid, err := s.reloadAndEmit(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Booking: paid, Conversation: conv, Changed: changed}, nil
}

func paymentNotificationKey(bookingID int64) string {
	return fmt.Sprintf("payment:%d", bookingID)
}

// Delete removes a booking. Either party may do so.
func (s *BookingService) Delete(ctx context.Context, id, userID int64) error {
	b, err := s.store.Bookings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if b.CustomerID != userID && b.OwnerID != userID {
		return domain.Forbiddenf("booking %d belongs to other users", id)
	}
	if err := s.store.Bookings.Delete(ctx, id); err != nil {
		return err
	}
	for _, uid := range []int64{b.CustomerID, b.OwnerID} {
		s.notify.Emit(wire.UserRoom(uid), wire.EventBookingDeleted, wire.Deleted{ID: id})
	}
	return nil
}

func (s *BookingService) reloadAndEmit(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := s.store.Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emitUpdated(b)
	return b, nil
}

// emitUpdated reaches both parties so every tab of the acting user
// refreshes its badges too.
func (s *BookingService) emitUpdated(b *domain.Booking) {
	snapshot := wire.FromBooking(b)
	for _, uid := range []int64{b.CustomerID, b.OwnerID} {
		s.notify.Emit(wire.UserRoom(uid), wire.EventBookingUpdated, snapshot)
	}
}
