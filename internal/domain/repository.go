package domain

import (
	"context"
	"time"
)

// Lookups return ErrNotFound (possibly wrapped) when the row does not exist.

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// ListingRepository covers the minimal listing surface conversations need.
type ListingRepository interface {
	Create(ctx context.Context, l *Listing) error
	GetByID(ctx context.Context, kind ListingKind, id int64) (*Listing, error)
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	// CreateWithParticipants inserts c and one participant row per user in
	// one transaction. When a conversation with the same pair key already
	// exists, c is filled from that row and created is false.
	CreateWithParticipants(ctx context.Context, c *Conversation, userIDs []int64) (created bool, err error)
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	GetByPairKey(ctx context.Context, key string) (*Conversation, error)
	// ListVisibleForUser returns conversations where the user's row is not deleted.
	ListVisibleForUser(ctx context.Context, userID int64) ([]*Conversation, error)
	// ListIDsForUser returns every conversation the user has a row in.
	ListIDsForUser(ctx context.Context, userID int64) ([]int64, error)
}

// ParticipantRepository defines operations around conversation participants.
type ParticipantRepository interface {
	Get(ctx context.Context, conversationID, userID int64) (*ConversationParticipant, error)
	ListProfiles(ctx context.Context, conversationID int64) ([]*ParticipantProfile, error)
	// MarkSeen bumps last_seen_at on a non-deleted row and reports rows affected.
	MarkSeen(ctx context.Context, conversationID, userID int64, at time.Time) (int64, error)
	SoftDelete(ctx context.Context, conversationID, userID int64) (int64, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	// Create persists m with its attachments, bumps the conversation's
	// updated_at and un-hides the conversation for every other participant.
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	Delete(ctx context.Context, id int64) error
	// ListNewestFirst returns messages ordered by (created_at, id) descending.
	ListNewestFirst(ctx context.Context, conversationID int64, limit, offset int) ([]*Message, error)
	Count(ctx context.Context, conversationID int64) (int, error)
}

// BookingRepository is the slice of booking persistence this system touches.
type BookingRepository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id int64) (*Booking, error)
	// ListForUser returns bookings the user made or received.
	ListForUser(ctx context.Context, userID int64) ([]*Booking, error)
	UpdateStatus(ctx context.Context, id int64, status RequestStatus) error
	MarkRead(ctx context.Context, id int64) error
	// MarkPaid flips payment_completed and reports whether it changed.
	MarkPaid(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}

// OfferRepository is the slice of offer persistence this system touches.
type OfferRepository interface {
	Create(ctx context.Context, o *Offer) error
	GetByID(ctx context.Context, id int64) (*Offer, error)
	ListForUser(ctx context.Context, userID int64) ([]*Offer, error)
	UpdateStatus(ctx context.Context, id int64, status RequestStatus) error
	MarkRead(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// NotificationRepository stores notification center entries.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	// CreateOnce inserts n unless a notification with the same DedupeKey
	// exists and reports whether it inserted.
	CreateOnce(ctx context.Context, n *Notification) (bool, error)
	ListForUser(ctx context.Context, userID int64, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, id, userID int64) (int64, error)
}

// Store bundles the repositories of one backing database.
type Store struct {
	Users         UserRepository
	Listings      ListingRepository
	Conversations ConversationRepository
	Participants  ParticipantRepository
	Messages      MessageRepository
	Bookings      BookingRepository
	Offers        OfferRepository
	Notifications NotificationRepository
}
