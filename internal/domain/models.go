package domain

import (
	"fmt"
	"time"
)

// User represents a marketplace user. Only identity fields matter here.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Email          string    `db:"email" json:"email"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	PhotoURL       *string   `db:"photo_url" json:"photoUrl,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// ListingKind distinguishes service listings (Palvelut) from need listings (Tarpeet).
type ListingKind string

const (
	ListingService ListingKind = "service"
	ListingTarve   ListingKind = "tarve"
)

// Listing is a Service or a Need posted by OwnerID.
type Listing struct {
	ID        int64       `db:"id"`
	Kind      ListingKind `db:"-"`
	OwnerID   int64       `db:"user_id"`
	Title     string      `db:"title"`
	CreatedAt time.Time   `db:"created_at"`
}

// Conversation is a negotiation channel between two users, optionally scoped
// to one listing. ServiceID and TarveID are never both set.
type Conversation struct {
	ID        int64     `db:"id"`
	ServiceID *int64    `db:"service_id"`
	TarveID   *int64    `db:"tarve_id"`
	PairKey   *string   `db:"pair_key"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ConversationParticipant is the membership of a user in a conversation.
type ConversationParticipant struct {
	UserID         int64      `db:"user_id"`
	ConversationID int64      `db:"conversation_id"`
	LastSeenAt     *time.Time `db:"last_seen_at"`
	Deleted        bool       `db:"deleted"`
	JoinedAt       time.Time  `db:"joined_at"`
}

// ParticipantProfile is a participant row joined with the user's public profile.
type ParticipantProfile struct {
	ConversationParticipant
	Name     string  `db:"name"`
	PhotoURL *string `db:"photo_url"`
}

// Message represents a single chat message.
type Message struct {
	ID             int64     `db:"id"`
	ConversationID int64     `db:"conversation_id"`
	SenderID       int64     `db:"sender_id"`
	Content        string    `db:"content"`
	Attachments    []string  `db:"-"`
	CreatedAt      time.Time `db:"created_at"`
}

// RequestStatus is the negotiation state shared by bookings and offers.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Booking is a customer's request for a service listing.
type Booking struct {
	ID               int64         `db:"id"`
	ServiceID        int64         `db:"service_id"`
	CustomerID       int64         `db:"customer_id"`
	OwnerID          int64         `db:"owner_id"` // joined from services.user_id
	Message          string        `db:"message"`
	Status           RequestStatus `db:"status"`
	IsRead           bool          `db:"is_read"`
	PaymentCompleted bool          `db:"payment_completed"`
	CreatedAt        time.Time     `db:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at"`
}

// Offer is a provider's proposal for a need listing.
type Offer struct {
	ID         int64         `db:"id"`
	TarveID    int64         `db:"tarve_id"`
	ProviderID int64         `db:"provider_id"`
	OwnerID    int64         `db:"owner_id"` // joined from tarpeet.user_id
	Message    string        `db:"message"`
	Price      int64         `db:"price_cents"`
	Status     RequestStatus `db:"status"`
	IsRead     bool          `db:"is_read"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

// Notification types.
const (
	NotificationPayment = "payment_completed"
	NotificationBooking = "booking_request"
	NotificationOffer   = "offer_received"
)

// Notification is an entry in a user's notification center.
type Notification struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Type      string    `db:"type"`
	Message   string    `db:"message"`
	Link      string    `db:"link"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
	// DedupeKey, when set, makes the notification unique per event.
	DedupeKey *string `db:"dedupe_key"`
}

// ListingRef names the listing a conversation is about.
type ListingRef struct {
	ServiceID *int64
	TarveID   *int64
}

// Validate requires exactly one of ServiceID and TarveID.
func (r ListingRef) Validate() error {
	if (r.ServiceID == nil) == (r.TarveID == nil) {
		return NewValidationError("listing", "exactly one of serviceId or tarveId is required")
	}
	return nil
}

// Kind returns the listing kind and id of a validated reference.
func (r ListingRef) Kind() (ListingKind, int64) {
	if r.ServiceID != nil {
		return ListingService, *r.ServiceID
	}
	return ListingTarve, *r.TarveID
}

// PairKey is the canonical uniqueness key for a (listing, unordered user pair).
func (r ListingRef) PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	kind, id := r.Kind()
	return fmt.Sprintf("%s:%d:%d-%d", kind, id, a, b)
}

// IsUnread reports whether a conversation whose newest message is last has
// unread content for viewerID, given the viewer's last-seen pointer.
func IsUnread(last *Message, viewerID int64, lastSeenAt *time.Time) bool {
	if last == nil || last.SenderID == viewerID {
		return false
	}
	return lastSeenAt == nil || last.CreatedAt.After(*lastSeenAt)
}
