// Package wire holds the JSON shapes shared by the HTTP API, the websocket
// protocol and the Go client.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Server to client events.
const (
	EventNewMessage          = "new-message"
	EventConversationUnread  = "conversation-unread"
	EventMessageDeleted      = "message-deleted"
	EventBookingUpdated      = "booking-updated"
	EventBookingDeleted      = "booking-deleted"
	EventOfferUpdated        = "offer-updated"
	EventOfferDeleted        = "offer-deleted"
	EventNotificationCreated = "notification-created"
	EventError               = "error"
)

// Client to server events.
const (
	EventSendMessage       = "send-message"
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
)

// UserRoom is the identity room of a user.
func UserRoom(userID int64) string {
	return fmt.Sprintf("user-%d", userID)
}

// ConversationRoom is the room of every socket following a conversation.
func ConversationRoom(conversationID int64) string {
	return fmt.Sprintf("conversation-%d", conversationID)
}

// Envelope is one websocket frame in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

type Participant struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	PhotoURL *string `json:"photoUrl,omitempty"`
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	Content        string    `json:"content"`
	Attachments    []string  `json:"attachments"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Listing struct {
	ID    int64  `json:"id"`
	Kind  string `json:"kind"`
	Title string `json:"title"`
}

// Conversation is the per-viewer conversation shape. IsUnread is derived
// for the viewer on every read.
type Conversation struct {
	ID           int64         `json:"id"`
	ServiceID    *int64        `json:"serviceId,omitempty"`
	TarveID      *int64        `json:"tarveId,omitempty"`
	Listing      *Listing      `json:"listing,omitempty"`
	Participants []Participant `json:"participants"`
	Messages     []Message     `json:"messages"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	IsUnread     bool          `json:"isUnread"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// MessagePage is one page of history, oldest first within the page.
type MessagePage struct {
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"hasMore"`
}

type CreateConversationRequest struct {
	OtherUserID int64  `json:"otherUserId"`
	ServiceID   *int64 `json:"serviceId,omitempty"`
	TarveID     *int64 `json:"tarveId,omitempty"`
}

type CreateConversationResponse struct {
	Message      string        `json:"message"`
	Conversation *Conversation `json:"conversation"`
}

type SendMessageRequest struct {
	ConversationID int64  `json:"conversationId"`
	Content        string `json:"content"`
}

type JoinConversationRequest struct {
	ConversationID int64 `json:"conversationId"`
}

// ConversationUnread is sent to a recipient's identity room.
type ConversationUnread struct {
	ConversationID int64 `json:"conversationId"`
}

type MessageDeleted struct {
	ConversationID int64 `json:"conversationId"`
	MessageID      int64 `json:"messageId"`
}

// Deleted carries the id of a removed booking or offer.
type Deleted struct {
	ID int64 `json:"id"`
}

type ErrorEvent struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

type Booking struct {
	ID               int64     `json:"id"`
	ServiceID        int64     `json:"serviceId"`
	CustomerID       int64     `json:"customerId"`
	OwnerID          int64     `json:"ownerId"`
	Message          string    `json:"message"`
	Status           string    `json:"status"`
	IsRead           bool      `json:"isRead"`
	PaymentCompleted bool      `json:"paymentCompleted"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type Offer struct {
	ID         int64     `json:"id"`
	TarveID    int64     `json:"tarveId"`
	ProviderID int64     `json:"providerId"`
	OwnerID    int64     `json:"ownerId"`
	Message    string    `json:"message"`
	Price      int64     `json:"priceCents"`
	Status     string    `json:"status"`
	IsRead     bool      `json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Notification struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// PaymentResult is returned by the booking payment endpoint.
type PaymentResult struct {
	Booking        *Booking `json:"booking"`
	ConversationID int64    `json:"conversationId"`
	Changed        bool     `json:"changed"`
}

type CreateBookingRequest struct {
	ServiceID int64  `json:"serviceId"`
	Message   string `json:"message"`
}

type CreateOfferRequest struct {
	TarveID int64  `json:"tarveId"`
	Message string `json:"message"`
	Price   int64  `json:"priceCents"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type CreateListingRequest struct {
	Title string `json:"title"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	PhotoURL  *string   `json:"photoUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	User        *User  `json:"user"`
}
