package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/wire"
)

// DefaultConversationPageSize is how many recent messages a conversation
// summary carries.
const DefaultConversationPageSize = 50

type ConversationService struct {
	store  *domain.Store
	notify Notifier
	log    *zap.Logger
	group  singleflight.Group
	now    func() time.Time
}

func NewConversationService(store *domain.Store, notify Notifier, log *zap.Logger) *ConversationService {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &ConversationService{
		store:  store,
		notify: notify,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type GetOrCreateInput struct {
	OtherUserID int64
	Listing     domain.ListingRef
}

type createResult struct {
	conv    *domain.Conversation
	created bool
}

// GetOrCreate returns the conversation between the caller and OtherUserID
// about the given listing, creating it when none exists. created is true
// only for the call that inserted the row.
func (s *ConversationService) GetOrCreate(ctx context.Context, userID int64, in GetOrCreateInput) (*wire.Conversation, bool, error) {
	if err := in.Listing.Validate(); err != nil {
		return nil, false, err
	}
	if in.OtherUserID <= 0 {
		return nil, false, domain.NewValidationError("otherUserId", "is required")
	}
	if in.OtherUserID == userID {
		return nil, false, domain.NewValidationError("otherUserId", "cannot start a conversation with yourself")
	}
	if _, err := s.store.Users.GetByID(ctx, in.OtherUserID); err != nil {
		return nil, false, err
	}
	kind, listingID := in.Listing.Kind()
	if _, err := s.store.Listings.GetByID(ctx, kind, listingID); err != nil {
		return nil, false, err
	}

	conv, created, err := s.getOrCreate(ctx, in.Listing, userID, in.OtherUserID)
	if err != nil {
		return nil, false, err
	}
	view, err := s.view(ctx, conv, userID)
	if err != nil {
		return nil, false, err
	}
	return view, created, nil
}

// EnsureForBooking makes sure the booking's customer and the service owner
// share a conversation scoped to the booked service.
func (s *ConversationService) EnsureForBooking(ctx context.Context, b *domain.Booking) (*domain.Conversation, bool, error) {
	serviceID := b.ServiceID
	ref := domain.ListingRef{ServiceID: &serviceID}
	return s.getOrCreate(ctx, ref, b.CustomerID, b.OwnerID)
}

func (s *ConversationService) getOrCreate(ctx context.Context, ref domain.ListingRef, a, b int64) (*domain.Conversation, bool, error) {
	key := ref.PairKey(a, b)

	leader := false
	v, err, _ := s.group.Do(key, func() (any, error) {
		leader = true
		// Callers sharing this flight must not fail because the leader's
		// request was cancelled.
		ctx := context.WithoutCancel(ctx)

		existing, err := s.store.Conversations.GetByPairKey(ctx, key)
		if err == nil {
			return createResult{conv: existing}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}

		conv := &domain.Conversation{ServiceID: ref.ServiceID, TarveID: ref.TarveID, PairKey: &key}
		created, err := s.store.Conversations.CreateWithParticipants(ctx, conv, []int64{a, b})
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		return createResult{conv: conv, created: created}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(createResult)
	created := res.created && leader
	if created {
		s.notify.JoinUsers(wire.ConversationRoom(res.conv.ID), a, b)
		s.log.Info("conversation created",
			zap.Int64("conversation_id", res.conv.ID),
			zap.String("pair_key", key),
		)
	}
	c := *res.conv
	return &c, created, nil
}

// List returns the caller's visible conversations. Order is not part of
// the contract.
func (s *ConversationService) List(ctx context.Context, userID int64) ([]*wire.Conversation, error) {
	convs, err := s.store.Conversations.ListVisibleForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*wire.Conversation, 0, len(convs))
	for _, c := range convs {
		v, err := s.view(ctx, c, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns one conversation for a participant in any deleted state.
func (s *ConversationService) Get(ctx context.Context, conversationID, userID int64) (*wire.Conversation, error) {
	conv, err := requireParticipant(ctx, s.store, conversationID, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, conv, userID)
}

// MarkRead moves the caller's read pointer to now. Hidden rows and
// non-participants are left alone without error.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, userID int64) error {
	at := s.now()
	// Never place the pointer before the newest stored message, so a reader
	// whose clock lags the store still clears the unread flag.
	newest, err := s.store.Messages.ListNewestFirst(ctx, conversationID, 1, 0)
	if err != nil {
		return err
	}
	if len(newest) == 1 && newest[0].CreatedAt.After(at) {
		at = newest[0].CreatedAt
	}

	n, err := s.store.Participants.MarkSeen(ctx, conversationID, userID, at)
	if err != nil {
		return err
	}
	if n == 0 {
		s.log.Debug("mark read matched no row",
			zap.Int64("conversation_id", conversationID),
			zap.Int64("user_id", userID),
		)
	}
	return nil
}

// SoftDelete hides the conversation for the caller only.
func (s *ConversationService) SoftDelete(ctx context.Context, conversationID, userID int64) error {
	if _, err := s.store.Conversations.GetByID(ctx, conversationID); err != nil {
		return err
	}
	n, err := s.store.Participants.SoftDelete(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.Forbiddenf("user %d is not in conversation %d", userID, conversationID)
	}
	return nil
}

// ConversationIDs lists every conversation the user has a row in,
// including hidden ones, for socket room enrolment.
func (s *ConversationService) ConversationIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.store.Conversations.ListIDsForUser(ctx, userID)
}

// CanJoin reports whether the user may follow the conversation's room.
func (s *ConversationService) CanJoin(ctx context.Context, conversationID, userID int64) error {
	_, err := requireParticipant(ctx, s.store, conversationID, userID)
	return err
}

func (s *ConversationService) view(ctx context.Context, c *domain.Conversation, viewerID int64) (*wire.Conversation, error) {
	profiles, err := s.store.Participants.ListProfiles(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	out := &wire.Conversation{
		ID:           c.ID,
		ServiceID:    c.ServiceID,
		TarveID:      c.TarveID,
		Participants: make([]wire.Participant, 0, len(profiles)),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}

	var lastSeen *time.Time
	for _, p := range profiles {
		out.Participants = append(out.Participants, wire.Participant{ID: p.UserID, Name: p.Name, PhotoURL: p.PhotoURL})
		if p.UserID == viewerID {
			lastSeen = p.LastSeenAt
		}
	}

	ref := domain.ListingRef{ServiceID: c.ServiceID, TarveID: c.TarveID}
	if ref.Validate() == nil {
		kind, id := ref.Kind()
		l, err := s.store.Listings.GetByID(ctx, kind, id)
		switch {
		case err == nil:
			out.Listing = wire.FromListing(l)
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	msgs, err := s.store.Messages.ListNewestFirst(ctx, c.ID, DefaultConversationPageSize, 0)
	if err != nil {
		return nil, err
	}
	var last *domain.Message
	if len(msgs) > 0 {
		last = msgs[0]
		lm := wire.FromMessage(last)
		out.LastMessage = &lm
	}
	reverse(msgs)
	out.Messages = wire.FromMessages(msgs)
	out.IsUnread = domain.IsUnread(last, viewerID, lastSeen)
	return out, nil
}

// requireParticipant loads the conversation and checks that userID has a
// participant row in it, hidden or not.
func requireParticipant(ctx context.Context, store *domain.Store, conversationID, userID int64) (*domain.Conversation, error) {
	conv, err := store.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, err := store.Participants.Get(ctx, conversationID, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Forbiddenf("user %d is not in conversation %d", userID, conversationID)
		}
		return nil, err
	}
	return conv, nil
}

func reverse(msgs []*domain.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
