package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/wire"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxMessageRunes = 5000
	MaxAttachments  = 10
)

type MessageService struct {
	store  *domain.Store
	notify Notifier
	log    *zap.Logger
}

func NewMessageService(store *domain.Store, notify Notifier, log *zap.Logger) *MessageService {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &MessageService{store: store, notify: notify, log: log}
}

type MessageCreateInput struct {
	ConversationID int64
	Content        string
	Attachments    []string
}

// Create persists a message, then announces it to the conversation room
// and flags the conversation unread for every other participant.
func (s *MessageService) Create(ctx context.Context, senderID int64, in MessageCreateInput) (*wire.Message, error) {
	if strings.TrimSpace(in.Content) == "" && len(in.Attachments) == 0 {
		return nil, domain.NewValidationError("content", "message needs content or attachments")
	}
	if len([]rune(in.Content)) > MaxMessageRunes {
		return nil, domain.NewValidationError("content", "message content exceeds 5000 characters")
	}
	if len(in.Attachments) > MaxAttachments {
		return nil, domain.NewValidationError("files", "too many attachments")
	}

	if _, err := requireParticipant(ctx, s.store, in.ConversationID, senderID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Content:        in.Content,
		Attachments:    in.Attachments,
	}
	if err := s.store.Messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	out := wire.FromMessage(msg)
	s.notify.Emit(wire.ConversationRoom(msg.ConversationID), wire.EventNewMessage, out)

	profiles, err := s.store.Participants.ListProfiles(ctx, msg.ConversationID)
	if err != nil {
		// The message is stored; recipients catch up on their next poll.
		s.log.Warn("list recipients failed", zap.Int64("conversation_id", msg.ConversationID), zap.Error(err))
		return &out, nil
	}
	for _, p := range profiles {
		if p.UserID == senderID {
			continue
		}
		s.notify.Emit(wire.UserRoom(p.UserID), wire.EventConversationUnread,
			wire.ConversationUnread{ConversationID: msg.ConversationID})
	}
	return &out, nil
}

// List returns page of the conversation's history, page 1 being the newest.
// Within a page messages run oldest to newest.
func (s *MessageService) List(ctx context.Context, conversationID, userID int64, page, pageSize int) (*wire.MessagePage, error) {
	page, pageSize = normalizePage(page, pageSize)

	if _, err := requireParticipant(ctx, s.store, conversationID, userID); err != nil {
		return nil, err
	}

	total, err := s.store.Messages.Count(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	offset := (page - 1) * pageSize
	msgs, err := s.store.Messages.ListNewestFirst(ctx, conversationID, pageSize, offset)
	if err != nil {
		return nil, err
	}
	reverse(msgs)

	return &wire.MessagePage{
		Messages: wire.FromMessages(msgs),
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		HasMore:  offset+len(msgs) < total,
	}, nil
}

// Delete removes a message. Only its sender may do so.
func (s *MessageService) Delete(ctx context.Context, messageID, userID int64) error {
	msg, err := s.store.Messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return domain.Forbiddenf("message %d belongs to another user", messageID)
	}
	if err := s.store.Messages.Delete(ctx, messageID); err != nil {
		return err
	}
	s.notify.Emit(wire.ConversationRoom(msg.ConversationID), wire.EventMessageDeleted,
		wire.MessageDeleted{ConversationID: msg.ConversationID, MessageID: msg.ID})
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
