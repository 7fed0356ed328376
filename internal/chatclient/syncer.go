package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"keikkaduuni/internal/wire"
)

// OpenPageSize is how many messages Open loads at first.
const OpenPageSize = 20

// Update tells the UI something changed.
type Update struct {
	Kind           string // conversations | timeline | badges | socket
	ConversationID int64
	Message        *wire.Message
	Socket         SocketState
}

// Syncer keeps a ConversationList, Badges and the open Timeline current by
// running the socket and the poll loop side by side. Pushes make the view
// fast; polls make it correct.
type Syncer struct {
	api      *API
	socket   *Socket
	viewerID int64
	interval time.Duration
	log      *zap.Logger

	list   *ConversationList
	badges *Badges

	updates chan Update
	kick    chan struct{}
	sends   sync.WaitGroup

	mu       sync.Mutex
	open     *Timeline
	pager    *Pager
	pollOnly bool
}

func NewSyncer(api *API, socket *Socket, viewerID int64, interval time.Duration, log *zap.Logger) *Syncer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Syncer{
		api:      api,
		socket:   socket,
		viewerID: viewerID,
		interval: interval,
		log:      log,
		list:     NewConversationList(),
		badges:   NewBadges(viewerID, api, log),
		updates:  make(chan Update, 64),
		kick:     make(chan struct{}, 1),
	}
}

func (s *Syncer) Conversations() *ConversationList { return s.list }
func (s *Syncer) Badges() *Badges                  { return s.badges }

// Updates delivers change notifications. Slow readers miss some; the
// state accessors are always current.
func (s *Syncer) Updates() <-chan Update { return s.updates }

// PollOnly reports whether the socket is refused and only polling runs.
func (s *Syncer) PollOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollOnly
}

// Run blocks until ctx ends.
func (s *Syncer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.socket.Run(ctx, s.handleEvent, s.onSocketState)
	})
	g.Go(func() error {
		return s.pollLoop(ctx)
	})
	err := g.Wait()
	s.sends.Wait()
	s.badges.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Refresh asks the poll loop to run now.
func (s *Syncer) Refresh() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Syncer) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.kick:
		}
	}
}

// Poll refetches conversations, bookings and offers, and the newest page of
// the open conversation.
func (s *Syncer) Poll(ctx context.Context) error {
	seq := s.list.BeginPoll()
	convs, err := s.api.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("poll conversations: %w", err)
	}
	if s.list.ApplyPoll(seq, convs) {
		s.notify(Update{Kind: "conversations"})
	}

	bookings, err := s.api.Bookings(ctx)
	if err != nil {
		return fmt.Errorf("poll bookings: %w", err)
	}
	offers, err := s.api.Offers(ctx)
	if err != nil {
		return fmt.Errorf("poll offers: %w", err)
	}
	s.badges.Update(bookings, offers, convs)
	s.notify(Update{Kind: "badges"})

	tl := s.Open()
	if tl == nil {
		return nil
	}
	mseq := tl.BeginMerge()
	page, err := s.api.Messages(ctx, tl.ConversationID(), 1, OpenPageSize)
	if err != nil {
		return fmt.Errorf("poll messages: %w", err)
	}
	if tl.MergeServer(mseq, page.Messages) {
		s.notify(Update{Kind: "timeline", ConversationID: tl.ConversationID()})
	}
	return nil
}

// Open returns the open timeline, or nil.
func (s *Syncer) Open() *Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Pager returns the backfill pager of the open timeline, or nil.
func (s *Syncer) Pager() *Pager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pager
}

// OpenConversation loads the newest page, follows the conversation's room
// and clears its badge.
func (s *Syncer) OpenConversation(ctx context.Context, conversationID int64, measure func() float64, threshold float64) (*Timeline, *Pager, error) {
	page, err := s.api.Messages(ctx, conversationID, 1, OpenPageSize)
	if err != nil {
		return nil, nil, err
	}
	tl := NewTimeline(conversationID, s.viewerID)
	tl.MergeServer(tl.BeginMerge(), page.Messages)

	fetch := func(ctx context.Context, n int) (*wire.MessagePage, error) {
		return s.api.Messages(ctx, conversationID, n, OpenPageSize)
	}
	pager := NewPager(tl, page, fetch, measure, threshold)

	s.mu.Lock()
	s.open, s.pager = tl, pager
	s.mu.Unlock()

	// Rooms are computed at connect time, so a conversation created since
	// then has to be joined explicitly.
	if err := s.socket.Emit(wire.EventJoinConversation, wire.JoinConversationRequest{ConversationID: conversationID}); err != nil {
		s.log.Debug("join conversation", zap.Int64("conversation_id", conversationID), zap.Error(err))
	}

	var lastID int64
	if n := len(page.Messages); n > 0 {
		lastID = page.Messages[n-1].ID
	}
	s.list.MarkReadLocal(conversationID, lastID)
	s.badges.OpenConversation(ctx, conversationID, lastID)
	return tl, pager, nil
}

// Send appends an optimistic entry to the open timeline and posts the
// message in the background. It returns the entry's temporary id.
func (s *Syncer) Send(ctx context.Context, content string, files []Attachment) (string, error) {
	tl := s.Open()
	if tl == nil {
		return "", errors.New("no conversation is open")
	}
	e := tl.AddPending(content, files, time.Now())
	s.notify(Update{Kind: "timeline", ConversationID: tl.ConversationID()})
	s.post(ctx, tl, e)
	return e.TempID, nil
}

// Retry resends a failed entry.
func (s *Syncer) Retry(ctx context.Context, tempID string) bool {
	tl := s.Open()
	if tl == nil {
		return false
	}
	e, ok := tl.BeginRetry(tempID)
	if !ok {
		return false
	}
	s.notify(Update{Kind: "timeline", ConversationID: tl.ConversationID()})
	s.post(ctx, tl, e)
	return true
}

// WaitSends blocks until in-flight sends have settled.
func (s *Syncer) WaitSends() {
	s.sends.Wait()
}

func (s *Syncer) post(ctx context.Context, tl *Timeline, e Entry) {
	s.sends.Add(1)
	go func() {
		defer s.sends.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		msg, err := s.api.SendMessage(ctx, tl.ConversationID(), e.Message.Content, e.Attachments)
		if err != nil {
			s.log.Warn("send failed", zap.String("temp_id", e.TempID), zap.Error(err))
			tl.Fail(e.TempID)
		} else {
			tl.Confirm(e.TempID, *msg)
			s.list.ApplyNewMessage(*msg, s.viewerID, tl.ConversationID())
		}
		s.notify(Update{Kind: "timeline", ConversationID: tl.ConversationID(), Message: msg})
	}()
}

func (s *Syncer) onSocketState(state SocketState) {
	s.mu.Lock()
	s.pollOnly = state == SocketUnauthorized
	s.mu.Unlock()
	if state == SocketConnected {
		// Events were missed while disconnected.
		s.Refresh()
	}
	s.notify(Update{Kind: "socket", Socket: state})
}

func (s *Syncer) handleEvent(env wire.Envelope) {
	switch env.Event {
	case wire.EventNewMessage:
		var m wire.Message
		if !s.decode(env, &m) {
			return
		}
		openID := int64(0)
		tl := s.Open()
		if tl != nil {
			openID = tl.ConversationID()
		}
		s.list.ApplyNewMessage(m, s.viewerID, openID)
		if tl != nil && tl.ApplyPush(m) && m.SenderID != s.viewerID {
			// The user is looking at it.
			s.list.MarkReadLocal(m.ConversationID, m.ID)
			s.badges.OpenConversation(context.Background(), m.ConversationID, m.ID)
		}
		s.notify(Update{Kind: "timeline", ConversationID: m.ConversationID, Message: &m})

	case wire.EventConversationUnread:
		var ev wire.ConversationUnread
		if !s.decode(env, &ev) {
			return
		}
		if tl := s.Open(); tl != nil && tl.ConversationID() == ev.ConversationID {
			return
		}
		s.list.MarkUnread(ev.ConversationID)
		s.badges.ConversationUnread(ev.ConversationID)
		s.notify(Update{Kind: "badges", ConversationID: ev.ConversationID})

	case wire.EventMessageDeleted:
		var ev wire.MessageDeleted
		if !s.decode(env, &ev) {
			return
		}
		if tl := s.Open(); tl != nil && tl.ConversationID() == ev.ConversationID {
			tl.Remove(ev.MessageID)
		}
		s.list.Touch(ev.ConversationID)
		s.Refresh()
		s.notify(Update{Kind: "timeline", ConversationID: ev.ConversationID})

	case wire.EventBookingUpdated, wire.EventBookingDeleted,
		wire.EventOfferUpdated, wire.EventOfferDeleted,
		wire.EventNotificationCreated:
		s.Refresh()

	case wire.EventError:
		var ev wire.ErrorEvent
		if s.decode(env, &ev) {
			s.log.Warn("server error event", zap.String("event", ev.Event), zap.String("message", ev.Message))
		}
	}
}

func (s *Syncer) decode(env wire.Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		s.log.Warn("bad event payload", zap.String("event", env.Event), zap.Error(err))
		return false
	}
	return true
}

func (s *Syncer) notify(u Update) {
	select {
	case s.updates <- u:
	default:
	}
}
