package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"keikkaduuni/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	// A publish slower than publishTimeout counts as failed. After a failure
	// the hub delivers locally for publishCooldown before trying again.
	publishTimeout  = 250 * time.Millisecond
	publishCooldown = 5 * time.Second
)

// Publisher carries hub traffic to every server process. Without one the
// hub delivers to its own sockets only.
type Publisher interface {
	Publish(ctx context.Context, f Frame) error
}

// Frame is one unit of hub traffic: an event for a room, or a join of
// users' sockets into a room.
type Frame struct {
	Kind    string          `json:"kind"` // emit | join
	Room    string          `json:"room"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	UserIDs []int64         `json:"userIds,omitempty"`
}

const (
	frameEmit = "emit"
	frameJoin = "join"
)

// Hub keeps room membership for connected sockets. Rooms are plain names;
// wire.UserRoom and wire.ConversationRoom produce the ones in use.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	users map[int64]map[*Client]struct{}

	sendBuffer int
	publisher  Publisher
	metrics    *Metrics
	log        *zap.Logger

	// Unix nanoseconds until which publishing is skipped.
	publishDownUntil atomic.Int64
}

func NewHub(sendBuffer int, metrics *Metrics, log *zap.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		users:      make(map[int64]map[*Client]struct{}),
		sendBuffer: sendBuffer,
		metrics:    metrics,
		log:        log,
	}
}

// SetPublisher routes Emit and JoinUsers through p. Call before serving.
func (h *Hub) SetPublisher(p Publisher) {
	h.publisher = p
}

// Emit queues event for every socket in room. It never blocks on a socket.
func (h *Hub) Emit(room, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	f := Frame{Kind: frameEmit, Room: room, Event: event, Payload: raw}
	if h.publish(f) {
		return
	}
	h.Dispatch(f)
}

// JoinUsers enrols every connected socket of userIDs into room.
func (h *Hub) JoinUsers(room string, userIDs ...int64) {
	f := Frame{Kind: frameJoin, Room: room, UserIDs: userIDs}
	if h.publish(f) {
		return
	}
	h.Dispatch(f)
}

func (h *Hub) publish(f Frame) bool {
	if h.publisher == nil {
		return false
	}
	if time.Now().UnixNano() < h.publishDownUntil.Load() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.publisher.Publish(ctx, f); err != nil {
		h.publishDownUntil.Store(time.Now().Add(publishCooldown).UnixNano())
		h.log.Warn("publish failed, delivering locally",
			zap.String("room", f.Room), zap.Duration("cooldown", publishCooldown), zap.Error(err))
		return false
	}
	return true
}

// Dispatch applies a frame to the local sockets.
func (h *Hub) Dispatch(f Frame) {
	switch f.Kind {
	case frameEmit:
		h.deliver(f.Room, f.Event, f.Payload)
	case frameJoin:
		h.mu.Lock()
		for _, uid := range f.UserIDs {
			for c := range h.users[uid] {
				h.joinLocked(c, f.Room)
			}
		}
		h.mu.Unlock()
	default:
		h.log.Warn("unknown frame kind", zap.String("kind", f.Kind))
	}
}

func (h *Hub) deliver(room, event string, payload json.RawMessage) {
	msg, err := json.Marshal(wire.Envelope{Event: event, Data: payload})
	if err != nil {
		h.log.Error("marshal envelope", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c.enqueue(msg) {
			h.metrics.Emitted.WithLabelValues(event).Inc()
		} else {
			h.metrics.Dropped.WithLabelValues(event).Inc()
			h.log.Debug("send queue full, event dropped",
				zap.Int64("user_id", c.userID),
				zap.String("event", event),
			)
		}
	}
}

// Register adds a socket for userID and joins it to the user's identity room.
func (h *Hub) Register(userID int64, conn *websocket.Conn) *Client {
	c := &Client{
		hub:    h,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		rooms:  make(map[string]struct{}),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.users[userID] == nil {
		h.users[userID] = make(map[*Client]struct{})
	}
	h.users[userID][c] = struct{}{}
	h.joinLocked(c, wire.UserRoom(userID))
	h.mu.Unlock()

	h.metrics.Connected.Inc()
	return c
}

// Unregister removes the socket from every room and stops its writer.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	if set, ok := h.users[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.userID)
		}
	}
	h.mu.Unlock()

	c.stop()
	h.metrics.Connected.Dec()
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(c, room)
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

// RoomSize reports how many local sockets are in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) joinLocked(c *Client, room string) {
	set := h.rooms[room]
	if set == nil {
		set = make(map[*Client]struct{})
		h.rooms[room] = set
	}
	set[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if set, ok := h.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}
