package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/service"
	"keikkaduuni/internal/wire"
)

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// ConversationAccess answers the membership questions room enrolment needs.
type ConversationAccess interface {
	ConversationIDs(ctx context.Context, userID int64) ([]int64, error)
	CanJoin(ctx context.Context, conversationID, userID int64) error
}

// MessageCreator persists messages sent over the socket.
type MessageCreator interface {
	Create(ctx context.Context, senderID int64, in service.MessageCreateInput) (*wire.Message, error)
}

const opTimeout = 10 * time.Second

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin accepts requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin. "*" allows any.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	_, allowAll := allowed["*"]

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" || allowAll {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// extractTokenFromWSRequest looks at the Authorization header, then the
// "bearer, <token>" subprotocol pair, then the token query parameter.
func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1], nil
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// MakeHandler returns the /ws endpoint. Authentication happens before the
// upgrade so a bad credential is a plain 401. Once connected, the socket
// sits in its identity room and the room of every conversation the user
// has a participant row in, and accepts:
//   - send-message       -> create a message through the message service
//   - join-conversation  -> follow a conversation's room (participants only)
//   - leave-conversation -> stop following it
func MakeHandler(
	hub *Hub,
	auth Authenticator,
	convs ConversationAccess,
	msgs MessageCreator,
	allowedOrigins []string,
	log *zap.Logger,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin:  checkOrigin,
		Subprotocols: []string{"bearer"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			var authErr wsAuthError
			if errors.As(err, &authErr) {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		user, err := auth.Authenticate(ctx, tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		// Register before listing rooms: a conversation created in between
		// joins this socket through the identity room.
		client := hub.Register(user.ID, conn)
		convIDs, err := convs.ConversationIDs(ctx, user.ID)
		if err != nil {
			log.Error("ws: list conversations", zap.Int64("user_id", user.ID), zap.Error(err))
			hub.Unregister(client)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "internal error"),
				time.Now().Add(writeWait))
			conn.Close()
			return
		}
		for _, id := range convIDs {
			hub.Join(client, wire.ConversationRoom(id))
		}
		log.Debug("ws connected", zap.Int64("user_id", user.ID), zap.Int("rooms", len(convIDs)+1))

		go client.writePump()
		client.readPump(func(env wire.Envelope) {
			opCtx, cancel := context.WithTimeout(ctx, opTimeout)
			defer cancel()
			handleEnvelope(opCtx, hub, client, convs, msgs, env)
		})

		hub.Unregister(client)
		log.Debug("ws disconnected", zap.Int64("user_id", user.ID))
	}
}

func handleEnvelope(ctx context.Context, hub *Hub, c *Client, convs ConversationAccess, msgs MessageCreator, env wire.Envelope) {
	switch env.Event {
	case wire.EventSendMessage:
		var req wire.SendMessageRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.ConversationID <= 0 {
			c.sendDirect(wire.EventError, wire.ErrorEvent{Event: env.Event, Message: "conversationId is required"})
			return
		}
		// Fan-out happens inside the service, same as the REST path.
		if _, err := msgs.Create(ctx, c.userID, service.MessageCreateInput{
			ConversationID: req.ConversationID,
			Content:        req.Content,
		}); err != nil {
			c.sendDirect(wire.EventError, wire.ErrorEvent{Event: env.Event, Message: publicMessage(err)})
		}

	case wire.EventJoinConversation:
		var req wire.JoinConversationRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.ConversationID <= 0 {
			c.sendDirect(wire.EventError, wire.ErrorEvent{Event: env.Event, Message: "conversationId is required"})
			return
		}
		if err := convs.CanJoin(ctx, req.ConversationID, c.userID); err != nil {
			c.sendDirect(wire.EventError, wire.ErrorEvent{Event: env.Event, Message: publicMessage(err)})
			return
		}
		hub.Join(c, wire.ConversationRoom(req.ConversationID))

	case wire.EventLeaveConversation:
		var req wire.JoinConversationRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.ConversationID <= 0 {
			c.sendDirect(wire.EventError, wire.ErrorEvent{Event: env.Event, Message: "conversationId is required"})
			return
		}
		hub.Leave(c, wire.ConversationRoom(req.ConversationID))

	default:
		c.sendDirect(wire.EventError, wire.ErrorEvent{Event: env.Event, Message: "unknown event"})
	}
}

// publicMessage hides store failures from the socket.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrForbidden):
		return err.Error()
	}
	return "internal error"
}
