package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"keikkaduuni/internal/wire"
)

// SocketState is the connection state reported by Socket.Run.
type SocketState int

const (
	SocketDisconnected SocketState = iota
	SocketConnected
	// SocketUnauthorized means the server refused the token. The socket
	// keeps retrying with backoff.
	SocketUnauthorized
)

func (s SocketState) String() string {
	switch s {
	case SocketConnected:
		return "connected"
	case SocketUnauthorized:
		return "unauthorized"
	}
	return "disconnected"
}

var ErrNotConnected = errors.New("socket not connected")

// Socket is a reconnecting websocket to /ws.
type Socket struct {
	url    string
	token  string
	dialer *websocket.Dialer
	log    *zap.Logger

	// NewBackOff builds the reconnect policy. Tests shorten it.
	NewBackOff func() backoff.BackOff
	// ReadTimeout is how long the connection may stay silent, pings
	// included, before it is considered dead. The server pings every 54s.
	ReadTimeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewSocket returns a socket for wsURL (e.g. ws://localhost:5001/ws).
func NewSocket(wsURL, token string, log *zap.Logger) *Socket {
	return &Socket{
		url:         wsURL,
		token:       token,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:         log,
		ReadTimeout: 70 * time.Second,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run keeps a connection open until ctx ends, passing every received frame
// to handle and every state change to onState. It only returns ctx.Err().
func (s *Socket) Run(ctx context.Context, handle func(wire.Envelope), onState func(SocketState)) error {
	bo := backoff.WithContext(s.NewBackOff(), ctx)
	for {
		conn, state, err := s.dial(ctx)
		onState(state)
		if err == nil {
			bo.Reset()
			s.readLoop(ctx, conn, handle)
			onState(SocketDisconnected)
		} else {
			s.log.Debug("socket dial failed", zap.Stringer("state", state), zap.Error(err))
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, SocketState, error) {
	header := http.Header{"Authorization": {"Bearer " + s.token}}
	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, SocketUnauthorized, fmt.Errorf("dial: %w", ErrUnauthorized)
		}
		return nil, SocketDisconnected, fmt.Errorf("dial: %w", err)
	}
	return conn, SocketConnected, nil
}

func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn, handle func(wire.Envelope)) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
		var netErr net.Error
		if errors.Is(err, websocket.ErrCloseSent) || errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})

	for {
		var env wire.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil {
				s.log.Debug("socket read", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		handle(env)
	}
}

// Emit sends a client event on the current connection.
func (s *Socket) Emit(event string, data any) error {
	env, err := wire.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(env)
}
