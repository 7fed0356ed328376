package chatclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"keikkaduuni/internal/wire"
)

// fakeServer serves the subset of the API the client uses for one user
// (id 1) and one conversation (id 7).
type fakeServer struct {
	t *testing.T

	mu        sync.Mutex
	messages  []wire.Message
	unread    bool
	reads     map[string]int
	failSends bool
	rejectWS  bool
	conns     []*websocket.Conn
	joined    []int64
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	f := &fakeServer{t: t, reads: make(map[string]int)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/me", f.auth(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, wire.User{ID: 1, Name: "Aino"})
	}))
	mux.HandleFunc("GET /api/conversations", f.auth(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		c := wire.Conversation{ID: 7, IsUnread: f.unread, Participants: []wire.Participant{}, Messages: []wire.Message{}}
		if n := len(f.messages); n > 0 {
			last := f.messages[n-1]
			c.LastMessage = &last
		}
		writeTestJSON(w, []wire.Conversation{c})
	}))
	mux.HandleFunc("GET /api/bookings", f.auth(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, []wire.Booking{{ID: 3, ServiceID: 10, OwnerID: 1}})
	}))
	mux.HandleFunc("GET /api/offers", f.auth(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, []wire.Offer{})
	}))
	mux.HandleFunc("GET /api/messages/7", f.auth(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		page := wire.MessagePage{Messages: append([]wire.Message{}, f.messages...), Page: 1, PageSize: 20, Total: len(f.messages)}
		if r.URL.Query().Get("page") != "1" {
			page.Messages = []wire.Message{}
		}
		writeTestJSON(w, page)
	}))
	mux.HandleFunc("POST /api/messages/7", f.auth(func(w http.ResponseWriter, r *http.Request) {
		content := ""
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			content = r.FormValue("content")
			_, fh, err := r.FormFile("files[]")
			require.NoError(t, err)
			content += "+" + fh.Filename
		} else {
			var body struct{ Content string }
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			content = body.Content
		}
		f.mu.Lock()
		if f.failSends {
			f.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error":"internal server error"}`)
			return
		}
		m := wire.Message{
			ID:             int64(len(f.messages) + 1),
			ConversationID: 7,
			SenderID:       1,
			Content:        content,
			Attachments:    []string{},
			CreatedAt:      t0.Add(time.Duration(len(f.messages)+1) * time.Second),
		}
		f.messages = append(f.messages, m)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		writeTestJSON(w, m)
	}))
	for _, kind := range []string{"conversations/7", "bookings/3", "offers/4"} {
		mux.HandleFunc("PATCH /api/"+kind+"/read", f.auth(func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.reads[kind]++
			if kind == "conversations/7" {
				f.unread = false
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		}))
	}
	mux.HandleFunc("/ws", f.serveWS)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":"unauthorized"}`)
			return
		}
		next(w, r)
	}
}

func (f *fakeServer) serveWS(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	reject := f.rejectWS
	f.mu.Unlock()
	if reject || r.Header.Get("Authorization") != "Bearer good" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	for {
		var env wire.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Event == wire.EventJoinConversation {
			var req wire.JoinConversationRequest
			_ = json.Unmarshal(env.Data, &req)
			f.mu.Lock()
			f.joined = append(f.joined, req.ConversationID)
			f.mu.Unlock()
		}
	}
}

// push sends a frame to every open socket.
func (f *fakeServer) push(event string, data any) {
	env, err := wire.NewEnvelope(event, data)
	require.NoError(f.t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		_ = c.WriteJSON(env)
	}
}

func (f *fakeServer) connCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeServer) readCount(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[kind]
}

func writeTestJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(20 * time.Millisecond)
}

func startSyncer(t *testing.T, srv *httptest.Server, token string, interval time.Duration) *Syncer {
	log := zaptest.NewLogger(t)
	sock := NewSocket(wsURL(srv), token, log)
	sock.NewBackOff = fastBackOff
	s := NewSyncer(NewAPI(srv.URL, token, srv.Client()), sock, 1, interval, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return s
}

func TestAPIErrors(t *testing.T) {
	_, srv := newFakeServer(t)

	me, err := NewAPI(srv.URL+"/", "good", nil).Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Aino", me.Name)

	_, err = NewAPI(srv.URL, "bad", nil).Conversations(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "unauthorized", apiErr.Message)
}

func TestAPISendMessage(t *testing.T) {
	_, srv := newFakeServer(t)
	api := NewAPI(srv.URL, "good", nil)

	m, err := api.SendMessage(context.Background(), 7, "hei", nil)
	require.NoError(t, err)
	assert.Equal(t, "hei", m.Content)

	m, err = api.SendMessage(context.Background(), 7, "kuva", []Attachment{{Name: "a.png", Data: []byte("png")}})
	require.NoError(t, err)
	assert.Equal(t, "kuva+a.png", m.Content)

	page, err := api.Messages(context.Background(), 7, 1, 20)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)
}

func TestSocketReconnects(t *testing.T) {
	f, srv := newFakeServer(t)
	sock := NewSocket(wsURL(srv), "good", zaptest.NewLogger(t))
	sock.NewBackOff = fastBackOff

	var mu sync.Mutex
	var states []SocketState
	events := make(chan wire.Envelope, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sock.Run(ctx, func(env wire.Envelope) { events <- env }, func(s SocketState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool { return f.connCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	f.push(wire.EventConversationUnread, wire.ConversationUnread{ConversationID: 7})
	env := <-events
	assert.Equal(t, wire.EventConversationUnread, env.Event)

	f.mu.Lock()
	f.conns[0].Close()
	f.mu.Unlock()
	require.Eventually(t, func() bool { return f.connCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return sock.Emit(wire.EventJoinConversation, wire.JoinConversationRequest{ConversationID: 7}) == nil
	},
		2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []SocketState{SocketConnected, SocketDisconnected, SocketConnected, SocketDisconnected}, states)
	assert.ErrorIs(t, sock.Emit(wire.EventJoinConversation, nil), ErrNotConnected)
}

func runSocket(t *testing.T, sock *Socket) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sock.Run(ctx, func(wire.Envelope) {}, func(SocketState) {}) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestSocketDropsSilentConnection(t *testing.T) {
	f, srv := newFakeServer(t)
	sock := NewSocket(wsURL(srv), "good", zaptest.NewLogger(t))
	sock.NewBackOff = fastBackOff
	sock.ReadTimeout = 150 * time.Millisecond
	runSocket(t, sock)

	// The fake server never pings and never closes.
	require.Eventually(t, func() bool { return f.connCount() >= 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestSocketPingsKeepConnectionAlive(t *testing.T) {
	var mu sync.Mutex
	accepted := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mu.Lock()
		accepted++
		mu.Unlock()

		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		ticker := time.NewTicker(40 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteControl(websocket.PingMessage, []byte("hb"), time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	sock := NewSocket(wsURL(srv), "good", zaptest.NewLogger(t))
	sock.NewBackOff = fastBackOff
	sock.ReadTimeout = 150 * time.Millisecond
	runSocket(t, sock)

	require.Eventually(t, func() bool {
		return sock.Emit(wire.EventJoinConversation, wire.JoinConversationRequest{ConversationID: 7}) == nil
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(600 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, accepted, "pings extend the read deadline")
}

func TestSyncerPushAndPoll(t *testing.T) {
	f, srv := newFakeServer(t)
	// Polls only run when asked, so every step below is deterministic.
	s := startSyncer(t, srv, "good", time.Hour)

	require.Eventually(t, func() bool { return f.connCount() == 1 && s.Badges().Counts().Bookings == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.False(t, s.PollOnly())

	f.mu.Lock()
	f.unread = true
	f.mu.Unlock()
	f.push(wire.EventConversationUnread, wire.ConversationUnread{ConversationID: 7})
	require.Eventually(t, func() bool { return s.Badges().IsConversationUnread(7) }, 2*time.Second, 10*time.Millisecond)

	tl, pager, err := s.OpenConversation(context.Background(), 7, func() float64 { return 0 }, 100)
	require.NoError(t, err)
	assert.False(t, pager.HasMore())
	assert.False(t, s.Badges().IsConversationUnread(7))
	require.Eventually(t, func() bool { return f.readCount("conversations/7") >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.joined) == 1 && f.joined[0] == 7
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Poll(context.Background()))

	pushed := wire.Message{ID: 40, ConversationID: 7, SenderID: 2, Content: "moi", Attachments: []string{}, CreatedAt: t0.Add(time.Hour)}
	f.push(wire.EventNewMessage, pushed)
	require.Eventually(t, func() bool { return tl.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	c, ok := s.Conversations().Get(7)
	require.True(t, ok)
	assert.Equal(t, int64(40), c.LastMessage.ID)
	assert.False(t, c.IsUnread, "open conversation")
	require.Eventually(t, func() bool { return f.readCount("conversations/7") >= 2 }, 2*time.Second, 10*time.Millisecond)

	// The fake server never stored message 40, so the next poll drops it.
	require.NoError(t, s.Poll(context.Background()))
	assert.Zero(t, tl.Len())
}

func TestSyncerSend(t *testing.T) {
	f, srv := newFakeServer(t)
	s := startSyncer(t, srv, "good", 50*time.Millisecond)

	_, err := s.Send(context.Background(), "hei", nil)
	require.Error(t, err, "nothing open")

	tl, _, err := s.OpenConversation(context.Background(), 7, func() float64 { return 0 }, 100)
	require.NoError(t, err)

	_, err = s.Send(context.Background(), "hei", nil)
	require.NoError(t, err)
	s.WaitSends()
	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, EntryConfirmed, entries[0].State)
	assert.Equal(t, int64(1), entries[0].Message.ID)

	f.mu.Lock()
	f.failSends = true
	f.mu.Unlock()
	tempID, err := s.Send(context.Background(), "uudestaan", nil)
	require.NoError(t, err)
	s.WaitSends()
	entries = tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, EntryFailed, entries[1].State)
	assert.Equal(t, tempID, entries[1].TempID)

	f.mu.Lock()
	f.failSends = false
	f.mu.Unlock()
	require.True(t, s.Retry(context.Background(), tempID))
	s.WaitSends()
	assert.Equal(t, []int64{1, 2}, ids(tl.Entries()))
	assert.False(t, s.Retry(context.Background(), tempID), "already confirmed")
}

func TestSyncerPollOnlyWhenSocketRefused(t *testing.T) {
	f, srv := newFakeServer(t)
	f.rejectWS = true
	s := startSyncer(t, srv, "good", 50*time.Millisecond)

	require.Eventually(t, s.PollOnly, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := s.Conversations().Get(7)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.Badges().Counts().Bookings)
	assert.Zero(t, f.connCount())
}
