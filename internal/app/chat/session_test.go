package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"textrelay/internal/app/bus"
	"textrelay/internal/app/history"
	"textrelay/internal/app/message"
	"textrelay/internal/app/user"
	"textrelay/internal/mocks"
)

const readTimeout = 2 * time.Second

type harness struct {
	server *Server
	url    string
}

func newHarness(t *testing.T, store user.Store, opts Options) *harness {
	t.Helper()

	srv := NewServer(store, history.New(0), bus.New(bus.DefaultCapacity), opts)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = srv.Serve(r.Context(), conn, r.RemoteAddr)
	}))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})

	return &harness{server: srv, url: "ws" + strings.TrimPrefix(ts.URL, "http")}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connect dials, sends the control envelope and returns the connection with the notice received.
func (h *harness) connect(t *testing.T, kind, username, password string) (*websocket.Conn, string) {
	t.Helper()

	conn := h.dial(t)
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":     kind,
		"username": username,
		"password": password,
	}))
	return conn, readText(t, conn)
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	kind, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	return string(raw)
}

func readMessage(t *testing.T, conn *websocket.Conn) message.Message {
	t.Helper()

	m, err := message.Parse([]byte(readText(t, conn)))
	require.NoError(t, err)
	return m
}

func send(t *testing.T, conn *websocket.Conn, m message.Message) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(m))
}

func expectClosed(t *testing.T, conn *websocket.Conn) error {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	return err
}

func TestSession_AliceAndBobScenario(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, user.NewMemoryStore(), Options{})

	// Given alice registers with pw1
	alice, notice := h.connect(t, "register", "alice", "pw1")
	req.Equal(NoticeRegistered, notice)

	// When alice registers again with pw2, the session is refused and closed
	dup, notice := h.connect(t, "register", "alice", "pw2")
	req.Equal("Registration failed: Username already exists", notice)
	req.True(websocket.IsCloseError(expectClosed(t, dup), websocket.CloseNormalClosure))

	// And logging in with pw1 succeeds
	aliceAgain, notice := h.connect(t, "login", "alice", "pw1")
	req.Equal(NoticeAuthenticated, notice)

	// And logging in with a wrong password fails
	wrong, notice := h.connect(t, "login", "alice", "wrong")
	req.Equal("Authentication failed", notice)
	expectClosed(t, wrong)

	// When alice says hi, every session including her own receives it
	hi := message.Message{Sender: "alice", Content: "hi", Timestamp: 1000}
	send(t, alice, hi)
	req.Equal(hi, readMessage(t, alice))
	req.Equal(hi, readMessage(t, aliceAgain))

	// Then bob, joining afterwards, gets exactly that message replayed
	bob, notice := h.connect(t, "register", "bob", "pw")
	req.Equal(NoticeRegistered, notice)
	req.Equal(hi, readMessage(t, bob))

	// And live traffic follows the replay without duplicates
	second := message.Message{Sender: "alice", Content: "second", Timestamp: 1001}
	send(t, alice, second)
	req.Equal(second, readMessage(t, bob))
	req.Equal([]message.Message{hi, second}, h.server.History())
}

func TestSession_InvalidControlEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"Unknown type", `{"type":"logout","username":"alice","password":"pw"}`},
		{"Not json", `let me in`},
		{"Missing username", `{"type":"login","password":"pw"}`},
		{"Empty username", `{"type":"register","username":"","password":"pw"}`},
		{"Missing password", `{"type":"register","username":"alice"}`},
		{"Username not a string", `{"type":"login","username":42,"password":"pw"}`},
		{"Missing type", `{"username":"alice","password":"pw"}`},
	}

	h := newHarness(t, user.NewMemoryStore(), Options{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			conn := h.dial(t)

			req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(tt.payload)))

			req.Equal("Invalid authentication type", readText(t, conn))
			expectClosed(t, conn)
		})
	}
}

func TestSession_EmptyPasswordIsAccepted(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, user.NewMemoryStore(), Options{})

	_, notice := h.connect(t, "register", "dave", "")
	req.Equal(NoticeRegistered, notice)

	_, notice = h.connect(t, "login", "dave", "")
	req.Equal(NoticeAuthenticated, notice)
}

func TestSession_MalformedMessageIsDiscarded(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, user.NewMemoryStore(), Options{})

	alice, _ := h.connect(t, "register", "alice", "pw")
	bob, _ := h.connect(t, "register", "bob", "pw")

	// When alice sends garbage followed by a valid message
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(`{"sender":"alice"`)))
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(`{"content":"no sender","timestamp":1}`)))
	valid := message.Message{Sender: "alice", Content: "still here", Timestamp: 2}
	send(t, alice, valid)

	// Then both sessions stay open and only the valid message is relayed
	req.Equal(valid, readMessage(t, bob))
	req.Equal(valid, readMessage(t, alice))
	req.Len(h.server.History(), 1)
}

func TestSession_SenderIsNotVerified(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, user.NewMemoryStore(), Options{})

	alice, _ := h.connect(t, "register", "alice", "pw")

	spoofed := message.Message{Sender: "mallory", Content: "hello", Timestamp: 3}
	send(t, alice, spoofed)

	req.Equal(spoofed, readMessage(t, alice))
}

func TestSession_BroadcastFanOutKeepsOrder(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, user.NewMemoryStore(), Options{})

	const listeners, messages = 3, 20
	conns := make([]*websocket.Conn, listeners)
	for i := range conns {
		var notice string
		conns[i], notice = h.connect(t, "register", fmt.Sprintf("user%d", i), "pw")
		req.Equal(NoticeRegistered, notice)
	}

	for i := range messages {
		send(t, conns[0], message.Message{Sender: "user0", Content: fmt.Sprintf("m%d", i), Timestamp: int64(i)})
	}

	for _, conn := range conns {
		for i := range messages {
			m := readMessage(t, conn)
			req.Equal(fmt.Sprintf("m%d", i), m.Content)
		}
	}
}

func TestSession_StoreFailures(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	h := newHarness(t, store, Options{})

	// Given a credential store that is unavailable
	store.EXPECT().Register(gomock.Any(), "erin", "pw").Return(errors.New("db down")).Times(1)
	store.EXPECT().Authenticate(gomock.Any(), "erin", "pw").Return(false, errors.New("db down")).Times(1)

	// When erin registers, the failure is reported without internals
	conn, notice := h.connect(t, "register", "erin", "pw")
	req.Equal("Registration failed: Something went wrong. Please try again.", notice)
	expectClosed(t, conn)

	// And a login is refused
	conn, notice = h.connect(t, "login", "erin", "pw")
	req.Equal("Authentication failed", notice)
	expectClosed(t, conn)
}

func TestSession_AuthTimeoutClosesConnection(t *testing.T) {
	h := newHarness(t, user.NewMemoryStore(), Options{AuthTimeout: 50 * time.Millisecond})

	conn := h.dial(t)

	expectClosed(t, conn)
	require.Eventually(t, func() bool { return h.server.ActiveSessions() == 0 }, readTimeout, 10*time.Millisecond)
}

func TestSession_DisconnectReleasesSubscription(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, user.NewMemoryStore(), Options{})

	alice, _ := h.connect(t, "register", "alice", "pw")
	bob, _ := h.connect(t, "register", "bob", "pw")
	req.Equal(2, h.server.bus.SubscriberCount())

	// When bob disconnects
	req.NoError(bob.Close())

	// Then his subscription and session are released
	req.Eventually(func() bool {
		return h.server.bus.SubscriberCount() == 1 && h.server.ActiveSessions() == 1
	}, readTimeout, 10*time.Millisecond)

	// And alice keeps working
	m := message.Message{Sender: "alice", Content: "anyone?", Timestamp: 4}
	send(t, alice, m)
	req.Equal(m, readMessage(t, alice))
}

func TestServer_ShutdownClosesSessions(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, user.NewMemoryStore(), Options{})

	alice, _ := h.connect(t, "register", "alice", "pw")
	pending := h.dial(t)
	req.Eventually(func() bool { return h.server.ActiveSessions() == 2 }, readTimeout, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	req.NoError(h.server.Shutdown(ctx))

	req.True(websocket.IsCloseError(expectClosed(t, alice), websocket.CloseGoingAway))
	expectClosed(t, pending)
	req.Equal(0, h.server.ActiveSessions())

	// New connections are refused once shutdown has started
	late := h.dial(t)
	expectClosed(t, late)
}
