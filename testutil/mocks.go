package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// MockChzzkServer mocks the Chzzk REST endpoints and the chat websocket on a
// single httptest server.
type MockChzzkServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu    sync.Mutex
	conns chan *ServerConn
	open  []*ServerConn
}

// ServerConn is the server side of one accepted chat websocket.
type ServerConn struct {
	Conn      *websocket.Conn
	Query     url.Values
	Handshake []byte
	// Received gets every frame the client writes after the handshake.
	Received chan []byte
	// Closed is closed when the client side goes away.
	Closed chan struct{}

	writeMu sync.Mutex
}

// ChatPath is where the mock accepts websocket upgrades.
const ChatPath = "/chat"

// NewMockChzzkServer creates a new mock Chzzk backend.
func NewMockChzzkServer(t *testing.T) *MockChzzkServer {
	t.Helper()
	m := &MockChzzkServer{
		Handlers: make(map[string]http.HandlerFunc),
		conns:    make(chan *ServerConn, 8),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == ChatPath {
			m.serveChat(w, r)
			return
		}
		m.mu.Lock()
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(func() {
		m.mu.Lock()
		for _, c := range m.open {
			_ = c.Conn.Close()
		}
		m.mu.Unlock()
		m.Close()
	})
	return m
}

// Handle registers a handler for an exact path.
func (m *MockChzzkServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	m.Handlers[path] = h
	m.mu.Unlock()
}

// MockLiveStatus answers the first status endpoint for channelID.
func (m *MockChzzkServer) MockLiveStatus(channelID, status, chatChannelID string) {
	m.Handle("/polling/v2/channels/"+channelID+"/live-status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"code": 200,
			"content": map[string]any{
				"status":        status,
				"liveTitle":     "mock live",
				"chatChannelId": chatChannelID,
			},
		})
	})
}

// MockAccessToken answers the chat access token endpoint.
func (m *MockChzzkServer) MockAccessToken(token string) {
	m.Handle("/nng_main/v1/chats/access-token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"code":    200,
			"content": map[string]any{"accessToken": token, "extraToken": "extra"},
		})
	})
}

// ChatURL is the websocket URL of the chat endpoint, usable as a server
// URL template.
func (m *MockChzzkServer) ChatURL() string {
	return "ws" + strings.TrimPrefix(m.URL, "http") + ChatPath
}

// WaitConn returns the next accepted chat connection.
func (m *MockChzzkServer) WaitConn(t *testing.T, timeout time.Duration) *ServerConn {
	t.Helper()
	select {
	case c := <-m.conns:
		return c
	case <-time.After(timeout):
		t.Fatal("no chat connection accepted")
		return nil
	}
}

func (m *MockChzzkServer) serveChat(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	_, hs, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}
	sc := &ServerConn{
		Conn:      conn,
		Query:     r.URL.Query(),
		Handshake: hs,
		Received:  make(chan []byte, 64),
		Closed:    make(chan struct{}),
	}
	m.mu.Lock()
	m.open = append(m.open, sc)
	m.mu.Unlock()
	m.conns <- sc

	defer close(sc.Closed)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case sc.Received <- data:
		default:
		}
	}
}

// Send writes v as a JSON text frame.
func (c *ServerConn) Send(t *testing.T, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	c.SendRaw(t, b)
}

// SendRaw writes raw bytes as a text frame.
func (c *ServerConn) SendRaw(t *testing.T, b []byte) {
	t.Helper()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.Conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// CloseNormal sends a close frame.
func (c *ServerConn) CloseNormal(t *testing.T) {
	t.Helper()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("write close: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// Recorder collects values delivered from other goroutines.
type Recorder[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

// NewRecorder returns an empty recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{notify: make(chan struct{}, 1)}
}

// Add records v.
func (r *Recorder[T]) Add(v T) {
	r.mu.Lock()
	r.items = append(r.items, v)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Items returns a copy of everything recorded so far.
func (r *Recorder[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...)
}

// WaitFor blocks until at least n values were recorded and returns them.
func (r *Recorder[T]) WaitFor(t *testing.T, n int, timeout time.Duration) []T {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if items := r.Items(); len(items) >= n {
			return items
		}
		select {
		case <-r.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %d values, have %d", n, len(r.Items()))
		}
	}
}
