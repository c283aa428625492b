package server

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

	"github.com/onnwee/chatdeck/app"
	"github.com/onnwee/chatdeck/chat"
	"github.com/onnwee/chatdeck/chzzk"
	"github.com/onnwee/chatdeck/config"
	"github.com/onnwee/chatdeck/events"
	"github.com/onnwee/chatdeck/media"
	"github.com/onnwee/chatdeck/testutil"
)

const waitTimeout = 3 * time.Second

type stubResolver struct {
	mu    sync.Mutex
	calls int
}

func (r *stubResolver) Resolve(_ context.Context, query string) (media.Descriptor, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if query == "missing" {
		return media.Descriptor{}, media.ErrNotFound
	}
	id := "vid-" + strings.ReplaceAll(query, " ", "-")
	return media.Descriptor{ID: id, Title: "Song " + query, Channel: "Artist", URL: media.CanonicalURL(id)}, nil
}

type testEnv struct {
	app     *app.App
	hub     *events.Hub
	chzzk   *testutil.MockChzzkServer
	handler http.Handler
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{Env: "development", Platform: config.PlatformChzzk}
	}
	m := testutil.NewMockChzzkServer(t)
	m.MockLiveStatus("streamer", "OPEN", "N1chat")
	m.MockAccessToken("tok")

	hub := events.NewHub()
	a := app.New(app.Options{
		NewSession: func(sink chat.Sink) app.ChatSession {
			return chat.NewSession(chat.Config{
				Resolver:          &chzzk.Client{APIBase: m.URL, CommAPIBase: m.URL},
				ServerURLTemplate: m.ChatURL(),
				HeartbeatInterval: time.Hour,
				CloseGrace:        500 * time.Millisecond,
			}, sink)
		},
		Resolver: &stubResolver{},
		Sink:     hub,
	})
	t.Cleanup(a.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &testEnv{
		app:     a,
		hub:     hub,
		chzzk:   m,
		handler: NewMux(ctx, Deps{App: a, Hub: hub, Config: cfg}),
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthzOK(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("expected ok body, got %q", got)
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing X-Correlation-ID header")
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("X-Correlation-ID = %q", got)
	}
}

func TestHealthzWithDatabase(t *testing.T) {
	db := testutil.SetupTestDB(t)
	a := app.New(app.Options{})
	t.Cleanup(a.Close)
	h := NewMux(context.Background(), Deps{App: a, DB: db, Config: &config.Config{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestReadyzReady(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if resp := decodeBody[map[string]string](t, rr); resp["status"] != "ready" {
		t.Fatalf("expected status=ready, got %q", resp["status"])
	}
}

func TestReadyzNotReadyAfterConnectFailure(t *testing.T) {
	env := newTestEnv(t, nil)

	// no status endpoint knows this channel
	rr := env.do(t, http.MethodPost, "/chat/connect", `{"channel_id":"ghost"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("connect: expected 502, got %d, body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	resp := decodeBody[map[string]string](t, rr)
	if resp["status"] != "not_ready" || resp["failed_check"] != "chat_session" || resp["error"] == "" {
		t.Errorf("readyz = %v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Start(ctx, "127.0.0.1:0", http.NotFoundHandler()) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("server did not shut down")
	}
}
