package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/chatdeck/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestAdminAuthMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		cfg            config.Config
		reqUsername    string
		reqPassword    string
		reqToken       string
		expectedStatus int
	}{
		{"no auth configured", config.Config{}, "", "", "", http.StatusOK},
		{"valid basic auth", config.Config{AdminUsername: "admin", AdminPassword: "secret123"}, "admin", "secret123", "", http.StatusOK},
		{"wrong username", config.Config{AdminUsername: "admin", AdminPassword: "secret123"}, "wrong", "secret123", "", http.StatusUnauthorized},
		{"wrong password", config.Config{AdminUsername: "admin", AdminPassword: "secret123"}, "admin", "wrong", "", http.StatusUnauthorized},
		{"missing credentials", config.Config{AdminToken: "tok"}, "", "", "", http.StatusUnauthorized},
		{"valid token", config.Config{AdminToken: "tok-12345"}, "", "", "tok-12345", http.StatusOK},
		{"invalid token", config.Config{AdminToken: "tok-12345"}, "", "", "nope", http.StatusUnauthorized},
		{"token wins over bad basic auth", config.Config{AdminUsername: "admin", AdminPassword: "secret123", AdminToken: "tok"}, "wrong", "wrong", "tok", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := adminAuth(okHandler(), newAuthConfig(&tt.cfg))

			req := httptest.NewRequest(http.MethodPost, "/chat/connect", nil)
			if tt.reqUsername != "" || tt.reqPassword != "" {
				req.SetBasicAuth(tt.reqUsername, tt.reqPassword)
			}
			if tt.reqToken != "" {
				req.Header.Set("X-Admin-Token", tt.reqToken)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if tt.expectedStatus == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header on 401 response")
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{
		enabled:       true,
		requestsPerIP: 3,
		window:        100 * time.Millisecond,
	})

	for i := 0; i < 3; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
	if limiter.allow("192.168.1.1") {
		t.Error("request 4 should be denied (rate limit exceeded)")
	}
	if !limiter.allow("192.168.1.2") {
		t.Error("a different IP should have its own budget")
	}

	time.Sleep(150 * time.Millisecond)
	if !limiter.allow("192.168.1.1") {
		t.Error("request after window expiry should be allowed")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{
		enabled:       false,
		requestsPerIP: 1,
		window:        time.Second,
	})
	for i := 0; i < 100; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Fatalf("request %d should be allowed when rate limiter is disabled", i+1)
		}
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{
		enabled:       true,
		requestsPerIP: 1,
		window:        10 * time.Millisecond,
	})
	limiter.allow("10.0.0.1")
	time.Sleep(30 * time.Millisecond)
	limiter.cleanup()

	limiter.mu.Lock()
	n := len(limiter.visitors)
	limiter.mu.Unlock()
	if n != 0 {
		t.Errorf("visitors = %d after cleanup, want 0", n)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr []string
		forwarded  string
	}{
		{"remote addr with port", []string{"192.168.1.1:12345", "192.168.1.1:12345", "192.168.1.1:999"}, ""},
		{"forwarded for first hop", []string{"10.0.0.1:1", "10.0.0.2:2", "10.0.0.3:3"}, "203.0.113.1, 10.0.0.2"},
		{"ipv6 with port", []string{"[2001:db8::1]:12345", "[2001:db8::1]:1", "[2001:db8::1]:54321"}, ""},
		{"ipv6 without port", []string{"127.0.0.1:8080", "127.0.0.1:8080", "127.0.0.1:8080"}, "2001:db8::42"},
		{"ipv4 without port", []string{"10.0.0.1:8080", "10.0.0.1:8080", "10.0.0.1:8080"}, "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{
				enabled:       true,
				requestsPerIP: 2,
				window:        time.Second,
			})
			handler := rateLimitMiddleware(okHandler(), limiter)

			for i, addr := range tt.remoteAddr {
				req := httptest.NewRequest(http.MethodGet, "/media/resolve", nil)
				req.RemoteAddr = addr
				if tt.forwarded != "" {
					req.Header.Set("X-Forwarded-For", tt.forwarded)
				}
				rr := httptest.NewRecorder()
				handler.ServeHTTP(rr, req)

				want := http.StatusOK
				if i == 2 {
					want = http.StatusTooManyRequests
				}
				if rr.Code != want {
					t.Fatalf("request %d: expected %d, got %d", i+1, want, rr.Code)
				}
				if want == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
					t.Error("expected Retry-After header on 429 response")
				}
			}
		})
	}
}

func TestNewRateLimiterConfig(t *testing.T) {
	rl := newRateLimiterConfig(&config.Config{RateLimitEnabled: true})
	if rl.requestsPerIP != 60 || rl.window != time.Minute {
		t.Errorf("defaults = %d/%v", rl.requestsPerIP, rl.window)
	}
	rl = newRateLimiterConfig(&config.Config{RateLimitRequestsPerIP: 5, RateLimitWindowSeconds: 2})
	if rl.enabled || rl.requestsPerIP != 5 || rl.window != 2*time.Second {
		t.Errorf("overrides = %+v", rl)
	}
}

func TestCORSConfig(t *testing.T) {
	tests := []struct {
		name              string
		permissive        bool
		allowedOrigins    []string
		requestOrigin     string
		expectAllowOrigin string
		expectCredentials bool
	}{
		{"permissive allows all", true, nil, "https://example.com", "*", false},
		{"restricted matching origin", false, []string{"https://example.com", "https://app.example.com"}, "https://example.com", "https://example.com", true},
		{"restricted non-matching origin", false, []string{"https://example.com"}, "https://evil.com", "", false},
		{"wildcard subdomain", false, []string{"*.example.com"}, "https://app.example.com", "https://app.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := withCORSConfig(okHandler(), &corsConfig{permissive: tt.permissive, allowedOrigins: tt.allowedOrigins})

			req := httptest.NewRequest(http.MethodGet, "/playlist", nil)
			req.Header.Set("Origin", tt.requestOrigin)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.expectAllowOrigin {
				t.Errorf("expected Allow-Origin %q, got %q", tt.expectAllowOrigin, got)
			}
			if tt.expectCredentials && rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("expected Allow-Credentials: true for restricted mode")
			}
		})
	}
}

func TestCORSPreflightRequest(t *testing.T) {
	handler := withCORSConfig(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for OPTIONS request")
	}), &corsConfig{permissive: true})

	req := httptest.NewRequest(http.MethodOptions, "/playlist/items", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204 for OPTIONS, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Methods") == "" || rr.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Error("expected Allow-Methods and Allow-Headers on OPTIONS response")
	}
}

func TestNewCORSConfig(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name           string
		cfg            config.Config
		wantPermissive bool
		wantOrigins    int
	}{
		{"development default", config.Config{Env: "development"}, true, 0},
		{"production", config.Config{Env: "production"}, false, 0},
		{"production with origins", config.Config{Env: "production", CORSAllowedOrigins: []string{"https://a.example", " ", "https://b.example"}}, false, 2},
		{"explicit permissive", config.Config{Env: "production", CORSPermissive: &yes}, true, 0},
		{"explicit strict in dev", config.Config{Env: "development", CORSPermissive: &no}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCORSConfig(&tt.cfg)
			if c.permissive != tt.wantPermissive {
				t.Errorf("permissive = %v, want %v", c.permissive, tt.wantPermissive)
			}
			if len(c.allowedOrigins) != tt.wantOrigins {
				t.Errorf("origins = %v", c.allowedOrigins)
			}
		})
	}
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"https://example.com", []string{"https://example.com", "https://other.com"}, true},
		{"https://evil.com", []string{"https://example.com"}, false},
		{"https://app.example.com", []string{"*.example.com"}, true},
		{"https://api.v2.example.com", []string{"*.example.com"}, true},
		{"https://example.com", []string{"*.example.com"}, true},
		{"http://example.com", []string{"https://example.com"}, false},
	}
	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, tt.allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
		}
	}
}
