// Package server middleware for operator authentication, rate limiting and CORS.
package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/chatdeck/config"
)

// authConfig holds operator authentication settings.
type authConfig struct {
	adminUsername string
	adminPassword string
	adminToken    string
	enabled       bool
}

func newAuthConfig(cfg *config.Config) *authConfig {
	enabled := (cfg.AdminUsername != "" && cfg.AdminPassword != "") || cfg.AdminToken != ""
	if !enabled {
		slog.Warn("operator authentication not configured - mutating endpoints are UNPROTECTED. Set ADMIN_USERNAME+ADMIN_PASSWORD or ADMIN_TOKEN when exposed beyond localhost")
	}
	return &authConfig{
		adminUsername: cfg.AdminUsername,
		adminPassword: cfg.AdminPassword,
		adminToken:    cfg.AdminToken,
		enabled:       enabled,
	}
}

// adminAuth protects operator endpoints with token or Basic auth.
func adminAuth(next http.Handler, cfg *authConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cfg.enabled {
			next.ServeHTTP(w, r)
			return
		}

		if cfg.adminToken != "" {
			token := r.Header.Get("X-Admin-Token")
			if token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(cfg.adminToken)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}

		if cfg.adminUsername != "" && cfg.adminPassword != "" {
			username, password, ok := r.BasicAuth()
			if ok {
				usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.adminUsername)) == 1
				passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(cfg.adminPassword)) == 1
				if usernameMatch && passwordMatch {
					next.ServeHTTP(w, r)
					return
				}
			}
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="chatdeck"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		slog.Warn("operator auth failed", slog.String("path", r.URL.Path), slog.String("remote_addr", r.RemoteAddr))
	})
}

// rateLimiterConfig holds rate limiting settings.
type rateLimiterConfig struct {
	enabled       bool
	requestsPerIP int
	window        time.Duration
}

func newRateLimiterConfig(cfg *config.Config) *rateLimiterConfig {
	rl := &rateLimiterConfig{enabled: cfg.RateLimitEnabled, requestsPerIP: 60, window: time.Minute}
	if cfg.RateLimitRequestsPerIP > 0 {
		rl.requestsPerIP = cfg.RateLimitRequestsPerIP
	}
	if cfg.RateLimitWindowSeconds > 0 {
		rl.window = time.Duration(cfg.RateLimitWindowSeconds) * time.Second
	}
	return rl
}

// ipRateLimiter is a sliding window limiter keyed by client IP.
type ipRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	cfg      *rateLimiterConfig
}

type visitor struct {
	requests []time.Time
	lastSeen time.Time
}

func newIPRateLimiter(ctx context.Context, cfg *rateLimiterConfig) *ipRateLimiter {
	limiter := &ipRateLimiter{
		visitors: make(map[string]*visitor),
		cfg:      cfg,
	}
	go limiter.cleanupLoop(ctx)
	return limiter
}

func (rl *ipRateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// cleanup drops visitors idle for two windows.
func (rl *ipRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.cfg.window*2 {
			delete(rl.visitors, ip)
		}
	}
}

func (rl *ipRateLimiter) allow(ip string) bool {
	if !rl.cfg.enabled {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{requests: []time.Time{now}, lastSeen: now}
		return true
	}

	cutoff := now.Add(-rl.cfg.window)
	kept := v.requests[:0]
	for _, t := range v.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	v.requests = kept
	v.lastSeen = now

	if len(v.requests) >= rl.cfg.requestsPerIP {
		return false
	}
	v.requests = append(v.requests, now)
	return true
}

// clientIP prefers the first X-Forwarded-For hop and strips any port.
func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			ip = strings.TrimSpace(forwarded[:idx])
		} else {
			ip = strings.TrimSpace(forwarded)
		}
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return strings.Trim(ip, "[]")
}

// rateLimitMiddleware applies the limiter to network-bound endpoints.
func rateLimitMiddleware(next http.Handler, limiter *ipRateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !limiter.allow(ip) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Too Many Requests - rate limit exceeded", http.StatusTooManyRequests)
			slog.Warn("rate limit exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsConfig holds CORS settings.
type corsConfig struct {
	allowedOrigins []string
	permissive     bool
}

// newCORSConfig is permissive outside production unless CORS_PERMISSIVE says
// otherwise.
func newCORSConfig(cfg *config.Config) *corsConfig {
	permissive := !cfg.IsProduction()
	if cfg.CORSPermissive != nil {
		permissive = *cfg.CORSPermissive
	}
	var origins []string
	for _, o := range cfg.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if !permissive && len(origins) == 0 {
		slog.Warn("CORS restricted mode enabled but no CORS_ALLOWED_ORIGINS configured - all CORS requests will be blocked")
	}
	return &corsConfig{allowedOrigins: origins, permissive: permissive}
}

func withCORSConfig(next http.Handler, cfg *corsConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if cfg.permissive {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token, X-Correlation-ID")
		} else if origin != "" && isOriginAllowed(origin, cfg.allowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token, X-Correlation-ID")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed matches exact origins and "*.domain" wildcards.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}
		if strings.HasPrefix(allowed, "*.") {
			domain := allowed[2:]
			if strings.HasSuffix(origin, "."+domain) || origin == "https://"+domain || origin == "http://"+domain {
				return true
			}
		}
	}
	return false
}
