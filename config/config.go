// Package config loads environment variables into a typed Config used across the service.
// Defaults let the binary run locally with no setup beyond a channel id; optional
// integrations (Postgres, MQTT, YouTube Data API, AI provider) stay off until configured.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Chat platforms.
const (
	PlatformChzzk  = "chzzk"
	PlatformTwitch = "twitch"
)

type Config struct {
	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// HTTP
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	Env      string `env:"ENV" envDefault:"development"`

	// Chat
	Platform           string        `env:"CHAT_PLATFORM" envDefault:"chzzk"`
	ChzzkAPIBase       string        `env:"CHZZK_API_BASE" envDefault:"https://api.chzzk.naver.com"`
	ChzzkCommAPIBase   string        `env:"CHZZK_COMM_API_BASE" envDefault:"https://comm-api.game.naver.com"`
	ChatServerTemplate string        `env:"CHZZK_CHAT_SERVER_TEMPLATE" envDefault:"wss://kr-ss%d.chat.naver.com/chat"`
	HeartbeatInterval  time.Duration `env:"CHAT_HEARTBEAT_INTERVAL" envDefault:"20s"`
	CloseGrace         time.Duration `env:"CHAT_CLOSE_GRACE" envDefault:"2s"`
	ChatBufferSize     int           `env:"CHAT_BUFFER_SIZE" envDefault:"100"`
	DisplayLogSize     int           `env:"CHAT_DISPLAY_LOG_SIZE" envDefault:"500"`
	DedupWindow        time.Duration `env:"COMMAND_DEDUP_WINDOW" envDefault:"3s"`
	CommandConfigPath  string        `env:"COMMAND_CONFIG_PATH"`

	// Twitch
	TwitchBotUsername string `env:"TWITCH_BOT_USERNAME"`
	TwitchOAuthToken  string `env:"TWITCH_OAUTH_TOKEN"`
	TwitchIRCAddress  string `env:"TWITCH_IRC_ADDRESS"`

	// Media
	YouTubeAPIKey string `env:"YOUTUBE_API_KEY"`

	// Database (optional; enables playlist persistence)
	DBDsn string `env:"DB_DSN"`

	// MQTT (optional)
	MQTTBroker    string `env:"MQTT_BROKER"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"chatdeck"`
	MQTTTopicBase string `env:"MQTT_TOPIC_BASE" envDefault:"chatdeck"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	// AI (optional; can also be configured at runtime)
	AIProvider string `env:"AI_PROVIDER"`
	AIAPIKey   string `env:"AI_API_KEY"`
	AIModel    string `env:"AI_MODEL"`

	// Tracing
	OTLPEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	TraceSampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"1"`
	ServiceVersion   string  `env:"SERVICE_VERSION" envDefault:"dev"`

	// Admin auth
	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	AdminToken    string `env:"ADMIN_TOKEN"`

	// Rate limiting
	RateLimitEnabled       bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRequestsPerIP int  `env:"RATE_LIMIT_REQUESTS_PER_IP" envDefault:"60"`
	RateLimitWindowSeconds int  `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`

	// CORS
	CORSPermissive     *bool    `env:"CORS_PERMISSIVE"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads an optional .env file, then the environment. Missing optional
// variables disable features; use Validate to check the chat platform setup.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", slog.Any("err", err))
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Platform = strings.ToLower(strings.TrimSpace(cfg.Platform))
	if cfg.CommandConfigPath == "" {
		p, err := DefaultCommandConfigPath()
		if err != nil {
			return nil, err
		}
		cfg.CommandConfigPath = p
	}
	return cfg, nil
}

// Validate rejects an unknown platform and a Twitch setup without credentials.
// Anonymous Twitch (read-only) is allowed when both credentials are empty.
func (c *Config) Validate() error {
	switch c.Platform {
	case PlatformChzzk:
	case PlatformTwitch:
		if (c.TwitchBotUsername == "") != (c.TwitchOAuthToken == "") {
			return fmt.Errorf("twitch chat requires both TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN, or neither for anonymous read")
		}
	default:
		return fmt.Errorf("unknown CHAT_PLATFORM %q (want %s or %s)", c.Platform, PlatformChzzk, PlatformTwitch)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("CHAT_HEARTBEAT_INTERVAL must be positive")
	}
	if c.ChatBufferSize <= 0 || c.DisplayLogSize <= 0 {
		return fmt.Errorf("CHAT_BUFFER_SIZE and CHAT_DISPLAY_LOG_SIZE must be positive")
	}
	return nil
}

// IsProduction reports whether ENV selects production behavior (strict CORS).
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}
