package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chatdeck/chzzk"
	"github.com/onnwee/chatdeck/telemetry"
)

// TwitchConfig configures a TwitchSession. Without a username the session
// joins anonymously and can only read.
type TwitchConfig struct {
	Username   string
	OAuthToken string
	// Address overrides the IRC server (plain TCP) for tests.
	Address    string
	CloseGrace time.Duration
}

// TwitchSession reads a Twitch channel's chat over IRC and reports the same
// events as Session. Cheers are reported as donations.
type TwitchSession struct {
	cfg  TwitchConfig
	sink Sink

	connected atomic.Bool

	mu     sync.Mutex
	client *twitch.Client
	done   chan struct{}
	// set when the IRC loop ended without Disconnect
	terminated *atomic.Bool
}

// NewTwitchSession returns a disconnected Twitch session.
func NewTwitchSession(cfg TwitchConfig, sink Sink) *TwitchSession {
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = DefaultCloseGrace
	}
	return &TwitchSession{cfg: cfg, sink: sink}
}

// IsConnected reports whether the IRC connection is up.
func (s *TwitchSession) IsConnected() bool { return s.connected.Load() }

// Connect joins channel and blocks until the server welcomed us, the
// connection failed or ctx ended.
func (s *TwitchSession) Connect(ctx context.Context, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		select {
		case <-s.done:
			s.client = nil
		default:
			return ErrSessionActive
		}
	}
	channel = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(channel), "#"))
	if channel == "" {
		return fmt.Errorf("%w: empty channel", chzzk.ErrChannelUnavailable)
	}

	var client *twitch.Client
	if s.cfg.Username == "" {
		client = twitch.NewAnonymousClient()
	} else {
		tok := s.cfg.OAuthToken
		if !strings.HasPrefix(tok, "oauth:") {
			tok = "oauth:" + tok
		}
		client = twitch.NewClient(s.cfg.Username, tok)
	}
	if s.cfg.Address != "" {
		client.IrcAddress = s.cfg.Address
		client.TLS = false
	}

	welcomed := make(chan struct{})
	var once sync.Once
	client.OnConnect(func() {
		once.Do(func() {
			s.connected.Store(true)
			telemetry.SetConnected(true)
			s.emit(Connected{})
			close(welcomed)
		})
	})
	client.OnPrivateMessage(func(m twitch.PrivateMessage) {
		s.emit(translatePrivateMessage(m))
	})
	client.Join(channel)

	done := make(chan struct{})
	terminated := &atomic.Bool{}
	failed := make(chan error, 1)
	go func() {
		defer close(done)
		err := client.Connect()
		if errors.Is(err, twitch.ErrClientDisconnected) {
			return
		}
		select {
		case <-welcomed:
			// dropped after a successful join
			s.connected.Store(false)
			telemetry.SetConnected(false)
			terminated.Store(true)
			slog.Warn("twitch chat connection lost", slog.String("component", "chat"), slog.Any("err", err))
			msg := "connection closed"
			if err != nil {
				msg = err.Error()
			}
			s.emit(Error{Message: "IRC error: " + msg, Err: fmt.Errorf("%w: %s", ErrTransport, msg)})
		default:
			failed <- err
		}
	}()

	select {
	case <-welcomed:
	case err := <-failed:
		<-done
		telemetry.CountConnect("connect")
		return fmt.Errorf("%w: %v", ErrConnect, err)
	case <-ctx.Done():
		_ = client.Disconnect()
		select {
		case <-done:
		case <-time.After(s.cfg.CloseGrace):
		}
		telemetry.CountConnect("connect")
		return fmt.Errorf("%w: %w", ErrConnect, ctx.Err())
	}

	s.client = client
	s.done = done
	s.terminated = terminated
	telemetry.CountConnect("ok")
	slog.Info("twitch chat joined", slog.String("component", "chat"), slog.String("channel", channel))
	return nil
}

// Disconnect leaves the channel. Safe to call repeatedly.
func (s *TwitchSession) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected.Store(false)
	if s.client == nil {
		return
	}
	client, done, terminated := s.client, s.done, s.terminated
	s.client = nil

	if err := client.Disconnect(); err != nil {
		slog.Debug("twitch disconnect", slog.String("component", "chat"), slog.Any("err", err))
	}
	select {
	case <-done:
	case <-time.After(s.cfg.CloseGrace):
		slog.Warn("twitch close grace expired", slog.String("component", "chat"))
	}
	telemetry.SetConnected(false)
	if !terminated.Load() {
		s.emit(Disconnected{})
	}
}

func (s *TwitchSession) emit(ev Event) {
	telemetry.CountEvent(ev.Type())
	if s.sink != nil {
		s.sink.Emit(ev)
	}
}

func translatePrivateMessage(m twitch.PrivateMessage) Event {
	nick := m.User.DisplayName
	if nick == "" {
		nick = m.User.Name
	}
	profile := &chzzk.Profile{UserIDHash: m.User.ID, Nickname: nick}
	if m.User.Color != "" {
		profile.StreamingProperty = &chzzk.StreamingProperty{}
		profile.StreamingProperty.NicknameColor = &struct {
			ColorCode string `json:"colorCode"`
		}{ColorCode: m.User.Color}
	}
	ts := m.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	if m.Bits > 0 {
		return Donation{
			UID:      m.User.ID,
			Nickname: nick,
			Amount:   m.Bits,
			Message:  m.Message,
			MsgTime:  ts.UnixMilli(),
			Profile:  profile,
			Extras:   chzzk.DonationExtras{PayType: "BITS", PayAmount: m.Bits, DonationType: "CHEER"},
		}
	}
	return Chat{UID: m.User.ID, Nickname: nick, Text: m.Message, MsgTime: ts.UnixMilli(), Profile: profile}
}
