// Package chat runs live chat sessions. A Session connects to one Chzzk chat
// room over a websocket, keeps it alive with heartbeats and turns inbound
// frames into Event values delivered to a Sink.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/chatdeck/chzzk"
	"github.com/onnwee/chatdeck/telemetry"
)

const (
	DefaultServerURLTemplate = "wss://kr-ss%d.chat.naver.com/chat"
	DefaultHeartbeatInterval = 20 * time.Second
	DefaultCloseGrace        = 2 * time.Second

	shardCount    = 10
	outboundQueue = 10
	writeTimeout  = 10 * time.Second
	readLimit     = 1 << 20
)

var (
	// ErrConnect wraps dial and handshake failures.
	ErrConnect = errors.New("chat connect failed")
	// ErrTransport wraps read and write failures on an established session.
	ErrTransport = errors.New("chat transport failed")
	// ErrSessionActive is returned by Connect while a previous session is still running.
	ErrSessionActive = errors.New("chat session already active")
)

// Resolver locates a channel's chat room and issues its access token.
// *chzzk.Client implements it.
type Resolver interface {
	LiveStatus(ctx context.Context, channelID string) (*chzzk.LiveStatus, error)
	AccessToken(ctx context.Context, chatChannelID string) (*chzzk.AccessToken, error)
}

// Config tunes a Session. Zero values fall back to the defaults above.
type Config struct {
	Resolver          Resolver
	ServerURLTemplate string
	HeartbeatInterval time.Duration
	CloseGrace        time.Duration
	Dialer            *websocket.Dialer
}

// Session is one Chzzk chat connection. Connect and Disconnect may be called
// from any goroutine; events reach the sink one at a time.
type Session struct {
	cfg  Config
	sink Sink

	connected atomic.Bool

	mu  sync.Mutex // serializes Connect/Disconnect, guards run
	run *run
}

// run holds the state of one live connection.
type run struct {
	conn     *websocket.Conn
	cancel   context.CancelFunc
	closeCh  chan struct{}
	outbound chan []byte
	recvDone chan struct{}
	wg       sync.WaitGroup

	terminated atomic.Bool
}

type inbound struct {
	data []byte
	err  error
}

// NewSession returns a disconnected session that reports to sink.
func NewSession(cfg Config, sink Sink) *Session {
	if cfg.Resolver == nil {
		cfg.Resolver = &chzzk.Client{}
	}
	if cfg.ServerURLTemplate == "" {
		cfg.ServerURLTemplate = DefaultServerURLTemplate
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = DefaultCloseGrace
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Session{cfg: cfg, sink: sink}
}

// ShardFor picks the chat server shard for a chat channel id.
func ShardFor(chatChannelID string) int {
	first := byte('1')
	if chatChannelID != "" {
		first = chatChannelID[0]
	}
	return int(first)%shardCount + 1
}

// BuildURL renders the websocket URL for a chat room. A template without a %d
// verb is used as is.
func BuildURL(template, chatChannelID, accessToken string) (string, error) {
	base := template
	if strings.Contains(template, "%d") {
		base = fmt.Sprintf(template, ShardFor(chatChannelID))
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: parse server url: %w", ErrConnect, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrConnect, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: server url has no host", ErrConnect)
	}
	return base + "?cid=" + url.QueryEscape(chatChannelID) + "&at=" + url.QueryEscape(accessToken), nil
}

// IsConnected reports the connected flag. It never blocks.
func (s *Session) IsConnected() bool { return s.connected.Load() }

// Connect resolves the channel's chat room, opens the websocket, writes the
// handshake and starts the background loops. Nothing is left running when it
// returns an error.
func (s *Session) Connect(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r := s.run; r != nil {
		if !r.terminated.Load() {
			return ErrSessionActive
		}
		// previous run ended on its own; reap its goroutines
		r.cancel()
		r.wg.Wait()
		s.run = nil
	}

	ctx, span := telemetry.StartSpan(ctx, "chat", "chat.connect")
	defer span.End()

	err := s.connect(ctx, channelID)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.CountConnect(connectResult(err))
		return err
	}
	telemetry.SetSpanSuccess(span)
	telemetry.CountConnect("ok")
	return nil
}

func (s *Session) connect(ctx context.Context, channelID string) error {
	status, err := s.cfg.Resolver.LiveStatus(ctx, channelID)
	if err != nil {
		return err
	}
	if !status.IsOpen() {
		return fmt.Errorf("%w: status %q", chzzk.ErrNotLive, status.Status)
	}
	cid := status.ChatChannelID
	if cid == "" {
		return fmt.Errorf("%w: live channel has no chat channel id", chzzk.ErrChannelUnavailable)
	}

	token, err := s.cfg.Resolver.AccessToken(ctx, cid)
	if err != nil {
		return err
	}

	wsURL, err := BuildURL(s.cfg.ServerURLTemplate, cid, token.AccessToken)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Origin", "https://chzzk.naver.com")
	conn, resp, err := s.cfg.Dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("%w: dial: %w", ErrConnect, err)
	}
	conn.SetReadLimit(readLimit)

	if err := writeText(conn, HandshakeFrame(cid, token.AccessToken)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: handshake: %w", ErrConnect, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		conn:     conn,
		cancel:   cancel,
		closeCh:  make(chan struct{}, 1),
		outbound: make(chan []byte, outboundQueue),
		recvDone: make(chan struct{}),
	}
	s.run = r
	s.connected.Store(true)
	telemetry.SetConnected(true)
	slog.Info("chat connected",
		slog.String("component", "chat"),
		slog.String("channel", channelID),
		slog.String("chat_channel", cid),
		slog.String("token", maskToken(token.AccessToken)))
	s.emit(Connected{})

	frames := make(chan inbound)
	r.wg.Add(3)
	go s.readPump(loopCtx, r, frames)
	go s.receiveLoop(loopCtx, r, frames)
	go s.heartbeatLoop(loopCtx, r)
	return nil
}

// Disconnect closes the session. It is safe to call at any time and any
// number of times.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected.Store(false)
	r := s.run
	if r == nil {
		return
	}
	s.run = nil

	select {
	case r.closeCh <- struct{}{}:
	default:
	}
	select {
	case <-r.recvDone:
	case <-time.After(s.cfg.CloseGrace):
		slog.Warn("chat close grace expired, forcing teardown", slog.String("component", "chat"))
	}
	r.cancel()
	_ = r.conn.Close()
	r.wg.Wait()

	telemetry.SetConnected(false)
	if !r.terminated.Load() {
		slog.Info("chat disconnected", slog.String("component", "chat"))
		s.emit(Disconnected{})
	}
}

// readPump is the only reader of the connection.
func (s *Session) readPump(ctx context.Context, r *run, out chan<- inbound) {
	defer r.wg.Done()
	for {
		_, data, err := r.conn.ReadMessage()
		select {
		case out <- inbound{data: data, err: err}:
		case <-r.recvDone:
			return
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// receiveLoop is the only writer of the connection. Each iteration services
// whichever of inbound frame, queued heartbeat or close signal is ready.
func (s *Session) receiveLoop(ctx context.Context, r *run, frames <-chan inbound) {
	defer r.wg.Done()
	defer close(r.recvDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closeCh:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := r.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)); err != nil {
				slog.Warn("chat close frame failed", slog.String("component", "chat"), slog.Any("err", err))
			}
			return
		case frame := <-r.outbound:
			if err := writeText(r.conn, frame); err != nil {
				if ctx.Err() == nil {
					s.terminate(r, err, Error{Message: "WebSocket error: " + err.Error()})
				}
				return
			}
			telemetry.CountHeartbeat()
		case in := <-frames:
			if in.err != nil {
				if ctx.Err() != nil {
					return
				}
				// 1006 is synthesized locally for a dropped socket, not a close frame
				var ce *websocket.CloseError
				if errors.As(in.err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
					slog.Info("chat closed by server", slog.String("component", "chat"), slog.Int("code", ce.Code))
					s.terminate(r, nil, Disconnected{})
				} else {
					s.terminate(r, in.err, Error{Message: "WebSocket error: " + in.err.Error()})
				}
				return
			}
			s.dispatch(in.data)
		}
	}
}

func (s *Session) heartbeatLoop(ctx context.Context, r *run) {
	defer r.wg.Done()
	t := time.NewTicker(s.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.recvDone:
			return
		case <-t.C:
			if !s.connected.Load() {
				return
			}
			select {
			case r.outbound <- HeartbeatFrame:
			case <-r.recvDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// terminate ends a run from inside its receive loop.
func (s *Session) terminate(r *run, cause error, ev Event) {
	_ = r.conn.Close()
	s.connected.Store(false)
	telemetry.SetConnected(false)
	if cause != nil {
		slog.Warn("chat transport error", slog.String("component", "chat"), slog.Any("err", cause))
		if e, ok := ev.(Error); ok {
			e.Err = fmt.Errorf("%w: %w", ErrTransport, cause)
			ev = e
		}
	}
	r.terminated.Store(true)
	s.emit(ev)
}

func (s *Session) dispatch(data []byte) {
	kind, events, err := DecodeFrame(data)
	if err != nil {
		telemetry.CountFrame("malformed")
		slog.Warn("chat dropping frame", slog.String("component", "chat"), slog.Any("err", err))
		return
	}
	telemetry.CountFrame(kind.String())
	switch kind {
	case FrameHeartbeatAck, FrameServerPong, FrameConnectAck:
		slog.Debug("chat control frame", slog.String("component", "chat"), slog.String("kind", kind.String()))
	case FrameUnrecognized:
		slog.Debug("chat unrecognized frame", slog.String("component", "chat"), slog.Int("bytes", len(data)))
	}
	for _, ev := range events {
		s.emit(ev)
	}
}

func (s *Session) emit(ev Event) {
	telemetry.CountEvent(ev.Type())
	if s.sink != nil {
		s.sink.Emit(ev)
	}
}

func writeText(conn *websocket.Conn, frame []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func connectResult(err error) string {
	switch {
	case errors.Is(err, chzzk.ErrNotLive):
		return "not_live"
	case errors.Is(err, chzzk.ErrChannelUnavailable):
		return "unavailable"
	case errors.Is(err, chzzk.ErrCredential):
		return "credential"
	default:
		return "connect"
	}
}

// maskToken keeps the last four characters.
func maskToken(tok string) string {
	if len(tok) <= 4 {
		return "****"
	}
	return "****" + tok[len(tok)-4:]
}
