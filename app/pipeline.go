package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/chatdeck/chat"
	"github.com/onnwee/chatdeck/command"
	"github.com/onnwee/chatdeck/completion"
	"github.com/onnwee/chatdeck/events"
	"github.com/onnwee/chatdeck/telemetry"
)

type queuedCommand struct {
	sender string
	cmd    command.Command
}

// HandleChatMessage routes one viewer message: plain chat goes to the
// analysis buffer, commands pass the dedup window and are queued for the
// command worker. It never blocks on I/O.
func (a *App) HandleChatMessage(sender, text string) {
	a.mu.Lock()
	cfg := a.commands
	if !command.IsCommand(cfg, text) {
		a.pushChatLine(sender, text)
		a.mu.Unlock()
		return
	}
	dup := a.dedup.seen(sender+"\x00"+text, a.now())
	a.mu.Unlock()
	if dup {
		telemetry.CountDeduplicated()
		slog.Debug("duplicate command dropped", slog.String("component", "app"), slog.String("user", sender))
		return
	}

	cmd, ok := command.Parse(cfg, text)
	if !ok {
		return
	}
	select {
	case a.queue <- queuedCommand{sender: sender, cmd: cmd}:
	default:
		slog.Warn("command queue full, dropping", slog.String("component", "app"), slog.String("command", cmd.Kind.String()))
	}
}

func (a *App) handleDonation(d chat.Donation) {
	msg := strings.TrimSpace(d.Message)
	if msg == "" {
		return
	}
	a.mu.RLock()
	isCmd := command.IsCommand(a.commands, msg)
	a.mu.RUnlock()
	if isCmd {
		a.HandleChatMessage(d.Nickname, msg)
		return
	}
	a.mu.Lock()
	a.pushChatLine(d.Nickname, fmt.Sprintf("[donation %d] %s", d.Amount, msg))
	a.mu.Unlock()
}

// AddChatMessage appends a line to the analysis buffer, evicting the oldest
// when full.
func (a *App) AddChatMessage(username, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidInput)
	}
	a.mu.Lock()
	a.pushChatLine(username, message)
	a.mu.Unlock()
	return nil
}

// caller holds a.mu
func (a *App) pushChatLine(username, message string) {
	a.chatBuf.push(completion.ChatLine{Username: username, Message: message, Timestamp: a.now().Unix()})
}

func (a *App) appendDisplay(ev chat.Event) {
	a.mu.Lock()
	a.display.push(ev)
	a.mu.Unlock()
}

// ChatLog returns the recent chat, donation and system events, oldest first.
func (a *App) ChatLog() []chat.Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.display.items()
}

// ClearChatLog empties the display log.
func (a *App) ClearChatLog() {
	a.mu.Lock()
	a.display.reset()
	a.mu.Unlock()
}

func (a *App) commandWorker(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-a.queue:
			cctx, cancel := context.WithTimeout(ctx, commandTimeout)
			if err := a.ExecuteCommand(cctx, q.sender, q.cmd); err != nil {
				slog.Warn("chat command failed",
					slog.String("component", "app"),
					slog.String("command", q.cmd.Kind.String()),
					slog.String("user", q.sender),
					slog.Any("err", err))
			}
			cancel()
		}
	}
}

// ExecuteCommand runs one parsed command on behalf of sender.
func (a *App) ExecuteCommand(ctx context.Context, sender string, cmd command.Command) error {
	telemetry.CountCommand(cmd.Kind.String())
	switch cmd.Kind {
	case command.KindPlaylistAdd:
		_, err := a.PlaylistAdd(ctx, cmd.Query, sender)
		return err
	case command.KindSkip:
		a.PlaylistNext()
	case command.KindPrevious:
		a.PlaylistPrevious()
	case command.KindPause:
		a.PlaylistPause()
	case command.KindPlay:
		a.PlaylistResume()
	case command.KindClear:
		a.PlaylistClear()
	default:
		slog.Debug("unknown command", slog.String("component", "app"), slog.String("name", cmd.Name), slog.String("user", sender))
	}
	return nil
}

// CommandConfig returns a copy of the live command table.
func (a *App) CommandConfig() command.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.commands.Clone()
}

// SetCommandConfig persists cfg (when a saver is configured) and makes it
// live.
func (a *App) SetCommandConfig(cfg command.Config) error {
	if strings.TrimSpace(cfg.Prefix) == "" {
		return fmt.Errorf("%w: empty command prefix", ErrInvalidInput)
	}
	if len(cfg.Commands) == 0 {
		return fmt.Errorf("%w: no commands defined", ErrInvalidInput)
	}
	if a.saveCommands != nil {
		if err := a.saveCommands(cfg); err != nil {
			return fmt.Errorf("save command config: %w", err)
		}
	}
	a.ReloadCommandConfig(cfg)
	return nil
}

// ReloadCommandConfig swaps the live command table without persisting it.
func (a *App) ReloadCommandConfig(cfg command.Config) {
	cfg = cfg.Clone()
	a.mu.Lock()
	a.commands = cfg
	a.mu.Unlock()
	a.sink.Publish(events.TopicCommandConfigReloaded, cfg)
}

type dedupEntry struct {
	key string
	at  time.Time
}

// dedupWindow remembers keys for a fixed age. order is oldest first and holds
// each live key once.
type dedupWindow struct {
	window time.Duration
	order  []dedupEntry
	live   map[string]struct{}
}

func newDedupWindow(window time.Duration) *dedupWindow {
	return &dedupWindow{window: window, live: make(map[string]struct{})}
}

// seen trims expired keys, then reports whether key is still live. A new key
// is recorded.
func (d *dedupWindow) seen(key string, now time.Time) bool {
	i := 0
	for ; i < len(d.order) && now.Sub(d.order[i].at) >= d.window; i++ {
		delete(d.live, d.order[i].key)
	}
	d.order = d.order[i:]

	if _, ok := d.live[key]; ok {
		return true
	}
	d.live[key] = struct{}{}
	d.order = append(d.order, dedupEntry{key: key, at: now})
	return false
}

func (d *dedupWindow) len() int { return len(d.order) }

// ring is a fixed capacity FIFO that evicts its oldest element.
type ring[T any] struct {
	buf   []T
	start int
	n     int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring[T]) items() []T {
	out := make([]T, r.n)
	for i := range out {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring[T]) len() int { return r.n }

func (r *ring[T]) reset() {
	clear(r.buf)
	r.start, r.n = 0, 0
}
