package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onnwee/chatdeck/chat"
	"github.com/onnwee/chatdeck/events"
	"github.com/onnwee/chatdeck/supervisor"
)

var (
	// ErrSessionMissing means the state machine says Connected but no session
	// is recorded.
	ErrSessionMissing = errors.New("chat session not found")
	// ErrConnectAborted is returned by a Connect that was overtaken by Close
	// while its network steps were running.
	ErrConnectAborted = errors.New("connect aborted")
)

// Connect validates the channel id, passes the connect guard, and runs the
// session's connect protocol. On failure the state machine lands in Error,
// from which another Connect is allowed. The guard and the move to Connecting
// happen under one lock; discovery, credential exchange and the dial run
// with no lock held, so a concurrent Connect gets ErrConnectInProgress.
func (a *App) Connect(ctx context.Context, channelID string) error {
	id, err := supervisor.ValidateChannelID(channelID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if a.newSession == nil {
		return fmt.Errorf("%w: no chat platform", ErrNotConfigured)
	}

	a.mu.Lock()
	if err := supervisor.CanConnect(a.state); err != nil {
		a.mu.Unlock()
		return err
	}
	old := a.session
	a.session = nil
	a.gen++
	gen := a.gen
	a.state = supervisor.Transition(a.state, supervisor.Event{Kind: supervisor.StartConnect, Channel: id})
	st := a.state
	a.mu.Unlock()
	a.publishState(st)

	// a session left behind by an earlier failure is torn down before its
	// replacement starts
	if old != nil {
		old.Disconnect()
	}

	sess := a.newSession(a.sessionSink(gen))
	err = sess.Connect(ctx, id)

	a.mu.Lock()
	if gen != a.gen {
		// Close ran meanwhile; this attempt no longer owns the state
		a.mu.Unlock()
		if err == nil {
			sess.Disconnect()
		}
		return fmt.Errorf("connect %s: %w", id, ErrConnectAborted)
	}
	if err != nil {
		a.state = supervisor.Transition(a.state, supervisor.Event{Kind: supervisor.ConnectError, Message: err.Error()})
	} else {
		a.state = supervisor.Transition(a.state, supervisor.Event{Kind: supervisor.ConnectSuccess, Channel: id})
		a.session = sess
		a.lastSessionErr = nil
		if !sess.IsConnected() {
			// the connection dropped before we recorded it
			a.state = supervisor.Transition(a.state, supervisor.Event{Kind: supervisor.DisconnectError, Message: "connection lost"})
		}
	}
	st = a.state
	a.mu.Unlock()
	a.publishState(st)

	if err != nil {
		slog.Warn("chat connect failed", slog.String("component", "app"), slog.String("channel", id), slog.Any("err", err))
		return fmt.Errorf("connect %s: %w", id, err)
	}
	slog.Info("chat connected", slog.String("component", "app"), slog.String("channel", id))
	return nil
}

// Disconnect tears down the live session. It is rejected unless the state
// machine is Connected. The state moves to Disconnected before the teardown,
// which runs with no lock held.
func (a *App) Disconnect() error {
	a.mu.Lock()
	if err := supervisor.CanDisconnect(a.state); err != nil {
		a.mu.Unlock()
		return err
	}
	sess := a.session
	if sess == nil {
		a.state = supervisor.Transition(a.state, supervisor.Event{Kind: supervisor.DisconnectError, Message: ErrSessionMissing.Error()})
		st := a.state
		a.mu.Unlock()
		a.publishState(st)
		return ErrSessionMissing
	}
	a.session = nil
	a.gen++
	a.state = supervisor.Transition(a.state, supervisor.Event{Kind: supervisor.StartDisconnect})
	st := a.state
	a.mu.Unlock()

	a.publishState(st)
	// the session's own Disconnected event carries a stale generation now
	sess.Disconnect()
	slog.Info("chat disconnected", slog.String("component", "app"))
	return nil
}

// LastSessionError returns the transport failure that ended the most recent
// session, or nil. A successful Connect clears it.
func (a *App) LastSessionError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastSessionErr
}

// State returns the connection state.
func (a *App) State() supervisor.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// IsConnected reports whether the state machine is Connected.
func (a *App) IsConnected() bool {
	return a.State().Status == supervisor.Connected
}

func (a *App) publishState(st supervisor.State) {
	a.sink.Publish(events.TopicConnectionState, st)
}

// sessionSink routes one session's events. Events from a session that has
// since been replaced still reach subscribers but no longer move the state
// machine.
func (a *App) sessionSink(gen uint64) chat.Sink {
	return chat.SinkFunc(func(ev chat.Event) {
		a.sink.Publish(events.TopicChat, ev)

		switch e := ev.(type) {
		case chat.Chat:
			a.appendDisplay(ev)
			a.HandleChatMessage(e.Nickname, e.Text)
		case chat.Donation:
			a.appendDisplay(ev)
			a.handleDonation(e)
		case chat.SystemMessage:
			a.appendDisplay(ev)
		case chat.Disconnected:
			a.sessionEnded(gen, supervisor.Event{Kind: supervisor.DisconnectSuccess}, nil)
		case chat.Error:
			a.sessionEnded(gen, supervisor.Event{Kind: supervisor.DisconnectError, Message: e.Message}, e.Err)
		}
	})
}

func (a *App) sessionEnded(gen uint64, ev supervisor.Event, cause error) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	if cause != nil {
		a.lastSessionErr = cause
	}
	prev := a.state
	a.state = supervisor.Transition(a.state, ev)
	st := a.state
	a.mu.Unlock()
	if st != prev {
		slog.Info("chat session ended", slog.String("component", "app"), slog.String("state", st.String()))
		a.publishState(st)
	}
}
