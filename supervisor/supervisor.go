// Package supervisor holds the connection state machine that gates connect
// and disconnect requests. Transition is a pure function; the guards run
// before any state is touched.
package supervisor

import (
	"errors"
	"fmt"
	"strings"
)

// Guard rejections.
var (
	ErrAlreadyConnected  = errors.New("already connected")
	ErrConnectInProgress = errors.New("connection in progress")
	ErrNotConnected      = errors.New("not connected")
	ErrEmptyChannelID    = errors.New("channel id is empty")
)

// Status enumerates the connection states.
type Status string

const (
	Disconnected Status = "disconnected"
	Connecting   Status = "connecting"
	Connected    Status = "connected"
	Errored      Status = "error"
)

// State is one connection state. Channel is set for Connecting and
// Connected; Message for Errored.
type State struct {
	Status  Status `json:"status"`
	Channel string `json:"channel,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s State) String() string {
	switch s.Status {
	case Connecting, Connected:
		return fmt.Sprintf("%s(%s)", s.Status, s.Channel)
	case Errored:
		return fmt.Sprintf("error(%s)", s.Message)
	default:
		return string(s.Status)
	}
}

// EventKind enumerates transition inputs.
type EventKind int

const (
	StartConnect EventKind = iota
	ConnectSuccess
	ConnectError
	StartDisconnect
	DisconnectSuccess
	DisconnectError
)

// Event is a transition input. Channel accompanies StartConnect and
// ConnectSuccess; Message accompanies the error kinds.
type Event struct {
	Kind    EventKind
	Channel string
	Message string
}

// Transition returns the state after ev. Pairs not in the table leave the
// state unchanged.
func Transition(cur State, ev Event) State {
	switch cur.Status {
	case Disconnected:
		if ev.Kind == StartConnect {
			return State{Status: Connecting, Channel: ev.Channel}
		}
	case Connecting:
		switch ev.Kind {
		case ConnectSuccess:
			return State{Status: Connected, Channel: ev.Channel}
		case ConnectError:
			return State{Status: Errored, Message: ev.Message}
		}
	case Connected:
		switch ev.Kind {
		case StartDisconnect, DisconnectSuccess:
			return State{Status: Disconnected}
		case DisconnectError:
			return State{Status: Errored, Message: ev.Message}
		}
	case Errored:
		switch ev.Kind {
		case StartConnect:
			return State{Status: Connecting, Channel: ev.Channel}
		case StartDisconnect:
			return State{Status: Disconnected}
		}
	}
	return cur
}

// CanConnect rejects a connect request while one is running or established.
func CanConnect(cur State) error {
	switch cur.Status {
	case Connected:
		return ErrAlreadyConnected
	case Connecting:
		return ErrConnectInProgress
	}
	return nil
}

// CanDisconnect rejects a disconnect request unless connected.
func CanDisconnect(cur State) error {
	if cur.Status != Connected {
		return ErrNotConnected
	}
	return nil
}

// ValidateChannelID trims id and rejects it when empty.
func ValidateChannelID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrEmptyChannelID
	}
	return id, nil
}
