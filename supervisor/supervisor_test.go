package supervisor

import (
	"errors"
	"testing"
)

func TestTransition(t *testing.T) {
	disc := State{Status: Disconnected}
	conn := State{Status: Connecting, Channel: "c1"}
	up := State{Status: Connected, Channel: "c1"}
	bad := State{Status: Errored, Message: "boom"}

	tests := []struct {
		name string
		cur  State
		ev   Event
		want State
	}{
		{"start connect", disc, Event{Kind: StartConnect, Channel: "c1"}, conn},
		{"connect success", conn, Event{Kind: ConnectSuccess, Channel: "c1"}, up},
		{"connect error", conn, Event{Kind: ConnectError, Message: "boom"}, bad},
		{"start disconnect", up, Event{Kind: StartDisconnect}, disc},
		{"disconnect success", up, Event{Kind: DisconnectSuccess}, disc},
		{"disconnect error", up, Event{Kind: DisconnectError, Message: "boom"}, bad},
		{"retry from error", bad, Event{Kind: StartConnect, Channel: "c2"}, State{Status: Connecting, Channel: "c2"}},
		{"reset from error", bad, Event{Kind: StartDisconnect}, disc},
		{"ignored: success while disconnected", disc, Event{Kind: ConnectSuccess, Channel: "c1"}, disc},
		{"ignored: connect while connected", up, Event{Kind: StartConnect, Channel: "c2"}, up},
		{"ignored: disconnect while connecting", conn, Event{Kind: StartDisconnect}, conn},
		{"ignored: disconnect error from error", bad, Event{Kind: DisconnectError, Message: "x"}, bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transition(tt.cur, tt.ev); got != tt.want {
				t.Errorf("Transition(%v, %+v) = %v, want %v", tt.cur, tt.ev, got, tt.want)
			}
		})
	}
}

func TestGuards(t *testing.T) {
	tests := []struct {
		cur           State
		connectErr    error
		disconnectErr error
	}{
		{State{Status: Disconnected}, nil, ErrNotConnected},
		{State{Status: Connecting, Channel: "c"}, ErrConnectInProgress, ErrNotConnected},
		{State{Status: Connected, Channel: "c"}, ErrAlreadyConnected, nil},
		{State{Status: Errored, Message: "m"}, nil, ErrNotConnected},
	}
	for _, tt := range tests {
		if err := CanConnect(tt.cur); !errors.Is(err, tt.connectErr) {
			t.Errorf("CanConnect(%v) = %v, want %v", tt.cur, err, tt.connectErr)
		}
		if err := CanDisconnect(tt.cur); !errors.Is(err, tt.disconnectErr) {
			t.Errorf("CanDisconnect(%v) = %v, want %v", tt.cur, err, tt.disconnectErr)
		}
	}
}

func TestValidateChannelID(t *testing.T) {
	if id, err := ValidateChannelID("  abc123 "); err != nil || id != "abc123" {
		t.Errorf("ValidateChannelID = (%q, %v)", id, err)
	}
	for _, in := range []string{"", "   ", "\t\n"} {
		if _, err := ValidateChannelID(in); !errors.Is(err, ErrEmptyChannelID) {
			t.Errorf("ValidateChannelID(%q) err = %v", in, err)
		}
	}
}

func TestStateString(t *testing.T) {
	if s := (State{Status: Connected, Channel: "x"}).String(); s != "connected(x)" {
		t.Errorf("String() = %q", s)
	}
	if s := (State{Status: Errored, Message: "m"}).String(); s != "error(m)" {
		t.Errorf("String() = %q", s)
	}
}
