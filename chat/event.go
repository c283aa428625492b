package chat

import (
	"encoding/json"

	"github.com/onnwee/chatdeck/chzzk"
)

// Event type tags as they appear in the "type" field of serialized events.
const (
	TypeChat          = "chat"
	TypeDonation      = "donation"
	TypeSystemMessage = "systemMessage"
	TypeConnected     = "connected"
	TypeDisconnected  = "disconnected"
	TypeError         = "error"
)

// Event is the closed set of things a chat session reports: Chat, Donation,
// SystemMessage, Connected, Disconnected and Error.
type Event interface {
	Type() string
	isEvent()
}

// Chat is one viewer message.
type Chat struct {
	UID      string         `json:"uid"`
	Nickname string         `json:"nickname"`
	Text     string         `json:"msg"`
	MsgTime  int64          `json:"msgTime"`
	Profile  *chzzk.Profile `json:"profile,omitempty"`
}

// Donation is a paid message. Amount is in the platform currency unit.
type Donation struct {
	UID         string               `json:"uid"`
	Nickname    string               `json:"nickname,omitempty"`
	Amount      int                  `json:"amount"`
	Message     string               `json:"msg,omitempty"`
	MsgTime     int64                `json:"msgTime"`
	IsAnonymous bool                 `json:"isAnonymous"`
	Profile     *chzzk.Profile       `json:"profile,omitempty"`
	Extras      chzzk.DonationExtras `json:"extras"`
}

// SystemMessage is a platform notice shown in chat.
type SystemMessage struct {
	UID         string `json:"uid,omitempty"`
	MsgTime     int64  `json:"msgTime,omitempty"`
	TypeCode    string `json:"msgTypeCode,omitempty"`
	Description string `json:"description"`
}

// Connected is emitted once the handshake frame has been written.
type Connected struct{}

// Disconnected is emitted when the session ends normally.
type Disconnected struct{}

// Error is emitted when the session ends on a transport failure. Err wraps
// ErrTransport.
type Error struct {
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (Chat) Type() string          { return TypeChat }
func (Donation) Type() string      { return TypeDonation }
func (SystemMessage) Type() string { return TypeSystemMessage }
func (Connected) Type() string     { return TypeConnected }
func (Disconnected) Type() string  { return TypeDisconnected }
func (Error) Type() string         { return TypeError }

func (Chat) isEvent()          {}
func (Donation) isEvent()      {}
func (SystemMessage) isEvent() {}
func (Connected) isEvent()     {}
func (Disconnected) isEvent()  {}
func (Error) isEvent()         {}

// MarshalJSON adds the type tag.
func (e Chat) MarshalJSON() ([]byte, error) {
	type alias Chat
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeChat, alias(e)})
}

// MarshalJSON adds the type tag.
func (e Donation) MarshalJSON() ([]byte, error) {
	type alias Donation
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeDonation, alias(e)})
}

// MarshalJSON adds the type tag.
func (e SystemMessage) MarshalJSON() ([]byte, error) {
	type alias SystemMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeSystemMessage, alias(e)})
}

// MarshalJSON adds the type tag.
func (Connected) MarshalJSON() ([]byte, error) { return []byte(`{"type":"connected"}`), nil }

// MarshalJSON adds the type tag.
func (Disconnected) MarshalJSON() ([]byte, error) { return []byte(`{"type":"disconnected"}`), nil }

// MarshalJSON adds the type tag.
func (e Error) MarshalJSON() ([]byte, error) {
	type alias Error
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeError, alias(e)})
}

// Sink receives session events in order from a single goroutine at a time.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) { f(ev) }
