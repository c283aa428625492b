package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/onnwee/chatdeck/chzzk"
)

// Opcode is the integer "cmd" field of a wire frame.
type Opcode int

const (
	OpHeartbeat   Opcode = 0
	OpConnect     Opcode = 100
	OpServerPong  Opcode = 10000
	OpConnectAck  Opcode = 10100
	OpChat        Opcode = 93101
	OpDonation    Opcode = 93102
	OpSystemAlert Opcode = 94101
	OpSystemNote  Opcode = 94102
	OpSystemEvent Opcode = 94103
)

// FrameKind classifies an inbound frame.
type FrameKind int

const (
	FrameUnrecognized FrameKind = iota
	FrameHeartbeatAck
	FrameServerPong
	FrameConnectAck
	FrameChatBatch
	FrameDonationBatch
	FrameSystemMessage
)

func (k FrameKind) String() string {
	switch k {
	case FrameHeartbeatAck:
		return "heartbeat_ack"
	case FrameServerPong:
		return "server_pong"
	case FrameConnectAck:
		return "connect_ack"
	case FrameChatBatch:
		return "chat"
	case FrameDonationBatch:
		return "donation"
	case FrameSystemMessage:
		return "system"
	default:
		return "unrecognized"
	}
}

// Classify maps an opcode to its frame kind.
func Classify(op Opcode) FrameKind {
	switch op {
	case OpHeartbeat:
		return FrameHeartbeatAck
	case OpServerPong:
		return FrameServerPong
	case OpConnectAck:
		return FrameConnectAck
	case OpChat:
		return FrameChatBatch
	case OpDonation:
		return FrameDonationBatch
	case OpSystemAlert, OpSystemNote, OpSystemEvent:
		return FrameSystemMessage
	default:
		return FrameUnrecognized
	}
}

// ErrMalformedFrame is returned by DecodeFrame when the frame is not a JSON object.
var ErrMalformedFrame = errors.New("malformed frame")

type inboundFrame struct {
	Cmd  *Opcode        `json:"cmd"`
	Bdy  json.RawMessage `json:"bdy"`
	Body json.RawMessage `json:"body"`
}

// DecodeFrame parses one inbound text frame and returns its kind plus the
// events it carries. Records that fail to decode are dropped; only a frame
// that is not a JSON object at all is an error.
func DecodeFrame(data []byte) (FrameKind, []Event, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return FrameUnrecognized, nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if f.Cmd == nil {
		return FrameUnrecognized, nil, nil
	}
	kind := Classify(*f.Cmd)
	switch kind {
	case FrameChatBatch:
		return kind, decodeChatBatch(f.Bdy), nil
	case FrameDonationBatch:
		payload := f.Bdy
		if isAbsent(payload) {
			payload = f.Body
		}
		return kind, decodeDonations(payload), nil
	case FrameSystemMessage:
		if ev, ok := decodeSystem(f.Bdy); ok {
			return kind, []Event{ev}, nil
		}
		return kind, nil, nil
	}
	return kind, nil, nil
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || string(raw) == "null"
}

type chatRecord struct {
	UID     *string         `json:"uid"`
	Msg     *string         `json:"msg"`
	MsgTime *int64          `json:"msgTime"`
	Profile json.RawMessage `json:"profile"`
}

func decodeChatBatch(raw json.RawMessage) []Event {
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil
	}
	out := make([]Event, 0, len(records))
	for _, r := range records {
		var rec chatRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			continue
		}
		if rec.UID == nil || rec.Msg == nil || rec.MsgTime == nil || isAbsent(rec.Profile) {
			continue
		}
		var p chzzk.Profile
		if err := chzzk.DecodeEmbedded(rec.Profile, &p); err != nil {
			continue
		}
		out = append(out, Chat{UID: *rec.UID, Nickname: p.Nickname, Text: *rec.Msg, MsgTime: *rec.MsgTime, Profile: &p})
	}
	return out
}

type donationRecord struct {
	UID         *string         `json:"uid"`
	MsgTime     *int64          `json:"msgTime"`
	UserIDHash  string          `json:"userIdHash"`
	Nickname    string          `json:"nickname"`
	Profile     json.RawMessage `json:"profile"`
	Msg         string          `json:"msg"`
	IsAnonymous bool            `json:"isAnonymous"`
	Extras      json.RawMessage `json:"extras"`
}

func decodeDonations(raw json.RawMessage) []Event {
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		records = []json.RawMessage{raw}
	}
	out := make([]Event, 0, len(records))
	for _, r := range records {
		if ev, ok := decodeDonation(r); ok {
			out = append(out, ev)
		}
	}
	return out
}

func decodeDonation(raw json.RawMessage) (Donation, bool) {
	var rec donationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Donation{}, false
	}
	if rec.UID == nil || rec.MsgTime == nil || isAbsent(rec.Extras) {
		return Donation{}, false
	}
	var extras chzzk.DonationExtras
	if err := chzzk.DecodeEmbedded(rec.Extras, &extras); err != nil {
		return Donation{}, false
	}
	d := Donation{
		UID:         *rec.UID,
		Nickname:    rec.Nickname,
		Amount:      extras.PayAmount,
		Message:     rec.Msg,
		MsgTime:     *rec.MsgTime,
		IsAnonymous: rec.IsAnonymous,
		Extras:      extras,
	}
	if !isAbsent(rec.Profile) {
		var p chzzk.Profile
		if err := chzzk.DecodeEmbedded(rec.Profile, &p); err == nil {
			d.Profile = &p
			if d.Nickname == "" {
				d.Nickname = p.Nickname
			}
		}
	}
	return d, true
}

type systemRecord struct {
	UID         string          `json:"uid"`
	MsgTime     int64           `json:"msgTime"`
	MsgTypeCode json.RawMessage `json:"msgTypeCode"`
	Extras      json.RawMessage `json:"extras"`
}

func decodeSystem(raw json.RawMessage) (SystemMessage, bool) {
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil || len(records) == 0 {
		return SystemMessage{}, false
	}
	var rec systemRecord
	if err := json.Unmarshal(records[0], &rec); err != nil || isAbsent(rec.Extras) {
		return SystemMessage{}, false
	}
	var extras chzzk.SystemExtras
	if err := chzzk.DecodeEmbedded(rec.Extras, &extras); err != nil {
		return SystemMessage{}, false
	}
	return SystemMessage{UID: rec.UID, MsgTime: rec.MsgTime, TypeCode: typeCode(rec.MsgTypeCode), Description: extras.Description}, true
}

// typeCode accepts the code as either a JSON string or number.
func typeCode(raw json.RawMessage) string {
	if isAbsent(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strconv.Quote(string(raw))
}

type handshakeBody struct {
	UID     *string `json:"uid"`
	DevType int     `json:"devType"`
	AccTkn  string  `json:"accTkn"`
	Auth    string  `json:"auth"`
}

type handshakeFrame struct {
	Ver   string        `json:"ver"`
	Cmd   Opcode        `json:"cmd"`
	SvcID string        `json:"svcid"`
	CID   string        `json:"cid"`
	Bdy   handshakeBody `json:"bdy"`
	TID   int           `json:"tid"`
}

// HandshakeFrame builds the read-only connect frame for a chat room.
func HandshakeFrame(chatChannelID, accessToken string) []byte {
	b, _ := json.Marshal(handshakeFrame{
		Ver:   "2",
		Cmd:   OpConnect,
		SvcID: "game",
		CID:   chatChannelID,
		Bdy:   handshakeBody{DevType: 2001, AccTkn: accessToken, Auth: "READ"},
		TID:   1,
	})
	return b
}

// HeartbeatFrame is the keepalive frame written on every heartbeat tick.
var HeartbeatFrame = []byte(`{"ver":"2","cmd":0,"tid":2}`)
