package chat

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		op   Opcode
		want FrameKind
	}{
		{0, FrameHeartbeatAck},
		{10000, FrameServerPong},
		{10100, FrameConnectAck},
		{93101, FrameChatBatch},
		{93102, FrameDonationBatch},
		{94101, FrameSystemMessage},
		{94102, FrameSystemMessage},
		{94103, FrameSystemMessage},
		{100, FrameUnrecognized},
		{42, FrameUnrecognized},
	}
	for _, tt := range tests {
		if got := Classify(tt.op); got != tt.want {
			t.Errorf("Classify(%d) = %v, want %v", tt.op, got, tt.want)
		}
	}
}

func TestDecodeFrame_Chat(t *testing.T) {
	frame := `{"ver":"2","cmd":93101,"bdy":[
		{"uid":"u1","msg":"hello","msgTime":1700000000000,"profile":"{\"userIdHash\":\"u1\",\"nickname\":\"alice\",\"userRoleCode\":\"common_user\"}"},
		{"uid":"u2","msgTime":1700000000001,"profile":"{\"nickname\":\"bob\"}"},
		{"uid":"u3","msg":"bad profile","msgTime":1700000000002,"profile":"{broken"},
		{"uid":"u4","msg":"no profile","msgTime":1700000000003},
		{"msg":"no uid","msgTime":1700000000004,"profile":"{}"},
		{"uid":"u5","msg":"","msgTime":1700000000005,"profile":"{\"nickname\":\"eve\"}"}
	]}`
	kind, events, err := DecodeFrame([]byte(frame))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if kind != FrameChatBatch {
		t.Fatalf("kind = %v", kind)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %#v", len(events), events)
	}
	c, ok := events[0].(Chat)
	if !ok {
		t.Fatalf("event 0 is %T", events[0])
	}
	if c.UID != "u1" || c.Nickname != "alice" || c.Text != "hello" || c.MsgTime != 1700000000000 {
		t.Errorf("chat = %+v", c)
	}
	if c.Profile == nil || c.Profile.UserRoleCode != "common_user" {
		t.Errorf("profile = %+v", c.Profile)
	}
	// empty text is still a present field
	if c2 := events[1].(Chat); c2.UID != "u5" || c2.Text != "" {
		t.Errorf("second chat = %+v", c2)
	}
}

func TestDecodeFrame_Donation(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantCount int
		wantAmt   int
		wantNick  string
	}{
		{
			name:      "array under bdy with string extras",
			frame:     `{"cmd":93102,"bdy":[{"uid":"d1","msgTime":1,"msg":"thanks","extras":"{\"payAmount\":1000,\"payType\":\"CURRENCY\"}","profile":"{\"nickname\":\"dora\"}"}]}`,
			wantCount: 1,
			wantAmt:   1000,
			wantNick:  "dora",
		},
		{
			name:      "single record under body with object extras",
			frame:     `{"cmd":93102,"body":{"uid":"d2","msgTime":2,"nickname":"dan","extras":{"payAmount":500}}}`,
			wantCount: 1,
			wantAmt:   500,
			wantNick:  "dan",
		},
		{
			name:      "malformed records dropped",
			frame:     `{"cmd":93102,"bdy":[{"uid":"d3","msgTime":3},{"uid":"d4","msgTime":4,"extras":"{oops"},{"uid":"d5","msgTime":5,"extras":{"payAmount":10}}]}`,
			wantCount: 1,
			wantAmt:   10,
		},
		{
			name:  "no payload",
			frame: `{"cmd":93102}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, events, err := DecodeFrame([]byte(tt.frame))
			if err != nil {
				t.Fatalf("DecodeFrame: %v", err)
			}
			if kind != FrameDonationBatch {
				t.Fatalf("kind = %v", kind)
			}
			if len(events) != tt.wantCount {
				t.Fatalf("got %d events, want %d", len(events), tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}
			d := events[0].(Donation)
			if d.Amount != tt.wantAmt {
				t.Errorf("amount = %d, want %d", d.Amount, tt.wantAmt)
			}
			if d.Nickname != tt.wantNick {
				t.Errorf("nickname = %q, want %q", d.Nickname, tt.wantNick)
			}
		})
	}
}

func TestDecodeFrame_System(t *testing.T) {
	kind, events, err := DecodeFrame([]byte(`{"cmd":94101,"bdy":[{"uid":"s","msgTime":9,"msgTypeCode":30,"extras":"{\"description\":\"stream starting\"}"},{"extras":"{\"description\":\"ignored\"}"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if kind != FrameSystemMessage || len(events) != 1 {
		t.Fatalf("kind=%v events=%d", kind, len(events))
	}
	sm := events[0].(SystemMessage)
	if sm.Description != "stream starting" || sm.TypeCode != "30" {
		t.Errorf("system = %+v", sm)
	}

	_, events, _ = DecodeFrame([]byte(`{"cmd":94102,"bdy":[]}`))
	if len(events) != 0 {
		t.Errorf("empty system batch produced %d events", len(events))
	}
}

func TestDecodeFrame_ControlAndUnknown(t *testing.T) {
	tests := []struct {
		frame string
		want  FrameKind
	}{
		{`{"ver":"2","cmd":0}`, FrameHeartbeatAck},
		{`{"cmd":10000}`, FrameServerPong},
		{`{"cmd":10100,"bdy":{"sid":"x"}}`, FrameConnectAck},
		{`{"cmd":77777,"bdy":[1,2]}`, FrameUnrecognized},
		{`{"ver":"2"}`, FrameUnrecognized},
	}
	for _, tt := range tests {
		kind, events, err := DecodeFrame([]byte(tt.frame))
		if err != nil {
			t.Errorf("%s: %v", tt.frame, err)
			continue
		}
		if kind != tt.want || len(events) != 0 {
			t.Errorf("%s: kind=%v events=%d", tt.frame, kind, len(events))
		}
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	for _, in := range []string{"not json", "", `[1,2]`, `{"cmd":"chat"}`} {
		if _, _, err := DecodeFrame([]byte(in)); !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("DecodeFrame(%q) err = %v, want ErrMalformedFrame", in, err)
		}
	}
}

func TestHandshakeFrame(t *testing.T) {
	var got map[string]any
	if err := json.Unmarshal(HandshakeFrame("cid1", "tok"), &got); err != nil {
		t.Fatal(err)
	}
	if got["ver"] != "2" || got["cmd"] != float64(100) || got["svcid"] != "game" || got["cid"] != "cid1" || got["tid"] != float64(1) {
		t.Errorf("handshake header = %v", got)
	}
	bdy := got["bdy"].(map[string]any)
	if v, ok := bdy["uid"]; !ok || v != nil {
		t.Errorf("uid = %v, want explicit null", v)
	}
	if bdy["accTkn"] != "tok" || bdy["auth"] != "READ" || bdy["devType"] != float64(2001) {
		t.Errorf("handshake body = %v", bdy)
	}
}

func TestEventJSONCarriesType(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Chat{UID: "u", Text: "hi"}, TypeChat},
		{Donation{UID: "u", Amount: 5}, TypeDonation},
		{SystemMessage{Description: "d"}, TypeSystemMessage},
		{Connected{}, TypeConnected},
		{Disconnected{}, TypeDisconnected},
		{Error{Message: "x"}, TypeError},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.ev)
		if err != nil {
			t.Fatalf("marshal %T: %v", tt.ev, err)
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatal(err)
		}
		if m["type"] != tt.want {
			t.Errorf("%T type = %v, want %s", tt.ev, m["type"], tt.want)
		}
	}
}
