package proto

import "testing"

func TestDecodeClientMessage(t *testing.T) {
	raw := `{
		"ver": 1,
		"type": "action",
		"action": {
			"actionId": "a1",
			"actionType": "capture",
			"cardId": "8_hearts",
			"targetCards": ["8_diamonds", "8_clubs"],
			"clientTimestamp": 1700000000000
		}
	}`
	msg, err := DecodeClientMessage([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != TypeAction {
		t.Fatalf("type = %q, want action", msg.Type)
	}
	if msg.Action == nil {
		t.Fatal("action payload missing")
	}
	if msg.Action.Type != "capture" || msg.Action.CardID != "8_hearts" {
		t.Fatalf("payload = %+v", msg.Action)
	}
	if len(msg.Action.TargetCards) != 2 {
		t.Fatalf("targets = %v", msg.Action.TargetCards)
	}
}

func TestDecodeClientMessageSyncRequest(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"sync_request","clientVersion":7}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != TypeSyncRequest || msg.ClientVersion != 7 {
		t.Fatalf("message = %+v", msg)
	}
}

func TestDecodeClientMessageErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"type":`},
		{"missing type", `{"clientVersion":3}`},
		{"empty frame", ``},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeClientMessage([]byte(tc.raw)); err == nil {
				t.Fatal("decode should fail")
			}
		})
	}
}
