package decode

import (
	"encoding/json"
	"testing"
)

type typingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
	Limit          int    `json:"limit"`
}

func TestDecodeRaw(t *testing.T) {
	p, err := DecodeRaw[typingPayload](json.RawMessage(`{"conversationId":"c1","isTyping":"true","limit":3}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.ConversationID != "c1" || !p.IsTyping || p.Limit != 3 {
		t.Fatalf("unexpected %+v", p)
	}
}

func TestDecodeStrict(t *testing.T) {
	_, err := Decode[typingPayload](map[string]any{"isTyping": "yes"}, WithWeaklyTypedInput(false))
	if err == nil {
		t.Fatal("expected strict decode to fail")
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := DecodeRaw[typingPayload](nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if _, err := ReadString(map[string]any{"a": 1}, "a"); err == nil {
		t.Fatal("expected type error")
	}
}
