package chat

import (
	"encoding/json"
	"testing"
)

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"event":" typing ","data":{"conversationId":"c1"}}`))
	if err != nil || f.Event != "typing" {
		t.Fatalf("frame %+v err %v", f, err)
	}
	if _, err := ParseFrame([]byte(`{"data":1}`)); err == nil {
		t.Fatal("missing event should fail")
	}
	if _, err := ParseFrame([]byte(`not json`)); err == nil {
		t.Fatal("bad json should fail")
	}
}

func TestConversationID(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{`"c1"`, "c1", true},
		{`{"conversationId":"c2"}`, "c2", true},
		{`{"conversationId":""}`, "", false},
		{`""`, "", false},
		{`42`, "", false},
		{``, "", false},
	}
	for _, c := range cases {
		got, err := ConversationID(json.RawMessage(c.raw))
		if c.ok != (err == nil) || got != c.want {
			t.Fatalf("ConversationID(%s) = %q, %v", c.raw, got, err)
		}
	}
}

func TestEncodeFrame(t *testing.T) {
	b, err := EncodeFrame(EventError, ErrorPayload{Message: "boom"})
	if err != nil {
		t.Fatal(err)
	}
	var f struct {
		Event string       `json:"event"`
		Data  ErrorPayload `json:"data"`
	}
	if err := json.Unmarshal(b, &f); err != nil || f.Event != "error" || f.Data.Message != "boom" {
		t.Fatalf("frame %s", b)
	}
}

func TestRegistryRooms(t *testing.T) {
	r := NewRegistry()
	a1 := NewSession("a1", "alice", "alice", nil, 8)
	a2 := NewSession("a2", "alice", "alice", nil, 8)
	b1 := NewSession("b1", "bob", "bob", nil, 8)
	for _, s := range []*Session{a1, a2, b1} {
		r.Add(s)
		r.Join("c1", s)
	}
	if users := r.RoomUsers("c1"); len(users) != 2 {
		t.Fatalf("room users %v", users)
	}

	n, err := r.Broadcast("c1", "a1", EventUserTyping, UserTyping{ConversationID: "c1"})
	if err != nil || n != 2 {
		t.Fatalf("broadcast n=%d err=%v", n, err)
	}
	if len(a1.send) != 0 || len(a2.send) != 1 || len(b1.send) != 1 {
		t.Fatal("excepted session should not receive")
	}

	r.Leave("c1", b1)
	if b1.InRoom("c1") || len(r.RoomSessions("c1")) != 2 {
		t.Fatal("leave failed")
	}

	if r.Remove(a1) {
		t.Fatal("alice still has a2")
	}
	if !r.Remove(a2) {
		t.Fatal("a2 was alice's last session")
	}
	if len(r.RoomSessions("c1")) != 0 {
		t.Fatal("removed sessions must leave rooms")
	}
	if r.Remove(a2) {
		t.Fatal("double remove should be a no-op")
	}
	if r.Count() != 1 {
		t.Fatalf("count %d", r.Count())
	}
}

func TestSessionSlowConsumerClosed(t *testing.T) {
	s := NewSession("s1", "u", "u", nil, 1)
	if !s.Enqueue([]byte("a")) {
		t.Fatal("first enqueue should succeed")
	}
	if s.Enqueue([]byte("b")) {
		t.Fatal("full queue should reject")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("slow session should be closed")
	}
	if s.Emit(EventError, ErrorPayload{Message: "x"}) {
		t.Fatal("closed session should reject")
	}
}
