package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"PPChat/data/database/memdb"
	chatmodel "PPChat/module/chat/model"
	msgmodel "PPChat/module/message/model"
	usermodel "PPChat/module/user/model"
	"PPChat/tools/errs"
)

// alice、bob 在 c1 里，carol 不在
func setup(t *testing.T) (*Service, *memdb.DB) {
	t.Helper()
	ctx := context.Background()
	db := memdb.New()
	for _, n := range []string{"alice", "bob", "carol"} {
		if err := db.CreateUser(ctx, &usermodel.User{ID: n, Username: n, Email: n + "@example.com"}); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now().UTC()
	conv := &chatmodel.Conversation{ID: "c1", Type: chatmodel.ConversationPrivate, Name: "alice<->bob", PairKey: "alice:bob", CreatedAt: now}
	members := []chatmodel.Member{
		{ID: "m1", ConversationID: "c1", UserID: "alice", Role: chatmodel.RoleMember},
		{ID: "m2", ConversationID: "c1", UserID: "bob", Role: chatmodel.RoleMember},
	}
	if err := db.CreateConversation(ctx, conv, members, nil); err != nil {
		t.Fatal(err)
	}
	return New(db), db
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	svc, db := setup(t)

	msg, err := svc.Send(ctx, SendReq{ConversationID: "c1", SenderID: "alice", Content: "  hello  ", ReadBy: []string{"bob", "alice", "bob"}})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "hello" || len(msg.ReadBy) != 1 || msg.ReadBy[0] != "bob" {
		t.Fatalf("message %+v", msg)
	}
	conv, _ := db.FindConversation(ctx, "c1")
	if conv.LastMessage != "hello" || conv.LastMessageAt == nil {
		t.Fatalf("preview %+v", conv)
	}
	out := db.Outbox()
	if len(out) != 1 || out[0].Kind != msgmodel.EventMessageCreated || out[0].Key != "c1" {
		t.Fatalf("outbox %+v", out)
	}
	var ev msgmodel.Created
	if err := json.Unmarshal(out[0].Payload, &ev); err != nil || ev.MessageID != msg.ID {
		t.Fatalf("payload %+v %v", ev, err)
	}

	cases := []struct {
		req  SendReq
		code int
	}{
		{SendReq{ConversationID: "c1", SenderID: "alice", Content: "   "}, errs.ValidationError},
		{SendReq{SenderID: "alice", Content: "x"}, errs.ValidationError},
		{SendReq{ConversationID: "nope", SenderID: "alice", Content: "x"}, errs.NotFoundError},
		{SendReq{ConversationID: "c1", SenderID: "carol", Content: "x"}, errs.AuthorizationError},
	}
	for _, tc := range cases {
		if _, err := svc.Send(ctx, tc.req); !errs.HasCode(err, tc.code) {
			t.Errorf("%+v: got %v want %d", tc.req, err, tc.code)
		}
	}
	if n := len(db.Outbox()); n != 1 {
		t.Fatalf("rejected sends wrote outbox: %d", n)
	}
}

func TestHistoryPagination(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		svc.now = func() time.Time { return at }
		sender := "alice"
		if i%2 == 1 {
			sender = "bob"
		}
		if _, err := svc.Send(ctx, SendReq{ConversationID: "c1", SenderID: sender, Content: strings.Repeat("x", i+1)}); err != nil {
			t.Fatal(err)
		}
	}

	h, err := svc.History(ctx, "bob", "c1", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if h.Total != 5 || h.Page != 2 || h.Limit != 2 || len(h.Messages) != 2 {
		t.Fatalf("page %d limit %d total %d len %d", h.Page, h.Limit, h.Total, len(h.Messages))
	}
	if h.Messages[0].Content != "xxx" || h.Messages[0].Sender == nil || h.Messages[0].Sender.Username != "alice" {
		t.Fatalf("page 2 first %+v", h.Messages[0])
	}

	h, _ = svc.History(ctx, "bob", "c1", 0, 1000)
	if h.Page != 1 || h.Limit != MaxLimit || len(h.Messages) != 5 {
		t.Fatalf("defaults page %d limit %d", h.Page, h.Limit)
	}
	if _, err := svc.History(ctx, "carol", "c1", 1, 10); !errs.HasCode(err, errs.AuthorizationError) {
		t.Fatalf("outsider history: %v", err)
	}
}

func TestAcknowledge(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	msg, _ := svc.Send(ctx, SendReq{ConversationID: "c1", SenderID: "alice", Content: "ping"})

	first, created, err := svc.Acknowledge(ctx, "bob", "c1", msg.ID)
	if err != nil || !created {
		t.Fatalf("first ack %v %v", created, err)
	}
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	again, created, err := svc.Acknowledge(ctx, "bob", "c1", msg.ID)
	if err != nil || created || !again.ReadAt.Equal(first.ReadAt) {
		t.Fatalf("second ack %+v %v %v", again, created, err)
	}
	if _, _, err := svc.Acknowledge(ctx, "bob", "c1", "missing"); !errs.HasCode(err, errs.NotFoundError) {
		t.Fatalf("missing message: %v", err)
	}
	if _, _, err := svc.Acknowledge(ctx, "carol", "c1", msg.ID); !errs.HasCode(err, errs.AuthorizationError) {
		t.Fatalf("outsider ack: %v", err)
	}
	rs, err := svc.Receipts(ctx, "alice", "c1", msg.ID)
	if err != nil || len(rs) != 1 || rs[0].UserID != "bob" {
		t.Fatalf("receipts %+v %v", rs, err)
	}
}
