package service

import (
	"context"
	"testing"
	"time"

	"PPChat/data/database/memdb"
	chatmodel "PPChat/module/chat/model"
	msgmodel "PPChat/module/message/model"
	notimodel "PPChat/module/notification/model"
	usermodel "PPChat/module/user/model"
	"PPChat/service/events"
	"PPChat/tools/errs"
)

// 群 g1：alice、bob、carol
func setup(t *testing.T) (*Service, *memdb.DB) {
	t.Helper()
	ctx := context.Background()
	db := memdb.New()
	for _, n := range []string{"alice", "bob", "carol"} {
		if err := db.CreateUser(ctx, &usermodel.User{ID: n, Username: n, Email: n + "@example.com"}); err != nil {
			t.Fatal(err)
		}
	}
	conv := &chatmodel.Conversation{ID: "g1", Type: chatmodel.ConversationGroup, Name: "Study group", CreatedAt: time.Now().UTC()}
	var members []chatmodel.Member
	for _, n := range []string{"alice", "bob", "carol"} {
		members = append(members, chatmodel.Member{ID: "m-" + n, ConversationID: "g1", UserID: n, Role: chatmodel.RoleMember})
	}
	if err := db.CreateConversation(ctx, conv, members, &chatmodel.Group{ConversationID: "g1"}); err != nil {
		t.Fatal(err)
	}
	return New(db), db
}

func created(id string, readBy ...string) msgmodel.Created {
	return msgmodel.Created{MessageID: id, ConversationID: "g1", SenderID: "alice", Content: "hello " + id, ReadBy: readBy, CreatedAt: time.Now().UTC()}
}

func TestFanOutSkipsSenderAndReaders(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	n, err := svc.FanOut(ctx, created("m1", "bob"))
	if err != nil || n != 1 {
		t.Fatalf("fan out %d %v", n, err)
	}
	page, err := svc.List(ctx, "carol", "carol", ListQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.UnreadCount != 1 || page.Notifications[0].Sender.Username != "alice" {
		t.Fatalf("carol page %+v", page)
	}
	if ref := page.Notifications[0].Conversation; ref == nil || ref.MemberCount != 3 || ref.Name != "Study group" {
		t.Fatalf("conversation ref %+v", ref)
	}
	bob, _ := svc.List(ctx, "bob", "bob", ListQuery{})
	if bob.Total != 0 {
		t.Fatalf("bob was in the room: %+v", bob)
	}
	alice, _ := svc.List(ctx, "alice", "alice", ListQuery{})
	if alice.Total != 0 {
		t.Fatalf("sender notified: %+v", alice)
	}
}

func TestHandleEventIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	ev, err := events.New(msgmodel.EventMessageCreated, "g1", created("m1"))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := svc.HandleEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	page, _ := svc.List(ctx, "bob", "bob", ListQuery{})
	if page.Total != 1 {
		t.Fatalf("redelivery duplicated notifications: %d", page.Total)
	}
}

func TestListPaging(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	base := time.Now().UTC()
	for i, id := range []string{"m1", "m2", "m3"} {
		at := base.Add(time.Duration(i) * time.Second)
		svc.now = func() time.Time { return at }
		if _, err := svc.FanOut(ctx, created(id)); err != nil {
			t.Fatal(err)
		}
	}
	page, _ := svc.List(ctx, "bob", "bob", ListQuery{Limit: 2})
	if len(page.Notifications) != 2 || !page.HasMore || page.CurrentPage != 1 || page.Notifications[0].MessageID != "m3" {
		t.Fatalf("page 1 %+v", page)
	}
	page, _ = svc.List(ctx, "bob", "bob", ListQuery{Limit: 2, Skip: 2})
	if len(page.Notifications) != 1 || page.HasMore || page.CurrentPage != 2 {
		t.Fatalf("page 2 %+v", page)
	}
	if _, err := svc.List(ctx, "alice", "bob", ListQuery{}); !errs.HasCode(err, errs.AuthorizationError) {
		t.Fatalf("other user's list: %v", err)
	}
}

func TestMarkAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	_, _ = svc.FanOut(ctx, created("m1"))
	_, _ = svc.FanOut(ctx, created("m2"))

	page, _ := svc.List(ctx, "bob", "bob", ListQuery{})
	bobsFirst := page.Notifications[0].ID
	carol, _ := svc.List(ctx, "carol", "carol", ListQuery{})

	if _, err := svc.MarkRead(ctx, "bob", "bob", carol.Notifications[0].ID); !errs.HasCode(err, errs.AuthorizationError) {
		t.Fatalf("mark other's notification: %v", err)
	}
	if _, err := svc.MarkRead(ctx, "bob", "bob", "missing"); !errs.HasCode(err, errs.NotFoundError) {
		t.Fatalf("missing notification: %v", err)
	}
	n, err := svc.MarkRead(ctx, "bob", "bob", bobsFirst)
	if err != nil || !n.IsRead {
		t.Fatalf("mark read %+v %v", n, err)
	}

	res, err := svc.MarkConversationRead(ctx, "carol", "carol", "g1")
	if err != nil || res.ModifiedCount != 2 {
		t.Fatalf("conversation read %+v %v", res, err)
	}
	carol, _ = svc.List(ctx, "carol", "carol", ListQuery{})
	if carol.UnreadCount != 0 {
		t.Fatalf("carol unread %d", carol.UnreadCount)
	}

	deleted, err := svc.DeleteAllRead(ctx, "bob", "bob")
	if err != nil || deleted != 1 {
		t.Fatalf("delete %d %v", deleted, err)
	}
	page, _ = svc.List(ctx, "bob", "bob", ListQuery{})
	if page.Total != 1 || page.Notifications[0].IsRead {
		t.Fatalf("bob after delete %+v", page)
	}
}

func TestParseMentions(t *testing.T) {
	got := parseMentions("hi @Bob and @carol_1, mail me at x@example.com @")
	if len(got) != 2 {
		t.Fatalf("mentions %v", got)
	}
	for _, n := range []string{"bob", "carol_1"} {
		if _, ok := got[n]; !ok {
			t.Fatalf("missing %s in %v", n, got)
		}
	}
}

func TestFanOutMarksMentions(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	ev := created("m1")
	ev.Content = "@Carol can you look"
	if n, err := svc.FanOut(ctx, ev); err != nil || n != 2 {
		t.Fatalf("fan out %d %v", n, err)
	}
	carol, err := svc.List(ctx, "carol", "carol", ListQuery{Type: notimodel.TypeMention})
	if err != nil {
		t.Fatal(err)
	}
	if carol.Total != 1 {
		t.Fatalf("carol mention %+v", carol)
	}
	bob, _ := svc.List(ctx, "bob", "bob", ListQuery{Type: notimodel.TypeMention})
	if bob.Total != 0 {
		t.Fatalf("bob not mentioned: %+v", bob)
	}
}
