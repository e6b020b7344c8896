package memdb

import (
	"context"
	"testing"
	"time"

	"PPChat/data/database"
	chatmodel "PPChat/module/chat/model"
	msgmodel "PPChat/module/message/model"
	notimodel "PPChat/module/notification/model"
)

func seedPrivate(t *testing.T, db *DB, id, a, b string) {
	t.Helper()
	now := time.Now().UTC()
	conv := &chatmodel.Conversation{ID: id, Type: chatmodel.ConversationPrivate, PairKey: chatmodel.PairKey(a, b), CreatedAt: now}
	members := []chatmodel.Member{
		{ID: id + "-" + a, ConversationID: id, UserID: a, Role: chatmodel.RoleMember, JoinedAt: now},
		{ID: id + "-" + b, ConversationID: id, UserID: b, Role: chatmodel.RoleMember, JoinedAt: now},
	}
	if err := db.CreateConversation(context.Background(), conv, members, nil); err != nil {
		t.Fatal(err)
	}
}

func TestCreateConversationPairUnique(t *testing.T) {
	db := New()
	seedPrivate(t, db, "c1", "u1", "u2")
	conv := &chatmodel.Conversation{ID: "c2", Type: chatmodel.ConversationPrivate, PairKey: chatmodel.PairKey("u2", "u1")}
	err := db.CreateConversation(context.Background(), conv, nil, nil)
	if !database.IsDuplicate(err) {
		t.Fatalf("want duplicate, got %v", err)
	}
	got, err := db.FindPrivateByPair(context.Background(), chatmodel.PairKey("u1", "u2"))
	if err != nil || got.ID != "c1" {
		t.Fatalf("pair lookup: %v %v", got, err)
	}
}

func TestMembersAndGroup(t *testing.T) {
	ctx := context.Background()
	db := New()
	now := time.Now().UTC()
	conv := &chatmodel.Conversation{ID: "g1", Type: chatmodel.ConversationGroup, Name: "Study group", CreatedAt: now}
	group := &chatmodel.Group{ConversationID: "g1", Admins: []string{"u1"}, Members: []string{"u1"}}
	members := []chatmodel.Member{{ID: "m1", ConversationID: "g1", UserID: "u1", Role: chatmodel.RoleAdmin}}
	if err := db.CreateConversation(ctx, conv, members, group); err != nil {
		t.Fatal(err)
	}
	if err := db.AddMember(ctx, &chatmodel.Member{ID: "m2", ConversationID: "g1", UserID: "u2", Role: chatmodel.RoleMember}); err != nil {
		t.Fatal(err)
	}
	if err := db.AddMember(ctx, &chatmodel.Member{ID: "m3", ConversationID: "g1", UserID: "u2"}); !database.IsDuplicate(err) {
		t.Fatalf("second add: %v", err)
	}
	g, _ := db.FindGroup(ctx, "g1")
	if len(g.Members) != 2 {
		t.Fatalf("group members %v", g.Members)
	}
	counts, _ := db.CountMembers(ctx, []string{"g1"})
	if counts["g1"] != 2 {
		t.Fatalf("count %d", counts["g1"])
	}
	removed, _ := db.RemoveMember(ctx, "g1", "u2")
	if !removed {
		t.Fatal("remove")
	}
	removed, _ = db.RemoveMember(ctx, "g1", "u2")
	if removed {
		t.Fatal("second remove should report false")
	}
	if _, err := db.FindMember(ctx, "g1", "u2"); !database.IsNotFound(err) {
		t.Fatalf("find removed member: %v", err)
	}
}

func TestAppendMessagePreviewOrdering(t *testing.T) {
	ctx := context.Background()
	db := New()
	seedPrivate(t, db, "c1", "u1", "u2")
	t0 := time.Now().UTC()

	late := &msgmodel.Message{ID: "m2", ConversationID: "c1", SenderID: "u1", Content: "later", CreatedAt: t0.Add(time.Second)}
	early := &msgmodel.Message{ID: "m1", ConversationID: "c1", SenderID: "u2", Content: "earlier", CreatedAt: t0}
	out := &msgmodel.OutboxEntry{ID: "o1", Kind: msgmodel.EventMessageCreated, Status: msgmodel.OutboxPending}
	if err := db.AppendMessage(ctx, late, out); err != nil {
		t.Fatal(err)
	}
	if err := db.AppendMessage(ctx, early, nil); err != nil {
		t.Fatal(err)
	}
	conv, _ := db.FindConversation(ctx, "c1")
	if conv.LastMessage != "later" {
		t.Fatalf("preview regressed to %q", conv.LastMessage)
	}
	msgs, _ := db.ListMessages(ctx, "c1", 0, 10)
	if len(msgs) != 2 || msgs[0].ID != "m1" {
		t.Fatalf("history order %+v", msgs)
	}
	if err := db.AppendMessage(ctx, &msgmodel.Message{ID: "m3", ConversationID: "missing"}, nil); !database.IsNotFound(err) {
		t.Fatalf("missing conversation: %v", err)
	}
	pending, _ := db.PendingOutbox(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("pending %d", len(pending))
	}
	_ = db.MarkOutboxPublished(ctx, "o1", t0)
	pending, _ = db.PendingOutbox(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("pending after publish %d", len(pending))
	}
}

func TestReceiptsFirstWins(t *testing.T) {
	ctx := context.Background()
	db := New()
	t0 := time.Now().UTC()
	created, _ := db.UpsertReceipt(ctx, &msgmodel.Receipt{ID: "r1", MessageID: "m1", UserID: "u2", ReadAt: t0})
	again, _ := db.UpsertReceipt(ctx, &msgmodel.Receipt{ID: "r2", MessageID: "m1", UserID: "u2", ReadAt: t0.Add(time.Minute)})
	if !created || again {
		t.Fatalf("created=%v again=%v", created, again)
	}
	rs, _ := db.ListReceipts(ctx, "m1")
	if len(rs) != 1 || !rs[0].ReadAt.Equal(t0) {
		t.Fatalf("receipts %+v", rs)
	}
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	db := New()
	t0 := time.Now().UTC()
	ns := []notimodel.Notification{
		{ID: "n1", RecipientID: "u2", ConversationID: "c1", MessageID: "m1", Type: notimodel.TypeMessage, CreatedAt: t0},
		{ID: "n2", RecipientID: "u2", ConversationID: "c2", MessageID: "m2", Type: notimodel.TypeMessage, CreatedAt: t0.Add(time.Second)},
		{ID: "n3", RecipientID: "u2", ConversationID: "c1", MessageID: "m1", Type: notimodel.TypeMessage, CreatedAt: t0},
	}
	n, _ := db.InsertNotifications(ctx, ns)
	if n != 2 {
		t.Fatalf("inserted %d", n)
	}
	list, _ := db.ListNotifications(ctx, notimodel.Filter{RecipientID: "u2"}, 0, 10)
	if len(list) != 2 || list[0].ID != "n2" {
		t.Fatalf("order %+v", list)
	}
	res, _ := db.MarkNotificationsRead(ctx, notimodel.Filter{RecipientID: "u2", ConversationID: "c1"})
	if res.MatchedCount != 1 || res.ModifiedCount != 1 {
		t.Fatalf("mark %+v", res)
	}
	unread, _ := db.CountNotifications(ctx, notimodel.Filter{RecipientID: "u2", UnreadOnly: true})
	if unread != 1 {
		t.Fatalf("unread %d", unread)
	}
	deleted, _ := db.DeleteNotifications(ctx, notimodel.Filter{RecipientID: "u2", OnlyRead: true})
	if deleted != 1 {
		t.Fatalf("deleted %d", deleted)
	}
	if err := db.MarkNotificationRead(ctx, "n1"); !database.IsNotFound(err) {
		t.Fatalf("deleted notification: %v", err)
	}
}
