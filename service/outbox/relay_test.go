package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"PPChat/data/database/memdb"
	chatmodel "PPChat/module/chat/model"
	msgmodel "PPChat/module/message/model"
	"PPChat/service/events"
)

type flakyBus struct {
	fail int
	got  []events.Event
}

func (b *flakyBus) Publish(ctx context.Context, ev events.Event) error {
	if b.fail > 0 {
		b.fail--
		return errors.New("broker down")
	}
	b.got = append(b.got, ev)
	return nil
}

func seed(t *testing.T) *memdb.DB {
	t.Helper()
	ctx := context.Background()
	db := memdb.New()
	if err := db.CreateConversation(ctx, &chatmodel.Conversation{ID: "c1", Type: chatmodel.ConversationGroup}, nil, nil); err != nil {
		t.Fatal(err)
	}
	msg := &msgmodel.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Content: "hi", CreatedAt: time.Now().UTC()}
	out := &msgmodel.OutboxEntry{ID: "o1", Kind: msgmodel.EventMessageCreated, Key: "c1", Payload: []byte(`{"messageId":"m1"}`), Status: msgmodel.OutboxPending}
	if err := db.AppendMessage(ctx, msg, out); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestRelayPublishes(t *testing.T) {
	db := seed(t)
	bus := &flakyBus{}
	r := NewRelay(db, bus, Options{})
	n, err := r.ProcessPending(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("processed %d %v", n, err)
	}
	if len(bus.got) != 1 || bus.got[0].ID != "o1" || bus.got[0].Kind != msgmodel.EventMessageCreated {
		t.Fatalf("published %+v", bus.got)
	}
	n, _ = r.ProcessPending(context.Background())
	if n != 0 {
		t.Fatalf("republished %d", n)
	}
}

func TestRelayGivesUp(t *testing.T) {
	db := seed(t)
	bus := &flakyBus{fail: 10}
	r := NewRelay(db, bus, Options{MaxAttempts: 2})
	ctx := context.Background()
	_, _ = r.ProcessPending(ctx)
	if st := db.Outbox()[0]; st.Status != msgmodel.OutboxPending || st.Attempts != 1 {
		t.Fatalf("after first failure %+v", st)
	}
	_, _ = r.ProcessPending(ctx)
	if st := db.Outbox()[0]; st.Status != msgmodel.OutboxFailed || st.Attempts != 2 {
		t.Fatalf("after final failure %+v", st)
	}
	pending, _ := db.PendingOutbox(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("failed entry still pending")
	}
}

func TestRelayRunStops(t *testing.T) {
	db := seed(t)
	bus := &flakyBus{}
	r := NewRelay(db, bus, Options{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()
	deadline := time.After(2 * time.Second)
	for {
		pending, _ := db.PendingOutbox(context.Background(), 10)
		if len(pending) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("relay did not publish")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
