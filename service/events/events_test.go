package events

import (
	"context"
	"errors"
	"testing"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, kind string
		want          bool
	}{
		{"message.created", "message.created", true},
		{"message.", "message.created", true},
		{"message.", "notification.created", false},
		{"message", "message.created", false},
		{"*", "anything", true},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.kind); got != c.want {
			t.Errorf("Match(%q,%q)=%v", c.pattern, c.kind, got)
		}
	}
}

func TestMemoryBus(t *testing.T) {
	bus := NewMemoryBus()
	type payload struct {
		N int `json:"n"`
	}
	var got []int
	_ = bus.Subscribe("message.created", func(ctx context.Context, ev Event) error {
		p, err := Decode[payload](ev)
		if err != nil {
			return err
		}
		got = append(got, p.N)
		return nil
	})
	boom := errors.New("boom")
	_ = bus.Subscribe("message.", func(ctx context.Context, ev Event) error { return boom })

	ev, err := New("message.created", "c1", payload{N: 7})
	if err != nil || ev.ID == "" {
		t.Fatalf("new event %+v %v", ev, err)
	}
	if err := bus.Publish(context.Background(), ev); !errors.Is(err, boom) {
		t.Fatalf("publish err %v", err)
	}
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("got %v", got)
	}
	if err := bus.Subscribe("", nil); err == nil {
		t.Fatal("empty subscription accepted")
	}
}
