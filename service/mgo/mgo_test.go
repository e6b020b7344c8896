package mgo

import (
	"context"
	"testing"
	"time"

	"PPChat/data/database/mgo/mongoutil"
)

func TestDisconnectBeforeReady(t *testing.T) {
	m := NewManager(&mongoutil.Config{Uri: "mongodb://127.0.0.1:1", Database: "ppchat_test"})
	for i := 0; i < 2; i++ {
		if err := m.Disconnect(context.Background()); err != nil {
			t.Fatalf("disconnect %d: %v", i, err)
		}
	}
	if m.Healthy() {
		t.Fatal("healthy without a client")
	}
	select {
	case <-m.Ready():
		t.Fatal("ready without a connection")
	default:
	}
}

func TestWaitReadyTimesOut(t *testing.T) {
	m := NewManager(&mongoutil.Config{Uri: "mongodb://127.0.0.1:1", Database: "ppchat_test"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.WaitReady(ctx); err == nil {
		t.Fatal("want timeout")
	}
	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
}
