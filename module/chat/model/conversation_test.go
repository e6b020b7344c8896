package model

import "testing"

func TestPrivateNameOrderIndependent(t *testing.T) {
	pairs := [][2]string{{"alice", "bob"}, {"Bob", "alice"}, {"zed", "Amy"}, {"x", "x"}}
	for _, p := range pairs {
		if PrivateName(p[0], p[1]) != PrivateName(p[1], p[0]) {
			t.Fatalf("name(%s,%s) depends on order", p[0], p[1])
		}
	}
	if got := PrivateName("bob", "Alice"); got != "alice<->bob" {
		t.Fatalf("got %q", got)
	}
}

func TestOtherParty(t *testing.T) {
	if OtherParty("alice<->bob", "alice") != "bob" || OtherParty("alice<->bob", "Bob") != "alice" {
		t.Fatal("OtherParty")
	}
	if OtherParty("Study", "alice") != "Study" {
		t.Fatal("group names pass through")
	}
}

func TestPairKey(t *testing.T) {
	if PairKey("u2", "u1") != "u1:u2" || PairKey("u1", "u2") != "u1:u2" {
		t.Fatal("PairKey not canonical")
	}
}
