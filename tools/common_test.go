package tools

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PPCHAT_T_INT", "42")
	t.Setenv("PPCHAT_T_BAD", "x")
	t.Setenv("PPCHAT_T_BOOL", "Yes")
	t.Setenv("PPCHAT_T_DUR", "3s")
	t.Setenv("PPCHAT_T_LIST", " a, b ,,c ")

	if GetEnvInt("PPCHAT_T_INT", 1) != 42 || GetEnvInt("PPCHAT_T_BAD", 7) != 7 {
		t.Fatal("GetEnvInt")
	}
	if !GetEnvBool("PPCHAT_T_BOOL", false) || GetEnvBool("PPCHAT_T_MISSING", false) {
		t.Fatal("GetEnvBool")
	}
	if GetEnvDuration("PPCHAT_T_DUR", time.Second) != 3*time.Second {
		t.Fatal("GetEnvDuration")
	}
	got := GetEnvList("PPCHAT_T_LIST", nil)
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("GetEnvList %v", got)
	}
	if GetEnv("PPCHAT_T_MISSING", "def") != "def" {
		t.Fatal("GetEnv")
	}
}

func TestRandDigits(t *testing.T) {
	s := RandDigits(6)
	if len(s) != 6 {
		t.Fatalf("len %d", len(s))
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			t.Fatalf("non digit in %q", s)
		}
	}
}
