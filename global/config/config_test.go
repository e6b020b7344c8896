package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsNeedSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PPCHAT_CONFIG", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ppchat.yaml")
	yml := []byte(`
http:
  addr: ":9000"
storage:
  driver: memory
events:
  driver: kafka
kafka:
  brokers: ["k1:9092"]
  topic: chat
outbox:
  interval: 2s
jwt:
  secret: from-file
`)
	if err := os.WriteFile(path, yml, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("KAFKA_BROKERS", "a:1, b:2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != ":9000" || cfg.Storage.Driver != StorageMemory {
		t.Fatalf("file values not applied: %+v", cfg.HTTP)
	}
	if cfg.JWT.Secret != "from-env" {
		t.Fatalf("env should override file, got %q", cfg.JWT.Secret)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:2" {
		t.Fatalf("brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Outbox.Interval != 2*time.Second {
		t.Fatalf("interval %v", cfg.Outbox.Interval)
	}
	if cfg.Gateway.Path != "/ws" || cfg.JWT.TTL != 7*24*time.Hour {
		t.Fatal("defaults lost")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.JWT.Secret = "s"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	cfg.Events.Driver = "carrier-pigeon"
	if cfg.Validate() == nil {
		t.Fatal("unknown events driver accepted")
	}
	cfg.Events.Driver = EventsMemory
	cfg.Gateway.Path = "ws"
	if cfg.Validate() == nil {
		t.Fatal("relative gateway path accepted")
	}
}
