package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"PPChat/global/config"
	"PPChat/service/events"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
)

func TestBuildConfig(t *testing.T) {
	cfg, err := BuildConfig(config.KafkaConfig{Version: "2.1.0", ClientID: "pp", InitialOffset: "oldest", Compression: "lz4"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Version != sarama.V2_1_0_0 {
		t.Fatalf("version %v", cfg.Version)
	}
	if cfg.Consumer.Offsets.Initial != sarama.OffsetOldest {
		t.Fatal("expected oldest offset")
	}
	if cfg.Producer.Compression != sarama.CompressionLZ4 {
		t.Fatalf("compression %v", cfg.Producer.Compression)
	}
	if !cfg.Producer.Return.Successes {
		t.Fatal("sync producer needs Return.Successes")
	}
	if _, err := BuildConfig(config.KafkaConfig{Version: "not-a-version"}); err == nil {
		t.Fatal("expected version parse error")
	}
}

func TestToProducerMessageKey(t *testing.T) {
	ev, _ := events.New("message.created", "conv-1", map[string]string{"k": "v"})
	msg, err := toProducerMessage("topic", ev)
	if err != nil {
		t.Fatal(err)
	}
	key, _ := msg.Key.Encode()
	if string(key) != "conv-1" {
		t.Fatalf("key %q", key)
	}
	ev.Key = ""
	msg, _ = toProducerMessage("topic", ev)
	key, _ = msg.Key.Encode()
	if string(key) != ev.ID {
		t.Fatalf("fallback key %q, want event id", key)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != "message.created" {
		t.Fatalf("headers %+v", msg.Headers)
	}
}

func TestPublishWithMockProducer(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	defer func() { _ = sp.Close() }()

	ev, _ := events.New("message.created", "conv-1", map[string]string{"k": "v"})
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got events.Event
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.ID != ev.ID || got.Kind != ev.Kind {
			return errors.New("unexpected event body")
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	b := &KafkaBus{cfg: config.KafkaConfig{Topic: "ppchat.events"}, producer: sp}
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(context.Background(), ev); err == nil {
		t.Fatal("expected send failure")
	}
}

func TestHandleMessageDispatch(t *testing.T) {
	var router events.Router
	var got []events.Event
	_ = router.Add("message.", func(_ context.Context, ev events.Event) error {
		got = append(got, ev)
		return nil
	})

	ev, _ := events.New("message.created", "conv-1", map[string]string{"k": "v"})
	data, _ := json.Marshal(ev)
	handleMessage(context.Background(), &router, &sarama.ConsumerMessage{Value: data})

	// 事件体里缺 kind 时取消息头
	ev.Kind = ""
	data, _ = json.Marshal(ev)
	handleMessage(context.Background(), &router, &sarama.ConsumerMessage{
		Value:   data,
		Headers: []*sarama.RecordHeader{{Key: []byte(headerKind), Value: []byte("message.created")}},
	})

	// 坏消息直接丢弃
	handleMessage(context.Background(), &router, &sarama.ConsumerMessage{Value: []byte("{")})

	if len(got) != 2 {
		t.Fatalf("dispatched %d events, want 2", len(got))
	}
}

func TestHandleMessageRetries(t *testing.T) {
	var router events.Router
	calls := 0
	_ = router.Add("*", func(context.Context, events.Event) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	ev, _ := events.New("message.created", "", nil)
	data, _ := json.Marshal(ev)
	handleMessage(context.Background(), &router, &sarama.ConsumerMessage{Value: data})
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestTopicDetail(t *testing.T) {
	td := topicDetail(8, 3)
	if td.NumPartitions != 8 || td.ReplicationFactor != 3 {
		t.Fatalf("detail %+v", td)
	}
	if *td.ConfigEntries["min.insync.replicas"] != "2" {
		t.Fatal("rf>=3 should require 2 in-sync replicas")
	}
}
