// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/packetlens/internal/anomaly"
	"github.com/tomtom215/packetlens/internal/config"
)

func testEvent() *anomaly.Event {
	ev := anomaly.NewEvent("scn-1", 2)
	ev.Index = 7
	ev.PipelineID = "m1"
	ev.SourceIP = "10.0.0.1"
	ev.FeatureValues["length"] = 1500
	return ev
}

func TestGoChannelPublisher(t *testing.T) {
	pub, ch := NewGoChannelPublisher("", watermill.NopLogger{})
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := ch.Subscribe(ctx, DefaultTopic)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ev := testEvent()
	if err := pub.PublishAnomaly(ctx, ev); err != nil {
		t.Fatalf("PublishAnomaly: %v", err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		if msg.UUID != ev.ID {
			t.Errorf("UUID = %q, want %q", msg.UUID, ev.ID)
		}
		if got := msg.Metadata.Get(natsgo.MsgIdHdr); got != ev.ID {
			t.Errorf("Nats-Msg-Id = %q, want %q", got, ev.ID)
		}
		if got := msg.Metadata.Get("execution"); got != "2" {
			t.Errorf("execution metadata = %q, want 2", got)
		}
		var decoded anomaly.Event
		if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if decoded.Index != 7 || decoded.FeatureValues["length"] != 1500 {
			t.Errorf("decoded event = %+v", decoded)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestPublisherClosed(t *testing.T) {
	pub, _ := NewGoChannelPublisher("custom.topic", watermill.NopLogger{})
	if pub.Topic() != "custom.topic" {
		t.Errorf("Topic() = %q", pub.Topic())
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := pub.PublishAnomaly(context.Background(), testEvent()); !errors.Is(err, ErrClosed) {
		t.Errorf("PublishAnomaly after close = %v, want ErrClosed", err)
	}
	// OnAnomaly only logs.
	pub.OnAnomaly(testEvent())
}

type mockStreams struct {
	existing bool
	checkErr error
	created  []jetstream.StreamConfig
	updated  []jetstream.StreamConfig
}

func (m *mockStreams) Stream(_ context.Context, _ string) (jetstream.Stream, error) {
	if m.checkErr != nil {
		return nil, m.checkErr
	}
	if !m.existing {
		return nil, jetstream.ErrStreamNotFound
	}
	return nil, nil
}

func (m *mockStreams) CreateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	m.created = append(m.created, cfg)
	return nil, nil
}

func (m *mockStreams) UpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	m.updated = append(m.updated, cfg)
	return nil, nil
}

func TestEnsureStream(t *testing.T) {
	ctx := context.Background()

	t.Run("creates missing stream", func(t *testing.T) {
		m := &mockStreams{}
		if err := EnsureStream(ctx, m, "ANOMALIES", "packetlens.anomalies"); err != nil {
			t.Fatalf("EnsureStream: %v", err)
		}
		if len(m.created) != 1 || len(m.updated) != 0 {
			t.Fatalf("created=%d updated=%d", len(m.created), len(m.updated))
		}
		if got := m.created[0].Subjects; len(got) != 1 || got[0] != "packetlens.anomalies" {
			t.Errorf("subjects = %v", got)
		}
	})

	t.Run("updates existing stream", func(t *testing.T) {
		m := &mockStreams{existing: true}
		if err := EnsureStream(ctx, m, "ANOMALIES", "packetlens.anomalies"); err != nil {
			t.Fatalf("EnsureStream: %v", err)
		}
		if len(m.updated) != 1 || len(m.created) != 0 {
			t.Fatalf("created=%d updated=%d", len(m.created), len(m.updated))
		}
	})

	t.Run("lookup failure", func(t *testing.T) {
		boom := errors.New("boom")
		m := &mockStreams{checkErr: boom}
		if err := EnsureStream(ctx, m, "ANOMALIES", "x"); !errors.Is(err, boom) {
			t.Errorf("err = %v, want boom", err)
		}
	})
}

func startNATS(t *testing.T, jetStream bool) *server.Server {
	t.Helper()
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		NoLog:     true,
		NoSigs:    true,
		JetStream: jetStream,
	}
	if jetStream {
		opts.StoreDir = t.TempDir()
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestNATSPublisherCore(t *testing.T) {
	ns := startNATS(t, false)

	nc, err := natsgo.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync(DefaultTopic)
	if err != nil {
		t.Fatalf("SubscribeSync: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	ctx := context.Background()
	pub, err := NewNATSPublisher(ctx, config.NATSConfig{
		Enabled: true,
		URL:     ns.ClientURL(),
		Topic:   DefaultTopic,
	}, watermill.NopLogger{})
	if err != nil {
		t.Fatalf("NewNATSPublisher: %v", err)
	}
	defer pub.Close()

	ev := testEvent()
	if err := pub.PublishAnomaly(ctx, ev); err != nil {
		t.Fatalf("PublishAnomaly: %v", err)
	}

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg: %v", err)
	}
	if got := msg.Header.Get(natsgo.MsgIdHdr); got != ev.ID {
		t.Errorf("Nats-Msg-Id header = %q, want %q", got, ev.ID)
	}
}

func TestNATSPublisherJetStream(t *testing.T) {
	ns := startNATS(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pub, err := NewNATSPublisher(ctx, config.NATSConfig{
		Enabled:   true,
		URL:       ns.ClientURL(),
		Topic:     DefaultTopic,
		JetStream: true,
		Stream:    "PACKETLENS_ANOMALIES",
	}, watermill.NopLogger{})
	if err != nil {
		t.Fatalf("NewNATSPublisher: %v", err)
	}
	defer pub.Close()

	ev := testEvent()
	for i := 0; i < 2; i++ {
		// The repeat carries the same message id and is deduplicated.
		if err := pub.PublishAnomaly(ctx, ev); err != nil {
			t.Fatalf("PublishAnomaly: %v", err)
		}
	}
	if err := pub.PublishAnomaly(ctx, testEvent()); err != nil {
		t.Fatalf("PublishAnomaly: %v", err)
	}

	nc, err := natsgo.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer nc.Close()
	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream.New: %v", err)
	}
	stream, err := js.Stream(ctx, "PACKETLENS_ANOMALIES")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.State.Msgs != 2 {
		t.Errorf("stream holds %d messages, want 2", info.State.Msgs)
	}
}
