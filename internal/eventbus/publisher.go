// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/packetlens/internal/anomaly"
	"github.com/tomtom215/packetlens/internal/config"
	"github.com/tomtom215/packetlens/internal/logging"
)

// DefaultTopic is the topic anomalies are published on.
const DefaultTopic = "packetlens.anomalies"

// ErrClosed is returned when publishing on a closed publisher.
var ErrClosed = errors.New("publisher is closed")

// Publisher sends anomaly events over a Watermill publisher.
type Publisher struct {
	publisher message.Publisher
	topic     string

	mu     sync.RWMutex
	closed bool
}

// NewPublisher wraps pub. An empty topic uses DefaultTopic.
func NewPublisher(pub message.Publisher, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{publisher: pub, topic: topic}
}

// NewLogger returns a Watermill logger writing through the global logger.
func NewLogger() watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logging.NewSlogLogger())
}

// NewGoChannelPublisher returns an in-process publisher and the channel
// it publishes to, for subscribing.
func NewGoChannelPublisher(topic string, logger watermill.LoggerAdapter) (*Publisher, *gochannel.GoChannel) {
	if logger == nil {
		logger = NewLogger()
	}
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
	return NewPublisher(ch, topic), ch
}

// NewNATSPublisher connects to the NATS server in cfg.
func NewNATSPublisher(ctx context.Context, cfg config.NATSConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = NewLogger()
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("packetlens"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	if cfg.JetStream {
		if err := ensureStream(ctx, cfg.URL, cfg.Stream, topic); err != nil {
			return nil, err
		}
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      !cfg.JetStream,
			AutoProvision: false,
			TrackMsgId:    cfg.JetStream,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	logging.Info().
		Str("url", cfg.URL).
		Str("topic", topic).
		Bool("jetstream", cfg.JetStream).
		Msg("Anomaly publisher connected")
	return NewPublisher(pub, topic), nil
}

// Topic returns the topic messages are published on.
func (p *Publisher) Topic() string { return p.topic }

// PublishAnomaly serializes and publishes one anomaly event.
func (p *Publisher) PublishAnomaly(ctx context.Context, ev *anomaly.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize anomaly: %w", err)
	}

	msg := message.NewMessage(ev.ID, data)
	msg.SetContext(ctx)
	msg.Metadata.Set(natsgo.MsgIdHdr, ev.ID)
	msg.Metadata.Set("scenario_id", ev.ScenarioID)
	msg.Metadata.Set("execution", strconv.Itoa(ev.Execution))
	msg.Metadata.Set("pipeline_id", ev.PipelineID)
	msg.Metadata.Set("source_ip", ev.SourceIP)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish anomaly %s: %w", ev.ID, err)
	}
	logging.Debug().
		Str("anomaly_id", ev.ID).
		Str("topic", p.topic).
		Msg("Anomaly published")
	return nil
}

// OnAnomaly publishes ev, logging failures. It matches the session
// anomaly callback.
func (p *Publisher) OnAnomaly(ev *anomaly.Event) {
	if err := p.PublishAnomaly(context.Background(), ev); err != nil {
		logging.Error().Err(err).
			Str("scenario", ev.ScenarioID).
			Int("index", ev.Index).
			Msg("Failed to publish anomaly")
	}
}

// Close shuts down the underlying publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

// streamManager is the subset of jetstream.JetStream used to provision streams.
type streamManager interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

func ensureStream(ctx context.Context, url, name, topic string) error {
	nc, err := natsgo.Connect(url, natsgo.Name("packetlens-provisioner"))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	return EnsureStream(ctx, js, name, topic)
}

// EnsureStream creates the stream or updates it to cover topic.
func EnsureStream(ctx context.Context, js streamManager, name, topic string) error {
	streamCfg := jetstream.StreamConfig{
		Name:       name,
		Subjects:   []string{topic},
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
		Duplicates: 2 * time.Minute,
	}

	_, err := js.Stream(ctx, name)
	if err == nil {
		if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("update stream %s: %w", name, err)
		}
		return nil
	}
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		if _, err := js.CreateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("create stream %s: %w", name, err)
		}
		return nil
	}
	return fmt.Errorf("check stream %s: %w", name, err)
}
