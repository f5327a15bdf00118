// Package natsbridge feeds a broker from NATS: each distinct subject under
// the bridge prefix becomes one server channel, and every message on it is
// forwarded to subscribers.
package natsbridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/adred-codev/foxbridge/pkg/wire"
)

// Publisher is the slice of the broker API the bridge drives.
type Publisher interface {
	AddChannel(spec wire.ChannelSpec) wire.ChannelID
	SendMessage(ch wire.ChannelID, timestamp uint64, payload []byte)
}

// Config holds bridge settings.
type Config struct {
	// URL of the NATS server.
	URL string

	// Subjects are the subscription patterns, e.g. "fox.msg.>".
	Subjects []string

	// Encoding/SchemaName/Schema describe the payloads carried on bridged
	// channels; they are advertised verbatim on every auto-created channel.
	Encoding   string
	SchemaName string
	Schema     string

	// Workers and QueueSize bound the dispatch pool; zero values pick
	// defaults.
	Workers   int
	QueueSize int
}

// Bridge consumes NATS subjects and republishes them through a broker.
type Bridge struct {
	cfg  Config
	pub  Publisher
	log  zerolog.Logger
	nc   *nats.Conn
	subs []*nats.Subscription
	pool *workPool

	cancel context.CancelFunc

	mu       sync.Mutex
	channels map[string]wire.ChannelID // subject → channel
}

// New connects to NATS and prepares the bridge; call Start to begin
// consuming.
func New(cfg Config, pub Publisher, logger zerolog.Logger) (*Bridge, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if len(cfg.Subjects) == 0 {
		cfg.Subjects = []string{SubjectPrefix + ">"}
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "json"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &Bridge{
		cfg:      cfg,
		pub:      pub,
		log:      logger.With().Str("component", "natsbridge").Logger(),
		nc:       nc,
		pool:     newWorkPool(cfg.Workers, cfg.QueueSize),
		channels: make(map[string]wire.ChannelID),
	}, nil
}

// Start subscribes to the configured subject patterns.
func (b *Bridge) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.pool.start(ctx)

	for _, pattern := range b.cfg.Subjects {
		sub, err := b.nc.Subscribe(pattern, func(msg *nats.Msg) {
			b.pool.submit(func() {
				b.forward(msg.Subject, msg.Data)
			})
		})
		if err != nil {
			cancel()
			return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
		}
		b.subs = append(b.subs, sub)
		b.log.Info().Str("pattern", pattern).Msg("Subscribed to NATS subjects")
	}
	return nil
}

// forward republishes one NATS message through the broker, lazily creating
// the channel on the subject's first appearance.
func (b *Bridge) forward(subject string, payload []byte) {
	topic := TopicForSubject(subject)
	if topic == "" {
		b.log.Debug().Str("subject", subject).Msg("Ignoring message on unmapped subject")
		return
	}

	b.mu.Lock()
	ch, ok := b.channels[subject]
	if !ok {
		ch = b.pub.AddChannel(wire.ChannelSpec{
			Topic:      topic,
			Encoding:   b.cfg.Encoding,
			SchemaName: b.cfg.SchemaName,
			Schema:     b.cfg.Schema,
		})
		b.channels[subject] = ch
		b.log.Info().Str("subject", subject).Str("topic", topic).
			Uint32("channel_id", uint32(ch)).Msg("Bridged new channel")
	}
	b.mu.Unlock()

	b.pub.SendMessage(ch, uint64(time.Now().UnixNano()), payload)
}

// DroppedMessages reports messages dropped because the dispatch queue was
// full.
func (b *Bridge) DroppedMessages() int64 {
	return b.pool.droppedTasks()
}

// Stop unsubscribes, stops the pool workers, and closes the NATS connection.
// Tasks still waiting in the dispatch queue when the workers exit are not run.
func (b *Bridge) Stop() {
	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.pool.stop()
	b.nc.Close()
	b.log.Info().Msg("Bridge stopped")
}
