// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nats-io/nats-server/v2/server"

	"github.com/tomtom215/auditwal/internal/audit"
	"github.com/tomtom215/auditwal/internal/logging"
)

const modeNATS = "nats"

// NATSConfig configures a NATSWriter.
type NATSConfig struct {
	// URL of the NATS server. Ignored when Embedded is set.
	URL string

	// SubjectPrefix prefixes the channel name. Default: audit.records
	SubjectPrefix string

	// Stream is the JetStream stream name. Default: AUDIT_RECORDS
	Stream string

	// DuplicateWindow is the JetStream dedup window keyed by Nats-Msg-Id.
	// A record replayed after the window has passed is published again, so
	// consumers must dedupe on correlation_id. Raise it to cover the longest
	// expected outage if they cannot.
	// Default: 2m
	DuplicateWindow time.Duration

	// MaxReconnects for the client connection. -1 = forever.
	MaxReconnects int

	// ReconnectWait between reconnect attempts. Default: 2s
	ReconnectWait time.Duration

	// Embedded starts an in-process JetStream server in StoreDir.
	Embedded bool
	StoreDir string
}

func (c *NATSConfig) applyDefaults() {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "audit.records"
	}
	if c.Stream == "" {
		c.Stream = "AUDIT_RECORDS"
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = 2 * time.Minute
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
}

// NATSWriter publishes each record to JetStream under <prefix>.<channel>.
// The correlation ID is the Nats-Msg-Id, so redelivery inside the
// duplicate window is dropped by the server.
type NATSWriter struct {
	cfg       NATSConfig
	publisher message.Publisher
	conn      *natsgo.Conn
	embedded  *server.Server

	mu     sync.RWMutex
	closed bool
}

// NewNATSWriter connects, ensures the stream and builds the publisher.
func NewNATSWriter(ctx context.Context, cfg NATSConfig) (*NATSWriter, error) {
	cfg.applyDefaults()

	w := &NATSWriter{cfg: cfg}

	if cfg.Embedded {
		ns, err := startEmbeddedServer(cfg.StoreDir)
		if err != nil {
			return nil, err
		}
		w.embedded = ns
		w.cfg.URL = ns.ClientURL()
	}
	if w.cfg.URL == "" {
		w.shutdownEmbedded()
		return nil, fmt.Errorf("nats writer: url is required")
	}

	logger := logging.NewWatermillAdapter("nats-writer")
	opts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	// The admin connection provisions the stream and backs Connected.
	conn, err := natsgo.Connect(w.cfg.URL, opts...)
	if err != nil {
		w.shutdownEmbedded()
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	w.conn = conn

	if err := w.ensureStream(ctx); err != nil {
		_ = w.Close()
		return nil, err
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         w.cfg.URL,
		NatsOptions: opts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	w.publisher = pub

	logging.Info().
		Str("url", w.cfg.URL).
		Str("stream", cfg.Stream).
		Bool("embedded", cfg.Embedded).
		Msg("Audit NATS writer ready")

	return w, nil
}

func (w *NATSWriter) ensureStream(ctx context.Context) error {
	js, err := jetstream.New(w.conn)
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}

	streamCfg := jetstream.StreamConfig{
		Name:       w.cfg.Stream,
		Subjects:   []string{w.cfg.SubjectPrefix + ".>"},
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: w.cfg.DuplicateWindow,
		Discard:    jetstream.DiscardOld,
	}

	_, err = js.Stream(ctx, w.cfg.Stream)
	switch {
	case err == nil:
		if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("update stream %s: %w", w.cfg.Stream, err)
		}
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := js.CreateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("create stream %s: %w", w.cfg.Stream, err)
		}
	default:
		return fmt.Errorf("check stream %s: %w", w.cfg.Stream, err)
	}
	return nil
}

// Connected reports whether the admin connection is up.
func (w *NATSWriter) Connected() bool {
	return w.conn != nil && w.conn.IsConnected()
}

// Subject returns the subject a channel publishes to.
func (w *NATSWriter) Subject(channel string) string {
	return w.cfg.SubjectPrefix + "." + channel
}

// WriteBatch publishes every record, grouped by channel.
func (w *NATSWriter) WriteBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return fmt.Errorf("nats writer is closed")
	}

	start := time.Now()
	err := w.publish(ctx, records)
	RecordBatch(modeNATS, len(records), time.Since(start).Seconds(), err)
	return err
}

func (w *NATSWriter) publish(ctx context.Context, records []audit.Record) error {
	byChannel := make(map[string][]*message.Message, 2)
	order := make([]string, 0, 2)

	for i := range records {
		r := &records[i]
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", r.CorrelationID, err)
		}

		// TrackMsgId sends the message UUID as Nats-Msg-Id.
		msg := message.NewMessage(r.CorrelationID, data)
		msg.Metadata.Set(natsgo.MsgIdHdr, r.CorrelationID)
		msg.Metadata.Set("service", r.Service)
		msg.Metadata.Set("outcome", string(r.Outcome))
		msg.SetContext(ctx)

		ch := r.Channel()
		if _, ok := byChannel[ch]; !ok {
			order = append(order, ch)
		}
		byChannel[ch] = append(byChannel[ch], msg)
	}

	for _, ch := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.publisher.Publish(w.Subject(ch), byChannel[ch]...); err != nil {
			return fmt.Errorf("publish to %s: %w", w.Subject(ch), err)
		}
	}
	return nil
}

// Close shuts down the publisher, the connection and any embedded server.
func (w *NATSWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if w.publisher != nil {
		if err := w.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if w.conn != nil && !w.conn.IsClosed() {
		if err := w.conn.Drain(); err != nil && !strings.Contains(err.Error(), "closed") {
			errs = append(errs, err)
		}
	}
	w.shutdownEmbedded()
	return errors.Join(errs...)
}

func (w *NATSWriter) shutdownEmbedded() {
	if w.embedded != nil {
		w.embedded.Shutdown()
		w.embedded.WaitForShutdown()
		w.embedded = nil
	}
}

func startEmbeddedServer(storeDir string) (*server.Server, error) {
	if storeDir == "" {
		return nil, fmt.Errorf("nats writer: embedded server requires a store dir")
	}
	opts := &server.Options{
		ServerName: "auditwal",
		Host:       "127.0.0.1",
		Port:       server.RANDOM_PORT,
		JetStream:  true,
		StoreDir:   storeDir,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 8 * 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}
	return ns, nil
}
