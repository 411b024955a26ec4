// Package ingress connects the worker to a NATS JetStream work queue.
package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/repocache/internal/config"
)

const setupTimeout = 10 * time.Second

// Client holds the NATS connection and the JetStream handles repocache uses.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
	cfg  config.NATSConfig
}

// Connect dials NATS and ensures the work stream exists.
func Connect(cfg config.NATSConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("nats.url is not configured")
	}
	conn, err := nats.Connect(cfg.URL, nats.Name("repocache"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	c := &Client{conn: conn, js: js, cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "repocache clone requests",
		Subjects:    []string{cfg.Subject},
		Retention:   jetstream.WorkQueuePolicy,
		Duplicates:  cfg.AckWait,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.Stream, err)
	}

	slog.Info("NATS client initialized",
		slog.String("url", cfg.URL),
		slog.String("stream", cfg.Stream),
		slog.String("subject", cfg.Subject))
	return c, nil
}

// Publisher returns a publisher for the work subject.
func (c *Client) Publisher() *Publisher {
	return NewPublisher(c.js, c.cfg.Subject)
}

// Consumer ensures the durable consumer and wraps it. maxDeliver bounds
// redeliveries of unclassified failures.
func (c *Client) Consumer(ctx context.Context, performer Performer, maxDeliver int) (*Consumer, error) {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       c.cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
		MaxDeliver:    maxDeliver,
		FilterSubject: c.cfg.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure consumer %s: %w", c.cfg.Durable, err)
	}
	return NewConsumer(cons, performer), nil
}

// LockBucket creates or opens the KV bucket backing cachestate.KVLocker. The
// bucket TTL frees keys of holders that died.
func (c *Client) LockBucket(ctx context.Context) (jetstream.KeyValue, error) {
	kv, err := c.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      c.cfg.LockBucket,
		Description: "repocache clone locks",
		History:     1,
		TTL:         c.cfg.LockTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure KV bucket %s: %w", c.cfg.LockBucket, err)
	}
	return kv, nil
}

// Close drains the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Drain()
}
