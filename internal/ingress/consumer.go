package ingress

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/repocache/internal/logfields"
	"git.home.luguber.info/inful/repocache/internal/retry"
	"git.home.luguber.info/inful/repocache/internal/worker"
)

// Performer executes one job payload. *worker.Worker satisfies it.
type Performer interface {
	Perform(ctx context.Context, payload []byte) error
}

// Message is the subset of jetstream.Msg the consumer acknowledges through.
type Message interface {
	Data() []byte
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

// Source is the subset of jetstream.Consumer used to receive messages.
type Source interface {
	Consume(handler jetstream.MessageHandler, opts ...jetstream.PullConsumeOpt) (jetstream.ConsumeContext, error)
}

// Consumer feeds messages from a durable pull consumer to a performer.
type Consumer struct {
	source    Source
	performer Performer
	policy    retry.Policy
	workers   int
	logger    *slog.Logger
}

// NewConsumer creates a consumer with one handler goroutine.
func NewConsumer(source Source, performer Performer) *Consumer {
	return &Consumer{source: source, performer: performer, policy: retry.DefaultPolicy(), workers: 1, logger: slog.Default()}
}

// WithPolicy sets the redelivery backoff (fluent helper).
func (c *Consumer) WithPolicy(p retry.Policy) *Consumer {
	c.policy = p
	return c
}

// WithWorkers sets the number of concurrent handlers (fluent helper).
func (c *Consumer) WithWorkers(n int) *Consumer {
	if n > 0 {
		c.workers = n
	}
	return c
}

// WithLogger replaces the logger (fluent helper).
func (c *Consumer) WithLogger(l *slog.Logger) *Consumer {
	if l != nil {
		c.logger = l
	}
	return c
}

// Run consumes until ctx is done, then drains in-flight messages.
func (c *Consumer) Run(ctx context.Context) error {
	msgs := make(chan jetstream.Msg)
	var wg sync.WaitGroup
	for range c.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range msgs {
				c.Handle(ctx, msg)
			}
		}()
	}

	cc, err := c.source.Consume(func(msg jetstream.Msg) {
		select {
		case msgs <- msg:
		case <-ctx.Done():
			_ = msg.NakWithDelay(0)
		}
	},
		jetstream.PullMaxMessages(c.workers),
		jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			c.logger.Warn("JetStream consume error", logfields.Error(err))
		}))
	if err != nil {
		close(msgs)
		wg.Wait()
		return err
	}

	<-ctx.Done()
	cc.Drain()
	<-cc.Closed()
	close(msgs)
	wg.Wait()
	return nil
}

// Handle performs one message and settles it: Ack on success, Term for
// payloads that can never succeed or when retries are exhausted, and
// NakWithDelay otherwise.
func (c *Consumer) Handle(ctx context.Context, msg Message) {
	delivered := 1
	if md, err := msg.Metadata(); err == nil && md.NumDelivered > 0 {
		delivered = int(md.NumDelivered)
	}
	jobID := uuid.NewString()
	log := c.logger.With(logfields.JobID(jobID), logfields.Attempt(delivered))

	err := c.performer.Perform(worker.WithJobID(ctx, jobID), msg.Data())
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			log.Warn("Failed to ack message", logfields.Error(ackErr))
		}
	case errors.Is(err, worker.ErrBadPayload) || !c.policy.ShouldRetry(err, delivered-1):
		log.Error("Terminating clone request", logfields.Error(err))
		if termErr := msg.Term(); termErr != nil {
			log.Warn("Failed to term message", logfields.Error(termErr))
		}
	default:
		delay := c.policy.Delay(delivered)
		log.Warn("Clone request failed, redelivering", slog.Duration("delay", delay), logfields.Error(err))
		if nakErr := msg.NakWithDelay(delay); nakErr != nil {
			log.Warn("Failed to nak message", logfields.Error(nakErr))
		}
	}
}
