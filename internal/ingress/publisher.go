package ingress

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/repocache/internal/logfields"
	"git.home.luguber.info/inful/repocache/internal/request"
)

// StreamPublisher is the subset of jetstream.JetStream used for publishing.
type StreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher enqueues clone requests. The fingerprint is the message ID, so
// the server drops duplicates inside the stream's duplicate window.
type Publisher struct {
	js      StreamPublisher
	subject string
}

// NewPublisher creates a publisher for subject.
func NewPublisher(js StreamPublisher, subject string) *Publisher {
	return &Publisher{js: js, subject: subject}
}

// Publish sends req. The ack reports whether the server saw a duplicate.
func (p *Publisher) Publish(ctx context.Context, req request.RepositoryRequest) (*jetstream.PubAck, error) {
	data, err := req.MarshalJSON()
	if err != nil {
		return nil, err
	}
	ack, err := p.js.Publish(ctx, p.subject, data, jetstream.WithMsgID(req.Fingerprint()))
	if err != nil {
		return nil, fmt.Errorf("failed to publish clone request: %w", err)
	}
	slog.Debug("Published clone request",
		logfields.Fingerprint(req.Fingerprint()),
		logfields.Repository(req.Repo()),
		slog.Uint64("seq", ack.Sequence),
		slog.Bool("duplicate", ack.Duplicate))
	return ack, nil
}
