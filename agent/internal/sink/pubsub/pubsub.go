// Package pubsub publishes measurements to a Google Cloud Pub/Sub topic.
//
// Each measurement is one message. The payload is the msgpack encoding of
// types.Measurement; the "metric" attribute carries the metric name so
// subscribers can filter without decoding.
package pubsub

import (
	"context"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/api/option"

	"github.com/obsidianstack/scraper/agent/internal/config"
	"github.com/obsidianstack/scraper/pkg/types"
)

// Sink publishes to one topic.
type Sink struct {
	client  *pubsub.Client
	topic   *pubsub.Topic
	timeout time.Duration
}

// New connects to the project and topic named in cfg. opts are passed to the
// Pub/Sub client (endpoint, credentials).
func New(ctx context.Context, cfg config.PubSubSinkConfig, opts ...option.ClientOption) (*Sink, error) {
	c, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "pubsub: create client for project %s", cfg.ProjectID)
	}
	return &Sink{
		client:  c,
		topic:   c.Topic(cfg.Topic),
		timeout: cfg.PublishTimeout,
	}, nil
}

// Name implements sink.Sink.
func (s *Sink) Name() string { return "pubsub" }

// Write publishes m and waits for the server to acknowledge it.
func (s *Sink) Write(ctx context.Context, m types.Measurement) error {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "pubsub: encode measurement")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res := s.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"metric": m.Name},
	})
	if _, err := res.Get(ctx); err != nil {
		return errors.Wrapf(err, "pubsub: publish %s", m.Name)
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (s *Sink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}

// Decode reverses the payload encoding used by Write.
func Decode(data []byte) (types.Measurement, error) {
	var m types.Measurement
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return types.Measurement{}, errors.Wrap(err, "pubsub: decode measurement")
	}
	return m, nil
}
