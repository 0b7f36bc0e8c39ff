// Package p2psender sends refresh requests to workers over libp2p gossip
// pubsub.
package p2psender

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipni/go-freshcache/dispatch"
	"github.com/ipni/go-freshcache/dispatch/message"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
)

// DefaultTopic is the pubsub topic that workers subscribe to by default.
const DefaultTopic = "/freshcache/refresh/1.0.0"

// Sender publishes refresh request messages on a pubsub topic.
type Sender struct {
	topic     *pubsub.Topic
	ownsTopic bool
}

var _ dispatch.Sender = (*Sender)(nil)

type config struct {
	topic *pubsub.Topic
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// WithTopic publishes on an existing pubsub topic instead of joining one.
// When used, the host and topic name given to New are ignored.
func WithTopic(topic *pubsub.Topic) Option {
	return func(cfg *config) error {
		cfg.topic = topic
		return nil
	}
}

// New creates a Sender that joins topicName using gossip pubsub on p2pHost.
// An empty topicName means DefaultTopic.
func New(p2pHost host.Host, topicName string, options ...Option) (*Sender, error) {
	var cfg config
	for i, opt := range options {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("option %d failed: %s", i, err)
		}
	}

	if cfg.topic != nil {
		return &Sender{topic: cfg.topic}, nil
	}

	if p2pHost == nil {
		return nil, errors.New("no host or topic")
	}
	if topicName == "" {
		topicName = DefaultTopic
	}

	ps, err := pubsub.NewGossipSub(context.Background(), p2pHost)
	if err != nil {
		return nil, fmt.Errorf("cannot create gossip pubsub: %w", err)
	}
	topic, err := ps.Join(topicName)
	if err != nil {
		return nil, fmt.Errorf("cannot join topic %s: %w", topicName, err)
	}
	return &Sender{
		topic:     topic,
		ownsTopic: true,
	}, nil
}

// Close closes the pubsub topic if it was joined by New.
func (s *Sender) Close() error {
	if !s.ownsTopic {
		return nil
	}
	return s.topic.Close()
}

// Send publishes the Message on the pubsub topic.
func (s *Sender) Send(ctx context.Context, msg message.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	return s.topic.Publish(ctx, data)
}
