package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"centralrepo/internal/logger"
)

// Config configures the NATS case-event subscriber.
type Config struct {
	URL     string
	Subject string
	Queue   string
}

// Handler receives one raw case-event envelope.
type Handler func(payload []byte) error

// Subscriber receives case events from a NATS subject. With a queue group
// set, each event reaches one listener of the group.
type Subscriber struct {
	nc      *nats.Conn
	subject string
	queue   string
	owned   bool
}

// NewSubscriber connects to cfg.URL.
func NewSubscriber(cfg Config) (*Subscriber, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	nc, err := nats.Connect(cfg.URL, nats.Name("centralrepo-listener"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s, err := NewSubscriberWithConn(nc, cfg.Subject, cfg.Queue)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSubscriberWithConn subscribes over an existing connection.
func NewSubscriberWithConn(nc *nats.Conn, subject, queue string) (*Subscriber, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	return &Subscriber{nc: nc, subject: subject, queue: queue}, nil
}

// Run delivers messages to handle until ctx is done.
func (s *Subscriber) Run(ctx context.Context, handle Handler) error {
	cb := func(msg *nats.Msg) {
		if err := handle(msg.Data); err != nil {
			logger.Warnf("Dropped case event from %s: %v", msg.Subject, err)
		}
	}

	var sub *nats.Subscription
	var err error
	if s.queue != "" {
		sub, err = s.nc.QueueSubscribe(s.subject, s.queue, cb)
	} else {
		sub, err = s.nc.Subscribe(s.subject, cb)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	logger.Infof("NATS case-event subscriber started on %s", s.subject)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		logger.Warnf("Failed to drain NATS subscription: %v", err)
	}
	return ctx.Err()
}

// Publish sends payload on the subscriber's subject.
func (s *Subscriber) Publish(payload []byte) error {
	if err := s.nc.Publish(s.subject, payload); err != nil {
		return err
	}
	return s.nc.Flush()
}

// Close closes an owned connection.
func (s *Subscriber) Close() error {
	if s.owned && s.nc != nil {
		s.nc.Close()
	}
	return nil
}
