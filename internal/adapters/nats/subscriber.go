package natsadapter

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeSurveyUpdates delivers the orchard ID of every survey-updated
// event to handler. The ID is taken from the subject, so an empty body is
// accepted.
func (s *Subscriber) SubscribeSurveyUpdates(ctx context.Context, handler func(ctx context.Context, orchardID int64) error) error {
	return s.subscribe(surveyUpdatedWildcard, "survey-update-processor", func(msg *nats.Msg) error {
		id, err := orchardFromSubject(msg.Subject, surveyUpdatedPrefix)
		if err != nil {
			return err
		}
		return handler(ctx, id)
	})
}

// subscribe acks messages handled without error and naks the rest, so
// JetStream redelivers them up to MaxDeliver times.
func (s *Subscriber) subscribe(subject, durable string, handle func(*nats.Msg) error) error {
	sub, err := s.js.Subscribe(subject, func(msg *nats.Msg) {
		if err := handle(msg); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.BindStream(StreamName),
		nats.Durable(durable),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
