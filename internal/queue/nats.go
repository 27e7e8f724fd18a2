package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig represents NATS JetStream configuration
type NATSConfig struct {
	URL          string
	Password     string        // optional token
	StreamPrefix string        // stream name prefix (default: "fieldsurvey")
	MaxAge       time.Duration // stream retention (default: 7 days)
}

// NATSQueue implements Queue using NATS JetStream. Each subject gets its
// own stream, created on first publish or subscribe.
type NATSQueue struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	config        NATSConfig
	streams       map[string]bool
	subscriptions map[string]*nats.Subscription
	mu            sync.Mutex
}

func newNATSQueue(cfg NATSConfig) (*NATSQueue, error) {
	opts := []nats.Option{
		nats.Name("fieldsurvey"),
		nats.Timeout(10 * time.Second),
		nats.MaxReconnects(-1),
	}
	if cfg.Password != "" {
		opts = append(opts, nats.Token(cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	q, err := newNATSQueueWithConn(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// newNATSQueueWithConn wraps an existing connection (used in tests)
func newNATSQueueWithConn(conn *nats.Conn, cfg NATSConfig) (*NATSQueue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "fieldsurvey"
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 7 * 24 * time.Hour
	}

	return &NATSQueue{
		conn:          conn,
		js:            js,
		config:        cfg,
		streams:       make(map[string]bool),
		subscriptions: make(map[string]*nats.Subscription),
	}, nil
}

// ensureStream creates the stream backing subject; callers hold q.mu
func (q *NATSQueue) ensureStream(subject string) error {
	if q.streams[subject] {
		return nil
	}

	name := q.config.StreamPrefix + "-" + sanitizeName(subject)
	if _, err := q.js.StreamInfo(name); err != nil {
		_, err = q.js.AddStream(&nats.StreamConfig{
			Name:     name,
			Subjects: []string{subject},
			Storage:  nats.FileStorage,
			MaxAge:   q.config.MaxAge,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream for subject %s: %w", subject, err)
		}
	}

	q.streams[subject] = true
	return nil
}

// Publish publishes a message and waits for the JetStream ack
func (q *NATSQueue) Publish(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	err := q.ensureStream(subject)
	q.mu.Unlock()
	if err != nil {
		return err
	}

	if _, err := q.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

// PublishBatch queues all messages asynchronously and waits for the acks
func (q *NATSQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	q.mu.Lock()
	for _, msg := range messages {
		if err := q.ensureStream(msg.Subject); err != nil {
			q.mu.Unlock()
			return 0, err
		}
	}
	q.mu.Unlock()

	futures := make([]nats.PubAckFuture, 0, len(messages))
	for _, msg := range messages {
		future, err := q.js.PublishAsync(msg.Subject, msg.Data)
		if err != nil {
			continue
		}
		futures = append(futures, future)
	}

	select {
	case <-q.js.PublishAsyncComplete():
	case <-ctx.Done():
		return 0, fmt.Errorf("timeout waiting for batch publish: %w", ctx.Err())
	}

	accepted := 0
	for _, future := range futures {
		select {
		case <-future.Ok():
			accepted++
		case <-future.Err():
		}
	}
	return accepted, nil
}

// Subscribe attaches a durable, manually acked consumer to subject
func (q *NATSQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}
	if err := q.ensureStream(subject); err != nil {
		return err
	}

	durable := q.config.StreamPrefix + "-consumer-" + sanitizeName(subject)
	sub, err := q.js.Subscribe(subject, func(msg *nats.Msg) {
		if err := handler(msg.Data); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.MaxAckPending(100),
		nats.AckWait(30*time.Second),
		nats.MaxDeliver(3),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	q.subscriptions[subject] = sub
	return nil
}

// Unsubscribe unsubscribes from a subject
func (q *NATSQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	sub, exists := q.subscriptions[subject]
	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	delete(q.subscriptions, subject)

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from subject %s: %w", subject, err)
	}
	return nil
}

// Close drains subscriptions and closes the connection
func (q *NATSQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for subject, sub := range q.subscriptions {
		_ = sub.Unsubscribe()
		delete(q.subscriptions, subject)
	}

	q.conn.Close()
	return nil
}

// sanitizeName maps a subject to a valid stream or consumer name:
// A-Z, a-z, 0-9, dash and underscore
func sanitizeName(subject string) string {
	result := make([]byte, 0, len(subject))
	for i := 0; i < len(subject); i++ {
		c := subject[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			result = append(result, c)
		} else {
			result = append(result, '_')
		}
	}
	return string(result)
}
