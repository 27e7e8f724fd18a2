package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig represents Apache Kafka configuration
type KafkaConfig struct {
	Brokers       []string      // Kafka broker addresses
	GroupID       string        // Consumer group ID (default: "fieldsurvey-group")
	BatchTimeout  time.Duration // Producer batch timeout (default: 10ms)
	MaxAttempts   int           // Producer attempts per message (default: 3)
	CommitRetries int           // Consumer commit retries (default: 3)
	RetryBackoff  time.Duration // Backoff between commit retries (default: 100ms)
}

// KafkaQueue implements Queue using Apache Kafka. Subjects map 1:1 to topics.
type KafkaQueue struct {
	config        KafkaConfig
	writer        *kafka.Writer
	readers       map[string]*kafka.Reader
	subscriptions map[string]context.CancelFunc
	wg            sync.WaitGroup
	mu            sync.Mutex
}

func newKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	if cfg.GroupID == "" {
		cfg.GroupID = "fieldsurvey-group"
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CommitRetries == 0 {
		cfg.CommitRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}

	// One writer serves every topic; the topic is set per message.
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            cfg.MaxAttempts,
		AllowAutoTopicCreation: true,
	}

	return &KafkaQueue{
		config:        cfg,
		writer:        writer,
		readers:       make(map[string]*kafka.Reader),
		subscriptions: make(map[string]context.CancelFunc),
	}, nil
}

// topicName maps a subject to a valid topic name
func topicName(subject string) string {
	return strings.NewReplacer("*", "_", ">", "_", " ", "_").Replace(subject)
}

// Publish writes one message to the subject's topic
func (q *KafkaQueue) Publish(ctx context.Context, subject string, data []byte) error {
	err := q.writer.WriteMessages(ctx, kafka.Message{
		Topic: topicName(subject),
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to kafka topic %s: %w", subject, err)
	}
	return nil
}

// PublishBatch writes all messages in one call
func (q *KafkaQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	now := time.Now()
	msgs := make([]kafka.Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, kafka.Message{Topic: topicName(m.Subject), Value: m.Data, Time: now})
	}

	if err := q.writer.WriteMessages(ctx, msgs...); err != nil {
		if writeErrs, ok := err.(kafka.WriteErrors); ok {
			return len(msgs) - writeErrs.Count(), nil
		}
		return 0, fmt.Errorf("failed to publish batch: %w", err)
	}
	return len(msgs), nil
}

// Subscribe consumes the subject's topic with the configured group
func (q *KafkaQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("already subscribed to topic: %s", subject)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        q.config.Brokers,
		GroupID:        q.config.GroupID,
		Topic:          topicName(subject),
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0, // commits are synchronous
	})

	ctx, cancel := context.WithCancel(context.Background())
	q.readers[subject] = reader
	q.subscriptions[subject] = cancel

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.consume(ctx, reader, handler)
	}()

	return nil
}

func (q *KafkaQueue) consume(ctx context.Context, reader *kafka.Reader, handler MessageHandler) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			time.Sleep(q.config.RetryBackoff)
			continue
		}

		if err := handler(msg.Value); err != nil {
			// uncommitted; redelivered after a rebalance or restart
			continue
		}

		for i := 0; i < q.config.CommitRetries; i++ {
			if err := reader.CommitMessages(ctx, msg); err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			time.Sleep(q.config.RetryBackoff)
		}
	}
}

// Unsubscribe stops consuming subject and closes its reader
func (q *KafkaQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, exists := q.subscriptions[subject]
	if !exists {
		return fmt.Errorf("not subscribed to topic: %s", subject)
	}

	cancel()
	if reader, ok := q.readers[subject]; ok {
		_ = reader.Close()
		delete(q.readers, subject)
	}
	delete(q.subscriptions, subject)
	return nil
}

// Close stops all readers and flushes the writer
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	var lastErr error
	for subject, cancel := range q.subscriptions {
		cancel()
		if reader, ok := q.readers[subject]; ok {
			if err := reader.Close(); err != nil {
				lastErr = err
			}
		}
		delete(q.subscriptions, subject)
		delete(q.readers, subject)
	}
	q.mu.Unlock()

	q.wg.Wait()
	if err := q.writer.Close(); err != nil {
		lastErr = err
	}
	return lastErr
}

// Stats returns producer stats (for monitoring)
func (q *KafkaQueue) Stats() kafka.WriterStats {
	return q.writer.Stats()
}
