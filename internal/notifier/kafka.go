package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"RegimeSentinel/internal/model"
)

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher emits each freshly computed snapshot as JSON keyed by its
// as-of date, so a compacted topic keeps one record per trading day.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewKafkaPublisher creates a synchronous, hash-balanced publisher.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(w, topic), nil
}

func newKafkaPublisher(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, now: time.Now}
}

func (k *KafkaPublisher) Name() string { return "kafka" }

// Publish skips anything that was not computed by this run.
func (k *KafkaPublisher) Publish(ctx context.Context, r Report) error {
	if !r.Fresh {
		return nil
	}
	value, err := json.Marshal(r.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(r.Snapshot.AsOf.Format(model.DateLayout)),
		Value: value,
		Time:  k.now(),
		Headers: []kafka.Header{
			{Key: "regime", Value: []byte(r.Snapshot.Regime)},
			{Key: "source", Value: []byte(r.Snapshot.Source)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaPublisher) Close() error { return k.writer.Close() }
