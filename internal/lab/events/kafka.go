package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Async-Ng/ElecLab-sub001/internal/metrics"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used here
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BatchTimeout bounds how long Publish waits to fill a batch
const BatchTimeout = 10 * time.Millisecond

// KafkaPublisher writes events to a Kafka topic keyed by request id
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher creates a publisher for brokers/topic
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           BatchTimeout,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// NewKafkaPublisherWithWriter wraps an existing writer
func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish implements Publisher
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.RequestID),
		Value: value,
	})
	if err != nil {
		metrics.EventsPublished.WithLabelValues("kafka", "error").Inc()
		return fmt.Errorf("write kafka message: %w", err)
	}
	metrics.EventsPublished.WithLabelValues("kafka", "ok").Inc()
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
