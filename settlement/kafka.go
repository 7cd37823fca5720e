package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// Producer is the subset of *kafka.Producer the sink needs.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// KafkaSink publishes notices as JSON keyed by token id and waits for the
// broker's delivery report.
type KafkaSink struct {
	producer Producer
	topic    string
}

// NewKafkaSink wraps an existing producer.
func NewKafkaSink(p Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

// CreateProducer builds an idempotent producer for brokers.
func CreateProducer(brokers string) (*kafka.Producer, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":   brokers,
		"acks":                "all",
		"enable.idempotence":  true,
		"linger.ms":           10,
		"retry.backoff.ms":    100,
		"delivery.timeout.ms": 30000,
		"request.timeout.ms":  5000,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

func (s *KafkaSink) Deliver(ctx context.Context, n *Notice) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notice %s: %w", n.ID, err)
	}

	topic := s.topic
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(n.TokenID),
		Value:          value,
		Timestamp:      n.Timestamp,
		Headers: []kafka.Header{
			{Key: "endpoint", Value: []byte(n.Endpoint)},
			{Key: "priority", Value: []byte(strconv.FormatBool(n.Priority))},
		},
	}

	deliveries := make(chan kafka.Event, 1)
	if err := s.producer.Produce(msg, deliveries); err != nil {
		return fmt.Errorf("produce notice %s: %w", n.ID, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-deliveries:
		switch e := ev.(type) {
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				return fmt.Errorf("deliver notice %s: %w", n.ID, e.TopicPartition.Error)
			}
			return nil
		case kafka.Error:
			return fmt.Errorf("deliver notice %s: %w", n.ID, e)
		default:
			return fmt.Errorf("deliver notice %s: unexpected event %v", n.ID, ev)
		}
	}
}

// Close flushes outstanding messages for up to timeoutMs and closes the
// producer.
func (s *KafkaSink) Close(timeoutMs int) {
	s.producer.Flush(timeoutMs)
	s.producer.Close()
}
