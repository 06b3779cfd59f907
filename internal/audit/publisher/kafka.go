package publisher

import (
	"context"

	"audittrail/internal/platform/kafka/producer"
)

// KafkaSink publishes serialized audit events to a Kafka topic.
type KafkaSink struct {
	producer *producer.Producer
	topic    string
}

// NewKafkaSink creates a sink for the given topic.
func NewKafkaSink(p *producer.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

// Publish produces one event record keyed by correlation id.
func (s *KafkaSink) Publish(ctx context.Context, key, value []byte) error {
	return s.producer.Publish(ctx, s.topic, key, value)
}
