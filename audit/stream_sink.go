package audit

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher is satisfied by messaging.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// StreamSink publishes synchronously: Write returns only once the broker
// acknowledged the record, so a broker outage reaches the caller.
type StreamSink struct {
	publisher Publisher
	topic     string
}

func NewStreamSink(p Publisher, topic string) *StreamSink {
	if topic == "" {
		topic = "system.audit.activity"
	}
	return &StreamSink{publisher: p, topic: topic}
}

func (s *StreamSink) Write(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal failed: %w", err)
	}
	key := rec.ObjectID
	if key == "" {
		key = rec.ID
	}
	return s.publisher.Publish(ctx, s.topic, key, payload)
}
