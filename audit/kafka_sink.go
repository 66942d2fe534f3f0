package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// KafkaSink publishes records through a sarama async producer.
// Delivery failures surface asynchronously and are only logged.
type KafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger
	done     chan struct{}
}

func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForLocal

	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Flush.Messages = 100

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to start kafka producer: %w", err)
	}

	return NewKafkaSinkWithProducer(producer, topic, logger), nil
}

// NewKafkaSinkWithProducer wraps an existing producer. Its Errors channel
// must be enabled.
func NewKafkaSinkWithProducer(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *KafkaSink {
	if topic == "" {
		topic = "system.audit.activity"
	}
	if logger == nil {
		logger = slog.Default()
	}

	k := &KafkaSink{
		producer: producer,
		topic:    topic,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go k.drainErrors()
	return k
}

func (k *KafkaSink) Write(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal failed: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Value: sarama.ByteEncoder(payload),
	}
	// Keyed by object so one object's history stays ordered within a partition.
	if rec.ObjectID != "" {
		msg.Key = sarama.StringEncoder(rec.ObjectID)
	}

	select {
	case k.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *KafkaSink) drainErrors() {
	defer close(k.done)
	for err := range k.producer.Errors() {
		k.logger.Error("Failed to deliver activity record to kafka", "topic", k.topic, "error", err.Err)
	}
}

func (k *KafkaSink) Close() error {
	err := k.producer.Close()
	<-k.done
	return err
}
