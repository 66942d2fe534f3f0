package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	Brokers         []string      `envconfig:"KAFKA_BROKERS" yaml:"brokers"`
	ClientID        string        `envconfig:"KAFKA_CLIENT_ID" default:"helix-activity" yaml:"client_id"`
	RetryTimeout    time.Duration `envconfig:"KAFKA_RETRY_TIMEOUT" default:"10s" yaml:"retry_timeout"`
	AutoCreateTopic bool          `envconfig:"KAFKA_AUTO_CREATE_TOPIC" default:"false" yaml:"auto_create_topic"`
}

var ErrNoBrokers = errors.New("kafka: no brokers configured")

// Producer publishes synchronously with franz-go. It satisfies
// audit.Publisher.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
	tracer trace.Tracer
}

func NewProducer(ctx context.Context, cfg Config, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RetryTimeout(cfg.RetryTimeout),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if cfg.AutoCreateTopic {
		opts = append(opts, kgo.AllowAutoTopicCreation())
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to create client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka: failed to ping brokers: %w", err)
	}

	return &Producer{
		client: client,
		logger: logger.With("component", "kafka_producer"),
		tracer: otel.Tracer("helix-activity/messaging"),
	}, nil
}

// Publish blocks until the record is acknowledged, so broker failures reach
// the caller.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload []byte) error {
	ctx, span := p.tracer.Start(ctx, "kafka.produce",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
		),
	)
	defer span.End()

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "produce failed")
		p.logger.ErrorContext(ctx, "Failed to publish message",
			"topic", topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("kafka publish failed: %w", err)
	}
	return nil
}

// Ping checks broker connectivity for readiness probes.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Producer) Close() error {
	p.logger.Info("Closing Kafka producer")
	p.client.Close()
	return nil
}
