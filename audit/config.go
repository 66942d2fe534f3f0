package audit

import "slices"

const (
	SinkStdout   = "stdout"
	SinkKafka    = "kafka"
	SinkStream   = "stream"
	SinkPostgres = "postgres"
	SinkRedis    = "redis"
)

type Config struct {
	// Enabled determines if activity records are persisted at all.
	Enabled bool `envconfig:"AUDIT_ENABLED" default:"true" yaml:"enabled"`

	// Sinks lists the destinations every record is written to.
	Sinks []string `envconfig:"AUDIT_SINKS" default:"stdout" yaml:"sinks" validate:"dive,oneof=stdout kafka stream postgres redis"`

	// BufferSize is the size of the stdout writer channel.
	BufferSize int `envconfig:"AUDIT_BUFFER_SIZE" default:"1024" yaml:"buffer_size" validate:"gte=0"`

	// BlockOnFull determines the stdout writer strategy when the buffer is full.
	// TRUE: wait for room (bounded by the request context).
	// FALSE: reject the record immediately so the activity logger's
	// suspension policy decides what happens to the operation.
	BlockOnFull bool `envconfig:"AUDIT_BLOCK_ON_FULL" default:"false" yaml:"block_on_full"`

	KafkaBrokers []string `envconfig:"AUDIT_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaTopic   string   `envconfig:"AUDIT_KAFKA_TOPIC" default:"system.audit.activity" yaml:"kafka_topic"`

	RedisStream       string `envconfig:"AUDIT_REDIS_STREAM" default:"audit:activity" yaml:"redis_stream"`
	RedisStreamMaxLen int64  `envconfig:"AUDIT_REDIS_STREAM_MAXLEN" default:"100000" yaml:"redis_stream_maxlen"`

	// WatchedFields and PasswordFields are JSON pointers into managed objects.
	WatchedFields  []string `envconfig:"AUDIT_WATCHED_FIELDS" yaml:"watched_fields"`
	PasswordFields []string `envconfig:"AUDIT_PASSWORD_FIELDS" default:"/password" yaml:"password_fields"`
}

// Uses reports whether sink is configured.
func (c Config) Uses(sink string) bool {
	return slices.Contains(c.Sinks, sink)
}
