package kafkasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Record value and key formats.
const (
	FormatBytes  = "bytes"
	FormatString = "string"
	FormatJSON   = "json"
)

// Config holds the Kafka consumer settings of the bridge.
type Config struct {
	Brokers        []string `yaml:"brokers"`
	GroupID        string   `yaml:"group_id"`
	Topics         []string `yaml:"topics"`
	MaxPollRecords int      `yaml:"max_poll_records"`
	ValueFormat    string   `yaml:"value_format"`
	KeyFormat      string   `yaml:"key_format"`

	// MaxRetries bounds redelivery of a failed batch; 0 retries until the context ends.
	MaxRetries           uint          `yaml:"max_retries"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval"`
	SessionTimeout       time.Duration `yaml:"session_timeout"`
}

// DefaultConfig returns the consumer defaults.
func DefaultConfig() Config {
	return Config{
		Brokers:              []string{"localhost:9092"},
		GroupID:              "pubsub-bridge",
		MaxPollRecords:       500,
		ValueFormat:          FormatBytes,
		KeyFormat:            FormatString,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     30 * time.Second,
		SessionTimeout:       45 * time.Second,
	}
}

// Validate checks the consumer settings.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if c.GroupID == "" {
		return errors.New("kafka: group_id is required")
	}
	if len(c.Topics) == 0 {
		return errors.New("kafka: at least one topic is required")
	}
	if c.MaxPollRecords <= 0 {
		return fmt.Errorf("kafka: max_poll_records must be positive, got %d", c.MaxPollRecords)
	}
	if err := checkFormat(c.ValueFormat, FormatBytes, FormatString, FormatJSON); err != nil {
		return fmt.Errorf("kafka: value_format: %w", err)
	}
	if err := checkFormat(c.KeyFormat, FormatBytes, FormatString); err != nil {
		return fmt.Errorf("kafka: key_format: %w", err)
	}
	return nil
}

func checkFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q, expected one of %v", format, allowed)
}

// Client is the part of *kgo.Client the runner needs.
type Client interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	AllowRebalance()
	Close()
}

var _ Client = (*kgo.Client)(nil)

// NewKgoClient creates a group consumer with manual commits. Rebalances are blocked
// while a polled batch is being delivered.
func NewKgoClient(cfg Config, logger zerolog.Logger) (*kgo.Client, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.WithLogger(newKgoLogger(logger)),
	}
	if cfg.SessionTimeout > 0 {
		opts = append(opts, kgo.SessionTimeout(cfg.SessionTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}
	return client, nil
}

var _ kgo.Logger = (*kgoLogger)(nil)

// kgoLogger routes franz-go client logs to zerolog.
type kgoLogger struct {
	l zerolog.Logger
}

func newKgoLogger(l zerolog.Logger) *kgoLogger {
	return &kgoLogger{l: l.With().Str("client", "kgo").Logger()}
}

// Level reports the stricter of the global zerolog level and the logger's own level,
// so franz-go does not build log lines zerolog would discard.
func (kl *kgoLogger) Level() kgo.LogLevel {
	level := kl.l.GetLevel()
	if global := zerolog.GlobalLevel(); global > level {
		level = global
	}
	switch level {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return kgo.LogLevelDebug
	case zerolog.InfoLevel:
		return kgo.LogLevelInfo
	case zerolog.WarnLevel:
		return kgo.LogLevelWarn
	case zerolog.Disabled:
		return kgo.LogLevelNone
	default:
		return kgo.LogLevelError
	}
}

func (kl *kgoLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	var ev *zerolog.Event
	switch level {
	case kgo.LogLevelDebug:
		ev = kl.l.Debug()
	case kgo.LogLevelInfo:
		ev = kl.l.Info()
	case kgo.LogLevelWarn:
		ev = kl.l.Warn()
	case kgo.LogLevelError:
		ev = kl.l.Error()
	default:
		return
	}
	ev.Fields(keyvals).Msg(msg)
}
