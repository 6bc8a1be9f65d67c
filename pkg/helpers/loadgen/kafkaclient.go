package loadgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaClient implements Client with a franz-go producer.
type KafkaClient struct {
	brokers []string
	topic   string
	client  *kgo.Client
	logger  zerolog.Logger
}

func NewKafkaClient(brokers []string, topic string, logger zerolog.Logger) *KafkaClient {
	return &KafkaClient{
		brokers: brokers,
		topic:   topic,
		logger:  logger.With().Str("component", "KafkaLoadClient").Logger(),
	}
}

// Connect creates the producer and checks that a broker answers.
func (c *KafkaClient) Connect(ctx context.Context) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(c.brokers...),
		kgo.DefaultProduceTopic(c.topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return fmt.Errorf("ping kafka brokers %v: %w", c.brokers, err)
	}
	c.client = client
	c.logger.Info().Strs("brokers", c.brokers).Str("topic", c.topic).Msg("Connected to Kafka")
	return nil
}

func (c *KafkaClient) Disconnect() {
	if c.client == nil {
		return
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.client.Flush(flushCtx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to flush producer before closing")
	}
	c.client.Close()
	c.client = nil
}

// Publish produces one record keyed by the producer key and waits for the broker ack.
func (c *KafkaClient) Publish(ctx context.Context, p *Producer) error {
	if c.client == nil {
		return errors.New("kafka client is not connected")
	}
	payload, err := p.PayloadGenerator.GeneratePayload(p)
	if err != nil {
		return fmt.Errorf("failed to generate payload for producer %s: %w", p.Key, err)
	}
	rec := &kgo.Record{Key: []byte(p.Key), Value: payload}
	if err := c.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce for key %s: %w", p.Key, err)
	}
	return nil
}

// JSONPayloadGenerator emits JSON objects with the producer key, a sequence
// number and a body field.
type JSONPayloadGenerator struct {
	BodyField string
	Body      string
}

type jsonPayload map[string]any

func (g JSONPayloadGenerator) GeneratePayload(p *Producer) ([]byte, error) {
	bodyField := g.BodyField
	if bodyField == "" {
		bodyField = "body"
	}
	seq := p.NextSeq()
	body := g.Body
	if body == "" {
		body = fmt.Sprintf("%s-%d", p.Key, seq)
	}
	return sonic.Marshal(jsonPayload{
		"key":     p.Key,
		"seq":     seq,
		"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
		bodyField: body,
	})
}
