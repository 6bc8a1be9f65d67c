package sampler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
)

// CapturedMessage is a single Pub/Sub message as written to the output file.
type CapturedMessage struct {
	ReceivedAt  time.Time         `json:"received_at"`
	MessageID   string            `json:"message_id"`
	OrderingKey string            `json:"ordering_key,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Payload     json.RawMessage   `json:"payload"`
}

// Sampler captures the first messages delivered to a subscription, typically the one
// attached to the bridge output topic.
type Sampler struct {
	sub         *pubsub.Subscription
	logger      zerolog.Logger
	numMessages int

	mu       sync.Mutex
	messages []CapturedMessage
}

func NewSampler(client *pubsub.Client, subscriptionID string, numMessages int, logger zerolog.Logger) *Sampler {
	return &Sampler{
		sub:         client.Subscription(subscriptionID),
		logger:      logger.With().Str("component", "PubsubSampler").Str("subscription", subscriptionID).Logger(),
		numMessages: numMessages,
		messages:    make([]CapturedMessage, 0, numMessages),
	}
}

// Run receives until numMessages are captured or ctx ends.
func (s *Sampler) Run(ctx context.Context) error {
	s.logger.Info().Int("target_count", s.numMessages).Msg("Starting sampler")
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := s.sub.Receive(runCtx, func(_ context.Context, msg *pubsub.Message) {
		msg.Ack()
		if s.capture(msg) {
			s.logger.Info().Msg("Target message count reached")
			cancel()
		}
	})
	if err != nil {
		return fmt.Errorf("receive from subscription: %w", err)
	}
	s.logger.Info().Int("captured_count", len(s.Messages())).Msg("Sampler run finished")
	return nil
}

// capture records msg and reports whether the target count has been reached.
func (s *Sampler) capture(msg *pubsub.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) >= s.numMessages {
		return true
	}
	s.messages = append(s.messages, CapturedMessage{
		ReceivedAt:  time.Now().UTC(),
		MessageID:   msg.ID,
		OrderingKey: msg.OrderingKey,
		Attributes:  msg.Attributes,
		Payload:     prettyPayload(msg.Data),
	})
	s.logger.Debug().Int("captured_count", len(s.messages)).Msg("Message captured")
	return len(s.messages) >= s.numMessages
}

// Messages returns a copy of the captured messages.
func (s *Sampler) Messages() []CapturedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CapturedMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// prettyPayload indents JSON payloads and quotes anything else as a JSON string.
func prettyPayload(data []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err == nil {
		return buf.Bytes()
	}
	quoted, _ := sonic.Marshal(string(data))
	return quoted
}

// WriteMessagesToFile saves the messages as a JSON array.
func WriteMessagesToFile(filename string, messages []CapturedMessage) error {
	data, err := sonic.ConfigStd.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode messages to JSON: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("could not write file: %w", err)
	}
	return nil
}
