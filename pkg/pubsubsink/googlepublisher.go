package pubsubsink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-kafkabridge/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// --- Google Cloud Pub/Sub Publisher Implementation ---

// GetDefaultPublishSettings returns the publish settings used for the bridge topic.
// CountThreshold is overridden by Config.BatchSize.
func GetDefaultPublishSettings() pubsub.PublishSettings {
	return pubsub.PublishSettings{
		DelayThreshold: 10 * time.Millisecond,
		CountThreshold: DefaultBatchSize,
		ByteThreshold:  1e6,
		NumGoroutines:  10,
		Timeout:        60 * time.Second,
	}
}

// ClientOptions builds the Pub/Sub client options for cfg.
// Workload identity federation takes precedence over a static credentials file; with
// neither, Application Default Credentials are used.
func ClientOptions(cfg Config, logger zerolog.Logger) []option.ClientOption {
	opts := []option.ClientOption{option.WithScopes(pubsub.ScopePubSub)}

	switch {
	case cfg.WorkloadIdentityEnabled && cfg.WorkloadCredentialConfig != "":
		logger.Info().Str("credential_config", cfg.WorkloadCredentialConfig).Msg("Using workload identity federation credentials")
		opts = append(opts, option.WithCredentialsFile(cfg.WorkloadCredentialConfig))
	case cfg.CredentialsFile != "":
		logger.Warn().Str("credentials_file", cfg.CredentialsFile).
			Msg("Loading static credentials file; this option is deprecated, prefer workload identity")
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		logger.Warn().Msg("No credentials configured, using Application Default Credentials")
	}

	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	return opts
}

// GooglePubsubPublisher implements MessagePublisher for Google Cloud Pub/Sub.
type GooglePubsubPublisher struct {
	client    *pubsub.Client
	topic     *pubsub.Topic
	ownClient bool
	logger    zerolog.Logger
}

// NewGooglePubsubPublisher creates a client from cfg and a publisher that owns it.
// It matches PublisherFactory.
func NewGooglePubsubPublisher(ctx context.Context, cfg Config, logger zerolog.Logger) (MessagePublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, ClientOptions(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	p, err := NewGooglePubsubPublisherWithClient(client, cfg, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	p.ownClient = true
	return p, nil
}

// NewGooglePubsubPublisherWithClient creates a publisher on an injected client.
// The client is not closed by Stop unless the context passed to Stop expires.
func NewGooglePubsubPublisherWithClient(client *pubsub.Client, cfg Config, logger zerolog.Logger) (*GooglePubsubPublisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil for publisher")
	}

	topic := client.Topic(cfg.TopicID)
	settings := GetDefaultPublishSettings()
	topic.PublishSettings.DelayThreshold = settings.DelayThreshold
	topic.PublishSettings.CountThreshold = cfg.BatchSize
	topic.PublishSettings.ByteThreshold = settings.ByteThreshold
	topic.PublishSettings.NumGoroutines = settings.NumGoroutines
	topic.PublishSettings.Timeout = settings.Timeout
	topic.EnableMessageOrdering = cfg.OrderingKeySource != ""

	logger = logger.With().Str("component", "GooglePubsubPublisher").Str("topic_id", cfg.TopicID).Logger()
	logger.Info().
		Str("project_id", cfg.ProjectID).
		Int("batch_size", cfg.BatchSize).
		Bool("ordering", topic.EnableMessageOrdering).
		Msg("GooglePubsubPublisher initialized successfully")

	return &GooglePubsubPublisher{
		client: client,
		topic:  topic,
		logger: logger,
	}, nil
}

// Publish submits the message. A result that has already failed by the time Publish
// returns (stopped topic, paused ordering key, oversized message) is reported as an error.
func (p *GooglePubsubPublisher) Publish(ctx context.Context, msg *types.OutboundMessage) (PublishResult, error) {
	if msg == nil {
		return nil, errors.New("cannot publish a nil message")
	}

	res := &orderedResult{
		PublishResult: p.topic.Publish(ctx, &pubsub.Message{
			Data:        msg.Data,
			Attributes:  msg.Attributes,
			OrderingKey: msg.OrderingKey,
		}),
		topic:       p.topic,
		orderingKey: msg.OrderingKey,
	}

	select {
	case <-res.Ready():
		if _, err := res.Get(ctx); err != nil {
			return nil, err
		}
	default:
	}
	return res, nil
}

// Stop flushes outstanding messages. If ctx ends first the client is closed to abort them.
func (p *GooglePubsubPublisher) Stop(ctx context.Context) error {
	p.logger.Info().Msg("Stopping GooglePubsubPublisher...")

	stopped := make(chan struct{})
	go func() {
		p.topic.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		p.logger.Info().Msg("Pub/Sub topic stopped and flushed.")
	case <-ctx.Done():
		p.logger.Warn().Err(ctx.Err()).Msg("Timed out flushing Pub/Sub topic, closing client")
		p.closeClient()
		return ctx.Err()
	}

	if p.ownClient {
		p.closeClient()
	}
	return nil
}

func (p *GooglePubsubPublisher) closeClient() {
	if err := p.client.Close(); err != nil {
		p.logger.Error().Err(err).Msg("Error closing Pub/Sub client")
		return
	}
	p.logger.Info().Msg("Pub/Sub client closed.")
}

// orderedResult resumes a paused ordering key once its failure has been observed,
// so that a redelivered batch can be published again.
type orderedResult struct {
	*pubsub.PublishResult
	topic       *pubsub.Topic
	orderingKey string
	resumeOnce  sync.Once
}

func (r *orderedResult) Get(ctx context.Context) (string, error) {
	id, err := r.PublishResult.Get(ctx)
	if err != nil && r.orderingKey != "" && ctx.Err() == nil {
		r.resumeOnce.Do(func() { r.topic.ResumePublish(r.orderingKey) })
	}
	return id, err
}
