package pubsubsink

import (
	"context"

	"github.com/illmade-knight/go-kafkabridge/pkg/types"
	"github.com/rs/zerolog"
)

// --- Publisher Abstraction ---

// PublishResult resolves exactly once to a message ID or a failure.
// *pubsub.PublishResult satisfies this interface.
type PublishResult interface {
	// Ready is closed once the result has resolved.
	Ready() <-chan struct{}
	// Get blocks until the result resolves or ctx is done.
	Get(ctx context.Context) (string, error)
}

// MessagePublisher submits messages asynchronously.
//
// Messages sharing a non-empty ordering key must reach the service in submission
// order relative to each other. Publish returns an error only when the failure is
// known at submission time.
type MessagePublisher interface {
	Publish(ctx context.Context, msg *types.OutboundMessage) (PublishResult, error)
	// Stop refuses new submissions and flushes outstanding ones. If ctx ends first
	// the publisher is torn down and ctx.Err() is returned.
	Stop(ctx context.Context) error
}

// PublisherFactory builds the publisher for a validated Config.
type PublisherFactory func(ctx context.Context, cfg Config, logger zerolog.Logger) (MessagePublisher, error)
