package loadgen

import (
	"context"
)

// PayloadGenerator creates the record value for one tick of a producer.
type PayloadGenerator interface {
	GeneratePayload(producer *Producer) ([]byte, error)
}

// Client publishes generated records to a broker.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	// Publish generates the producer's next payload and sends it.
	Publish(ctx context.Context, producer *Producer) error
}
