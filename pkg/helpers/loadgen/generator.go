package loadgen

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Producer is one simulated source of records. All of its records share Key, so
// they land on one partition and keep their relative order.
type Producer struct {
	Key              string
	MessageRate      float64
	PayloadGenerator PayloadGenerator

	seq atomic.Int64
}

// NextSeq returns the next sequence number of this producer, starting at 1.
func (p *Producer) NextSeq() int64 {
	return p.seq.Add(1)
}

// LoadGenerator drives a set of producers against a client for a fixed duration.
type LoadGenerator struct {
	client    Client
	producers []*Producer
	logger    zerolog.Logger
	sent      atomic.Int64
	failed    atomic.Int64
}

func NewLoadGenerator(client Client, producers []*Producer, logger zerolog.Logger) *LoadGenerator {
	return &LoadGenerator{
		client:    client,
		producers: producers,
		logger:    logger.With().Str("component", "LoadGenerator").Logger(),
	}
}

// Run publishes from every producer at its rate until duration elapses or ctx ends.
func (lg *LoadGenerator) Run(ctx context.Context, duration time.Duration) error {
	lg.logger.Info().Int("num_producers", len(lg.producers)).Dur("duration", duration).Msg("Starting load generator")

	if err := lg.client.Connect(ctx); err != nil {
		lg.logger.Error().Err(err).Msg("Failed to connect client")
		return err
	}
	defer lg.client.Disconnect()

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var wg sync.WaitGroup
	for _, p := range lg.producers {
		wg.Add(1)
		go func(p *Producer) {
			defer wg.Done()
			lg.runProducer(ctx, p)
		}(p)
	}

	wg.Wait()
	lg.logger.Info().Int64("sent", lg.sent.Load()).Int64("failed", lg.failed.Load()).Msg("Load generator finished")
	return nil
}

// Sent reports how many records were published successfully.
func (lg *LoadGenerator) Sent() int64 {
	return lg.sent.Load()
}

func (lg *LoadGenerator) runProducer(ctx context.Context, p *Producer) {
	if p.MessageRate <= 0 {
		lg.logger.Warn().Str("key", p.Key).Msg("Producer has a message rate of 0, no records will be sent")
		return
	}

	// Rates above one record per nanosecond are capped at that.
	interval := max(time.Duration(float64(time.Second)/p.MessageRate), time.Nanosecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lg.client.Publish(ctx, p); err != nil {
				if ctx.Err() != nil {
					return
				}
				lg.failed.Add(1)
				lg.logger.Error().Err(err).Str("key", p.Key).Msg("Failed to publish record")
				continue
			}
			lg.sent.Add(1)
		}
	}
}
