package kafkasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/illmade-knight/go-kafkabridge/pkg/pubsubsink"
	"github.com/illmade-knight/go-kafkabridge/pkg/types"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Runner polls batches from Kafka and delivers them to a sink task.
//
// A batch rejected with a retriable error is redelivered, from the first record that was
// not submitted, with exponential backoff. Offsets are committed once the whole batch
// has been accepted by the task.
type Runner struct {
	client  Client
	task    pubsubsink.Task
	decoder *Decoder
	cfg     Config
	logger  zerolog.Logger
}

// NewRunner creates a runner. The runner owns task from here on and stops it when Run returns.
func NewRunner(client Client, task pubsubsink.Task, cfg Config, logger zerolog.Logger) (*Runner, error) {
	if client == nil {
		return nil, errors.New("kafka client cannot be nil")
	}
	if task == nil {
		return nil, errors.New("sink task cannot be nil")
	}
	decoder, err := NewDecoder(cfg.ValueFormat, cfg.KeyFormat, logger)
	if err != nil {
		return nil, err
	}
	return &Runner{
		client:  client,
		task:    task,
		decoder: decoder,
		cfg:     cfg,
		logger:  logger.With().Str("component", "KafkaRunner").Logger(),
	}, nil
}

// Run polls until ctx is cancelled or the client is closed. It returns an error only
// when a batch could not be delivered.
func (r *Runner) Run(ctx context.Context) error {
	defer r.task.Stop()
	r.logger.Info().Strs("topics", r.cfg.Topics).Str("group_id", r.cfg.GroupID).Msg("Starting Kafka runner")

	for {
		if ctx.Err() != nil {
			r.logger.Info().Msg("Context cancelled, Kafka runner stopping")
			return nil
		}

		fetches := r.client.PollRecords(ctx, r.cfg.MaxPollRecords)
		if fetches.IsClientClosed() {
			r.logger.Info().Msg("Kafka client closed, runner stopping")
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			r.logger.Error().Err(err).Str("topic", topic).Int32("partition", partition).Msg("Fetch error")
		})

		records := fetches.Records()
		if len(records) == 0 {
			r.client.AllowRebalance()
			continue
		}

		err := r.deliver(ctx, records)
		r.client.AllowRebalance()
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info().Msg("Context cancelled while delivering batch, uncommitted records will be redelivered")
				return nil
			}
			return err
		}
	}
}

func (r *Runner) deliver(ctx context.Context, records []*kgo.Record) error {
	batch := r.decoder.DecodeAll(records)
	pending := batch
	attempt := 0

	operation := func() (struct{}, error) {
		attempt++
		err := r.task.Put(ctx, pending)
		if err == nil {
			return struct{}{}, nil
		}
		var re *pubsubsink.RetriableError
		if !errors.As(err, &re) {
			return struct{}{}, backoff.Permanent(err)
		}
		if re.Remaining > 0 && re.Remaining <= len(pending) {
			pending = pending[len(pending)-re.Remaining:]
		}
		r.logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("remaining", len(pending)).
			Bool("threshold_exceeded", errors.Is(err, pubsubsink.ErrThresholdExceeded)).
			Msg("Batch delivery failed, redelivering")
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.cfg.MaxRetries),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		return fmt.Errorf("delivering batch of %d records: %w", len(batch), err)
	}

	if err := r.client.CommitRecords(ctx, records...); err != nil {
		r.logger.Error().Err(err).Int("count", len(records)).Msg("Failed to commit offsets, records may be redelivered")
	}
	return r.task.Flush(ctx, NextOffsets(batch))
}

func (r *Runner) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if r.cfg.RetryInitialInterval > 0 {
		b.InitialInterval = r.cfg.RetryInitialInterval
	}
	if r.cfg.RetryMaxInterval > 0 {
		b.MaxInterval = r.cfg.RetryMaxInterval
	}
	return b
}

// NextOffsets returns, per partition, the offset after the last record of the batch.
func NextOffsets(batch []types.IncomingRecord) map[types.TopicPartition]int64 {
	offsets := make(map[types.TopicPartition]int64)
	for _, rec := range batch {
		tp := rec.TopicPartition()
		if next := rec.Offset + 1; next > offsets[tp] {
			offsets[tp] = next
		}
	}
	return offsets
}
