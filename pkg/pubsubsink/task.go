package pubsubsink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-kafkabridge/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const taskVersion = "1.0.0"

// Attribute keys attached to every outbound message.
const (
	AttrTopic     = "kafka.topic"
	AttrPartition = "kafka.partition"
	AttrOffset    = "kafka.offset"
	AttrTimestamp = "kafka.timestamp"
)

// Task is the lifecycle a host runtime drives.
type Task interface {
	Start(ctx context.Context, cfg Config) error
	Put(ctx context.Context, records []types.IncomingRecord) error
	Flush(ctx context.Context, offsets map[types.TopicPartition]int64) error
	Stop()
}

// State is the lifecycle state of a SinkTask.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// SinkTaskOption customises a SinkTask.
type SinkTaskOption func(*SinkTask)

// WithRegisterer registers the task metrics with r instead of the default registry.
func WithRegisterer(r prometheus.Registerer) SinkTaskOption {
	return func(t *SinkTask) {
		t.registerer = r
	}
}

// SinkTask converts batches of records into Pub/Sub messages and publishes them.
//
// Put runs on the caller's goroutine and never waits for publish results; completion
// handlers run on their own goroutines and feed the shared ErrorTracker.
type SinkTask struct {
	newPublisher PublisherFactory
	registerer   prometheus.Registerer
	taskID       string
	logger       zerolog.Logger

	cfg       Config
	publisher MessagePublisher
	tracker   *ErrorTracker
	metrics   *Metrics

	state   atomic.Int32
	started atomic.Bool
	// submitMu is held for reading around each submission and for writing when
	// Stop moves the task to draining, so nothing is submitted after that point.
	submitMu sync.RWMutex
	pending  sync.WaitGroup
	inflight atomic.Int64
	stopOnce sync.Once
}

var _ Task = (*SinkTask)(nil)

// NewSinkTask creates an idle task. The publisher is built by newPublisher during Start.
func NewSinkTask(newPublisher PublisherFactory, logger zerolog.Logger, opts ...SinkTaskOption) *SinkTask {
	taskID := uuid.NewString()
	t := &SinkTask{
		newPublisher: newPublisher,
		taskID:       taskID,
		logger:       logger.With().Str("component", "PubsubSinkTask").Str("task_id", taskID).Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the task instance id used in logs and metric labels.
func (t *SinkTask) ID() string {
	return t.taskID
}

// Version reports the task implementation version.
func (t *SinkTask) Version() string {
	return taskVersion
}

// State returns the current lifecycle state.
func (t *SinkTask) State() State {
	return State(t.state.Load())
}

// ConsecutiveFailures returns the current value of the error tracker.
func (t *SinkTask) ConsecutiveFailures() int64 {
	if t.tracker == nil {
		return 0
	}
	return t.tracker.Value()
}

// Start validates cfg and builds the publisher. A configuration problem is returned
// as a *ConfigurationError before the publisher factory is called.
func (t *SinkTask) Start(ctx context.Context, cfg Config) error {
	t.logger.Info().Msg("Starting PubsubSinkTask")
	if t.started.Load() {
		return errors.New("sink task already started")
	}
	if t.State() != StateIdle {
		return ErrTaskStopped
	}
	if err := cfg.Validate(); err != nil {
		t.logger.Error().Err(err).Msg("Invalid sink configuration")
		return err
	}
	if t.newPublisher == nil {
		return errors.New("publisher factory cannot be nil")
	}

	publisher, err := t.newPublisher(ctx, cfg, t.logger)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to start PubsubSinkTask")
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	t.cfg = cfg
	t.publisher = publisher
	t.metrics = NewMetrics(t.registerer, t.taskID)
	t.tracker = NewErrorTracker(t.metrics)
	t.logger = t.logger.With().Str("pubsub_topic", cfg.TopicID).Logger()
	t.started.Store(true)

	t.logger.Info().
		Str("ordering_key_source", cfg.OrderingKeySource).
		Str("message_body_field", cfg.MessageBodyField).
		Int64("error_threshold", cfg.ErrorThreshold).
		Msg("PubsubSinkTask started successfully")
	return nil
}

// Put converts and submits every record in order. It stops at the first record that
// fails conversion or submission and returns a *RetriableError; once the consecutive
// failure count exceeds the threshold that error wraps ErrThresholdExceeded.
func (t *SinkTask) Put(ctx context.Context, records []types.IncomingRecord) error {
	if len(records) == 0 {
		return nil
	}
	if !t.started.Load() {
		return ErrTaskNotStarted
	}
	if !t.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		if t.State() == StateRunning {
			return ErrConcurrentPut
		}
		return ErrTaskStopped
	}
	defer t.state.CompareAndSwap(int32(StateRunning), int32(StateIdle))

	t.logger.Debug().Int("count", len(records)).Msg("Received records")

	for i, rec := range records {
		err := t.submit(ctx, rec)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrTaskStopped) {
			return err
		}

		failures := t.tracker.OnFailure()
		t.logger.Error().Err(err).
			Str("topic", rec.Topic).
			Int32("partition", rec.Partition).
			Int64("offset", rec.Offset).
			Int64("consecutive_failures", failures).
			Msg("Error publishing record to Pub/Sub")

		remaining := len(records) - i
		if failures > t.cfg.ErrorThreshold {
			t.metrics.incThresholdExceeded()
			return &RetriableError{Err: fmt.Errorf("%w: %w", ErrThresholdExceeded, err), Remaining: remaining}
		}
		return &RetriableError{Err: err, Remaining: remaining}
	}
	return nil
}

// Flush is a hook for the host's offset commit; the publisher does its own buffering.
func (t *SinkTask) Flush(_ context.Context, offsets map[types.TopicPartition]int64) error {
	t.logger.Debug().Int("partitions", len(offsets)).Int64("inflight", t.inflight.Load()).Msg("Flushing records")
	return nil
}

// BuildMessage converts one record into an OutboundMessage using the task configuration.
func (t *SinkTask) BuildMessage(rec types.IncomingRecord) (*types.OutboundMessage, error) {
	return BuildMessage(rec, t.cfg, t.logger)
}

// BuildMessage converts one record into an OutboundMessage.
func BuildMessage(rec types.IncomingRecord, cfg Config, logger zerolog.Logger) (*types.OutboundMessage, error) {
	data, err := ConvertPayload(rec, cfg.MessageBodyField)
	if err != nil {
		return nil, err
	}

	attrs := map[string]string{
		AttrTopic:     rec.Topic,
		AttrPartition: strconv.FormatInt(int64(rec.Partition), 10),
		AttrOffset:    strconv.FormatInt(rec.Offset, 10),
	}
	if rec.Timestamp != nil {
		attrs[AttrTimestamp] = strconv.FormatInt(*rec.Timestamp, 10)
	}

	return &types.OutboundMessage{
		Data:        data,
		OrderingKey: ResolveOrderingKey(rec, cfg.OrderingKeySource, logger),
		Attributes:  attrs,
	}, nil
}

func (t *SinkTask) submit(ctx context.Context, rec types.IncomingRecord) error {
	msg, err := t.BuildMessage(rec)
	if err != nil {
		t.metrics.incFailure("convert")
		return err
	}

	t.submitMu.RLock()
	defer t.submitMu.RUnlock()
	if t.State() != StateRunning {
		return ErrTaskStopped
	}

	res, err := t.publisher.Publish(ctx, msg)
	if err != nil {
		t.metrics.incFailure("submit")
		return &PublishFailure{Topic: rec.Topic, Partition: rec.Partition, Offset: rec.Offset, Err: err}
	}

	t.pending.Add(1)
	t.inflight.Add(1)
	t.metrics.addInflight(1)
	go t.awaitResult(rec, res)
	return nil
}

// awaitResult is the completion handler for one submission.
func (t *SinkTask) awaitResult(rec types.IncomingRecord, res PublishResult) {
	defer func() {
		t.inflight.Add(-1)
		t.metrics.addInflight(-1)
		t.pending.Done()
	}()

	msgID, err := res.Get(context.Background())
	if t.State() == StateStopped {
		return
	}
	if err != nil {
		t.metrics.incFailure("async")
		failures := t.tracker.OnFailure()
		t.logger.Error().Err(err).
			Str("topic", rec.Topic).
			Int32("partition", rec.Partition).
			Int64("offset", rec.Offset).
			Int64("consecutive_failures", failures).
			Msg("Error publishing message")
		return
	}
	t.tracker.OnSuccess()
	t.metrics.incPublished()
	t.logger.Debug().Str("message_id", msgID).Int64("offset", rec.Offset).Msg("Published message")
}
