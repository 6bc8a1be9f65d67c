package pubsubsink

import (
	"errors"
	"fmt"
)

var (
	// ErrThresholdExceeded is wrapped by the RetriableError returned from Put once
	// consecutive publish failures pass the configured threshold.
	ErrThresholdExceeded = errors.New("too many errors publishing to pubsub")
	// ErrTaskStopped is returned by Put once Stop has been called.
	ErrTaskStopped = errors.New("sink task is stopped")
	// ErrTaskNotStarted is returned by Put before a successful Start.
	ErrTaskNotStarted = errors.New("sink task has not been started")
	// ErrConcurrentPut is returned when Put is called while another Put is running on the same task.
	ErrConcurrentPut = errors.New("put called concurrently on the same sink task")
)

// ConfigurationError reports a missing or malformed configuration option.
// It is fatal at start and never retried.
type ConfigurationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration %q: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid configuration %q: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ConversionError reports a record that could not be turned into a message.
type ConversionError struct {
	Topic     string
	Partition int32
	Offset    int64
	Err       error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("failed to convert record %s/%d@%d: %v", e.Topic, e.Partition, e.Offset, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// PublishFailure reports a submission rejected by the publisher.
type PublishFailure struct {
	Topic     string
	Partition int32
	Offset    int64
	Err       error
}

func (e *PublishFailure) Error() string {
	return fmt.Sprintf("failed to publish record %s/%d@%d: %v", e.Topic, e.Partition, e.Offset, e.Err)
}

func (e *PublishFailure) Unwrap() error { return e.Err }

// RetriableError signals that the caller should redeliver the batch.
// Remaining is the number of records, starting with the failed one, that were not submitted.
type RetriableError struct {
	Err       error
	Remaining int
}

func (e *RetriableError) Error() string {
	return fmt.Sprintf("retriable: %v (%d records not submitted)", e.Err, e.Remaining)
}

func (e *RetriableError) Unwrap() error { return e.Err }

// IsRetriable reports whether err asks the caller to redeliver the batch.
func IsRetriable(err error) bool {
	var re *RetriableError
	return errors.As(err, &re)
}
