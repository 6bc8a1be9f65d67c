package pubsubsink

import (
	"sync/atomic"
)

// ErrorTracker counts consecutive publish failures for one task.
// It is safe for concurrent use by Put and by completion handlers.
type ErrorTracker struct {
	count   atomic.Int64
	metrics *Metrics
}

// NewErrorTracker creates a tracker. metrics may be nil.
func NewErrorTracker(metrics *Metrics) *ErrorTracker {
	return &ErrorTracker{metrics: metrics}
}

// OnSuccess resets the counter.
func (t *ErrorTracker) OnSuccess() {
	t.count.Store(0)
	t.metrics.setConsecutiveFailures(0)
}

// OnFailure increments the counter and returns the new value.
func (t *ErrorTracker) OnFailure() int64 {
	n := t.count.Add(1)
	t.metrics.setConsecutiveFailures(n)
	return n
}

// Value returns the current number of consecutive failures.
func (t *ErrorTracker) Value() int64 {
	return t.count.Load()
}
