package pubsubsink

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestErrorTracker(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry(), "task-1")
	tracker := NewErrorTracker(metrics)

	assert.Equal(t, int64(0), tracker.Value())
	assert.Equal(t, int64(1), tracker.OnFailure())
	assert.Equal(t, int64(2), tracker.OnFailure())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.consecutiveFailures))

	tracker.OnSuccess()
	assert.Equal(t, int64(0), tracker.Value())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.consecutiveFailures))
}

func TestErrorTracker_Concurrent(t *testing.T) {
	tracker := NewErrorTracker(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.OnFailure()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5000), tracker.Value())
}

func TestMetrics_TasksSharingRegistryAreIndependent(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewErrorTracker(NewMetrics(registry, "task-a"))
	second := NewErrorTracker(NewMetrics(registry, "task-b"))

	first.OnFailure()
	first.OnFailure()
	second.OnFailure()
	second.OnSuccess()

	assert.Equal(t, float64(2), testutil.ToFloat64(first.metrics.consecutiveFailures))
	assert.Equal(t, float64(0), testutil.ToFloat64(second.metrics.consecutiveFailures))
	assert.Equal(t, 2, testutil.CollectAndCount(registry, "kafkabridge_sink_consecutive_failures"))

	again := NewMetrics(registry, "task-a")
	assert.Equal(t, float64(2), testutil.ToFloat64(again.consecutiveFailures), "same task id reuses its collectors")
}
