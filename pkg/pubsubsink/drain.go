package pubsubsink

import (
	"context"
	"time"
)

// Stop stops accepting records, flushes the publisher and waits up to
// Config.PublishTimeout for outstanding publishes. Submissions still unresolved at the
// deadline are abandoned and their results ignored. Stop is safe to call more than once.
func (t *SinkTask) Stop() {
	t.stopOnce.Do(func() {
		t.logger.Info().Msg("Stopping PubsubSinkTask")

		t.submitMu.Lock()
		t.state.Store(int32(StateDraining))
		t.submitMu.Unlock()

		if t.publisher != nil {
			t.drain(t.cfg.PublishTimeout)
		}

		t.state.Store(int32(StateStopped))
		t.logger.Info().Msg("PubsubSinkTask stopped")
	})
}

func (t *SinkTask) drain(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := t.publisher.Stop(ctx); err != nil {
		t.logger.Error().Err(err).Msg("Error stopping publisher")
	}

	done := make(chan struct{})
	go func() {
		t.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info().Msg("All outstanding publishes resolved")
	case <-ctx.Done():
		abandoned := t.inflight.Load()
		t.metrics.addAbandoned(abandoned)
		t.logger.Warn().
			Int64("abandoned", abandoned).
			Dur("timeout", timeout).
			Msg("Drain timeout elapsed with publishes outstanding, abandoning them")
	}
}
