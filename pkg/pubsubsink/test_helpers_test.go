package pubsubsink

import (
	"context"
	"sync"

	"github.com/illmade-knight/go-kafkabridge/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

// ====================================================================================
// Mocks for the publisher abstraction, used by the task and drain tests.
// ====================================================================================

// mockResult is a PublishResult resolved by the test.
type mockResult struct {
	ready chan struct{}
	once  sync.Once
	id    string
	err   error
}

func newMockResult() *mockResult {
	return &mockResult{ready: make(chan struct{})}
}

func (r *mockResult) resolve(id string, err error) {
	r.once.Do(func() {
		r.id, r.err = id, err
		close(r.ready)
	})
}

func (r *mockResult) Ready() <-chan struct{} { return r.ready }

func (r *mockResult) Get(ctx context.Context) (string, error) {
	select {
	case <-r.ready:
		return r.id, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// MockPublisher records submitted messages. It is safe for concurrent use.
type MockPublisher struct {
	mu       sync.Mutex
	Messages []*types.OutboundMessage
	results  []*mockResult

	// PublishError makes Publish fail synchronously.
	PublishError error
	// AutoResolve resolves every result successfully as soon as it is submitted.
	AutoResolve bool
	// StopBlocks makes Stop wait for its context instead of flushing.
	StopBlocks bool
	stopCalled bool
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, msg *types.OutboundMessage) (PublishResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishError != nil {
		return nil, m.PublishError
	}
	m.Messages = append(m.Messages, msg)
	res := newMockResult()
	m.results = append(m.results, res)
	if m.AutoResolve {
		res.resolve("id", nil)
	}
	return res, nil
}

// Stop flushes by resolving every pending result successfully.
func (m *MockPublisher) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopCalled = true
	blocks := m.StopBlocks
	results := append([]*mockResult(nil), m.results...)
	m.mu.Unlock()

	if blocks {
		<-ctx.Done()
		return ctx.Err()
	}
	for _, r := range results {
		r.resolve("flushed", nil)
	}
	return nil
}

func (m *MockPublisher) setPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishError = err
}

func (m *MockPublisher) setAutoResolve(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AutoResolve = v
}

func (m *MockPublisher) GetMessages() []*types.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.OutboundMessage(nil), m.Messages...)
}

func (m *MockPublisher) result(i int) *mockResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[i]
}

func (m *MockPublisher) StopCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalled
}

// mockFactory is a testify mock for PublisherFactory.
type mockFactory struct {
	mock.Mock
}

func (f *mockFactory) New(ctx context.Context, cfg Config, logger zerolog.Logger) (MessagePublisher, error) {
	args := f.Called(ctx, cfg, logger)
	p, _ := args.Get(0).(MessagePublisher)
	return p, args.Error(1)
}

// fixedFactory returns a PublisherFactory that always hands out p.
func fixedFactory(p MessagePublisher) PublisherFactory {
	return func(context.Context, Config, zerolog.Logger) (MessagePublisher, error) {
		return p, nil
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ProjectID = "test-project"
	cfg.TopicID = "test-topic"
	return cfg
}

// failingStruct is a Struct whose field access always fails.
type failingStruct struct {
	err error
}

func (s failingStruct) Get(string) (any, error) {
	return nil, s.err
}
