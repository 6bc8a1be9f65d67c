package pubsubsink_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/illmade-knight/go-kafkabridge/pkg/pubsubsink"
	"github.com/illmade-knight/go-kafkabridge/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
//  Test Helpers
// =============================================================================

func sanitizedTestName(t *testing.T) string {
	name := t.Name()
	reg := regexp.MustCompile(`[^a-zA-Z0-9-]+`)
	sanitized := reg.ReplaceAllString(name, "-")
	sanitized = regexp.MustCompile(`^-+|-+$`).ReplaceAllString(sanitized, "")
	if len(sanitized) > 20 {
		sanitized = sanitized[:20]
	}
	return sanitized
}

func setupTestPubsub(t *testing.T, projectID, topicID string, opts ...pstest.ServerReactorOption) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer(opts...)
	t.Cleanup(func() { srv.Close() })

	clientOpts := []option.ClientOption{
		option.WithEndpoint(srv.Addr),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		option.WithoutAuthentication(),
	}

	client, err := pubsub.NewClient(ctx, projectID, clientOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	_, err = client.CreateTopic(ctx, topicID)
	require.NoError(t, err)

	return srv, client
}

func testSinkConfig(t *testing.T) pubsubsink.Config {
	suffix := fmt.Sprintf("%s-%d", sanitizedTestName(t), time.Now().UnixNano())
	cfg := pubsubsink.DefaultConfig()
	cfg.ProjectID = "test-sink-project-" + suffix
	cfg.TopicID = "test-sink-topic-" + suffix
	cfg.PublishTimeout = 10 * time.Second
	return cfg
}

func clientFactory(client *pubsub.Client) pubsubsink.PublisherFactory {
	return func(_ context.Context, cfg pubsubsink.Config, logger zerolog.Logger) (pubsubsink.MessagePublisher, error) {
		return pubsubsink.NewGooglePubsubPublisherWithClient(client, cfg, logger)
	}
}

// =============================================================================
//  Test Cases for GooglePubsubPublisher
// =============================================================================

func TestGooglePubsubPublisher_SinkTaskEndToEnd(t *testing.T) {
	cfg := testSinkConfig(t)
	srv, client := setupTestPubsub(t, cfg.ProjectID, cfg.TopicID)

	task := pubsubsink.NewSinkTask(clientFactory(client), zerolog.Nop(), pubsubsink.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, task.Start(context.Background(), cfg))

	records := []types.IncomingRecord{
		{Topic: "events", Partition: 2, Offset: 100, Key: "u1", Value: "first", Timestamp: types.Millis(1700000000000)},
		{Topic: "events", Partition: 2, Offset: 101, Key: "u2", Value: []byte("second")},
		{Topic: "events", Partition: 2, Offset: 102, Key: "u1", Value: "third"},
	}
	require.NoError(t, task.Put(context.Background(), records))
	task.Stop()

	msgs := srv.Messages()
	require.Len(t, msgs, 3)

	byOffset := make(map[string]*pstest.Message)
	for _, m := range msgs {
		byOffset[m.Attributes[pubsubsink.AttrOffset]] = m
	}
	require.Contains(t, byOffset, "100")
	require.Contains(t, byOffset, "101")
	require.Contains(t, byOffset, "102")

	assert.Equal(t, "first", string(byOffset["100"].Data))
	assert.Equal(t, "u1", byOffset["100"].OrderingKey)
	assert.Equal(t, "1700000000000", byOffset["100"].Attributes[pubsubsink.AttrTimestamp])
	assert.Equal(t, "second", string(byOffset["101"].Data))
	assert.Equal(t, "u2", byOffset["101"].OrderingKey)
	assert.Equal(t, "u1", byOffset["102"].OrderingKey)
	for _, m := range msgs {
		assert.Equal(t, "events", m.Attributes[pubsubsink.AttrTopic])
		assert.Equal(t, "2", m.Attributes[pubsubsink.AttrPartition])
	}

	// Messages sharing an ordering key reach the server in submission order.
	var u1Offsets []string
	for _, m := range msgs {
		if m.OrderingKey == "u1" {
			u1Offsets = append(u1Offsets, m.Attributes[pubsubsink.AttrOffset])
		}
	}
	assert.Equal(t, []string{"100", "102"}, u1Offsets)
	assert.Equal(t, int64(0), task.ConsecutiveFailures())
}

func TestGooglePubsubPublisher_BinaryKeyIsPublished(t *testing.T) {
	cfg := testSinkConfig(t)
	srv, client := setupTestPubsub(t, cfg.ProjectID, cfg.TopicID)

	task := pubsubsink.NewSinkTask(clientFactory(client), zerolog.Nop(), pubsubsink.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, task.Start(context.Background(), cfg))

	require.NoError(t, task.Put(context.Background(), []types.IncomingRecord{
		{Topic: "events", Partition: 0, Offset: 1, Key: []byte{0xff, 0xfe}, Value: "first"},
		{Topic: "events", Partition: 0, Offset: 2, Key: []byte{0xff, 0xfe}, Value: "second"},
	}))
	task.Stop()

	msgs := srv.Messages()
	require.Len(t, msgs, 2, "keys that are not valid UTF-8 must not fail at publish time")
	for _, m := range msgs {
		assert.Equal(t, "//4=", m.OrderingKey)
	}
	assert.Equal(t, int64(0), task.ConsecutiveFailures())
}

func TestGooglePubsubPublisher_AsyncFailure(t *testing.T) {
	cfg := testSinkConfig(t)
	cfg.OrderingKeySource = ""
	_, client := setupTestPubsub(t, cfg.ProjectID, cfg.TopicID,
		pstest.WithErrorInjection("Publish", codes.PermissionDenied, "publish denied"))

	task := pubsubsink.NewSinkTask(clientFactory(client), zerolog.Nop(), pubsubsink.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, task.Start(context.Background(), cfg))
	t.Cleanup(task.Stop)

	require.NoError(t, task.Put(context.Background(), []types.IncomingRecord{
		{Topic: "events", Partition: 0, Offset: 1, Value: "denied"},
	}))

	assert.Eventually(t, func() bool {
		return task.ConsecutiveFailures() == 1
	}, 10*time.Second, 20*time.Millisecond, "async failure should be folded into the error tracker")
}

func TestGooglePubsubPublisher_PublishAfterStop(t *testing.T) {
	cfg := testSinkConfig(t)
	_, client := setupTestPubsub(t, cfg.ProjectID, cfg.TopicID)

	publisher, err := pubsubsink.NewGooglePubsubPublisherWithClient(client, cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, publisher.Stop(ctx))

	_, err = publisher.Publish(ctx, &types.OutboundMessage{
		Data:       []byte("late"),
		Attributes: map[string]string{pubsubsink.AttrTopic: "events"},
	})
	assert.Error(t, err, "publishing on a stopped topic fails at submission")
}

func TestGooglePubsubPublisher_InitializationErrors(t *testing.T) {
	_, err := pubsubsink.NewGooglePubsubPublisherWithClient(nil, pubsubsink.DefaultConfig(), zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pubsub client cannot be nil")

	cfg := testSinkConfig(t)
	_, client := setupTestPubsub(t, cfg.ProjectID, cfg.TopicID)
	publisher, err := pubsubsink.NewGooglePubsubPublisherWithClient(client, cfg, zerolog.Nop())
	require.NoError(t, err)
	_, err = publisher.Publish(context.Background(), nil)
	assert.Error(t, err)
	require.NoError(t, publisher.Stop(context.Background()))
}

func TestClientOptions(t *testing.T) {
	cfg := pubsubsink.DefaultConfig()
	assert.Len(t, pubsubsink.ClientOptions(cfg, zerolog.Nop()), 1, "only scopes with ADC")

	cfg.WorkloadCredentialConfig = "/etc/wif/config.json"
	cfg.Endpoint = "pubsub.europe-west1.rep.googleapis.com:443"
	assert.Len(t, pubsubsink.ClientOptions(cfg, zerolog.Nop()), 3)

	cfg.WorkloadIdentityEnabled = false
	cfg.WorkloadCredentialConfig = ""
	cfg.CredentialsFile = "/etc/sa/key.json"
	cfg.Endpoint = ""
	assert.Len(t, pubsubsink.ClientOptions(cfg, zerolog.Nop()), 2)
}
