package emulators

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	pubsubEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
	pubsubEmulatorPort  = "8085"
)

// PubsubConfig describes the emulator and the resources created once it is up.
// Subscriptions maps a subscription ID to the topic it reads from.
type PubsubConfig struct {
	GCImageContainer
	Topics        []string
	Subscriptions map[string]string
}

// PubsubEmulator is a running emulator.
type PubsubEmulator struct {
	// Endpoint is host:port of the emulator gRPC API.
	Endpoint      string
	ClientOptions []option.ClientOption
}

func GetDefaultPubsubConfig(projectID string, topics []string, subscriptions map[string]string) PubsubConfig {
	return PubsubConfig{
		GCImageContainer: GCImageContainer{
			ImageContainer: ImageContainer{
				EmulatorImage:    pubsubEmulatorImage,
				EmulatorGRPCPort: pubsubEmulatorPort,
			},
			ProjectID: projectID,
		},
		Topics:        topics,
		Subscriptions: subscriptions,
	}
}

// SetupPubsubEmulator starts the Pub/Sub emulator, creates the configured topics and
// subscriptions, and terminates the container when the test ends.
func SetupPubsubEmulator(t *testing.T, ctx context.Context, cfg PubsubConfig) *PubsubEmulator {
	t.Helper()
	port := nat.Port(fmt.Sprintf("%s/tcp", cfg.EmulatorGRPCPort))
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{string(port)},
		Cmd: []string{"gcloud", "beta", "emulators", "pubsub", "start",
			fmt.Sprintf("--project=%s", cfg.ProjectID),
			fmt.Sprintf("--host-port=0.0.0.0:%s", cfg.EmulatorGRPCPort)},
		WaitingFor: wait.ForListeningPort(port).WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to terminate Pub/Sub emulator container")
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, port)
	require.NoError(t, err)
	endpoint := fmt.Sprintf("%s:%s", host, mapped.Port())
	t.Logf("Pub/Sub emulator container started, listening on: %s", endpoint)

	if cfg.SetEnvVariables {
		t.Setenv("PUBSUB_EMULATOR_HOST", endpoint)
	}

	emulator := &PubsubEmulator{
		Endpoint: endpoint,
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(endpoint),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		},
	}

	adminClient, err := pubsub.NewClient(ctx, cfg.ProjectID, emulator.ClientOptions...)
	require.NoError(t, err)
	defer adminClient.Close()

	for _, id := range cfg.Topics {
		ensureTopic(t, ctx, adminClient, id)
	}
	for subID, topicID := range cfg.Subscriptions {
		topic := ensureTopic(t, ctx, adminClient, topicID)
		sub := adminClient.Subscription(subID)
		exists, err := sub.Exists(ctx)
		require.NoError(t, err)
		if !exists {
			_, err = adminClient.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{
				Topic:                 topic,
				EnableMessageOrdering: true,
			})
			require.NoError(t, err, "Failed to create Pub/Sub subscription")
		}
	}
	return emulator
}

func ensureTopic(t *testing.T, ctx context.Context, client *pubsub.Client, id string) *pubsub.Topic {
	t.Helper()
	topic := client.Topic(id)
	exists, err := topic.Exists(ctx)
	require.NoError(t, err)
	if !exists {
		topic, err = client.CreateTopic(ctx, id)
		require.NoError(t, err, "Failed to create Pub/Sub topic")
	}
	return topic
}
