package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-kafkabridge/pkg/helpers/sampler"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	projectID := flag.String("project", os.Getenv("GCP_PROJECT_ID"), "GCP project of the subscription")
	subscriptionID := flag.String("subscription", "", "Subscription attached to the bridge output topic")
	numMessages := flag.Int("n", 10, "Number of messages to capture before exiting")
	outputFile := flag.String("o", "pubsub_samples.json", "Output file to save the captured messages")
	flag.Parse()

	if *projectID == "" || *subscriptionID == "" {
		log.Fatal().Msg("Both -project and -subscription are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := pubsub.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Pub/Sub client")
	}
	defer client.Close()

	s := sampler.NewSampler(client, *subscriptionID, *numMessages, log.Logger)
	if err := s.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Sampler execution failed")
	}

	messages := s.Messages()
	if len(messages) == 0 {
		log.Warn().Msg("No messages were captured. The output file will not be created.")
		return
	}
	if err := sampler.WriteMessagesToFile(*outputFile, messages); err != nil {
		log.Error().Err(err).Str("file", *outputFile).Msg("Failed to write messages to file")
		return
	}
	log.Info().Str("file", *outputFile).Int("message_count", len(messages)).Msg("Successfully saved captured messages")
}
