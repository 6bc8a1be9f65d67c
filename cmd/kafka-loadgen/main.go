package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/illmade-knight/go-kafkabridge/pkg/helpers/loadgen"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	brokers := flag.String("brokers", "localhost:9092", "Comma separated Kafka seed brokers")
	topic := flag.String("topic", "events", "Kafka topic to produce to")
	keys := flag.Int("keys", 5, "Number of distinct record keys")
	rate := flag.Float64("rate", 2, "Records per second per key")
	duration := flag.Duration("duration", 30*time.Second, "How long to generate load")
	bodyField := flag.String("body-field", "body", "Name of the JSON field carrying the message body")
	flag.Parse()

	producers := make([]*loadgen.Producer, *keys)
	gen := loadgen.JSONPayloadGenerator{BodyField: *bodyField}
	for i := range producers {
		producers[i] = &loadgen.Producer{
			Key:              fmt.Sprintf("key-%d", i),
			MessageRate:      *rate,
			PayloadGenerator: gen,
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := loadgen.NewKafkaClient(strings.Split(*brokers, ","), *topic, log.Logger)
	lg := loadgen.NewLoadGenerator(client, producers, log.Logger)
	if err := lg.Run(ctx, *duration); err != nil {
		log.Fatal().Err(err).Msg("Load generation failed")
	}
	log.Info().Int64("sent", lg.Sent()).Msg("Load generation complete")
}
