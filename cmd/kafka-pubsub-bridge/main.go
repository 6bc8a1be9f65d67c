package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-kafkabridge/pkg/bridgeconfig"
	"github.com/illmade-knight/go-kafkabridge/pkg/kafkasource"
	"github.com/illmade-knight/go-kafkabridge/pkg/pubsubsink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	configPath := flag.String("config", "config/bridge.yaml", "Path to the bridge configuration file")
	flag.Parse()

	cfg, err := bridgeconfig.LoadAndValidateConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load bridge configuration")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	sinkCfg, err := cfg.SinkConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid sink configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sinkCfg, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("Bridge stopped with error")
	}
	log.Info().Msg("Bridge shut down cleanly")
}

func run(ctx context.Context, cfg *bridgeconfig.BridgeConfig, sinkCfg pubsubsink.Config, logger zerolog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	task := pubsubsink.NewSinkTask(pubsubsink.NewGooglePubsubPublisher, logger, pubsubsink.WithRegisterer(registry))
	if err := task.Start(ctx, sinkCfg); err != nil {
		return err
	}

	client, err := kafkasource.NewKgoClient(cfg.Kafka, logger)
	if err != nil {
		task.Stop()
		return err
	}
	defer client.Close()

	runner, err := kafkasource.NewRunner(client, task, cfg.Kafka, logger)
	if err != nil {
		task.Stop()
		return err
	}

	logger.Info().
		Str("project_id", sinkCfg.ProjectID).
		Str("topic_id", sinkCfg.TopicID).
		Strs("kafka_topics", cfg.Kafka.Topics).
		Str("task_version", task.Version()).
		Msg("Starting Kafka to Pub/Sub bridge")

	g, gctx := errgroup.WithContext(ctx)
	metricsCtx, stopMetrics := context.WithCancel(gctx)
	defer stopMetrics()
	g.Go(func() error {
		// Stop serving metrics once the runner is done.
		defer stopMetrics()
		return runner.Run(gctx)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(metricsCtx, cfg.MetricsAddr, registry, logger)
		})
	}
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
