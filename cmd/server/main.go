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

	"github.com/rs/zerolog"

	"tickex/api"
	"tickex/config"
	"tickex/engine"
	"tickex/events"
	"tickex/infra/kafka"
	"tickex/infra/kv"
	"tickex/jobs/broadcaster"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("load config")
	}

	logger := newLogger(cfg)

	store, err := kv.OpenPebble(cfg.Store.Dir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Store.Dir).Msg("open store")
	}
	defer store.Close()

	outbox, err := events.NewOutbox(store)
	if err != nil {
		logger.Fatal().Err(err).Msg("open outbox")
	}

	exchange := engine.New(store, outbox, logger, cfg.Store.Budget)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub(logger)
	go hub.Run(ctx)

	sinks := []broadcaster.Sink{hub}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		sinks = append(sinks, broadcaster.NewKafkaSink(producer))
	} else {
		sinks = append(sinks, broadcaster.LogSink{Log: logger})
	}

	bc := broadcaster.New(store, outbox, sinks,
		time.Duration(cfg.Broadcast.IntervalMillis)*time.Millisecond, logger)
	go bc.Run(ctx)

	server := api.NewServer(exchange, hub, logger)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr)
	if cfg.Logging.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
