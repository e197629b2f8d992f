package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"example.com/blogger/cmd/server"
	"example.com/blogger/cmd/worker"
	"example.com/blogger/internal/account"
	appkafka "example.com/blogger/internal/broker"
	config "example.com/blogger/internal/init"
	"example.com/blogger/internal/logger"
	"example.com/blogger/internal/posts"
	"example.com/blogger/internal/store"
)

var logg = logger.New()

func fatal(msg string, err error) {
	logg.Error("main", msg, err)
	os.Exit(1)
}

func main() {
	// Initialize application configuration
	cfg := config.Init()
	logger.SetLevel(cfg.LogLevel)

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg)
	if err != nil {
		fatal("Store connection failed", err)
	}
	defer st.Close()

	// Configure Kafka client parameters
	kafkaCfg := appkafka.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		BatchTimeout: cfg.KafkaBatchTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}

	// Run application depending on selected mode
	switch cfg.Mode {
	case "server":
		if cfg.SessionSecret == config.DefaultSessionSecret {
			logg.Info("main", "SESSION_SECRET is not set, using the development default")
		}

		var pub appkafka.Publisher = appkafka.NopPublisher{}
		if cfg.KafkaEnabled {
			pub = appkafka.NewPublisher(appkafka.NewKafkaWriter(kafkaCfg))
		}
		defer pub.Close()

		accounts := account.NewService(st, st, account.NewTokenProvider([]byte(cfg.SessionSecret)), pub, cfg.SessionTTL)
		postSvc := posts.NewService(st, pub, posts.WithMaxWindow(cfg.MaxWindow))

		srv, err := server.New(accounts, postSvc, cfg.CookieSecure)
		if err != nil {
			fatal("Failed to load templates", err)
		}
		if err := server.Run(ctx, srv.Routes(), cfg.ServerAddr, cfg.TLSCert, cfg.TLSKey); err != nil {
			fatal("Server failed", err)
		}
	case "worker":
		if !cfg.KafkaEnabled {
			fatal("Worker mode needs Kafka", errors.New("KAFKA_ENABLED is false"))
		}
		// Start the worker that reads blog events and maintains post counts
		w := worker.New(st, appkafka.NewKafkaReader(kafkaCfg), 0, 0)
		w.Run(ctx)
		if err := w.Close(); err != nil {
			logg.Error("main", "Worker close failed", err)
		}
	default:
		fatal("Unknown mode "+cfg.Mode, nil)
	}

	logg.Info("main", "Shutdown completed")
}
