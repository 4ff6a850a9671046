package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/notification"
	"storefront/internal/repository"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Logger, "notifier")
	logger.Info().Str("backend", cfg.Notifier.Backend).Msg("starting notification worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	orderRepo := repository.NewOrderRepository(pool, logger)
	dispatcher := notification.NewDispatcher(orderRepo, notification.NewSMTPMailer(cfg.SMTP), logger)

	err = consume(ctx, cfg.Notifier, dispatcher.Handle, logger)
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("notification worker stopped")
		return nil
	}
	return err
}

func consume(ctx context.Context, cfg config.NotifierConfig, handle notification.MessageHandler, logger zerolog.Logger) error {
	switch cfg.Backend {
	case "kafka":
		consumer := notification.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger)
		defer consumer.Close()
		return consumer.Consume(ctx, handle)

	case "rabbitmq":
		rabbit, err := notification.DialRabbit(cfg.RabbitURL, cfg.RabbitExchange, logger)
		if err != nil {
			return err
		}
		defer rabbit.Close()
		return rabbit.Consume(ctx, cfg.RabbitQueue, handle)

	default:
		return fmt.Errorf("notifier backend %q has nothing to consume, use kafka or rabbitmq", cfg.Backend)
	}
}
