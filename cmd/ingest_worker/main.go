package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/usage-aggregate-service/config"
	"github.com/oksasatya/usage-aggregate-service/internal/application"
	"github.com/oksasatya/usage-aggregate-service/internal/container"
	"github.com/oksasatya/usage-aggregate-service/internal/etl"
	"github.com/oksasatya/usage-aggregate-service/pkg/helpers"
)

const handleTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if cfg.RabbitMQURL == "" || cfg.RabbitMQIngestQueue == "" {
		log.Fatal("RabbitMQ not configured")
	}
	logger := helpers.NewLogger(cfg.AppName+"-ingest", cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := container.OpenStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeStore()
	svc := application.NewService(store, nil, logger)

	consumer, err := helpers.NewRabbitConsumer(cfg.RabbitMQURL, cfg.RabbitMQIngestQueue, cfg.IngestPrefetch)
	if err != nil {
		log.Fatalf("amqp: %v", err)
	}
	defer consumer.Close()

	msgs, err := consumer.Deliveries("")
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgs {
			c, cancel := context.WithTimeout(context.WithoutCancel(ctx), handleTimeout)
			disp, id, err := etl.HandleMessage(c, svc, msg.Body)
			cancel()

			fields := logrus.Fields{"delivery_tag": msg.DeliveryTag, "disposition": disp.String()}
			switch disp {
			case etl.Ack:
				fields["user_id"] = id
				logger.WithFields(fields).Debug("row ingested")
				_ = msg.Ack(false)
			case etl.Reject:
				helpers.LogError(logger, "row rejected", err, fields)
				_ = msg.Nack(false, false)
			default:
				helpers.LogError(logger, "row requeued", err, fields)
				_ = msg.Nack(false, true)
			}
		}
	}()

	helpers.LogInfo(logger, "ingest worker listening", logrus.Fields{"queue": cfg.RabbitMQIngestQueue, "prefetch": cfg.IngestPrefetch})
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case <-done:
		logger.Warn("delivery channel closed")
	}
	consumer.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}
