package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/usage-aggregate-service/config"
	"github.com/oksasatya/usage-aggregate-service/internal/application"
	"github.com/oksasatya/usage-aggregate-service/internal/container"
	"github.com/oksasatya/usage-aggregate-service/internal/etl"
	"github.com/oksasatya/usage-aggregate-service/pkg/helpers"
	"github.com/oksasatya/usage-aggregate-service/pkg/validation"
)

func main() {
	_ = godotenv.Load()

	file := flag.String("file", "user_behavior_dataset.csv", "dataset CSV path")
	mode := flag.String("mode", "queue", "queue (publish to RabbitMQ) or direct (write through the service)")
	concurrency := flag.Int("concurrency", 8, "rows in flight")
	flag.Parse()

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-loader", cfg.Env, cfg.LogLevel)
	validation.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open dataset: %v", err)
	}
	rows, bad, err := etl.ReadCSV(f)
	_ = f.Close()
	if err != nil {
		log.Fatalf("read dataset: %v", err)
	}
	for _, e := range bad {
		helpers.LogError(logger, "skipping malformed row", e.Err, logrus.Fields{"line": e.Line})
	}
	helpers.LogInfo(logger, "dataset parsed", logrus.Fields{"rows": len(rows), "skipped": len(bad)})

	var sink etl.Sink
	switch *mode {
	case "queue":
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQIngestQueue)
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		defer pub.Close()
		sink = etl.QueueSink{Pub: pub}
	case "direct":
		store, closeStore, err := container.OpenStore(ctx, cfg, logger)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		defer closeStore()
		sink = etl.ServiceSink{Svc: application.NewService(store, nil, logger)}
	default:
		log.Fatalf("unknown mode %q", *mode)
	}

	res, err := etl.Load(ctx, rows, sink, *concurrency, logger)
	fields := logrus.Fields{"mode": *mode, "sent": res.Sent, "failed": res.Failed, "rejected": res.Rejected}
	if err != nil {
		helpers.LogError(logger, "load interrupted", err, fields)
		return
	}
	helpers.LogInfo(logger, "load finished", fields)
}
