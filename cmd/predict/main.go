package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/usage-aggregate-service/config"
	"github.com/oksasatya/usage-aggregate-service/internal/inference"
	"github.com/oksasatya/usage-aggregate-service/pkg/helpers"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	baseURL := flag.String("api", cfg.APIBaseURL, "aggregate service base URL")
	modelURI := flag.String("model", cfg.ModelURI, "model artifact path or gs:// URI")
	flag.Parse()

	logger := helpers.NewLogger(cfg.AppName+"-predict", cfg.Env, cfg.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	agg, err := inference.NewClient(*baseURL).Latest(ctx)
	if err != nil {
		if errors.Is(err, inference.ErrNoUsers) {
			logger.Warn("no users stored; prediction aborted")
			return
		}
		log.Fatalf("fetch latest: %v", err)
	}
	helpers.LogInfo(logger, "fetched latest aggregate", logrus.Fields{"user_id": agg.ID})

	model, err := inference.LoadModel(ctx, *modelURI, cfg.GCSCredentialsJSONPath)
	if err != nil {
		log.Fatalf("load model: %v", err)
	}

	class, err := model.Predict(inference.Features(agg, model.FeatureNames()))
	if err != nil {
		log.Fatalf("predict: %v", err)
	}
	helpers.LogInfo(logger, "prediction", logrus.Fields{"user_id": agg.ID, "class": class})
	fmt.Printf("Predicted User Behavior Class: %d\n", class)
}
