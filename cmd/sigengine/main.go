package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"signalengine/config"
	"signalengine/internal/logger"
	"signalengine/internal/metrics"
	"signalengine/internal/sigengine"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, config.ErrTimeframeBelowBase) {
			log.Fatalf("[sigengine] timeframe must be at least the base interval: %v", err)
		}
		log.Fatalf("[sigengine] config: %v", err)
	}

	logger.Init("sigengine", cfg.SlogLevel())
	cfg.LogSummary()

	svc, err := sigengine.New(cfg, metrics.NewMetrics())
	if err != nil {
		log.Fatalf("[sigengine] init failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[sigengine] fatal: %v", err)
	}
}
