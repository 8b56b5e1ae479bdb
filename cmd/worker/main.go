package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/app/bootstrap"
)

func main() {
	configPath := flag.String("config", envOr("M04_CONFIG_PATH", "configs/default.yaml"), "path to the service config file")
	flag.Parse()

	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, *configPath)
	if err != nil {
		log.Fatalf("bootstrap worker runtime: %v", err)
	}
	if err := runtime.RunWorker(ctx); err != nil {
		log.Fatalf("run worker: %v", err)
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
