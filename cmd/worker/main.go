package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GBSLIT/FairForm/internal/app"
	"github.com/GBSLIT/FairForm/internal/config"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer a.Close()

	if err := a.RunWorker(ctx); err != nil {
		log.Printf("worker stopped: %v", err)
		a.Close()
		os.Exit(1)
	}
}
