// Command server runs the FairForm registration API. Configuration comes from
// the environment, optionally layered over a YAML file named by
// FAIRFORM_CONFIG, and the process stops cleanly on SIGINT or SIGTERM.
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
	// Lshortfile prefixes every log line with the file:line that wrote it.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	// Summary masks the Graph credentials and only reports whether a
	// database or Redis address is set.
	log.Printf("config: %s", cfg.Summary())

	// NotifyContext cancels ctx on the first signal. Serve then stops
	// accepting connections, lets in-flight submissions finish and stops the
	// formula pool, which records any job it could not run.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer a.Close()

	if err := a.Serve(ctx); err != nil {
		log.Printf("server stopped: %v", err)
		// os.Exit skips deferred calls, so release the database pool first.
		a.Close()
		os.Exit(1)
	}
}
