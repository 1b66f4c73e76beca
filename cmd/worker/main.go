package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/Sudeti/qkb/internal/db"
	"github.com/Sudeti/qkb/internal/jobs"
	"github.com/Sudeti/qkb/internal/scrape"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	store := db.NewStore(pool)
	pipeline, err := scrape.NewPipeline(store, scrape.NewClient())
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	runner := jobs.NewRunner(db.NewQueue(pool), store, pipeline)
	log.Printf("[Worker] Starting job loop")
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Worker stopped: %v", err)
	}
	log.Printf("[Worker] Shutting down")
}
