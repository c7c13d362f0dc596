package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/mchen04/Grantify.ai-sub000/internal/db"
	"github.com/mchen04/Grantify.ai-sub000/internal/ingest"
	"github.com/mchen04/Grantify.ai-sub000/internal/models"
)

func main() {
	var (
		dateStr   = flag.String("date", "", "extract publication date as YYYYMMDD (default: today)")
		alternate = flag.Bool("alternate-version", false, "try the alternate archive suffix first")
		offline   = flag.Bool("offline-fallback", false, "allow the configured offline document as last resort")
		cleaner   = flag.String("cleaner", "", "override cleaner strategy: passthrough or external")
		source    = flag.String("source", "", "override the source label stamped on grants and run records")
		configTry = flag.String("config", "", "path to a pipeline config overriding the embedded one")
	)
	flag.Parse()

	opts := ingest.RunOptions{
		UseAlternateVersion: *alternate,
		UseOfflineFallback:  *offline,
	}
	if *dateStr != "" {
		parsed, err := time.Parse("20060102", *dateStr)
		if err != nil {
			log.Fatalf("Invalid -date %q, want YYYYMMDD: %v", *dateStr, err)
		}
		opts.Date = parsed
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	cfg, err := ingest.LoadConfig(*configTry)
	if err != nil {
		log.Fatalf("Failed to load pipeline config: %v", err)
	}
	if *cleaner != "" {
		cfg.Cleaner.Strategy = *cleaner
	}
	if *source != "" {
		cfg.Feed.Source = *source
	}

	pipeline := ingest.NewPipelineFromConfig(ctx, cfg, db.NewStore(pool))

	stats, err := pipeline.Run(ctx, opts)
	if err != nil {
		log.Fatalf("Pipeline run %s failed: %v", stats.ID, err)
	}
	if stats.Status != models.RunStatusCompleted {
		os.Exit(1)
	}
}
