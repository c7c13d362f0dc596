package main

import (
	"context"
	"log"
	"os"

	"github.com/mchen04/Grantify.ai-sub000/internal/api"
	"github.com/mchen04/Grantify.ai-sub000/internal/db"
	"github.com/mchen04/Grantify.ai-sub000/internal/ingest"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
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

	cfg, err := ingest.LoadConfig(os.Getenv("PIPELINE_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load pipeline config: %v", err)
	}

	store := db.NewStore(pool)
	pipeline := ingest.NewPipelineFromConfig(ctx, cfg, store)

	srv := api.NewServer(store, pipeline)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}
