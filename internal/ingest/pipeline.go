package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mchen04/Grantify.ai-sub000/internal/ai"
	"github.com/mchen04/Grantify.ai-sub000/internal/models"
)

// GrantStore is the persistence surface the pipeline needs. Implemented
// by db.Store; tests substitute an in-memory fake.
type GrantStore interface {
	ExistingOpportunityIDs(ctx context.Context) (map[string]struct{}, error)
	SaveGrants(ctx context.Context, grants []models.Grant, stats *models.PipelineRunStats) error
	SaveRunStats(ctx context.Context, stats *models.PipelineRunStats) error
}

// Pipeline wires the acquisition, transformation, cleaning and storage
// stages for one feed.
type Pipeline struct {
	Store       GrantStore
	Downloader  *ExtractDownloader
	Transformer *Transformer
	Cleaner     TextCleaner
	Source      string
	Now         func() time.Time
}

func NewPipeline(store GrantStore, downloader *ExtractDownloader, cleaner TextCleaner, source string) *Pipeline {
	return &Pipeline{
		Store:       store,
		Downloader:  downloader,
		Transformer: NewTransformer(),
		Cleaner:     cleaner,
		Source:      source,
		Now:         time.Now,
	}
}

// NewPipelineFromConfig builds the full stage chain described by cfg.
// The rate limiter of an external cleaner runs until ctx is cancelled.
func NewPipelineFromConfig(ctx context.Context, cfg *Config, store GrantStore) *Pipeline {
	downloader := NewExtractDownloader(cfg.Feed.BaseURL, cfg.Feed.ListingURL, cfg.Feed.StagingDir, cfg.Feed.FallbackPath)
	if cfg.Feed.MaxLookbackDays > 0 {
		downloader.MaxLookbackDays = cfg.Feed.MaxLookbackDays
	}
	return NewPipeline(store, downloader, NewCleanerFromConfig(ctx, cfg.Cleaner), cfg.Feed.Source)
}

// NewCleanerFromConfig selects the cleaning strategy. Unknown strategies
// fall back to passthrough so a config typo never blocks a run.
func NewCleanerFromConfig(ctx context.Context, cfg CleanerConfig) TextCleaner {
	if cfg.Strategy != "external" {
		if cfg.Strategy != "" && cfg.Strategy != "passthrough" {
			log.Printf("[Pipeline] unknown cleaner strategy %q, using passthrough", cfg.Strategy)
		}
		return NewPassthroughCleaner()
	}

	limiter := NewRateLimiter(cfg.RateLimiterConfig())
	limiter.Start(ctx)
	return NewExternalCleaner(ai.NewClient(cfg.BaseURL, cfg.Model), limiter)
}

// RunOptions selects the extract publication date and fallback behavior
// for one invocation.
type RunOptions struct {
	Date                time.Time // zero value means today
	UseAlternateVersion bool
	UseOfflineFallback  bool
}

// Run executes one full pipeline invocation and always returns the run
// stats, persisted with status completed or failed. A stage failure
// marks the run failed and carries the cause in both the stats record
// and the returned error; record-level upsert failures are counted in
// the stats without failing the run.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*models.PipelineRunStats, error) {
	started := p.Now().UTC()
	stats := models.NewRunStats(p.Source, started)

	date := opts.Date
	if date.IsZero() {
		date = started
	}

	log.Printf("[Pipeline] run %s starting for %s", stats.ID, date.Format(extractDateLayout))

	err := p.run(ctx, date, opts, stats)

	completed := p.Now().UTC()
	stats.CompletedAt = &completed
	if err != nil {
		stats.Status = models.RunStatusFailed
		stats.Error = err.Error()
	} else {
		stats.Status = models.RunStatusCompleted
	}

	if saveErr := p.Store.SaveRunStats(ctx, stats); saveErr != nil {
		log.Printf("[Pipeline] run %s: failed to persist stats: %v", stats.ID, saveErr)
		if err == nil {
			err = saveErr
		}
	}

	log.Printf("[Pipeline] run %s %s: %d total, %d new, %d updated, %d unchanged, %d failed",
		stats.ID, stats.Status, stats.Total, stats.New, stats.Updated, stats.Unchanged, stats.Failed)
	return stats, err
}

func (p *Pipeline) run(ctx context.Context, date time.Time, opts RunOptions, stats *models.PipelineRunStats) error {
	existingIDs, err := p.Store.ExistingOpportunityIDs(ctx)
	if err != nil {
		return fmt.Errorf("loading existing ids: %w", err)
	}

	documentPath, err := p.Downloader.Acquire(ctx, date, opts.UseAlternateVersion, opts.UseOfflineFallback)
	if err != nil {
		return fmt.Errorf("acquiring extract: %w", err)
	}

	grants, err := p.Transformer.Transform(ctx, documentPath, existingIDs, p.Cleaner)
	if err != nil {
		return fmt.Errorf("transforming document: %w", err)
	}

	for i := range grants {
		grants[i].Source = p.Source
		if grants[i].ProcessingStatus == "" {
			grants[i].ProcessingStatus = ProcessingNotStarted
		}
	}

	if err := p.Store.SaveGrants(ctx, grants, stats); err != nil {
		return fmt.Errorf("saving grants: %w", err)
	}
	return nil
}
